package client

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Options configures a Client. Zero fields get the defaults from their
// struct tags.
type Options struct {
	// Timeout bounds every operation except Connect when the context has no
	// earlier deadline.
	Timeout time.Duration `default:"10s"`

	// ConnectTimeout bounds Connect. The native framework never gives up
	// on a connection attempt by itself.
	ConnectTimeout time.Duration `default:"30s"`

	// WriteChunkDelay is the minimum spacing between the chunks of
	// WriteWithoutResponse.
	WriteChunkDelay time.Duration `default:"10ms"`

	// NotificationBuffer is the number of notifications queued per
	// subscription before new ones are dropped.
	NotificationBuffer int `default:"64"`

	Logger *logrus.Logger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	defaults.SetDefaults(&opts)
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return opts
}
