package client

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/tracer"
)

// call describes one request and the event answering it.
type call struct {
	name    string
	key     opKey
	timeout time.Duration
	attrs   []attribute.KeyValue
	issue   func() error
}

// await issues the request of cl and waits for its answer of type T. errOf
// extracts the error reported in the event.
func await[T bluetooth.Event](ctx context.Context, c *Client, cl call, errOf func(T) error) (T, error) {
	var zero T
	ctx, span := tracer.StartSpan(ctx, "client."+cl.name, trace.WithAttributes(cl.attrs...))

	ev, err := c.roundTrip(ctx, cl)
	if err != nil {
		tracer.End(span, err)
		return zero, err
	}
	got, ok := ev.(T)
	if !ok {
		err = fmt.Errorf("%s: unexpected event %T", cl.name, ev)
		tracer.End(span, err)
		return zero, err
	}
	if errOf != nil {
		err = errOf(got)
	}
	tracer.End(span, err)
	return got, err
}

func (c *Client) roundTrip(ctx context.Context, cl call) (bluetooth.Event, error) {
	w, err := c.register(cl.key)
	if err != nil {
		return nil, err
	}
	if err := cl.issue(); err != nil {
		c.unregister(cl.key, w)
		return nil, fmt.Errorf("%s: %w", cl.name, err)
	}

	timeout := cl.timeout
	if timeout == 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case r := <-w.ch:
		return r.ev, r.err
	case <-ctx.Done():
		c.unregister(cl.key, w)
		c.logger.WithField("op", cl.name).Debug("operation abandoned")
		return nil, fmt.Errorf("%s: %w", cl.name, ctx.Err())
	}
}

func peripheralAttr(p *bluetooth.Peripheral) attribute.KeyValue {
	if p == nil {
		return tracer.StringAttr("peripheral", "")
	}
	return tracer.StringAttr("peripheral", p.ID().String())
}

func uuidAttr(key string, u bluetooth.UUID) attribute.KeyValue {
	return tracer.StringAttr(key, u.ShortString())
}
