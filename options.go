package bluetooth

import (
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// CentralManagerOptions configures a CentralManager. The zero value is
// usable; missing fields get the defaults from their struct tags.
type CentralManagerOptions struct {
	// ShowPowerAlert asks the system to warn the user when Bluetooth is
	// powered off while the manager is created.
	ShowPowerAlert bool

	// EventBufferSize is the capacity of the channel returned by Events. With
	// the default of 0 every delivery waits for the receiver, keeping the
	// native framework in lockstep with the consumer.
	EventBufferSize int `default:"0"`

	// QueueLabel names the serial dispatch queue in logs and profiles.
	QueueLabel string `default:"cbcentral"`

	Logger *logrus.Logger

	// Driver overrides the platform driver, mainly for tests.
	Driver DriverFactory
}

func (o *CentralManagerOptions) withDefaults() CentralManagerOptions {
	var opts CentralManagerOptions
	if o != nil {
		opts = *o
	}
	defaults.SetDefaults(&opts)
	if opts.EventBufferSize < 0 {
		opts.EventBufferSize = 0
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return opts
}

// ScanOptions configures a scan. Nil and empty Services both scan for all
// peripherals.
type ScanOptions struct {
	// AllowDuplicates reports every advertisement instead of coalescing
	// repeated discoveries of the same peripheral.
	AllowDuplicates bool

	// Services restricts the scan to peripherals advertising any of these
	// service UUIDs.
	Services []UUID

	// SolicitedServices additionally reports peripherals soliciting any of
	// these services.
	SolicitedServices []UUID
}

func (o ScanOptions) clone() ScanOptions {
	o.Services = cloneUUIDs(o.Services)
	o.SolicitedServices = cloneUUIDs(o.SolicitedServices)
	return o
}

// ConnectOptions configures a connection attempt.
type ConnectOptions struct {
	// NotifyOnConnection, NotifyOnDisconnection and NotifyOnNotification ask
	// the system to alert the user about these events while the application
	// is suspended.
	NotifyOnConnection    bool
	NotifyOnDisconnection bool
	NotifyOnNotification  bool

	// StartDelay delays the connection. The native framework only accepts
	// whole seconds; the value is truncated.
	StartDelay time.Duration
}

// StartDelaySeconds returns StartDelay in whole seconds as passed to the
// native framework.
func (o ConnectOptions) StartDelaySeconds() int {
	if o.StartDelay <= 0 {
		return 0
	}
	return int(o.StartDelay / time.Second)
}

func cloneUUIDs(uuids []UUID) []UUID {
	if len(uuids) == 0 {
		return nil
	}
	return append([]UUID(nil), uuids...)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
