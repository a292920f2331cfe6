package client

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/tracer"
)

// WaitPoweredOn blocks until the radio is powered on. It fails early when
// the radio is unsupported or the application is not authorized to use it.
func (c *Client) WaitPoweredOn(ctx context.Context) error {
	for {
		c.mu.Lock()
		state, changed, closed := c.state, c.stateCh, c.closed
		c.mu.Unlock()

		switch {
		case closed:
			return bluetooth.ErrClosed
		case state == bluetooth.StatePoweredOn:
			return nil
		case state == bluetooth.StateUnsupported, state == bluetooth.StateUnauthorized:
			return fmt.Errorf("%w: %s", errRadioUnusable, state)
		}

		select {
		case <-changed:
		case <-c.loopDone:
			return bluetooth.ErrClosed
		case <-ctx.Done():
			return fmt.Errorf("waiting for radio (state %s): %w", state, ctx.Err())
		}
	}
}

// Scan scans until StopScan is called or ctx is done, calling fn for every
// discovered peripheral. fn runs on the event goroutine: it may call
// StopScan, but must not call operations that wait for events. Scan returns
// nil when stopped with StopScan and ctx.Err() when ctx ended it.
func (c *Client) Scan(ctx context.Context, opts bluetooth.ScanOptions, fn func(bluetooth.PeripheralDiscovered)) error {
	ctx, span := tracer.StartSpan(ctx, "client.scan")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		tracer.End(span, bluetooth.ErrClosed)
		return bluetooth.ErrClosed
	}
	if c.scanStop != nil {
		c.mu.Unlock()
		tracer.End(span, errScanInProgress)
		return errScanInProgress
	}
	stop := make(chan struct{})
	c.scanStop = stop
	c.scanFn = fn
	c.mu.Unlock()

	if err := c.m.Scan(opts); err != nil {
		c.endScan(stop)
		tracer.End(span, err)
		return err
	}

	var err error
	select {
	case <-stop:
	case <-ctx.Done():
		c.endScan(stop)
		err = ctx.Err()
	}
	if stopErr := c.m.StopScan(); stopErr != nil && err == nil {
		err = stopErr
	}
	tracer.End(span, err)
	return err
}

// StopScan stops a running Scan.
func (c *Client) StopScan() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanStop == nil {
		return errNotScanning
	}
	close(c.scanStop)
	c.scanStop = nil
	c.scanFn = nil
	return nil
}

func (c *Client) endScan(stop chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanStop == stop {
		close(stop)
		c.scanStop = nil
		c.scanFn = nil
	}
}

// Connect connects to p. When ctx is done or ConnectTimeout elapses first,
// the connection attempt is cancelled.
func (c *Client) Connect(ctx context.Context, p *bluetooth.Peripheral, opts bluetooth.ConnectOptions) error {
	_, err := await[bluetooth.Event](ctx, c, call{
		name:    "connect",
		key:     opKey{kind: opConnect, peripheral: p},
		timeout: c.opts.ConnectTimeout,
		attrs:   []attribute.KeyValue{peripheralAttr(p)},
		issue:   func() error { return c.m.Connect(p, opts) },
	}, func(ev bluetooth.Event) error {
		if failed, ok := ev.(bluetooth.PeripheralConnectFailed); ok {
			return failed.Err
		}
		return nil
	})
	if err != nil && p != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		// Native connection attempts never time out, so abandon it.
		c.m.CancelConnect(p)
	}
	return err
}

// Disconnect cancels the connection to p and waits until it is closed.
func (c *Client) Disconnect(ctx context.Context, p *bluetooth.Peripheral) error {
	_, err := await(ctx, c, call{
		name:  "disconnect",
		key:   opKey{kind: opDisconnect, peripheral: p},
		attrs: []attribute.KeyValue{peripheralAttr(p)},
		issue: func() error { return c.m.CancelConnect(p) },
	}, func(ev bluetooth.PeripheralDisconnected) error { return ev.Err })
	return err
}

// RetrievePeripherals looks up known peripherals by identifier.
func (c *Client) RetrievePeripherals(ctx context.Context, ids []bluetooth.UUID) ([]*bluetooth.Peripheral, error) {
	tag := newTag()
	ev, err := await[bluetooth.PeripheralsResult](ctx, c, call{
		name:  "retrievePeripherals",
		key:   opKey{kind: opTagged, handle: tag},
		attrs: []attribute.KeyValue{tracer.IntAttr("ids", len(ids))},
		issue: func() error { return c.m.RetrievePeripherals(ids, tag) },
	}, nil)
	if err != nil {
		return nil, err
	}
	return ev.Peripherals, nil
}

// RetrieveConnectedPeripherals looks up the peripherals connected to the
// system that expose any of services.
func (c *Client) RetrieveConnectedPeripherals(ctx context.Context, services []bluetooth.UUID) ([]*bluetooth.Peripheral, error) {
	tag := newTag()
	ev, err := await[bluetooth.ConnectedPeripheralsResult](ctx, c, call{
		name:  "retrieveConnectedPeripherals",
		key:   opKey{kind: opTagged, handle: tag},
		attrs: []attribute.KeyValue{tracer.IntAttr("services", len(services))},
		issue: func() error { return c.m.RetrieveConnectedPeripherals(services, tag) },
	}, nil)
	if err != nil {
		return nil, err
	}
	return ev.Peripherals, nil
}
