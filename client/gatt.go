package client

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/tracer"
)

var errInvalidHandle = errors.New("client: invalid handle")

// DiscoverServices discovers the services of p matching uuids, or all of
// them when uuids is empty.
func (c *Client) DiscoverServices(ctx context.Context, p *bluetooth.Peripheral, uuids ...bluetooth.UUID) ([]bluetooth.Service, error) {
	ev, err := await(ctx, c, call{
		name:  "discoverServices",
		key:   opKey{kind: opServices, peripheral: p},
		attrs: []attribute.KeyValue{peripheralAttr(p), tracer.IntAttr("filter", len(uuids))},
		issue: func() error { return p.DiscoverServices(uuids...) },
	}, func(ev bluetooth.ServicesDiscovered) error { return ev.Err })
	return ev.Services, err
}

// DiscoverIncludedServices discovers the services included by s.
func (c *Client) DiscoverIncludedServices(ctx context.Context, s bluetooth.Service, uuids ...bluetooth.UUID) ([]bluetooth.Service, error) {
	if !s.IsValid() {
		return nil, errInvalidHandle
	}
	p := s.Peripheral()
	ev, err := await(ctx, c, call{
		name:  "discoverIncludedServices",
		key:   opKey{kind: opIncludedServices, peripheral: p, handle: s},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("service", s.UUID())},
		issue: func() error { return p.DiscoverIncludedServices(s, uuids...) },
	}, func(ev bluetooth.IncludedServicesDiscovered) error { return ev.Err })
	return ev.IncludedServices, err
}

// DiscoverCharacteristics discovers the characteristics of s matching
// uuids, or all of them when uuids is empty.
func (c *Client) DiscoverCharacteristics(ctx context.Context, s bluetooth.Service, uuids ...bluetooth.UUID) ([]bluetooth.Characteristic, error) {
	if !s.IsValid() {
		return nil, errInvalidHandle
	}
	p := s.Peripheral()
	ev, err := await(ctx, c, call{
		name:  "discoverCharacteristics",
		key:   opKey{kind: opCharacteristics, peripheral: p, handle: s},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("service", s.UUID())},
		issue: func() error { return p.DiscoverCharacteristics(s, uuids...) },
	}, func(ev bluetooth.CharacteristicsDiscovered) error { return ev.Err })
	return ev.Characteristics, err
}

// DiscoverDescriptors discovers the descriptors of ch.
func (c *Client) DiscoverDescriptors(ctx context.Context, ch bluetooth.Characteristic) ([]bluetooth.Descriptor, error) {
	if !ch.IsValid() {
		return nil, errInvalidHandle
	}
	p := ch.Peripheral()
	ev, err := await(ctx, c, call{
		name:  "discoverDescriptors",
		key:   opKey{kind: opDescriptors, peripheral: p, handle: ch},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("characteristic", ch.UUID())},
		issue: func() error { return p.DiscoverDescriptors(ch) },
	}, func(ev bluetooth.DescriptorsDiscovered) error { return ev.Err })
	return ev.Descriptors, err
}

// Read reads the value of ch.
func (c *Client) Read(ctx context.Context, ch bluetooth.Characteristic) ([]byte, error) {
	if !ch.IsValid() {
		return nil, errInvalidHandle
	}
	p := ch.Peripheral()
	ev, err := await(ctx, c, call{
		name:  "read",
		key:   opKey{kind: opRead, peripheral: p, handle: ch},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("characteristic", ch.UUID())},
		issue: func() error { return p.ReadCharacteristic(ch) },
	}, func(ev bluetooth.CharacteristicValue) error { return ev.Err })
	return ev.Value, err
}

// Write writes value to ch and waits for the acknowledgement.
func (c *Client) Write(ctx context.Context, ch bluetooth.Characteristic, value []byte) error {
	if !ch.IsValid() {
		return errInvalidHandle
	}
	p := ch.Peripheral()
	_, err := await(ctx, c, call{
		name: "write",
		key:  opKey{kind: opWrite, peripheral: p, handle: ch},
		attrs: []attribute.KeyValue{
			peripheralAttr(p),
			uuidAttr("characteristic", ch.UUID()),
			tracer.IntAttr("len", len(value)),
		},
		issue: func() error { return p.WriteCharacteristic(ch, value, bluetooth.WithResponse) },
	}, func(ev bluetooth.WriteCharacteristicResult) error { return ev.Err })
	return err
}

// WriteWithoutResponse writes value to ch without acknowledgement. Values
// longer than the peripheral accepts in one write are split in chunks,
// spaced at least WriteChunkDelay apart. It returns the number of chunks
// written.
func (c *Client) WriteWithoutResponse(ctx context.Context, ch bluetooth.Characteristic, value []byte) (int, error) {
	if !ch.IsValid() {
		return 0, errInvalidHandle
	}
	p := ch.Peripheral()
	mwl, err := c.MaxWriteLen(ctx, p)
	if err != nil {
		return 0, err
	}
	chunkLen := mwl.WithoutResponse
	if chunkLen <= 0 {
		chunkLen = len(value)
	}

	ctx, span := tracer.StartSpan(ctx, "client.writeWithoutResponse")
	span.SetAttributes(
		peripheralAttr(p),
		uuidAttr("characteristic", ch.UUID()),
		tracer.IntAttr("len", len(value)),
		tracer.IntAttr("chunkLen", chunkLen),
	)

	limit := rate.Inf
	if c.opts.WriteChunkDelay > 0 {
		limit = rate.Every(c.opts.WriteChunkDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	chunks := 0
	for _, chunk := range split(value, chunkLen) {
		if err := limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("writeWithoutResponse: %w", err)
			tracer.End(span, err)
			return chunks, err
		}
		if err := p.WriteCharacteristic(ch, chunk, bluetooth.WithoutResponse); err != nil {
			err = fmt.Errorf("writeWithoutResponse: %w", err)
			tracer.End(span, err)
			return chunks, err
		}
		chunks++
	}
	span.SetAttributes(tracer.IntAttr("chunks", chunks))
	tracer.End(span, nil)
	return chunks, nil
}

// split cuts value in pieces of at most n bytes. An empty value is one
// empty piece.
func split(value []byte, n int) [][]byte {
	if len(value) == 0 || n <= 0 {
		return [][]byte{value}
	}
	var chunks [][]byte
	for len(value) > n {
		chunks = append(chunks, value[:n])
		value = value[n:]
	}
	return append(chunks, value)
}

// ReadDescriptor reads the value of d.
func (c *Client) ReadDescriptor(ctx context.Context, d bluetooth.Descriptor) ([]byte, error) {
	if !d.IsValid() {
		return nil, errInvalidHandle
	}
	p := d.Peripheral()
	ev, err := await(ctx, c, call{
		name:  "readDescriptor",
		key:   opKey{kind: opReadDescriptor, peripheral: p, handle: d},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("descriptor", d.UUID())},
		issue: func() error { return p.ReadDescriptor(d) },
	}, func(ev bluetooth.DescriptorValue) error { return ev.Err })
	return ev.Value, err
}

// WriteDescriptor writes value to d.
func (c *Client) WriteDescriptor(ctx context.Context, d bluetooth.Descriptor, value []byte) error {
	if !d.IsValid() {
		return errInvalidHandle
	}
	p := d.Peripheral()
	_, err := await(ctx, c, call{
		name:  "writeDescriptor",
		key:   opKey{kind: opWriteDescriptor, peripheral: p, handle: d},
		attrs: []attribute.KeyValue{peripheralAttr(p), uuidAttr("descriptor", d.UUID())},
		issue: func() error { return p.WriteDescriptor(d, value) },
	}, func(ev bluetooth.WriteDescriptorResult) error { return ev.Err })
	return err
}

// ReadRSSI reads the signal strength of the connection to p.
func (c *Client) ReadRSSI(ctx context.Context, p *bluetooth.Peripheral) (int, error) {
	ev, err := await(ctx, c, call{
		name:  "readRSSI",
		key:   opKey{kind: opRSSI, peripheral: p},
		attrs: []attribute.KeyValue{peripheralAttr(p)},
		issue: func() error { return p.ReadRSSI() },
	}, func(ev bluetooth.ReadRSSIResult) error { return ev.Err })
	return ev.RSSI, err
}

// MaxWriteLen returns the largest value p accepts in a single write.
func (c *Client) MaxWriteLen(ctx context.Context, p *bluetooth.Peripheral) (bluetooth.MaxWriteLen, error) {
	tag := newTag()
	ev, err := await[bluetooth.MaxWriteLenResult](ctx, c, call{
		name:  "maxWriteLen",
		key:   opKey{kind: opTagged, handle: tag},
		attrs: []attribute.KeyValue{peripheralAttr(p)},
		issue: func() error { return p.MaxWriteLen(tag) },
	}, nil)
	return ev.MaxWriteLen, err
}
