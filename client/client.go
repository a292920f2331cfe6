// Package client offers a blocking API on top of the event stream of a
// bluetooth.CentralManager.
//
// The client is the sole reader of the manager's events. It routes every
// event to the caller waiting for it, so GATT operations become ordinary
// calls taking a context:
//
//	c, err := client.Open(nil, nil)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	if err := c.WaitPoweredOn(ctx); err != nil {
//		return err
//	}
//	value, err := c.Read(ctx, characteristic)
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/cbcentral/bluetooth"
	"github.com/cbcentral/bluetooth/internal/groutine"
)

var (
	// ErrDisconnected fails operations pending on a peripheral that
	// disconnected without an error.
	ErrDisconnected = errors.New("client: peripheral disconnected")

	errScanInProgress = errors.New("client: scan already in progress")
	errNotScanning    = errors.New("client: not scanning")
	errRadioUnusable  = errors.New("client: Bluetooth radio unusable")
)

type opKind int

const (
	opConnect opKind = iota
	opDisconnect
	opServices
	opIncludedServices
	opCharacteristics
	opDescriptors
	opRead
	opWrite
	opNotify
	opReadDescriptor
	opWriteDescriptor
	opRSSI
	opTagged
)

// opKey identifies the event an operation waits for. handle is a Service,
// Characteristic, Descriptor, a tag string or nil.
type opKey struct {
	kind       opKind
	peripheral *bluetooth.Peripheral
	handle     any
}

type result struct {
	ev  bluetooth.Event
	err error
}

type waiter struct {
	ch chan result
}

// Client is a blocking wrapper around a CentralManager.
type Client struct {
	m      *bluetooth.CentralManager
	opts   Options
	logger *logrus.Logger

	mu       sync.Mutex
	waiters  map[opKey][]*waiter
	state    bluetooth.ManagerState
	stateCh  chan struct{}
	scanFn   func(bluetooth.PeripheralDiscovered)
	scanStop chan struct{}
	closed   bool

	connectHandler func(p *bluetooth.Peripheral, connected bool)
	stateHandler   func(state bluetooth.ManagerState)

	subsMu sync.Mutex
	subs   *hashmap.Map[string, []*subscription]

	// inHandler is set while the event goroutine runs a user callback.
	inHandler atomic.Bool
	loopDone  chan struct{}
}

// Open creates a CentralManager and a Client reading its events.
func Open(managerOpts *bluetooth.CentralManagerOptions, opts *Options) (*Client, error) {
	o := opts.withDefaults()
	var mo bluetooth.CentralManagerOptions
	if managerOpts != nil {
		mo = *managerOpts
	}
	if mo.Logger == nil {
		mo.Logger = o.Logger
	}
	m, err := bluetooth.NewCentralManager(&mo)
	if err != nil {
		return nil, err
	}
	return New(m, &o), nil
}

// New starts routing the events of m. Nothing else may read m.Events.
func New(m *bluetooth.CentralManager, opts *Options) *Client {
	o := opts.withDefaults()
	c := &Client{
		m:        m,
		opts:     o,
		logger:   o.Logger,
		waiters:  make(map[opKey][]*waiter),
		state:    m.State(),
		stateCh:  make(chan struct{}),
		subs:     hashmap.New[string, []*subscription](),
		loopDone: make(chan struct{}),
	}
	groutine.Go(context.Background(), "client.events", c.loop)
	return c
}

// Manager returns the underlying manager for operations the client does not
// wrap. Its events must not be read.
func (c *Client) Manager() *bluetooth.CentralManager {
	return c.m
}

// State returns the last radio state seen by the client.
func (c *Client) State() bluetooth.ManagerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetConnectHandler sets a handler called on every connection and
// disconnection. It runs on the event goroutine and must not block.
func (c *Client) SetConnectHandler(fn func(p *bluetooth.Peripheral, connected bool)) {
	c.mu.Lock()
	c.connectHandler = fn
	c.mu.Unlock()
}

// SetStateChangeHandler sets a handler called on every radio state change.
// It runs on the event goroutine and must not block.
func (c *Client) SetStateChangeHandler(fn func(state bluetooth.ManagerState)) {
	c.mu.Lock()
	c.stateHandler = fn
	c.mu.Unlock()
}

// Close closes the manager and fails every pending operation with
// bluetooth.ErrClosed. It waits for the event goroutine to stop, except
// when called from a handler running on it.
func (c *Client) Close() error {
	err := c.m.Close()
	if c.inHandler.Load() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		return err
	}
	<-c.loopDone
	return err
}

// callHandler runs a user callback on the event goroutine.
func (c *Client) callHandler(fn func()) {
	c.inHandler.Store(true)
	defer c.inHandler.Store(false)
	fn()
}

func (c *Client) loop(ctx context.Context) {
	defer close(c.loopDone)
	for ev := range c.m.Events() {
		c.route(ev)
	}
	c.shutdown()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	waiters := c.waiters
	c.waiters = make(map[opKey][]*waiter)
	if c.scanStop != nil {
		close(c.scanStop)
		c.scanStop = nil
		c.scanFn = nil
	}
	c.mu.Unlock()

	for _, ws := range waiters {
		for _, w := range ws {
			w.ch <- result{err: bluetooth.ErrClosed}
		}
	}
	c.dropSubscriptionsWhere(func(string) bool { return true })
	c.logger.Debug("client event loop stopped")
}

func (c *Client) route(ev bluetooth.Event) {
	switch ev := ev.(type) {
	case bluetooth.ManagerStateChanged:
		c.mu.Lock()
		c.state = ev.NewState
		close(c.stateCh)
		c.stateCh = make(chan struct{})
		handler := c.stateHandler
		c.mu.Unlock()
		if handler != nil {
			c.callHandler(func() { handler(ev.NewState) })
		}
	case bluetooth.PeripheralDiscovered:
		c.mu.Lock()
		fn := c.scanFn
		c.mu.Unlock()
		if fn != nil {
			c.callHandler(func() { fn(ev) })
		}
	case bluetooth.PeripheralConnected:
		c.resolve(opKey{kind: opConnect, peripheral: ev.Peripheral}, ev)
		c.notifyConnect(ev.Peripheral, true)
	case bluetooth.PeripheralConnectFailed:
		c.resolve(opKey{kind: opConnect, peripheral: ev.Peripheral}, ev)
	case bluetooth.PeripheralDisconnected:
		c.disconnected(ev)
	case bluetooth.ServicesDiscovered:
		c.resolve(opKey{kind: opServices, peripheral: ev.Peripheral}, ev)
	case bluetooth.IncludedServicesDiscovered:
		c.resolve(opKey{kind: opIncludedServices, peripheral: ev.Peripheral, handle: ev.Service}, ev)
	case bluetooth.CharacteristicsDiscovered:
		c.resolve(opKey{kind: opCharacteristics, peripheral: ev.Peripheral, handle: ev.Service}, ev)
	case bluetooth.DescriptorsDiscovered:
		c.resolve(opKey{kind: opDescriptors, peripheral: ev.Peripheral, handle: ev.Characteristic}, ev)
	case bluetooth.CharacteristicValue:
		// A value is the answer to a pending read, or a notification.
		if c.resolve(opKey{kind: opRead, peripheral: ev.Peripheral, handle: ev.Characteristic}, ev) {
			return
		}
		c.notify(ev)
	case bluetooth.WriteCharacteristicResult:
		c.resolve(opKey{kind: opWrite, peripheral: ev.Peripheral, handle: ev.Characteristic}, ev)
	case bluetooth.SubscriptionChanged:
		c.resolve(opKey{kind: opNotify, peripheral: ev.Peripheral, handle: ev.Characteristic}, ev)
	case bluetooth.DescriptorValue:
		c.resolve(opKey{kind: opReadDescriptor, peripheral: ev.Peripheral, handle: ev.Descriptor}, ev)
	case bluetooth.WriteDescriptorResult:
		c.resolve(opKey{kind: opWriteDescriptor, peripheral: ev.Peripheral, handle: ev.Descriptor}, ev)
	case bluetooth.ReadRSSIResult:
		c.resolve(opKey{kind: opRSSI, peripheral: ev.Peripheral}, ev)
	case bluetooth.MaxWriteLenResult:
		c.resolveTag(ev.Tag, ev)
	case bluetooth.PeripheralsResult:
		c.resolveTag(ev.Tag, ev)
	case bluetooth.ConnectedPeripheralsResult:
		c.resolveTag(ev.Tag, ev)
	case bluetooth.PeripheralNameChanged:
		c.logger.WithFields(logrus.Fields{"peripheral": ev.Peripheral.ID(), "name": ev.NewName}).Debug("peripheral renamed")
	case bluetooth.ServicesChanged:
		c.logger.WithFields(logrus.Fields{
			"peripheral":  ev.Peripheral.ID(),
			"invalidated": len(ev.InvalidatedServices),
		}).Info("peripheral services changed")
	case bluetooth.PeripheralReadyToWriteWithoutResponse:
		c.logger.WithField("peripheral", ev.Peripheral.ID()).Debug("ready to write without response")
	}
}

func (c *Client) notifyConnect(p *bluetooth.Peripheral, connected bool) {
	c.mu.Lock()
	handler := c.connectHandler
	c.mu.Unlock()
	if handler != nil {
		c.callHandler(func() { handler(p, connected) })
	}
}

// disconnected answers Disconnect and fails everything else pending on the
// peripheral.
func (c *Client) disconnected(ev bluetooth.PeripheralDisconnected) {
	reason := ev.Err
	if reason == nil {
		reason = ErrDisconnected
	}

	c.mu.Lock()
	var failed []*waiter
	for key, ws := range c.waiters {
		if key.peripheral != ev.Peripheral || key.kind == opDisconnect {
			continue
		}
		failed = append(failed, ws...)
		delete(c.waiters, key)
	}
	c.mu.Unlock()

	for _, w := range failed {
		w.ch <- result{err: reason}
	}
	c.resolve(opKey{kind: opDisconnect, peripheral: ev.Peripheral}, ev)
	c.dropSubscriptions(ev.Peripheral)
	c.notifyConnect(ev.Peripheral, false)
}

// resolve hands ev to the oldest waiter for key and reports whether there
// was one.
func (c *Client) resolve(key opKey, ev bluetooth.Event) bool {
	c.mu.Lock()
	ws := c.waiters[key]
	if len(ws) == 0 {
		c.mu.Unlock()
		c.logger.WithField("event", fmt.Sprintf("%T", ev)).Debug("event without waiter")
		return false
	}
	w := ws[0]
	if len(ws) == 1 {
		delete(c.waiters, key)
	} else {
		c.waiters[key] = ws[1:]
	}
	c.mu.Unlock()
	w.ch <- result{ev: ev}
	return true
}

func (c *Client) resolveTag(tag bluetooth.Tag, ev bluetooth.Event) {
	s, ok := tag.(string)
	if !ok {
		c.logger.WithField("event", fmt.Sprintf("%T", ev)).Debug("untagged result ignored")
		return
	}
	c.resolve(opKey{kind: opTagged, handle: s}, ev)
}

func (c *Client) register(key opKey) (*waiter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, bluetooth.ErrClosed
	}
	w := &waiter{ch: make(chan result, 1)}
	c.waiters[key] = append(c.waiters[key], w)
	return w, nil
}

func (c *Client) unregister(key opKey, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ws := c.waiters[key]
	for i, x := range ws {
		if x == w {
			ws = append(ws[:i:i], ws[i+1:]...)
			break
		}
	}
	if len(ws) == 0 {
		delete(c.waiters, key)
	} else {
		c.waiters[key] = ws
	}
}

// newTag returns a unique tag for requests answered by a tagged event.
func newTag() string {
	return ulid.Make().String()
}
