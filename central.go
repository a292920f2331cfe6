package bluetooth

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// CentralManager drives the central role of the native Bluetooth framework.
//
// All methods are non-blocking: the request is copied and dispatched to the
// manager's serial queue, and its outcome is reported on the channel
// returned by Events. Command execution and event delivery share the queue,
// so they are totally ordered.
type CentralManager struct {
	logger *logrus.Logger
	driver Driver
	queue  *queue

	events    chan Event
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	state       atomic.Int32
	peripherals *hashmap.Map[string, *Peripheral]
}

// NewCentralManager creates a central manager backed by the platform driver,
// or by opts.Driver when set. A nil opts uses the defaults.
//
// The first event is always a ManagerStateChanged; wait for
// StatePoweredOn before scanning or connecting.
func NewCentralManager(opts *CentralManagerOptions) (*CentralManager, error) {
	o := opts.withDefaults()
	factory := o.Driver
	if factory == nil {
		factory = platformDriver
	}

	m := &CentralManager{
		logger:      o.Logger,
		events:      make(chan Event, o.EventBufferSize),
		done:        make(chan struct{}),
		peripherals: hashmap.New[string, *Peripheral](),
	}
	m.queue = newQueue(o.QueueLabel, o.Logger)

	var err error
	m.queue.sync(func() {
		m.driver, err = factory(&delegate{m: m}, o)
	})
	if err != nil {
		m.closed.Store(true)
		close(m.done)
		m.queue.closeWith(func() { close(m.events) })
		m.queue.wait()
		return nil, fmt.Errorf("creating native central manager: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"queue":           o.QueueLabel,
		"eventBufferSize": o.EventBufferSize,
		"showPowerAlert":  o.ShowPowerAlert,
	}).Debug("central manager created")
	return m, nil
}

// Events returns the event stream of this manager. The channel is closed by
// Close.
func (m *CentralManager) Events() <-chan Event {
	return m.events
}

// State returns the last radio state reported by the native framework.
func (m *CentralManager) State() ManagerState {
	return ManagerState(m.state.Load())
}

// Scan starts scanning for peripherals, reporting them as
// PeripheralDiscovered events. Calling Scan while scanning replaces the scan
// parameters.
func (m *CentralManager) Scan(opts ScanOptions) error {
	opts = opts.clone()
	return m.dispatch("scan", logrus.Fields{
		"allowDuplicates": opts.AllowDuplicates,
		"services":        len(opts.Services),
	}, func() {
		m.driver.Scan(opts)
	})
}

// StopScan stops scanning for peripherals.
func (m *CentralManager) StopScan() error {
	return m.dispatch("stopScan", nil, func() {
		m.driver.StopScan()
	})
}

// Connect establishes a connection to the peripheral. The outcome is a
// PeripheralConnected or PeripheralConnectFailed event. Connection attempts
// do not time out.
func (m *CentralManager) Connect(p *Peripheral, opts ConnectOptions) error {
	if err := m.checkPeripheral(p); err != nil {
		return err
	}
	return m.dispatch("connect", logrus.Fields{"peripheral": p.id}, func() {
		m.driver.Connect(p.driver(), opts)
	})
}

// CancelConnect cancels a pending connection attempt or disconnects an
// established connection.
func (m *CentralManager) CancelConnect(p *Peripheral) error {
	if err := m.checkPeripheral(p); err != nil {
		return err
	}
	return m.dispatch("cancelConnect", logrus.Fields{"peripheral": p.id}, func() {
		m.driver.CancelConnect(p.driver())
	})
}

// RetrievePeripherals looks up known peripherals by identifier. The result
// is a PeripheralsResult event carrying tag.
func (m *CentralManager) RetrievePeripherals(ids []UUID, tag Tag) error {
	ids = cloneUUIDs(ids)
	return m.dispatch("retrievePeripherals", logrus.Fields{"ids": len(ids)}, func() {
		natives := m.driver.RetrievePeripherals(ids)
		m.deliver(PeripheralsResult{Peripherals: m.peripheralsOf(natives), Tag: tag})
	})
}

// RetrieveConnectedPeripherals looks up the peripherals connected to the
// system that expose any of the given services. The result is a
// ConnectedPeripheralsResult event carrying tag.
func (m *CentralManager) RetrieveConnectedPeripherals(services []UUID, tag Tag) error {
	services = cloneUUIDs(services)
	return m.dispatch("retrieveConnectedPeripherals", logrus.Fields{"services": len(services)}, func() {
		natives := m.driver.RetrieveConnectedPeripherals(services)
		m.deliver(ConnectedPeripheralsResult{Peripherals: m.peripheralsOf(natives), Tag: tag})
	})
}

// Close releases the native manager and closes the event channel. Pending
// deliveries are dropped, including one blocked on a receiver that stopped
// reading. Every later command returns ErrClosed. It is safe to call Close
// from the goroutine ranging over Events.
func (m *CentralManager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.done)
		m.queue.closeWith(func() {
			m.closeErr = m.driver.Close()
			close(m.events)
		})
		m.queue.wait()
		m.logger.Debug("central manager closed")
	})
	return m.closeErr
}

func (m *CentralManager) dispatch(op string, fields logrus.Fields, fn func()) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.logger.WithFields(fields).Debugf("dispatch %s", op)
	if !m.queue.async(fn) {
		return ErrClosed
	}
	return nil
}

// deliver hands ev to the receiver. It runs on the queue.
func (m *CentralManager) deliver(ev Event) {
	select {
	case m.events <- ev:
		m.logger.WithField("event", fmt.Sprintf("%T", ev)).Debug("event delivered")
	case <-m.done:
		m.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("central manager closed, event dropped")
	}
}

// post queues the delivery of ev. It is called from native callback
// threads and never blocks.
func (m *CentralManager) post(ev Event) {
	if !m.queue.async(func() { m.deliver(ev) }) {
		m.logger.WithField("event", fmt.Sprintf("%T", ev)).Debug("callback after close ignored")
	}
}

func (m *CentralManager) checkPeripheral(p *Peripheral) error {
	if p == nil {
		return errNilPeripheral
	}
	if p.manager != m {
		return errForeignHandle
	}
	return nil
}

// peripheral returns the registered handle for native, creating it on first
// sight. The same *Peripheral is returned for an identifier for the
// lifetime of the manager.
func (m *CentralManager) peripheral(native DriverPeripheral) *Peripheral {
	if native == nil {
		return nil
	}
	key := native.Identifier().String()
	if p, ok := m.peripherals.Get(key); ok {
		p.setDriver(native)
		return p
	}
	p, loaded := m.peripherals.GetOrInsert(key, newPeripheral(m, native))
	if loaded {
		p.setDriver(native)
	}
	return p
}

func (m *CentralManager) peripheralsOf(natives []DriverPeripheral) []*Peripheral {
	peripherals := make([]*Peripheral, 0, len(natives))
	for _, native := range natives {
		peripherals = append(peripherals, m.peripheral(native))
	}
	return peripherals
}
