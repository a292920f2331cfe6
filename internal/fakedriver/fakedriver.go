// Package fakedriver is an in-memory bluetooth.Driver for tests.
//
// It answers every command the way the native framework would, from a
// simulated set of peripherals and GATT databases. Callbacks are made from
// a single worker goroutine, never from the caller's goroutine, like the
// native framework calling back on its own queue.
//
// Individual operations can be made to fail (SetError) or to never answer
// (SetSilent), and remote behavior such as notifications, disconnections
// and name changes can be triggered from the test.
package fakedriver

import (
	"sync"

	"github.com/cbcentral/bluetooth"
)

// Op names a driver operation for SetError and SetSilent.
type Op string

const (
	OpConnect                  Op = "connect"
	OpDiscoverServices         Op = "discoverServices"
	OpDiscoverIncludedServices Op = "discoverIncludedServices"
	OpDiscoverCharacteristics  Op = "discoverCharacteristics"
	OpDiscoverDescriptors      Op = "discoverDescriptors"
	OpReadCharacteristic       Op = "readCharacteristic"
	OpWriteCharacteristic      Op = "writeCharacteristic"
	OpReadDescriptor           Op = "readDescriptor"
	OpWriteDescriptor          Op = "writeDescriptor"
	OpSetNotify                Op = "setNotify"
	OpReadRSSI                 Op = "readRSSI"
)

// Driver is a simulated central. Create one with New and hand its Factory
// to bluetooth.CentralManagerOptions.Driver.
type Driver struct {
	mu          sync.Mutex
	delegate    bluetooth.DriverDelegate
	state       bluetooth.ManagerState
	peripherals []*Peripheral
	scanning    bool
	scanOpts    bluetooth.ScanOptions
	calls       []string
	closed      bool

	// CloseErr is returned by Close.
	CloseErr error
	// FactoryErr makes the factory fail.
	FactoryErr error

	worker *worker
}

var _ bluetooth.Driver = (*Driver)(nil)

// New returns a driver whose radio reports state once created.
func New(state bluetooth.ManagerState) *Driver {
	return &Driver{state: state}
}

// Factory returns the bluetooth.DriverFactory creating this driver. The
// driver can be created again after Close, like a radio reopened by a new
// process.
func (d *Driver) Factory() bluetooth.DriverFactory {
	return func(delegate bluetooth.DriverDelegate, opts bluetooth.CentralManagerOptions) (bluetooth.Driver, error) {
		if d.FactoryErr != nil {
			return nil, d.FactoryErr
		}
		d.mu.Lock()
		d.delegate = delegate
		d.worker = newWorker()
		d.closed = false
		d.scanning = false
		state := d.state
		d.mu.Unlock()
		d.post(func(dl bluetooth.DriverDelegate) { dl.DidUpdateState(state) })
		return d, nil
	}
}

// post queues a callback. Callbacks after Close are dropped.
func (d *Driver) post(fn func(bluetooth.DriverDelegate)) {
	d.mu.Lock()
	w, dl, closed := d.worker, d.delegate, d.closed
	d.mu.Unlock()
	if closed || w == nil {
		return
	}
	w.push(func() { fn(dl) })
}

func (d *Driver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

// Calls returns the driver methods called so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Scanning reports whether a scan is running.
func (d *Driver) Scanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanning
}

// AddPeripheral makes a peripheral known to the simulated radio.
func (d *Driver) AddPeripheral(id bluetooth.UUID, name string) *Peripheral {
	p := &Peripheral{
		drv:  d,
		id:   id,
		name: name,
		rssi: -50,
		maxWrite: bluetooth.MaxWriteLen{
			WithResponse:    512,
			WithoutResponse: 20,
		},
		errors: make(map[Op]error),
		silent: make(map[Op]bool),
	}
	d.mu.Lock()
	d.peripherals = append(d.peripherals, p)
	d.mu.Unlock()
	return p
}

// SetState changes the radio state and reports it.
func (d *Driver) SetState(state bluetooth.ManagerState) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
	d.post(func(dl bluetooth.DriverDelegate) { dl.DidUpdateState(state) })
}

func (d *Driver) State() bluetooth.ManagerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Scan reports every known peripheral matching the filter once.
func (d *Driver) Scan(opts bluetooth.ScanOptions) {
	d.record("scan")
	d.mu.Lock()
	d.scanning = true
	d.scanOpts = opts
	peripherals := append([]*Peripheral(nil), d.peripherals...)
	d.mu.Unlock()

	for _, p := range peripherals {
		p.advertise()
	}
}

func (d *Driver) StopScan() {
	d.record("stopScan")
	d.mu.Lock()
	d.scanning = false
	d.mu.Unlock()
}

func (d *Driver) Connect(dp bluetooth.DriverPeripheral, opts bluetooth.ConnectOptions) {
	d.record("connect")
	p := dp.(*Peripheral)
	if p.isSilent(OpConnect) {
		return
	}
	if err := p.errorFor(OpConnect); err != nil {
		d.post(func(dl bluetooth.DriverDelegate) { dl.DidFailToConnectPeripheral(p, err) })
		return
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	d.post(func(dl bluetooth.DriverDelegate) { dl.DidConnectPeripheral(p) })
}

// CancelConnect disconnects p, or abandons a connection attempt that never
// completed. Both are reported as a disconnection without error.
func (d *Driver) CancelConnect(dp bluetooth.DriverPeripheral) {
	d.record("cancelConnect")
	p := dp.(*Peripheral)
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	d.post(func(dl bluetooth.DriverDelegate) { dl.DidDisconnectPeripheral(p, nil) })
}

func (d *Driver) RetrievePeripherals(ids []bluetooth.UUID) []bluetooth.DriverPeripheral {
	d.record("retrievePeripherals")
	d.mu.Lock()
	defer d.mu.Unlock()
	var found []bluetooth.DriverPeripheral
	for _, p := range d.peripherals {
		for _, id := range ids {
			if p.id == id {
				found = append(found, p)
				break
			}
		}
	}
	return found
}

func (d *Driver) RetrieveConnectedPeripherals(services []bluetooth.UUID) []bluetooth.DriverPeripheral {
	d.record("retrieveConnectedPeripherals")
	d.mu.Lock()
	peripherals := append([]*Peripheral(nil), d.peripherals...)
	d.mu.Unlock()

	var found []bluetooth.DriverPeripheral
	for _, p := range peripherals {
		if !p.IsConnected() {
			continue
		}
		if len(services) > 0 && !p.hasService(services) {
			continue
		}
		found = append(found, p)
	}
	return found
}

func (d *Driver) Close() error {
	d.record("close")
	d.mu.Lock()
	d.closed = true
	w := d.worker
	d.mu.Unlock()
	if w != nil {
		w.stop()
	}
	return d.CloseErr
}

// worker runs callbacks one at a time, in order.
type worker struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []func()
	stopped bool
}

func newWorker() *worker {
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

func (w *worker) push(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.tasks = append(w.tasks, fn)
	w.cond.Signal()
}

func (w *worker) stop() {
	w.mu.Lock()
	w.stopped = true
	w.tasks = nil
	w.cond.Signal()
	w.mu.Unlock()
}

func (w *worker) run() {
	for {
		w.mu.Lock()
		for len(w.tasks) == 0 && !w.stopped {
			w.cond.Wait()
		}
		if w.stopped {
			w.mu.Unlock()
			return
		}
		fn := w.tasks[0]
		w.tasks = w.tasks[1:]
		w.mu.Unlock()
		fn()
	}
}
