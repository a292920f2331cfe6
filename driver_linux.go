//go:build linux

// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbcentral/bluetooth/internal/groutine"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/sirupsen/logrus"
)

var platformDriver DriverFactory = newLinuxDriver

const (
	device1Interface = "org.bluez.Device1"
	gattChrInterface = "org.bluez.GattCharacteristic1"

	// BlueZ resolves services on its own after connecting; discovery waits
	// for that at most this long.
	servicesResolvedTimeout = 10 * time.Second

	// Default ATT MTU (23) minus the write request header.
	defaultWriteWithoutResponseLen = 20
	// Long writes are split by BlueZ, like CoreBluetooth does.
	maxWriteWithResponseLen = 512
)

// linuxDriver drives BlueZ over D-Bus. BlueZ calls block until the remote
// device answers, so each one runs on its own goroutine and reports back
// through the delegate, one callback at a time, much like CoreBluetooth
// calls back on its queue.
type linuxDriver struct {
	adapter   *adapter.Adapter1
	adapterID string
	address   string
	delegate  DriverDelegate
	logger    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	// cbMu serializes delegate callbacks.
	cbMu sync.Mutex

	mu          sync.Mutex
	peripherals map[dbus.ObjectPath]*linuxPeripheral
	scanning    bool
	scanOpts    ScanOptions
	cancelScan  func()
}

func newLinuxDriver(delegate DriverDelegate, opts CentralManagerOptions) (Driver, error) {
	a, err := api.GetDefaultAdapter()
	if err != nil {
		return nil, fmt.Errorf("bluez adapter: %w", err)
	}
	id, err := a.GetAdapterID()
	if err != nil {
		return nil, fmt.Errorf("bluez adapter id: %w", err)
	}

	d := &linuxDriver{
		adapter:     a,
		adapterID:   id,
		address:     a.Properties.Address,
		delegate:    delegate,
		logger:      opts.Logger,
		peripherals: make(map[dbus.ObjectPath]*linuxPeripheral),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := d.watchForStateChange(); err != nil {
		d.cancel()
		return nil, fmt.Errorf("watching bluez adapter: %w", err)
	}

	// CoreBluetooth always reports the initial state right after creation.
	d.goCall("initialState", func() {
		state := d.State()
		d.emit(func() { d.delegate.DidUpdateState(state) })
	})
	return d, nil
}

// goCall runs a blocking D-Bus call off the dispatch queue.
func (d *linuxDriver) goCall(name string, fn func()) {
	groutine.Go(d.ctx, "bluez."+name, func(ctx context.Context) {
		fn()
	})
}

// emit makes a delegate callback unless the driver is closed.
func (d *linuxDriver) emit(fn func()) {
	d.cbMu.Lock()
	defer d.cbMu.Unlock()
	if d.closed.Load() {
		return
	}
	fn()
}

func (d *linuxDriver) State() ManagerState {
	powered, err := d.adapter.GetPowered()
	if err != nil {
		return StateUnknown
	}
	if powered {
		return StatePoweredOn
	}
	return StatePoweredOff
}

// watchForStateChange watches the adapter's Powered property.
//
// We can add extra signals to watch for here,
// see https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc/adapter-api.txt, for a full list
func (d *linuxDriver) watchForStateChange() error {
	propchanged, err := d.adapter.WatchProperties()
	if err != nil {
		return err
	}

	groutine.Go(d.ctx, "bluez.adapterWatch", func(ctx context.Context) {
		for {
			select {
			case changed := <-propchanged:
				// We receive a nil once the watch is cancelled.
				if changed == nil {
					return
				}
				if changed.Name != "Powered" {
					continue
				}
				powered, _ := changed.Value.(bool)
				state := StatePoweredOff
				if powered {
					state = StatePoweredOn
				}
				d.emit(func() { d.delegate.DidUpdateState(state) })
			case <-ctx.Done():
				d.adapter.UnwatchProperties(propchanged)
				return
			}
		}
	})
	return nil
}

// Scan starts BlueZ discovery.
//
// On Linux with BlueZ, incoming packets cannot be observed directly. Instead,
// existing devices are watched for property changes. This closely simulates the
// behavior as if the actual packets were observed, but it has flaws: it is
// possible some events are missed and perhaps even possible that some events
// are duplicated.
func (d *linuxDriver) Scan(opts ScanOptions) {
	d.mu.Lock()
	d.scanOpts = opts
	alreadyScanning := d.scanning
	d.scanning = true
	d.mu.Unlock()

	filter := map[string]interface{}{
		"Transport":     "le",
		"DuplicateData": opts.AllowDuplicates,
	}
	if len(opts.Services) > 0 {
		uuids := make([]string, 0, len(opts.Services))
		for _, u := range opts.Services {
			uuids = append(uuids, u.String())
		}
		filter["UUIDs"] = uuids
	}
	if err := d.adapter.SetDiscoveryFilter(filter); err != nil {
		d.logger.WithError(err).Warn("bluez: setting discovery filter failed")
	}
	if alreadyScanning {
		return
	}

	if err := d.adapter.StartDiscovery(); err != nil {
		d.logger.WithError(err).Warn("bluez: starting discovery failed")
		d.mu.Lock()
		d.scanning = false
		d.mu.Unlock()
		return
	}

	discovered, cancel, err := d.adapter.OnDeviceDiscovered()
	if err != nil {
		d.logger.WithError(err).Warn("bluez: watching discovered devices failed")
		return
	}
	d.mu.Lock()
	d.cancelScan = cancel
	d.mu.Unlock()

	// BlueZ keeps a cache of devices seen recently; report those first, as
	// if their advertisements had just been received.
	devices, err := d.adapter.GetDevices()
	if err != nil {
		d.logger.WithError(err).Warn("bluez: listing cached devices failed")
	}
	for _, dev := range devices {
		d.reportDiscovered(d.peripheral(dev))
	}

	groutine.Go(d.ctx, "bluez.discovery", func(ctx context.Context) {
		for result := range discovered {
			if result == nil || result.Type != adapter.DeviceAdded {
				continue
			}
			// We only got a D-Bus object path, so turn that into a Device1
			// object.
			dev, err := device.NewDevice1(result.Path)
			if err != nil || dev == nil {
				continue
			}
			d.reportDiscovered(d.peripheral(dev))
		}
	})
}

func (d *linuxDriver) StopScan() {
	d.mu.Lock()
	scanning := d.scanning
	cancel := d.cancelScan
	d.scanning = false
	d.cancelScan = nil
	d.mu.Unlock()

	if !scanning {
		return
	}
	if err := d.adapter.StopDiscovery(); err != nil {
		d.logger.WithError(err).Debug("bluez: stopping discovery failed")
	}
	if cancel != nil {
		cancel()
	}
}

// reportDiscovered reports p as discovered if a scan is running and p
// matches the scan's service filter.
func (d *linuxDriver) reportDiscovered(p *linuxPeripheral) {
	d.mu.Lock()
	scanning := d.scanning
	filter := d.scanOpts.Services
	d.mu.Unlock()
	if !scanning {
		return
	}

	adv, rssi := p.advertisement()
	if len(filter) > 0 && !matchesAny(&adv, filter) {
		return
	}
	d.emit(func() { d.delegate.DidDiscoverPeripheral(p, adv, rssi) })
}

func matchesAny(adv *AdvertisementData, services []UUID) bool {
	for _, u := range services {
		if adv.HasServiceUUID(u) {
			return true
		}
	}
	return false
}

func (d *linuxDriver) Connect(dp DriverPeripheral, opts ConnectOptions) {
	p := dp.(*linuxPeripheral)
	p.setDisconnectRequested(false)
	d.goCall("connect", func() {
		if delay := opts.StartDelaySeconds(); delay > 0 {
			select {
			case <-time.After(time.Duration(delay) * time.Second):
			case <-d.ctx.Done():
				return
			}
		}
		if err := p.dev.Connect(); err != nil {
			d.emit(func() { d.delegate.DidFailToConnectPeripheral(p, errorFromDBus(err, opConnect)) })
			return
		}
		if p.markConnected(true) {
			d.emit(func() { d.delegate.DidConnectPeripheral(p) })
		}
	})
}

func (d *linuxDriver) CancelConnect(dp DriverPeripheral) {
	p := dp.(*linuxPeripheral)
	p.setDisconnectRequested(true)
	d.goCall("disconnect", func() {
		if err := p.dev.Disconnect(); err != nil {
			d.logger.WithError(err).WithField("device", p.dev.Path()).Debug("bluez: disconnect failed")
		}
	})
}

func (d *linuxDriver) RetrievePeripherals(ids []UUID) []DriverPeripheral {
	devices, err := d.adapter.GetDevices()
	if err != nil {
		d.logger.WithError(err).Warn("bluez: listing devices failed")
		return nil
	}
	var found []DriverPeripheral
	for _, dev := range devices {
		id := d.identifier(dev.Properties.Address)
		for _, want := range ids {
			if id == want {
				found = append(found, d.peripheral(dev))
				break
			}
		}
	}
	return found
}

func (d *linuxDriver) RetrieveConnectedPeripherals(services []UUID) []DriverPeripheral {
	devices, err := d.adapter.GetDevices()
	if err != nil {
		d.logger.WithError(err).Warn("bluez: listing devices failed")
		return nil
	}
	var found []DriverPeripheral
	for _, dev := range devices {
		if !dev.Properties.Connected {
			continue
		}
		if len(services) > 0 && !hasAnyUUID(dev.Properties.UUIDs, services) {
			continue
		}
		found = append(found, d.peripheral(dev))
	}
	return found
}

func hasAnyUUID(advertised []string, services []UUID) bool {
	for _, s := range advertised {
		u, err := ParseUUID(s)
		if err != nil {
			continue
		}
		for _, want := range services {
			if u == want {
				return true
			}
		}
	}
	return false
}

func (d *linuxDriver) Close() error {
	d.StopScan()
	d.cbMu.Lock()
	d.closed.Store(true)
	d.cbMu.Unlock()
	d.cancel()
	return nil
}

// identifier derives a stable peripheral identifier from the adapter and
// device addresses. Like CoreBluetooth identifiers it is only meaningful on
// this host.
func (d *linuxDriver) identifier(address string) UUID {
	if mac, err := ParseMAC(address); err == nil {
		address = mac.String()
	}
	return NewUUID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("bluez://"+d.address+"/"+address)))
}

// peripheral returns the single linuxPeripheral for dev's object path,
// starting to watch the device the first time it is seen.
func (d *linuxDriver) peripheral(dev *device.Device1) *linuxPeripheral {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.peripherals[dev.Path()]; ok {
		return p
	}
	p := &linuxPeripheral{
		drv:       d,
		dev:       dev,
		id:        d.identifier(dev.Properties.Address),
		props:     dev.Properties,
		connected: dev.Properties.Connected,
		services:  make(map[dbus.ObjectPath]*linuxService),
		chars:     make(map[dbus.ObjectPath]*linuxCharacteristic),
		descs:     make(map[dbus.ObjectPath]*linuxDescriptor),
	}
	d.peripherals[dev.Path()] = p
	p.watch()
	return p
}

// linuxPeripheral wraps a BlueZ device. There is exactly one per object
// path, so pointer equality matches device identity.
type linuxPeripheral struct {
	drv *linuxDriver
	dev *device.Device1
	id  UUID

	mu                  sync.Mutex
	props               *device.Device1Properties
	connected           bool
	disconnectRequested bool
	discovered          []DriverService
	services            map[dbus.ObjectPath]*linuxService
	chars               map[dbus.ObjectPath]*linuxCharacteristic
	descs               map[dbus.ObjectPath]*linuxDescriptor
}

// watch follows the device's property changes for the lifetime of the
// driver. Changes are the only signal BlueZ gives for new advertisements,
// disconnections and name updates.
func (p *linuxPeripheral) watch() {
	ch, err := p.dev.WatchProperties()
	if err != nil {
		// Assume the device has disappeared or something.
		p.drv.logger.WithError(err).WithField("device", p.dev.Path()).Debug("bluez: watching device failed")
		return
	}
	d := p.drv
	groutine.Go(d.ctx, "bluez.deviceWatch", func(ctx context.Context) {
		for {
			select {
			case change := <-ch:
				if change == nil {
					return
				}
				if change.Interface != device1Interface {
					continue
				}
				p.applyChange(change)
			case <-ctx.Done():
				p.dev.UnwatchProperties(ch)
				return
			}
		}
	})
}

func (p *linuxPeripheral) applyChange(change *bluez.PropertyChanged) {
	d := p.drv

	p.mu.Lock()
	props, err := p.props.ToMap()
	if err == nil {
		props[change.Name] = change.Value
		if updated, err := p.props.FromMap(props); err == nil {
			p.props = updated
		}
	}
	p.mu.Unlock()

	switch change.Name {
	case "Connected":
		connected, _ := change.Value.(bool)
		if !p.markConnected(connected) {
			return
		}
		if connected {
			d.emit(func() { d.delegate.DidConnectPeripheral(p) })
			return
		}
		var reason error
		if !p.takeDisconnectRequested() {
			reason = NewError(ErrorDomain, 7, "The specified device has disconnected from us.")
		}
		p.resetAttributes()
		d.emit(func() { d.delegate.DidDisconnectPeripheral(p, reason) })
	case "Name", "Alias":
		d.emit(func() { d.delegate.DidUpdateName(p) })
	case "RSSI", "ManufacturerData", "ServiceData", "UUIDs", "TxPower":
		// Something in the advertisement changed, so a new packet came in.
		d.reportDiscovered(p)
	}
}

// markConnected records the connection state and reports whether it
// changed.
func (p *linuxPeripheral) markConnected(connected bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected == connected {
		return false
	}
	p.connected = connected
	return true
}

func (p *linuxPeripheral) setDisconnectRequested(v bool) {
	p.mu.Lock()
	p.disconnectRequested = v
	p.mu.Unlock()
}

func (p *linuxPeripheral) takeDisconnectRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := p.disconnectRequested
	p.disconnectRequested = false
	return v
}

// resetAttributes forgets the GATT objects, which BlueZ removes on
// disconnection.
func (p *linuxPeripheral) resetAttributes() {
	p.mu.Lock()
	p.discovered = nil
	p.services = make(map[dbus.ObjectPath]*linuxService)
	p.chars = make(map[dbus.ObjectPath]*linuxCharacteristic)
	p.descs = make(map[dbus.ObjectPath]*linuxDescriptor)
	p.mu.Unlock()
}

// advertisement builds the advertisement data from the cached device
// properties.
func (p *linuxPeripheral) advertisement() (AdvertisementData, int) {
	p.mu.Lock()
	props := p.props
	p.mu.Unlock()

	adv := AdvertisementData{LocalName: props.Name}
	for _, s := range props.UUIDs {
		// Assume the UUID is well-formed.
		if u, err := ParseUUID(s); err == nil {
			adv.ServiceUUIDs = append(adv.ServiceUUIDs, u)
		}
	}
	if len(props.ManufacturerData) > 0 {
		ids := make([]int, 0, len(props.ManufacturerData))
		for id := range props.ManufacturerData {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		// CoreBluetooth only reports one manufacturer data entry.
		id := uint16(ids[0])
		adv.ManufacturerData = append([]byte{byte(id), byte(id >> 8)}, variantBytes(props.ManufacturerData[id])...)
	}
	if len(props.ServiceData) > 0 {
		keys := make([]string, 0, len(props.ServiceData))
		for k := range props.ServiceData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		adv.ServiceData = NewServiceData()
		for _, k := range keys {
			if u, err := ParseUUID(k); err == nil {
				adv.ServiceData.Set(u, variantBytes(props.ServiceData[k]))
			}
		}
	}
	if props.TxPower != 0 {
		txPower := int(props.TxPower)
		adv.TxPowerLevel = &txPower
	}
	return adv, int(props.RSSI)
}

func variantBytes(v interface{}) []byte {
	switch v := v.(type) {
	case []byte:
		return cloneBytes(v)
	case dbus.Variant:
		b, _ := v.Value().([]byte)
		return cloneBytes(b)
	default:
		return nil
	}
}

func (p *linuxPeripheral) Identifier() UUID {
	return p.id
}

func (p *linuxPeripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.props.Name
}

func (p *linuxPeripheral) Services() []DriverService {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DriverService(nil), p.discovered...)
}

// DiscoverServices waits for BlueZ to resolve the services, then reports
// the ones matching uuids.
func (p *linuxPeripheral) DiscoverServices(uuids []UUID) {
	d := p.drv
	d.goCall("discoverServices", func() {
		err := p.waitServicesResolved()
		if err == nil {
			var paths []dbus.ObjectPath
			paths, err = childObjects(p.dev.Path(), "service")
			if err == nil {
				var services []DriverService
				for _, path := range paths {
					s, serr := p.service(path)
					if serr != nil {
						err = serr
						break
					}
					if uuidWanted(s.uuid, uuids) {
						services = append(services, s)
					}
				}
				p.mu.Lock()
				p.discovered = services
				p.mu.Unlock()
			}
		}
		d.emit(func() { d.delegate.DidDiscoverServices(p, errorFromDBus(err, opOther)) })
	})
}

func (p *linuxPeripheral) waitServicesResolved() error {
	start := time.Now()
	for {
		resolved, err := p.dev.GetServicesResolved()
		if err != nil {
			return err
		}
		if resolved {
			return nil
		}
		if time.Since(start) > servicesResolvedTimeout {
			return NewError(ErrorDomain, 6, "timeout waiting for services to be resolved")
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-p.drv.ctx.Done():
			return ErrClosed
		}
	}
}

func (p *linuxPeripheral) DiscoverIncludedServices(ds DriverService, uuids []UUID) {
	s := ds.(*linuxService)
	d := p.drv
	d.goCall("discoverIncludedServices", func() {
		var err error
		var included []DriverService
		for _, path := range s.svc.Properties.Includes {
			inc, ierr := p.service(path)
			if ierr != nil {
				err = ierr
				break
			}
			if uuidWanted(inc.uuid, uuids) {
				included = append(included, inc)
			}
		}
		if err == nil {
			s.mu.Lock()
			s.included = included
			s.mu.Unlock()
		}
		d.emit(func() { d.delegate.DidDiscoverIncludedServices(p, s, errorFromDBus(err, opOther)) })
	})
}

func (p *linuxPeripheral) DiscoverCharacteristics(ds DriverService, uuids []UUID) {
	s := ds.(*linuxService)
	d := p.drv
	d.goCall("discoverCharacteristics", func() {
		paths, err := childObjects(s.path, "char")
		var chars []DriverCharacteristic
		if err == nil {
			for _, path := range paths {
				c, cerr := p.characteristic(path)
				if cerr != nil {
					err = cerr
					break
				}
				if uuidWanted(c.uuid, uuids) {
					chars = append(chars, c)
				}
			}
		}
		if err == nil {
			s.mu.Lock()
			s.chars = chars
			s.mu.Unlock()
		}
		d.emit(func() { d.delegate.DidDiscoverCharacteristics(p, s, errorFromDBus(err, opOther)) })
	})
}

func (p *linuxPeripheral) DiscoverDescriptors(dc DriverCharacteristic) {
	c := dc.(*linuxCharacteristic)
	d := p.drv
	d.goCall("discoverDescriptors", func() {
		paths, err := childObjects(c.path, "desc")
		var descs []DriverDescriptor
		if err == nil {
			for _, path := range paths {
				desc, derr := p.descriptor(path)
				if derr != nil {
					err = derr
					break
				}
				descs = append(descs, desc)
			}
		}
		if err == nil {
			c.mu.Lock()
			c.descs = descs
			c.mu.Unlock()
		}
		d.emit(func() { d.delegate.DidDiscoverDescriptors(p, c, errorFromDBus(err, opOther)) })
	})
}

func (p *linuxPeripheral) ReadCharacteristic(dc DriverCharacteristic) {
	c := dc.(*linuxCharacteristic)
	d := p.drv
	d.goCall("readCharacteristic", func() {
		value, err := c.chr.ReadValue(map[string]interface{}{})
		if err == nil {
			c.setValue(value)
		}
		d.emit(func() { d.delegate.DidUpdateValueForCharacteristic(p, c, errorFromDBus(err, opRead)) })
	})
}

func (p *linuxPeripheral) WriteCharacteristic(dc DriverCharacteristic, value []byte, kind WriteKind) {
	c := dc.(*linuxCharacteristic)
	d := p.drv
	options := map[string]interface{}{"type": "request"}
	if kind == WithoutResponse {
		options["type"] = "command"
	}
	d.goCall("writeCharacteristic", func() {
		err := c.chr.WriteValue(value, options)
		if kind == WithoutResponse {
			if err != nil {
				d.logger.WithError(err).WithField("characteristic", c.path).Debug("bluez: write command failed")
			}
			return
		}
		d.emit(func() { d.delegate.DidWriteValueForCharacteristic(p, c, errorFromDBus(err, opWrite)) })
	})
}

func (p *linuxPeripheral) ReadDescriptor(dd DriverDescriptor) {
	desc := dd.(*linuxDescriptor)
	d := p.drv
	d.goCall("readDescriptor", func() {
		value, err := desc.dsc.ReadValue(map[string]interface{}{})
		if err == nil {
			desc.setValue(value)
		}
		d.emit(func() { d.delegate.DidUpdateValueForDescriptor(p, desc, errorFromDBus(err, opRead)) })
	})
}

func (p *linuxPeripheral) WriteDescriptor(dd DriverDescriptor, value []byte) {
	desc := dd.(*linuxDescriptor)
	d := p.drv
	d.goCall("writeDescriptor", func() {
		err := desc.dsc.WriteValue(value, map[string]interface{}{})
		d.emit(func() { d.delegate.DidWriteValueForDescriptor(p, desc, errorFromDBus(err, opWrite)) })
	})
}

// SetNotify starts or stops notifications. Notified values arrive as
// changes of the characteristic's Value property.
func (p *linuxPeripheral) SetNotify(dc DriverCharacteristic, enabled bool) {
	c := dc.(*linuxCharacteristic)
	d := p.drv
	d.goCall("setNotify", func() {
		var err error
		if enabled {
			if err = c.watchValue(p); err == nil {
				if err = c.chr.StartNotify(); err != nil {
					c.unwatchValue()
				}
			}
		} else {
			err = c.chr.StopNotify()
			c.unwatchValue()
		}
		d.emit(func() { d.delegate.DidUpdateNotificationState(p, c, errorFromDBus(err, opWrite)) })
	})
}

func (p *linuxPeripheral) ReadRSSI() {
	d := p.drv
	d.goCall("readRSSI", func() {
		rssi, err := p.dev.GetRSSI()
		d.emit(func() { d.delegate.DidReadRSSI(p, int(rssi), errorFromDBus(err, opOther)) })
	})
}

// MaximumWriteValueLength reads the negotiated MTU off any discovered
// characteristic; BlueZ only exposes it there.
func (p *linuxPeripheral) MaximumWriteValueLength(kind WriteKind) int {
	if kind == WithResponse {
		return maxWriteWithResponseLen
	}
	p.mu.Lock()
	var chr *gatt.GattCharacteristic1
	for _, c := range p.chars {
		chr = c.chr
		break
	}
	p.mu.Unlock()
	if chr == nil {
		return defaultWriteWithoutResponseLen
	}
	mtu, err := chr.GetProperty("MTU")
	if err != nil {
		return defaultWriteWithoutResponseLen
	}
	if v, ok := mtu.Value().(uint16); ok && v > 3 {
		return int(v) - 3
	}
	return defaultWriteWithoutResponseLen
}

func (p *linuxPeripheral) service(path dbus.ObjectPath) (*linuxService, error) {
	p.mu.Lock()
	if s, ok := p.services[path]; ok {
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	svc, err := gatt.NewGattService1(path)
	if err != nil {
		return nil, err
	}
	u, _ := ParseUUID(svc.Properties.UUID)
	s := &linuxService{path: path, svc: svc, uuid: u}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.services[path]; ok {
		return existing, nil
	}
	p.services[path] = s
	return s, nil
}

func (p *linuxPeripheral) characteristic(path dbus.ObjectPath) (*linuxCharacteristic, error) {
	p.mu.Lock()
	if c, ok := p.chars[path]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	chr, err := gatt.NewGattCharacteristic1(path)
	if err != nil {
		return nil, err
	}
	u, _ := ParseUUID(chr.Properties.UUID)
	c := &linuxCharacteristic{
		path:  path,
		chr:   chr,
		uuid:  u,
		props: propertiesFromFlags(chr.Properties.Flags),
		value: cloneBytes(chr.Properties.Value),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.chars[path]; ok {
		return existing, nil
	}
	p.chars[path] = c
	return c, nil
}

func (p *linuxPeripheral) descriptor(path dbus.ObjectPath) (*linuxDescriptor, error) {
	p.mu.Lock()
	if desc, ok := p.descs[path]; ok {
		p.mu.Unlock()
		return desc, nil
	}
	p.mu.Unlock()

	dsc, err := gatt.NewGattDescriptor1(path)
	if err != nil {
		return nil, err
	}
	u, _ := ParseUUID(dsc.Properties.UUID)
	desc := &linuxDescriptor{dsc: dsc, uuid: u, value: cloneBytes(dsc.Properties.Value)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.descs[path]; ok {
		return existing, nil
	}
	p.descs[path] = desc
	return desc, nil
}

type linuxService struct {
	path dbus.ObjectPath
	svc  *gatt.GattService1
	uuid UUID

	mu       sync.Mutex
	chars    []DriverCharacteristic
	included []DriverService
}

func (s *linuxService) UUID() UUID {
	return s.uuid
}

func (s *linuxService) IsPrimary() bool {
	return s.svc.Properties.Primary
}

func (s *linuxService) Characteristics() []DriverCharacteristic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DriverCharacteristic(nil), s.chars...)
}

func (s *linuxService) IncludedServices() []DriverService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DriverService(nil), s.included...)
}

type linuxCharacteristic struct {
	path  dbus.ObjectPath
	chr   *gatt.GattCharacteristic1
	uuid  UUID
	props CharacteristicProperties

	mu       sync.Mutex
	value    []byte
	descs    []DriverDescriptor
	valueCh  chan *bluez.PropertyChanged
	stopWait context.CancelFunc
}

func (c *linuxCharacteristic) UUID() UUID {
	return c.uuid
}

func (c *linuxCharacteristic) Properties() CharacteristicProperties {
	return c.props
}

func (c *linuxCharacteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *linuxCharacteristic) setValue(value []byte) {
	c.mu.Lock()
	c.value = cloneBytes(value)
	c.mu.Unlock()
}

func (c *linuxCharacteristic) Descriptors() []DriverDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DriverDescriptor(nil), c.descs...)
}

// watchValue forwards Value property changes as value updates until
// unwatchValue is called.
func (c *linuxCharacteristic) watchValue(p *linuxPeripheral) error {
	c.mu.Lock()
	if c.valueCh != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ch, err := c.chr.WatchProperties()
	if err != nil {
		return err
	}
	d := p.drv
	ctx, cancel := context.WithCancel(d.ctx)

	c.mu.Lock()
	c.valueCh = ch
	c.stopWait = cancel
	c.mu.Unlock()

	groutine.Go(ctx, "bluez.notify", func(ctx context.Context) {
		for {
			select {
			case update := <-ch:
				if update == nil {
					return
				}
				if update.Interface != gattChrInterface || update.Name != "Value" {
					continue
				}
				value, _ := update.Value.([]byte)
				c.setValue(value)
				d.emit(func() { d.delegate.DidUpdateValueForCharacteristic(p, c, nil) })
			case <-ctx.Done():
				return
			}
		}
	})
	return nil
}

func (c *linuxCharacteristic) unwatchValue() {
	c.mu.Lock()
	ch, cancel := c.valueCh, c.stopWait
	c.valueCh, c.stopWait = nil, nil
	c.mu.Unlock()
	if ch == nil {
		return
	}
	cancel()
	c.chr.UnwatchProperties(ch)
}

type linuxDescriptor struct {
	dsc  *gatt.GattDescriptor1
	uuid UUID

	mu    sync.Mutex
	value []byte
}

func (d *linuxDescriptor) UUID() UUID {
	return d.uuid
}

func (d *linuxDescriptor) Value() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

func (d *linuxDescriptor) setValue(value []byte) {
	d.mu.Lock()
	d.value = cloneBytes(value)
	d.mu.Unlock()
}

var bluezFlags = map[string]CharacteristicProperties{
	"broadcast":                   PropertyBroadcast,
	"read":                        PropertyRead,
	"write-without-response":      PropertyWriteWithoutResponse,
	"write":                       PropertyWrite,
	"notify":                      PropertyNotify,
	"indicate":                    PropertyIndicate,
	"authenticated-signed-writes": PropertyAuthenticatedSignedWrites,
	"extended-properties":         PropertyExtendedProperties,
}

func propertiesFromFlags(flags []string) CharacteristicProperties {
	var props CharacteristicProperties
	for _, f := range flags {
		props |= bluezFlags[f]
	}
	return props
}

func uuidWanted(u UUID, filter []UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		if u == want {
			return true
		}
	}
	return false
}

// childObjects lists the direct children of parent whose last path element
// starts with prefix, such as the "service0010" objects of a device.
func childObjects(parent dbus.ObjectPath, prefix string) ([]dbus.ObjectPath, error) {
	// Iterate through all objects managed by BlueZ, hoping to find the
	// objects we're looking for.
	om, err := bluez.GetObjectManager()
	if err != nil {
		return nil, err
	}
	list, err := om.GetManagedObjects()
	if err != nil {
		return nil, err
	}
	objects := make([]string, 0, len(list))
	for objectPath := range list {
		objects = append(objects, string(objectPath))
	}
	sort.Strings(objects)

	base := string(parent) + "/"
	var children []dbus.ObjectPath
	for _, objectPath := range objects {
		if !strings.HasPrefix(objectPath, base+prefix) {
			continue
		}
		if strings.Contains(objectPath[len(base):], "/") {
			continue
		}
		children = append(children, dbus.ObjectPath(objectPath))
	}
	return children, nil
}

type dbusOp int

const (
	opOther dbusOp = iota
	opConnect
	opRead
	opWrite
)

// errorFromDBus maps BlueZ D-Bus errors onto the framework error kinds.
func errorFromDBus(err error, op dbusOp) error {
	if err == nil {
		return nil
	}
	var bluetoothErr *Error
	if errors.As(err, &bluetoothErr) {
		return err
	}
	if errors.Is(err, ErrClosed) {
		return NewError(ErrorDomain, 5, err.Error())
	}

	var name, msg string
	var dbusErr dbus.Error
	var dbusErrPtr *dbus.Error
	switch {
	case errors.As(err, &dbusErr):
		name = dbusErr.Name
	case errors.As(err, &dbusErrPtr):
		name = dbusErrPtr.Name
	default:
		return NewError("", 0, err.Error())
	}
	msg = err.Error()

	switch name {
	case "org.bluez.Error.InvalidArguments":
		return NewError(ErrorDomain, 1, msg)
	case "org.bluez.Error.NotConnected":
		return NewError(ErrorDomain, 3, msg)
	case "org.bluez.Error.DoesNotExist":
		return NewError(ErrorDomain, 12, msg)
	case "org.bluez.Error.NotSupported":
		return NewError(ErrorDomain, 13, msg)
	case "org.freedesktop.DBus.Error.NoReply":
		return NewError(ErrorDomain, 6, msg)
	case "org.bluez.Error.InvalidValueLength":
		return NewError(AttErrorDomain, 13, msg)
	case "org.bluez.Error.NotAuthorized":
		return NewError(AttErrorDomain, 8, msg)
	case "org.bluez.Error.AuthenticationFailed":
		return NewError(AttErrorDomain, 5, msg)
	case "org.bluez.Error.NotPermitted":
		if op == opWrite {
			return NewError(AttErrorDomain, 3, msg)
		}
		return NewError(AttErrorDomain, 2, msg)
	case "org.bluez.Error.Failed", "org.bluez.Error.ConnectionAttemptFailed", "org.bluez.Error.AbortByLocal":
		if op == opConnect {
			return NewError(ErrorDomain, 10, msg)
		}
		return NewError(ErrorDomain, 0, msg)
	case "org.bluez.Error.InProgress":
		return NewError(ErrorDomain, 0, msg)
	default:
		return NewError("", 0, msg)
	}
}
