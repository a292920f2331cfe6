package fakedriver

import (
	"sync"

	"github.com/cbcentral/bluetooth"
)

// Peripheral is a simulated remote device with a GATT database.
type Peripheral struct {
	drv *Driver
	id  bluetooth.UUID

	mu         sync.Mutex
	name       string
	rssi       int
	adv        bluetooth.AdvertisementData
	connected  bool
	maxWrite   bluetooth.MaxWriteLen
	services   []*Service
	discovered []bluetooth.DriverService
	errors     map[Op]error
	silent     map[Op]bool
}

var _ bluetooth.DriverPeripheral = (*Peripheral)(nil)

// SetAdvertisement sets what the peripheral advertises while scanned.
func (p *Peripheral) SetAdvertisement(adv bluetooth.AdvertisementData, rssi int) {
	p.mu.Lock()
	p.adv = adv
	p.rssi = rssi
	p.mu.Unlock()
}

// SetMaxWriteLen sets the values returned by MaximumWriteValueLength.
func (p *Peripheral) SetMaxWriteLen(m bluetooth.MaxWriteLen) {
	p.mu.Lock()
	p.maxWrite = m
	p.mu.Unlock()
}

// SetError makes op fail with err until cleared with a nil err.
func (p *Peripheral) SetError(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errors, op)
		return
	}
	p.errors[op] = err
}

// SetSilent makes op never answer.
func (p *Peripheral) SetSilent(op Op, silent bool) {
	p.mu.Lock()
	p.silent[op] = silent
	p.mu.Unlock()
}

func (p *Peripheral) errorFor(op Op) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors[op]
}

func (p *Peripheral) isSilent(op Op) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.silent[op]
}

// IsConnected reports whether the simulated link is up.
func (p *Peripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// AddService adds a service to the GATT database.
func (p *Peripheral) AddService(uuid bluetooth.UUID, primary bool) *Service {
	s := &Service{uuid: uuid, primary: primary}
	p.mu.Lock()
	p.services = append(p.services, s)
	p.mu.Unlock()
	return s
}

// Advertise reports the peripheral as discovered again if a scan is
// running.
func (p *Peripheral) Advertise() {
	p.advertise()
}

func (p *Peripheral) advertise() {
	d := p.drv
	d.mu.Lock()
	scanning := d.scanning
	filter := d.scanOpts.Services
	d.mu.Unlock()
	if !scanning {
		return
	}

	p.mu.Lock()
	adv, rssi := p.adv, p.rssi
	p.mu.Unlock()
	if len(filter) > 0 {
		match := false
		for _, u := range filter {
			if adv.HasServiceUUID(u) {
				match = true
				break
			}
		}
		if !match {
			return
		}
	}
	d.post(func(dl bluetooth.DriverDelegate) { dl.DidDiscoverPeripheral(p, adv, rssi) })
}

// Disconnect simulates the link being lost with err as the reason.
func (p *Peripheral) Disconnect(err error) {
	p.mu.Lock()
	p.connected = false
	p.discovered = nil
	p.mu.Unlock()
	p.drv.post(func(dl bluetooth.DriverDelegate) { dl.DidDisconnectPeripheral(p, err) })
}

// Rename simulates a GAP name change.
func (p *Peripheral) Rename(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
	p.drv.post(func(dl bluetooth.DriverDelegate) { dl.DidUpdateName(p) })
}

// Notify simulates a notification of value on c. It is dropped unless c is
// subscribed.
func (p *Peripheral) Notify(c *Characteristic, value []byte) {
	c.mu.Lock()
	notifying := c.notifying
	if notifying {
		c.value = append([]byte{}, value...)
	}
	c.mu.Unlock()
	if !notifying {
		return
	}
	p.drv.post(func(dl bluetooth.DriverDelegate) { dl.DidUpdateValueForCharacteristic(p, c, nil) })
}

// ReadyToWrite simulates the transmit queue draining after writes without
// response.
func (p *Peripheral) ReadyToWrite() {
	p.drv.post(func(dl bluetooth.DriverDelegate) { dl.IsReadyToSendWriteWithoutResponse(p) })
}

// InvalidateServices simulates a change of the GATT database removing the
// given services.
func (p *Peripheral) InvalidateServices(invalidated ...*Service) {
	p.mu.Lock()
	var kept []bluetooth.DriverService
	for _, s := range p.discovered {
		if !containsService(invalidated, s.(*Service)) {
			kept = append(kept, s)
		}
	}
	p.discovered = kept
	p.mu.Unlock()

	natives := make([]bluetooth.DriverService, 0, len(invalidated))
	for _, s := range invalidated {
		natives = append(natives, s)
	}
	p.drv.post(func(dl bluetooth.DriverDelegate) { dl.DidModifyServices(p, natives) })
}

func containsService(list []*Service, s *Service) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func (p *Peripheral) hasService(uuids []bluetooth.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.services {
		if wanted(s.uuid, uuids) {
			return true
		}
	}
	return false
}

func wanted(u bluetooth.UUID, filter []bluetooth.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == u {
			return true
		}
	}
	return false
}

// answer runs the callback for op unless it is silenced, passing the
// configured error.
func (p *Peripheral) answer(op Op, fn func(dl bluetooth.DriverDelegate, err error)) {
	p.drv.record(string(op))
	if p.isSilent(op) {
		return
	}
	err := p.errorFor(op)
	p.drv.post(func(dl bluetooth.DriverDelegate) { fn(dl, err) })
}

func (p *Peripheral) Identifier() bluetooth.UUID {
	return p.id
}

func (p *Peripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peripheral) Services() []bluetooth.DriverService {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bluetooth.DriverService(nil), p.discovered...)
}

func (p *Peripheral) DiscoverServices(uuids []bluetooth.UUID) {
	p.mu.Lock()
	if p.errors[OpDiscoverServices] == nil {
		p.discovered = nil
		for _, s := range p.services {
			if wanted(s.uuid, uuids) {
				p.discovered = append(p.discovered, s)
			}
		}
	}
	p.mu.Unlock()
	p.answer(OpDiscoverServices, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidDiscoverServices(p, err)
	})
}

func (p *Peripheral) DiscoverIncludedServices(ds bluetooth.DriverService, uuids []bluetooth.UUID) {
	s := ds.(*Service)
	if p.errorFor(OpDiscoverIncludedServices) == nil {
		s.discoverIncluded(uuids)
	}
	p.answer(OpDiscoverIncludedServices, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidDiscoverIncludedServices(p, s, err)
	})
}

func (p *Peripheral) DiscoverCharacteristics(ds bluetooth.DriverService, uuids []bluetooth.UUID) {
	s := ds.(*Service)
	if p.errorFor(OpDiscoverCharacteristics) == nil {
		s.discoverCharacteristics(uuids)
	}
	p.answer(OpDiscoverCharacteristics, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidDiscoverCharacteristics(p, s, err)
	})
}

func (p *Peripheral) DiscoverDescriptors(dc bluetooth.DriverCharacteristic) {
	c := dc.(*Characteristic)
	if p.errorFor(OpDiscoverDescriptors) == nil {
		c.discoverDescriptors()
	}
	p.answer(OpDiscoverDescriptors, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidDiscoverDescriptors(p, c, err)
	})
}

func (p *Peripheral) ReadCharacteristic(dc bluetooth.DriverCharacteristic) {
	c := dc.(*Characteristic)
	p.answer(OpReadCharacteristic, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidUpdateValueForCharacteristic(p, c, err)
	})
}

// WriteCharacteristic stores value. Writes without response are only
// recorded, like the native framework which never confirms them.
func (p *Peripheral) WriteCharacteristic(dc bluetooth.DriverCharacteristic, value []byte, kind bluetooth.WriteKind) {
	c := dc.(*Characteristic)
	err := p.errorFor(OpWriteCharacteristic)
	if err == nil {
		c.mu.Lock()
		c.value = append([]byte{}, value...)
		c.writes = append(c.writes, Write{Value: append([]byte{}, value...), Kind: kind})
		c.mu.Unlock()
	}
	if kind == bluetooth.WithoutResponse {
		p.drv.record(string(OpWriteCharacteristic))
		return
	}
	p.answer(OpWriteCharacteristic, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidWriteValueForCharacteristic(p, c, err)
	})
}

func (p *Peripheral) ReadDescriptor(dd bluetooth.DriverDescriptor) {
	d := dd.(*Descriptor)
	p.answer(OpReadDescriptor, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidUpdateValueForDescriptor(p, d, err)
	})
}

func (p *Peripheral) WriteDescriptor(dd bluetooth.DriverDescriptor, value []byte) {
	d := dd.(*Descriptor)
	if p.errorFor(OpWriteDescriptor) == nil {
		d.mu.Lock()
		d.value = append([]byte{}, value...)
		d.mu.Unlock()
	}
	p.answer(OpWriteDescriptor, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidWriteValueForDescriptor(p, d, err)
	})
}

func (p *Peripheral) SetNotify(dc bluetooth.DriverCharacteristic, enabled bool) {
	c := dc.(*Characteristic)
	if p.errorFor(OpSetNotify) == nil {
		c.mu.Lock()
		c.notifying = enabled
		c.mu.Unlock()
	}
	p.answer(OpSetNotify, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidUpdateNotificationState(p, c, err)
	})
}

func (p *Peripheral) ReadRSSI() {
	p.mu.Lock()
	rssi := p.rssi
	p.mu.Unlock()
	p.answer(OpReadRSSI, func(dl bluetooth.DriverDelegate, err error) {
		dl.DidReadRSSI(p, rssi, err)
	})
}

func (p *Peripheral) MaximumWriteValueLength(kind bluetooth.WriteKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWrite.Get(kind)
}
