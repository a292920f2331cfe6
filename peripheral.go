package bluetooth

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Peripheral is a remote device as seen by a CentralManager. Peripherals are
// obtained from events and compared by pointer: the manager hands out one
// *Peripheral per identifier.
//
// The GATT operations below only dispatch the request; the outcome arrives
// as an event on the manager's event channel.
type Peripheral struct {
	id      UUID
	manager *CentralManager

	mu     sync.Mutex
	native DriverPeripheral
}

func newPeripheral(m *CentralManager, native DriverPeripheral) *Peripheral {
	return &Peripheral{
		id:      native.Identifier(),
		manager: m,
		native:  native,
	}
}

// ID returns the identifier the native framework assigned to this
// peripheral. It is stable across connections on the same host.
func (p *Peripheral) ID() UUID {
	return p.id
}

// Name returns the GAP name last reported for this peripheral, or an empty
// string.
func (p *Peripheral) Name() string {
	return p.driver().Name()
}

func (p *Peripheral) String() string {
	return "Peripheral(" + p.id.String() + ")"
}

func (p *Peripheral) driver() DriverPeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.native
}

func (p *Peripheral) setDriver(native DriverPeripheral) {
	p.mu.Lock()
	p.native = native
	p.mu.Unlock()
}

// DiscoverServices discovers the services of the peripheral. When uuids is
// empty all services are discovered. The result is a ServicesDiscovered
// event.
func (p *Peripheral) DiscoverServices(uuids ...UUID) error {
	if p == nil {
		return errNilPeripheral
	}
	uuids = cloneUUIDs(uuids)
	return p.dispatch("discoverServices", nil, func(native DriverPeripheral) {
		native.DiscoverServices(uuids)
	})
}

// DiscoverIncludedServices discovers the services included by s. The result
// is an IncludedServicesDiscovered event.
func (p *Peripheral) DiscoverIncludedServices(s Service, uuids ...UUID) error {
	if err := p.checkService(s); err != nil {
		return err
	}
	uuids = cloneUUIDs(uuids)
	return p.dispatch("discoverIncludedServices", logrus.Fields{"service": s.UUID()}, func(native DriverPeripheral) {
		native.DiscoverIncludedServices(s.native, uuids)
	})
}

// DiscoverCharacteristics discovers the characteristics of s. When uuids is
// empty all characteristics are discovered. The result is a
// CharacteristicsDiscovered event.
func (p *Peripheral) DiscoverCharacteristics(s Service, uuids ...UUID) error {
	if err := p.checkService(s); err != nil {
		return err
	}
	uuids = cloneUUIDs(uuids)
	return p.dispatch("discoverCharacteristics", logrus.Fields{"service": s.UUID()}, func(native DriverPeripheral) {
		native.DiscoverCharacteristics(s.native, uuids)
	})
}

// DiscoverDescriptors discovers the descriptors of c. The result is a
// DescriptorsDiscovered event.
func (p *Peripheral) DiscoverDescriptors(c Characteristic) error {
	if err := p.checkCharacteristic(c); err != nil {
		return err
	}
	return p.dispatch("discoverDescriptors", logrus.Fields{"characteristic": c.UUID()}, func(native DriverPeripheral) {
		native.DiscoverDescriptors(c.native)
	})
}

// Subscribe enables notifications or indications for c. The result is a
// SubscriptionChanged event, followed by a CharacteristicValue event for
// every value the peripheral sends.
func (p *Peripheral) Subscribe(c Characteristic) error {
	return p.setNotify(c, true)
}

// Unsubscribe disables notifications or indications for c. The result is a
// SubscriptionChanged event.
func (p *Peripheral) Unsubscribe(c Characteristic) error {
	return p.setNotify(c, false)
}

func (p *Peripheral) setNotify(c Characteristic, enabled bool) error {
	if err := p.checkCharacteristic(c); err != nil {
		return err
	}
	return p.dispatch("setNotify", logrus.Fields{"characteristic": c.UUID(), "enabled": enabled}, func(native DriverPeripheral) {
		native.SetNotify(c.native, enabled)
	})
}

// ReadCharacteristic reads the value of c. The result is a
// CharacteristicValue event.
func (p *Peripheral) ReadCharacteristic(c Characteristic) error {
	if err := p.checkCharacteristic(c); err != nil {
		return err
	}
	return p.dispatch("readCharacteristic", logrus.Fields{"characteristic": c.UUID()}, func(native DriverPeripheral) {
		native.ReadCharacteristic(c.native)
	})
}

// WriteCharacteristic writes value to c. A write WithResponse results in a
// WriteCharacteristicResult event; a write WithoutResponse produces no
// event, but may be followed by PeripheralReadyToWriteWithoutResponse if
// the peripheral had to throttle it.
func (p *Peripheral) WriteCharacteristic(c Characteristic, value []byte, kind WriteKind) error {
	if err := p.checkCharacteristic(c); err != nil {
		return err
	}
	value = cloneBytes(value)
	return p.dispatch("writeCharacteristic", logrus.Fields{"characteristic": c.UUID(), "len": len(value), "kind": kind}, func(native DriverPeripheral) {
		native.WriteCharacteristic(c.native, value, kind)
	})
}

// ReadDescriptor reads the value of d. The result is a DescriptorValue
// event.
func (p *Peripheral) ReadDescriptor(d Descriptor) error {
	if err := p.checkDescriptor(d); err != nil {
		return err
	}
	return p.dispatch("readDescriptor", logrus.Fields{"descriptor": d.UUID()}, func(native DriverPeripheral) {
		native.ReadDescriptor(d.native)
	})
}

// WriteDescriptor writes value to d. The result is a WriteDescriptorResult
// event.
func (p *Peripheral) WriteDescriptor(d Descriptor, value []byte) error {
	if err := p.checkDescriptor(d); err != nil {
		return err
	}
	value = cloneBytes(value)
	return p.dispatch("writeDescriptor", logrus.Fields{"descriptor": d.UUID(), "len": len(value)}, func(native DriverPeripheral) {
		native.WriteDescriptor(d.native, value)
	})
}

// ReadRSSI reads the signal strength of the connection. The result is a
// ReadRSSIResult event.
func (p *Peripheral) ReadRSSI() error {
	if p == nil {
		return errNilPeripheral
	}
	return p.dispatch("readRSSI", nil, func(native DriverPeripheral) {
		native.ReadRSSI()
	})
}

// MaxWriteLen queries the largest value that fits in a single write, for
// both write kinds. The result is a MaxWriteLenResult event carrying tag.
func (p *Peripheral) MaxWriteLen(tag Tag) error {
	if p == nil {
		return errNilPeripheral
	}
	return p.dispatch("maxWriteLen", nil, func(native DriverPeripheral) {
		p.manager.deliver(MaxWriteLenResult{
			Peripheral: p,
			MaxWriteLen: MaxWriteLen{
				WithResponse:    native.MaximumWriteValueLength(WithResponse),
				WithoutResponse: native.MaximumWriteValueLength(WithoutResponse),
			},
			Tag: tag,
		})
	})
}

func (p *Peripheral) dispatch(op string, fields logrus.Fields, fn func(native DriverPeripheral)) error {
	f := logrus.Fields{"peripheral": p.id}
	for k, v := range fields {
		f[k] = v
	}
	return p.manager.dispatch(op, f, func() {
		fn(p.driver())
	})
}

func (p *Peripheral) checkService(s Service) error {
	if p == nil {
		return errNilPeripheral
	}
	if !s.IsValid() {
		return errNilService
	}
	if s.peripheral != p {
		return errForeignHandle
	}
	return nil
}

func (p *Peripheral) checkCharacteristic(c Characteristic) error {
	if p == nil {
		return errNilPeripheral
	}
	if !c.IsValid() {
		return errNilCharacteristic
	}
	if c.peripheral != p {
		return errForeignHandle
	}
	return nil
}

func (p *Peripheral) checkDescriptor(d Descriptor) error {
	if p == nil {
		return errNilPeripheral
	}
	if !d.IsValid() {
		return errNilDescriptor
	}
	if d.peripheral != p {
		return errForeignHandle
	}
	return nil
}

func (p *Peripheral) services(natives []DriverService) []Service {
	services := make([]Service, 0, len(natives))
	for _, native := range natives {
		services = append(services, Service{peripheral: p, native: native})
	}
	return services
}

func (p *Peripheral) characteristics(natives []DriverCharacteristic) []Characteristic {
	chars := make([]Characteristic, 0, len(natives))
	for _, native := range natives {
		chars = append(chars, Characteristic{peripheral: p, native: native})
	}
	return chars
}

func (p *Peripheral) descriptors(natives []DriverDescriptor) []Descriptor {
	descs := make([]Descriptor, 0, len(natives))
	for _, native := range natives {
		descs = append(descs, Descriptor{peripheral: p, native: native})
	}
	return descs
}
