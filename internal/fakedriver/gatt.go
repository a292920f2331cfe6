package fakedriver

import (
	"sync"

	"github.com/cbcentral/bluetooth"
)

// Service is a simulated GATT service.
type Service struct {
	uuid    bluetooth.UUID
	primary bool

	mu              sync.Mutex
	chars           []*Characteristic
	includes        []*Service
	discoveredChars []bluetooth.DriverCharacteristic
	discoveredIncl  []bluetooth.DriverService
}

var _ bluetooth.DriverService = (*Service)(nil)

// AddCharacteristic adds a characteristic holding value.
func (s *Service) AddCharacteristic(uuid bluetooth.UUID, props bluetooth.CharacteristicProperties, value []byte) *Characteristic {
	c := &Characteristic{uuid: uuid, props: props, value: value}
	s.mu.Lock()
	s.chars = append(s.chars, c)
	s.mu.Unlock()
	return c
}

// Include makes other an included service of s.
func (s *Service) Include(other *Service) {
	s.mu.Lock()
	s.includes = append(s.includes, other)
	s.mu.Unlock()
}

func (s *Service) discoverCharacteristics(uuids []bluetooth.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveredChars = nil
	for _, c := range s.chars {
		if wanted(c.uuid, uuids) {
			s.discoveredChars = append(s.discoveredChars, c)
		}
	}
}

func (s *Service) discoverIncluded(uuids []bluetooth.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoveredIncl = nil
	for _, inc := range s.includes {
		if wanted(inc.uuid, uuids) {
			s.discoveredIncl = append(s.discoveredIncl, inc)
		}
	}
}

func (s *Service) UUID() bluetooth.UUID {
	return s.uuid
}

func (s *Service) IsPrimary() bool {
	return s.primary
}

func (s *Service) Characteristics() []bluetooth.DriverCharacteristic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bluetooth.DriverCharacteristic(nil), s.discoveredChars...)
}

func (s *Service) IncludedServices() []bluetooth.DriverService {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bluetooth.DriverService(nil), s.discoveredIncl...)
}

// Write is a value written to a Characteristic.
type Write struct {
	Value []byte
	Kind  bluetooth.WriteKind
}

// Characteristic is a simulated GATT characteristic.
type Characteristic struct {
	uuid  bluetooth.UUID
	props bluetooth.CharacteristicProperties

	mu         sync.Mutex
	value      []byte
	notifying  bool
	writes     []Write
	descs      []*Descriptor
	discovered []bluetooth.DriverDescriptor
}

var _ bluetooth.DriverCharacteristic = (*Characteristic)(nil)

// AddDescriptor adds a descriptor holding value.
func (c *Characteristic) AddDescriptor(uuid bluetooth.UUID, value []byte) *Descriptor {
	d := &Descriptor{uuid: uuid, value: value}
	c.mu.Lock()
	c.descs = append(c.descs, d)
	c.mu.Unlock()
	return d
}

// SetValue changes the value returned by the next read.
func (c *Characteristic) SetValue(value []byte) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// Writes returns every value written so far.
func (c *Characteristic) Writes() []Write {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Write(nil), c.writes...)
}

// Notifying reports whether notifications are enabled.
func (c *Characteristic) Notifying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifying
}

func (c *Characteristic) discoverDescriptors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discovered = nil
	for _, d := range c.descs {
		c.discovered = append(c.discovered, d)
	}
}

func (c *Characteristic) UUID() bluetooth.UUID {
	return c.uuid
}

func (c *Characteristic) Properties() bluetooth.CharacteristicProperties {
	return c.props
}

func (c *Characteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *Characteristic) Descriptors() []bluetooth.DriverDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bluetooth.DriverDescriptor(nil), c.discovered...)
}

// Descriptor is a simulated GATT descriptor.
type Descriptor struct {
	uuid bluetooth.UUID

	mu    sync.Mutex
	value []byte
}

var _ bluetooth.DriverDescriptor = (*Descriptor)(nil)

func (d *Descriptor) UUID() bluetooth.UUID {
	return d.uuid
}

func (d *Descriptor) Value() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}
