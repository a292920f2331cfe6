package bluetooth

import "strings"

// WriteKind selects between acknowledged and unacknowledged writes.
type WriteKind int

const (
	WithResponse WriteKind = iota
	WithoutResponse
)

func (k WriteKind) String() string {
	if k == WithoutResponse {
		return "WithoutResponse"
	}
	return "WithResponse"
}

// CharacteristicProperties is the set of operations a characteristic
// supports.
type CharacteristicProperties uint32

const (
	PropertyBroadcast                  CharacteristicProperties = 0x01
	PropertyRead                       CharacteristicProperties = 0x02
	PropertyWriteWithoutResponse       CharacteristicProperties = 0x04
	PropertyWrite                      CharacteristicProperties = 0x08
	PropertyNotify                     CharacteristicProperties = 0x10
	PropertyIndicate                   CharacteristicProperties = 0x20
	PropertyAuthenticatedSignedWrites  CharacteristicProperties = 0x40
	PropertyExtendedProperties         CharacteristicProperties = 0x80
	PropertyNotifyEncryptionRequired   CharacteristicProperties = 0x100
	PropertyIndicateEncryptionRequired CharacteristicProperties = 0x200

	propertyMask CharacteristicProperties = 0x3ff
)

var propertyNames = []struct {
	flag CharacteristicProperties
	name string
}{
	{PropertyBroadcast, "Broadcast"},
	{PropertyRead, "Read"},
	{PropertyWriteWithoutResponse, "WriteWithoutResponse"},
	{PropertyWrite, "Write"},
	{PropertyNotify, "Notify"},
	{PropertyIndicate, "Indicate"},
	{PropertyAuthenticatedSignedWrites, "AuthenticatedSignedWrites"},
	{PropertyExtendedProperties, "ExtendedProperties"},
	{PropertyNotifyEncryptionRequired, "NotifyEncryptionRequired"},
	{PropertyIndicateEncryptionRequired, "IndicateEncryptionRequired"},
}

// CharacteristicPropertiesFromBits converts the native bit set, dropping
// bits that have no meaning here.
func CharacteristicPropertiesFromBits(bits uint32) CharacteristicProperties {
	return CharacteristicProperties(bits) & propertyMask
}

// Has reports whether all of the given flags are set.
func (p CharacteristicProperties) Has(flags CharacteristicProperties) bool {
	return p&flags == flags
}

// String returns the set flags joined by " | ", for example "Read | Notify".
func (p CharacteristicProperties) String() string {
	var names []string
	for _, n := range propertyNames {
		if p&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, " | ")
}

// MaxWriteLen is the maximum number of bytes that fit in a single write to
// a peripheral, per write kind.
type MaxWriteLen struct {
	WithResponse    int
	WithoutResponse int
}

// Get returns the limit for the given write kind.
func (m MaxWriteLen) Get(kind WriteKind) int {
	if kind == WithoutResponse {
		return m.WithoutResponse
	}
	return m.WithResponse
}

// Characteristic is a handle to a remote characteristic. Handles are
// comparable; two handles are equal when they refer to the same native
// object. The zero value is not a valid handle.
type Characteristic struct {
	peripheral *Peripheral
	native     DriverCharacteristic
}

// UUID returns the characteristic type, or the zero UUID for an invalid
// handle.
func (c Characteristic) UUID() UUID {
	if c.native == nil {
		return UUID{}
	}
	return c.native.UUID()
}

// Properties returns the operations this characteristic supports.
func (c Characteristic) Properties() CharacteristicProperties {
	if c.native == nil {
		return 0
	}
	return c.native.Properties()
}

// Peripheral returns the peripheral this characteristic belongs to.
func (c Characteristic) Peripheral() *Peripheral {
	return c.peripheral
}

// IsValid reports whether c refers to a characteristic.
func (c Characteristic) IsValid() bool {
	return c.peripheral != nil && c.native != nil
}

func (c Characteristic) String() string {
	if !c.IsValid() {
		return "Characteristic(nil)"
	}
	return "Characteristic(" + c.UUID().ShortString() + ")"
}
