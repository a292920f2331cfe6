package bluetooth

import (
	"encoding/binary"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AdvertisementData is the content of an advertisement packet (and scan
// response) as decoded by the native framework. Fields the peripheral did not
// advertise are left at their zero value.
type AdvertisementData struct {
	// Connectable is nil when the framework did not report connectability.
	Connectable *bool

	LocalName string

	// ManufacturerData holds the raw manufacturer specific data, starting
	// with the little endian company identifier.
	ManufacturerData []byte

	ServiceData *ServiceData

	ServiceUUIDs          []UUID
	SolicitedServiceUUIDs []UUID
	OverflowServiceUUIDs  []UUID

	// TxPowerLevel is nil when the peripheral did not advertise it.
	TxPowerLevel *int
}

// IsConnectable returns the advertised connectability and whether it was
// reported at all.
func (a *AdvertisementData) IsConnectable() (value, known bool) {
	if a.Connectable == nil {
		return false, false
	}
	return *a.Connectable, true
}

// HasServiceUUID reports whether the given UUID is present in the
// advertised service UUIDs, including the overflow area.
func (a *AdvertisementData) HasServiceUUID(uuid UUID) bool {
	for _, u := range a.ServiceUUIDs {
		if u == uuid {
			return true
		}
	}
	for _, u := range a.OverflowServiceUUIDs {
		if u == uuid {
			return true
		}
	}
	return false
}

// ManufacturerCompanyID returns the company identifier that prefixes the
// manufacturer data.
func (a *AdvertisementData) ManufacturerCompanyID() (uint16, bool) {
	if len(a.ManufacturerData) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(a.ManufacturerData), true
}

// ServiceData maps service UUIDs to the data advertised for them, keeping
// the order in which the framework reported them. A nil *ServiceData is an
// empty map.
type ServiceData struct {
	m *orderedmap.OrderedMap[UUID, []byte]
}

// NewServiceData returns an empty ServiceData.
func NewServiceData() *ServiceData {
	return &ServiceData{m: orderedmap.New[UUID, []byte]()}
}

// Set stores a copy of data for uuid. Setting an existing key keeps its
// position. sd must not be nil; the zero ServiceData is ready to use.
func (sd *ServiceData) Set(uuid UUID, data []byte) {
	if sd.m == nil {
		sd.m = orderedmap.New[UUID, []byte]()
	}
	sd.m.Set(uuid, cloneBytes(data))
}

// Get returns the data advertised for uuid.
func (sd *ServiceData) Get(uuid UUID) ([]byte, bool) {
	if sd == nil || sd.m == nil {
		return nil, false
	}
	return sd.m.Get(uuid)
}

// Len returns the number of entries.
func (sd *ServiceData) Len() int {
	if sd == nil || sd.m == nil {
		return 0
	}
	return sd.m.Len()
}

// Keys returns the service UUIDs in insertion order.
func (sd *ServiceData) Keys() []UUID {
	if sd == nil || sd.m == nil {
		return nil
	}
	keys := make([]UUID, 0, sd.m.Len())
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Range calls fn for every entry in insertion order until fn returns false.
func (sd *ServiceData) Range(fn func(uuid UUID, data []byte) bool) {
	if sd == nil || sd.m == nil {
		return
	}
	for pair := sd.m.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}
