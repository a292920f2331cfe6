package bluetooth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvertisementData(t *testing.T) {
	connectable := true
	adv := AdvertisementData{
		Connectable:          &connectable,
		ManufacturerData:     []byte{0x4c, 0x00, 0x02, 0x15},
		ServiceUUIDs:         []UUID{ServiceUUIDHeartRate},
		OverflowServiceUUIDs: []UUID{ServiceUUIDBattery},
	}

	value, known := adv.IsConnectable()
	assert.True(t, value)
	assert.True(t, known)

	assert.True(t, adv.HasServiceUUID(ServiceUUIDHeartRate))
	assert.True(t, adv.HasServiceUUID(ServiceUUIDBattery))
	assert.False(t, adv.HasServiceUUID(ServiceUUIDNordicUART))

	id, ok := adv.ManufacturerCompanyID()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x004c), id)

	var empty AdvertisementData
	_, known = empty.IsConnectable()
	assert.False(t, known)
	_, ok = empty.ManufacturerCompanyID()
	assert.False(t, ok)
}

func TestServiceDataKeepsOrder(t *testing.T) {
	sd := NewServiceData()
	data := []byte{1, 2, 3}
	sd.Set(New16BitUUID(0xfe95), data)
	sd.Set(New16BitUUID(0x181a), []byte{4})
	sd.Set(New16BitUUID(0xfe95), []byte{5})
	data[0] = 9

	assert.Equal(t, 2, sd.Len())
	assert.Equal(t, []UUID{New16BitUUID(0xfe95), New16BitUUID(0x181a)}, sd.Keys())

	v, ok := sd.Get(New16BitUUID(0xfe95))
	assert.True(t, ok)
	assert.Equal(t, []byte{5}, v)

	var seen []UUID
	sd.Range(func(uuid UUID, _ []byte) bool {
		seen = append(seen, uuid)
		return false
	})
	assert.Len(t, seen, 1, "Range MUST stop when fn returns false")
}

func TestNilServiceData(t *testing.T) {
	var sd *ServiceData
	assert.Equal(t, 0, sd.Len())
	assert.Nil(t, sd.Keys())
	_, ok := sd.Get(ServiceUUIDBattery)
	assert.False(t, ok)
	sd.Range(func(UUID, []byte) bool {
		t.Fatal("Range on nil MUST not call fn")
		return true
	})
}

func TestZeroServiceData(t *testing.T) {
	var sd ServiceData
	assert.Equal(t, 0, sd.Len())
	_, ok := sd.Get(ServiceUUIDBattery)
	assert.False(t, ok)

	sd.Set(ServiceUUIDBattery, []byte{0x64})
	v, ok := sd.Get(ServiceUUIDBattery)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x64}, v)
	assert.Equal(t, []UUID{ServiceUUIDBattery}, sd.Keys())
}
