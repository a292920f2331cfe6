package bluetooth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCharacteristicPropertiesFromBits(t *testing.T) {
	p := CharacteristicPropertiesFromBits(0x12 | 0x8000)
	assert.Equal(t, PropertyRead|PropertyNotify, p, "unknown bits MUST be dropped")
	assert.True(t, p.Has(PropertyRead))
	assert.True(t, p.Has(PropertyRead|PropertyNotify))
	assert.False(t, p.Has(PropertyRead|PropertyWrite))
	assert.Equal(t, "Read | Notify", p.String())
	assert.Equal(t, "", CharacteristicProperties(0).String())
}

func TestMaxWriteLenGet(t *testing.T) {
	m := MaxWriteLen{WithResponse: 512, WithoutResponse: 182}
	assert.Equal(t, 512, m.Get(WithResponse))
	assert.Equal(t, 182, m.Get(WithoutResponse))
	assert.Equal(t, "WithoutResponse", WithoutResponse.String())
}

func TestZeroHandles(t *testing.T) {
	var s Service
	var c Characteristic
	var d Descriptor
	assert.False(t, s.IsValid())
	assert.False(t, c.IsValid())
	assert.False(t, d.IsValid())
	assert.Equal(t, "Characteristic(nil)", c.String())

	assert.Equal(t, UUID{}, s.UUID())
	assert.False(t, s.IsPrimary())
	assert.Equal(t, UUID{}, c.UUID())
	assert.Equal(t, CharacteristicProperties(0), c.Properties())
	assert.Equal(t, UUID{}, d.UUID())
}
