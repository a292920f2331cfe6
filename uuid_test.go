package bluetooth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDString(t *testing.T) {
	checkUUID(t, New16BitUUID(0x1234), "00001234-0000-1000-8000-00805f9b34fb")
}

func checkUUID(t *testing.T, uuid UUID, check string) {
	t.Helper()
	assert.Equal(t, check, uuid.String())
}

func TestParseUUIDTooSmall(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805f9b34f")
	assert.Equal(t, errInvalidUUID, e)
}

func TestParseUUIDTooLarge(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000-00805F9B34FB0")
	assert.Equal(t, errInvalidUUID, e)
}

func TestParseUUIDBadHyphen(t *testing.T) {
	_, e := ParseUUID("00001234-0000-1000-8000_00805f9b34fb")
	assert.Equal(t, errInvalidUUID, e)

	_, e = ParseUUID("0000123x-0000-1000-8000-00805f9b34fb")
	assert.Equal(t, errInvalidUUID, e)
}

func TestStringUUID(t *testing.T) {
	uuidString := "00001234-0000-1000-8000-00805f9b34fb"
	u, e := ParseUUID(uuidString)
	require.NoError(t, e)
	assert.Equal(t, uuidString, u.String())
}

func TestStringUUIDUpperCase(t *testing.T) {
	uuidString := strings.ToUpper("00001234-0000-1000-8000-00805f9b34fb")
	u, e := ParseUUID(uuidString)
	require.NoError(t, e)
	assert.True(t, strings.EqualFold(u.String(), uuidString), "%s does not match %s ignoring case", uuidString, u.String())
}

func TestStringUUIDLowerCase(t *testing.T) {
	uuidString := strings.ToLower("00001234-0000-1000-8000-00805f9b34fb")
	u, e := ParseUUID(uuidString)
	require.NoError(t, e)
	assert.True(t, strings.EqualFold(u.String(), uuidString), "%s does not match %s ignoring case", uuidString, u.String())
}

func TestParseUUIDShortForms(t *testing.T) {
	u, err := ParseUUID("180D")
	require.NoError(t, err)
	assert.Equal(t, ServiceUUIDHeartRate, u)
	assert.True(t, u.Is16Bit())
	assert.Equal(t, uint16(0x180d), u.Get16Bit())

	u, err = ParseUUID("1234abcd")
	require.NoError(t, err)
	assert.False(t, u.Is16Bit())
	assert.True(t, u.Is32Bit())
	assert.Equal(t, uint32(0x1234abcd), u.Get32Bit())

	_, err = ParseUUID("18g0")
	assert.Equal(t, errInvalidUUID, err)
	_, err = ParseUUID("12345")
	assert.Equal(t, errInvalidUUID, err)
}

func TestUUIDFromSlice(t *testing.T) {
	u, err := UUIDFromSlice([]byte{0x18, 0x0f})
	require.NoError(t, err)
	assert.Equal(t, ServiceUUIDBattery, u)

	u, err = UUIDFromSlice([]byte{0x12, 0x34, 0xab, 0xcd})
	require.NoError(t, err)
	assert.Equal(t, New32BitUUID(0x1234abcd), u)

	full := ServiceUUIDNordicUART.Bytes()
	u, err = UUIDFromSlice(full[:])
	require.NoError(t, err)
	assert.Equal(t, ServiceUUIDNordicUART, u)

	_, err = UUIDFromSlice([]byte{1, 2, 3})
	assert.Equal(t, errInvalidUUIDLength, err)
	_, err = UUIDFromSlice(nil)
	assert.Equal(t, errInvalidUUIDLength, err)
}

func TestUUIDShorten(t *testing.T) {
	assert.Equal(t, []byte{0x18, 0x0d}, ServiceUUIDHeartRate.Shorten())
	assert.Equal(t, []byte{0x12, 0x34, 0xab, 0xcd}, New32BitUUID(0x1234abcd).Shorten())
	assert.Len(t, ServiceUUIDNordicUART.Shorten(), 16)

	assert.Equal(t, "180d", ServiceUUIDHeartRate.ShortString())
	assert.Equal(t, "1234abcd", New32BitUUID(0x1234abcd).ShortString())
	assert.Equal(t, "6e400001-b5a3-f393-e0a9-e50e24dcca9e", ServiceUUIDNordicUART.ShortString())
}

func TestUUIDBytesRoundTrip(t *testing.T) {
	b := [16]byte{0x6e, 0x40, 0x00, 0x01, 0xb5, 0xa3, 0xf3, 0x93, 0xe0, 0xa9, 0xe5, 0x0e, 0x24, 0xdc, 0xca, 0x9e}
	u := NewUUID(b)
	assert.Equal(t, ServiceUUIDNordicUART, u)
	assert.Equal(t, b, u.Bytes())
}

func TestBaseUUID(t *testing.T) {
	assert.Equal(t, "00000000-0000-1000-8000-00805f9b34fb", BaseUUID().String())
	assert.True(t, BaseUUID().Is16Bit())
}

func TestUUIDText(t *testing.T) {
	text, err := ServiceUUIDHeartRate.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "0000180d-0000-1000-8000-00805f9b34fb", string(text))

	var u UUID
	require.NoError(t, u.UnmarshalText([]byte("2a37")))
	assert.Equal(t, CharacteristicUUIDHeartRateMeasurement, u)

	assert.Error(t, u.UnmarshalText([]byte("nope")))
}

func BenchmarkUUIDToString(b *testing.B) {
	uuid, e := ParseUUID("00001234-0000-1000-8000-00805f9b34fb")
	if e != nil {
		b.Errorf("expected nil but got %v", e)
	}
	for i := 0; i < b.N; i++ {
		_ = uuid.String()
	}
}
