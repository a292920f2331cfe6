package bluetooth

// This file implements 16-bit, 32-bit and 128-bit UUIDs as defined in the
// Bluetooth specification.

import (
	"encoding/binary"
	"errors"
)

// UUID is a single UUID as used in the Bluetooth stack. It is represented as a
// [4]uint32 instead of a [16]byte for efficiency. The most significant word
// is stored last.
type UUID [4]uint32

var (
	errInvalidUUID       = errors.New("bluetooth: failed to parse UUID")
	errInvalidUUIDLength = errors.New("bluetooth: UUID must be 2, 4 or 16 bytes long")
)

// NewUUID returns a new UUID based on the 128-bit (or 16-byte) input, in
// big-endian (network) order.
func NewUUID(uuid [16]byte) UUID {
	return UUID{
		binary.BigEndian.Uint32(uuid[12:16]),
		binary.BigEndian.Uint32(uuid[8:12]),
		binary.BigEndian.Uint32(uuid[4:8]),
		binary.BigEndian.Uint32(uuid[0:4]),
	}
}

// New16BitUUID returns a new 128-bit UUID based on a 16-bit UUID.
//
// Note: only use registered UUIDs. See
// https://www.bluetooth.com/specifications/gatt/services/ for a list.
func New16BitUUID(shortUUID uint16) UUID {
	return New32BitUUID(uint32(shortUUID))
}

// New32BitUUID returns a new 128-bit UUID based on a 32-bit UUID.
func New32BitUUID(shortUUID uint32) UUID {
	// https://stackoverflow.com/questions/36212020/how-can-i-convert-a-bluetooth-16-bit-service-uuid-into-a-128-bit-uuid
	var uuid UUID
	uuid[0] = 0x5F9B34FB
	uuid[1] = 0x80000080
	uuid[2] = 0x00001000
	uuid[3] = shortUUID
	return uuid
}

// BaseUUID returns the Bluetooth Base UUID,
// 00000000-0000-1000-8000-00805F9B34FB.
func BaseUUID() UUID {
	return New32BitUUID(0)
}

// UUIDFromSlice constructs a UUID from a 2 byte (uuid16), 4 byte (uuid32) or
// 16 byte slice, all in big-endian order. This is the format in which the
// native framework hands out attribute UUIDs.
func UUIDFromSlice(b []byte) (UUID, error) {
	switch len(b) {
	case 2:
		return New16BitUUID(binary.BigEndian.Uint16(b)), nil
	case 4:
		return New32BitUUID(binary.BigEndian.Uint32(b)), nil
	case 16:
		var buf [16]byte
		copy(buf[:], b)
		return NewUUID(buf), nil
	default:
		return UUID{}, errInvalidUUIDLength
	}
}

// Is16Bit returns whether this UUID is a 16-bit BLE UUID.
func (uuid UUID) Is16Bit() bool {
	return uuid.Is32Bit() && uuid[3] == uint32(uint16(uuid[3]))
}

// Is32Bit returns whether this UUID is a 32-bit or 16-bit BLE UUID.
func (uuid UUID) Is32Bit() bool {
	return uuid[0] == 0x5F9B34FB && uuid[1] == 0x80000080 && uuid[2] == 0x00001000
}

// Get16Bit returns the 16-bit version of this UUID. This is only valid if it
// actually is a 16-bit UUID, see Is16Bit.
func (uuid UUID) Get16Bit() uint16 {
	return uint16(uuid[3])
}

// Get32Bit returns the 32-bit version of this UUID. This is only valid if it
// actually is a 32-bit UUID, see Is32Bit.
func (uuid UUID) Get32Bit() uint32 {
	return uuid[3]
}

// Bytes returns the 16 bytes of this UUID in big-endian order.
func (uuid UUID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint32(b[0:4], uuid[3])
	binary.BigEndian.PutUint32(b[4:8], uuid[2])
	binary.BigEndian.PutUint32(b[8:12], uuid[1])
	binary.BigEndian.PutUint32(b[12:16], uuid[0])
	return b
}

// Shorten returns the shortest byte representation that is equivalent to this
// UUID: 2 bytes for 16-bit UUIDs, 4 bytes for 32-bit UUIDs and 16 bytes
// otherwise.
func (uuid UUID) Shorten() []byte {
	b := uuid.Bytes()
	switch {
	case uuid.Is16Bit():
		return b[2:4]
	case uuid.Is32Bit():
		return b[0:4]
	default:
		return b[:]
	}
}

// String returns a human-readable version of this UUID, such as
// 00001234-0000-1000-8000-00805f9b34fb.
func (uuid UUID) String() string {
	var buf [36]byte
	b := uuid.Bytes()
	j := 0
	for i, c := range b {
		// Insert a hyphen at the correct locations.
		if i == 4 || i == 6 || i == 8 || i == 10 {
			buf[j] = '-'
			j++
		}
		buf[j] = hexDigit(c >> 4)
		buf[j+1] = hexDigit(c & 0x0f)
		j += 2
	}
	return string(buf[:])
}

// ShortString returns the shortened form of this UUID in hex, for example
// "180d" for the Heart Rate service. UUIDs that cannot be shortened are
// formatted like String.
func (uuid UUID) ShortString() string {
	short := uuid.Shorten()
	if len(short) == 16 {
		return uuid.String()
	}
	buf := make([]byte, 0, len(short)*2)
	for _, c := range short {
		buf = append(buf, hexDigit(c>>4), hexDigit(c&0x0f))
	}
	return string(buf)
}

// ParseUUID parses the given UUID, which must be in
// 00001234-0000-1000-8000-00805f9b34fb format, or be a 16-bit (4 hex digits)
// or 32-bit (8 hex digits) short form of a Bluetooth Base UUID. Both upper
// and lower case hex digits are accepted.
func ParseUUID(s string) (uuid UUID, err error) {
	switch len(s) {
	case 4, 8:
		var v uint32
		for i := 0; i < len(s); i++ {
			nibble, ok := parseNibble(s[i])
			if !ok {
				return UUID{}, errInvalidUUID
			}
			v = v<<4 | uint32(nibble)
		}
		return New32BitUUID(v), nil
	case 36:
	default:
		return UUID{}, errInvalidUUID
	}

	var b [16]byte
	j := 0
	for i := 0; i < len(s); i++ {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if s[i] != '-' {
				return UUID{}, errInvalidUUID
			}
			continue
		}
		hi, ok1 := parseNibble(s[i])
		lo, ok2 := parseNibble(s[i+1])
		if !ok1 || !ok2 {
			return UUID{}, errInvalidUUID
		}
		b[j] = hi<<4 | lo
		j++
		i++
	}
	return NewUUID(b), nil
}

// MarshalText implements encoding.TextMarshaler.
func (uuid UUID) MarshalText() ([]byte, error) {
	return []byte(uuid.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (uuid *UUID) UnmarshalText(text []byte) error {
	u, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*uuid = u
	return nil
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'a' + n - 10
}

func parseNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
