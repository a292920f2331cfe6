package bluetooth

import "errors"

// MAC represents a MAC address, in little endian format. The native
// framework on darwin hides peripheral addresses, so MACs only show up on
// platforms that expose them (BlueZ), where they seed the stable peripheral
// identifier.
type MAC [6]byte

var errInvalidMAC = errors.New("bluetooth: failed to parse MAC address")

// ParseMAC parses the given MAC address, which must be in 11:22:33:AA:BB:CC
// format. Lower case hex digits are accepted too. If it cannot be parsed, an
// error is returned.
func ParseMAC(s string) (mac MAC, err error) {
	macIndex := 11
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			continue
		}
		nibble, ok := parseNibble(c)
		if !ok {
			err = errInvalidMAC
			return
		}
		if macIndex < 0 {
			err = errInvalidMAC
			return
		}
		if macIndex%2 == 0 {
			mac[macIndex/2] |= nibble
		} else {
			mac[macIndex/2] |= nibble << 4
		}
		macIndex--
	}
	if macIndex != -1 {
		err = errInvalidMAC
	}
	return
}

// String returns a human-readable version of this MAC address, such as
// 11:22:33:AA:BB:CC.
func (mac MAC) String() string {
	var buf [17]byte
	j := 0
	for i := 5; i >= 0; i-- {
		if i != 5 {
			buf[j] = ':'
			j++
		}
		buf[j] = upperHexDigit(mac[i] >> 4)
		buf[j+1] = upperHexDigit(mac[i] & 0x0f)
		j += 2
	}
	return string(buf[:])
}

// Bytes returns the address in transmission (big endian) order.
func (mac MAC) Bytes() []byte {
	return []byte{mac[5], mac[4], mac[3], mac[2], mac[1], mac[0]}
}

func upperHexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + n - 10
}
