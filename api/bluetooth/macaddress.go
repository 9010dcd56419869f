package bluetooth

import (
	"github.com/bluetuith-org/btprofiles/api/errorkinds"
)

const (
	// NumAddressBytes is the total number of bytes in a MacAddress byte array.
	NumAddressBytes = 6

	// AddressStringLength is the length of a Bluetooth address string (with ':').
	AddressStringLength = 17
)

// MacAddress represents a Bluetooth address.
// The bytes are stored in little-endian order, as they appear on the wire.
type MacAddress [NumAddressBytes]byte

const hexDigits = "0123456789ABCDEF"

// ParseMAC parses the given Bluetooth address, which must be in
// 11:22:33:AA:BB:CC format. If it cannot be parsed, an error is returned.
func ParseMAC(s string) (MacAddress, error) {
	var mac MacAddress

	if len(s) != AddressStringLength {
		return mac, errorkinds.ErrInvalidAddress
	}

	for i := 0; i < NumAddressBytes; i++ {
		hi, ok := fromHexChar(s[i*3])
		if !ok {
			return MacAddress{}, errorkinds.ErrInvalidAddress
		}

		lo, ok := fromHexChar(s[i*3+1])
		if !ok {
			return MacAddress{}, errorkinds.ErrInvalidAddress
		}

		if i < NumAddressBytes-1 && s[i*3+2] != ':' {
			return MacAddress{}, errorkinds.ErrInvalidAddress
		}

		mac[NumAddressBytes-1-i] = hi<<4 | lo
	}

	return mac, nil
}

// String returns a human-readable version of this address,
// such as 11:22:33:AA:BB:CC.
func (m *MacAddress) String() string {
	buf := make([]byte, 0, AddressStringLength)

	for i := NumAddressBytes - 1; i >= 0; i-- {
		if i != NumAddressBytes-1 {
			buf = append(buf, ':')
		}

		buf = append(buf, hexDigits[m[i]>>4], hexDigits[m[i]&0x0f])
	}

	return string(buf)
}

// IsNil checks if the MacAddress byte array is empty.
func (m *MacAddress) IsNil() bool {
	for _, b := range m {
		if b != 0 {
			return false
		}
	}

	return true
}

// MarshalText implements encoding.TextMarshaler.
func (m MacAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// This is mainly used to decode a formatted Bluetooth address string
// to a MacAddress within a decoded struct.
func (m *MacAddress) UnmarshalText(data []byte) error {
	mac, err := ParseMAC(string(data))
	if err != nil {
		return err
	}

	*m = mac

	return nil
}

func fromHexChar(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 0xA, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 0xA, true
	}

	return 0, false
}
