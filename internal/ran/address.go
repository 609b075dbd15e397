package ran

import (
	"errors"
	"fmt"
	"net"
)

var (
	ErrAddressOverflow = errors.New("ran: identifier exceeds 48 bits")
	ErrInvalidAddress  = errors.New("ran: invalid ethernet address")
)

const maxAddressID = 1<<48 - 1

// EtherAddress is a 48-bit agent or UE identifier rendered as a MAC
// address. It is comparable and usable as a map key.
type EtherAddress [6]byte

// AddressFromID renders a numeric identifier as an address. The value is
// left-padded to twelve hex digits.
func AddressFromID(id uint64) (EtherAddress, error) {
	if id > maxAddressID {
		return EtherAddress{}, fmt.Errorf("%w: %#x", ErrAddressOverflow, id)
	}
	var a EtherAddress
	for i := 5; i >= 0; i-- {
		a[i] = byte(id)
		id >>= 8
	}
	return a, nil
}

func MustAddress(id uint64) EtherAddress {
	a, err := AddressFromID(id)
	if err != nil {
		panic(err)
	}
	return a
}

func ParseEtherAddress(s string) (EtherAddress, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return EtherAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if len(hw) != 6 {
		return EtherAddress{}, fmt.Errorf("%w: %q is not 48 bits", ErrInvalidAddress, s)
	}
	var a EtherAddress
	copy(a[:], hw)
	return a, nil
}

func (a EtherAddress) ID() uint64 {
	var id uint64
	for _, b := range a {
		id = id<<8 | uint64(b)
	}
	return id
}

func (a EtherAddress) IsZero() bool {
	return a == EtherAddress{}
}

func (a EtherAddress) String() string {
	return net.HardwareAddr(a[:]).String()
}

func (a EtherAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *EtherAddress) UnmarshalText(b []byte) error {
	parsed, err := ParseEtherAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
