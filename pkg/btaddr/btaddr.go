// Package btaddr implements the canonical Bluetooth device address type
// shared by every collector and analyzer in the module.
package btaddr

import (
	"fmt"
	"strconv"
	"strings"
)

// Type classifies how an address was generated, per the BLE address
// privacy model.
type Type int

const (
	Public Type = iota
	StaticRandom
	ResolvablePrivate
	NonResolvablePrivate
)

func (t Type) String() string {
	switch t {
	case Public:
		return "public"
	case StaticRandom:
		return "static-random"
	case ResolvablePrivate:
		return "resolvable-private"
	case NonResolvablePrivate:
		return "non-resolvable-private"
	default:
		return "unknown"
	}
}

// Address is a 48-bit Bluetooth device address in canonical textual form
// XX:XX:XX:XX:XX:XX (upper hex, colon separated).
type Address struct {
	bytes [6]byte
	kind  Type
}

// New builds an Address from 6 raw bytes in on-air order.
func New(b [6]byte, kind Type) Address {
	return Address{bytes: b, kind: kind}
}

// Parse accepts "AA:BB:CC:DD:EE:FF" (case-insensitive) and an address type.
func Parse(s string, kind Type) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("btaddr: invalid address %q: expected 6 octets", s)
	}
	var b [6]byte
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, fmt.Errorf("btaddr: invalid octet %q in %q: %w", p, s, err)
		}
		b[i] = byte(v)
	}
	return Address{bytes: b, kind: kind}, nil
}

// String renders the canonical "AA:BB:CC:DD:EE:FF" form.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a.bytes[0], a.bytes[1], a.bytes[2], a.bytes[3], a.bytes[4], a.bytes[5])
}

// Type reports the address-type classification.
func (a Address) Type() Type { return a.kind }

// Bytes returns the raw 6-byte on-air representation.
func (a Address) Bytes() [6]byte { return a.bytes }

// IsZero reports whether the address is the unset value.
func (a Address) IsZero() bool {
	return a.bytes == [6]byte{} && a.kind == Public
}
