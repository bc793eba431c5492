package ble

import (
	"fmt"
	"strings"
)

// Address is a hardware address in canonical upper-case, colon-separated
// form, e.g. "AA:BB:CC:DD:EE:FF".
type Address string

// ParseAddress validates a colon-separated hardware address and returns
// its canonical form.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for _, p := range parts {
		if len(p) != 2 || !isHex(p[0]) || !isHex(p[1]) {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
	}
	return Address(strings.ToUpper(s)), nil
}

func (a Address) String() string { return string(a) }

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
