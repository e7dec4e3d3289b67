package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// AddressPrefix is the leading character of every classic XRPL account address.
const AddressPrefix = "r"

// Prefix "r" plus 24..34 alphanumeric characters (total length 25..35).
var addressPattern = regexp.MustCompile(`^r[0-9A-Za-z]{24,34}$`)

// Address is a destination wallet identifier. It is only checked
// syntactically; nothing here talks to the ledger.
type Address string

// ValidateAddress reports whether s is a syntactically valid account address.
func ValidateAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ParseAddress trims surrounding whitespace (form input) and validates s.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !ValidateAddress(s) {
		return "", fmt.Errorf("%w: must start with %q and be 25-35 alphanumeric characters", ErrInvalidAddress, AddressPrefix)
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}
