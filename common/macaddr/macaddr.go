// Package macaddr validates and canonicalizes IEEE 802 MAC addresses in the
// six-octet colon-separated form used throughout AirHawk.
package macaddr

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)

// MAC is a canonical (lowercase) MAC address. Values of this type are only
// produced by Parse or MustParse.
type MAC string

// String returns the canonical form.
func (m MAC) String() string {
	return string(m)
}

// FormatError reports input that is not a six-octet colon-hex MAC address.
// Its message is the text the enforcement protocol sends back to clients.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return "Invalid MAC address format: " + e.Input
}

// Valid reports whether s is a well-formed MAC address (case-insensitive).
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// Parse validates s and returns its canonical lowercase form.
// Invalid input is rejected with a *FormatError, never coerced.
func Parse(s string) (MAC, error) {
	if !Valid(s) {
		return "", &FormatError{Input: s}
	}
	return MAC(strings.ToLower(s)), nil
}

// MustParse is like Parse but panics on invalid input. Intended for tests and
// constants.
func MustParse(s string) MAC {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Hex returns the address without separators, e.g. "aabbccddeeff". Used where
// colons are not allowed, such as message subjects and cache keys.
func (m MAC) Hex() string {
	return strings.ReplaceAll(string(m), ":", "")
}
