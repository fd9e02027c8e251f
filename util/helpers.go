// Package util holds small helpers shared by the ballot packages.
package util

import (
	"crypto/rand"
	"strings"
)

// TrimHex strips a leading 0x or 0X.
func TrimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// RandomBytes returns n random bytes, used as transaction nonces. It panics
// if the system randomness fails.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// SanitizeText trims s and drops control characters other than newlines and
// tabs, for names and descriptions that end up in logs and API responses.
func SanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 0x20 && r != 0x7f {
			return r
		}
		return -1
	}, strings.TrimSpace(s))
}
