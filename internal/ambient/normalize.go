package ambient

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ContextString is ambient text after Normalize. Two contexts are the same
// context exactly when their bytes are equal.
type ContextString string

// Normalize composes raw to NFC, collapses every run of Unicode whitespace to
// a single ASCII space and trims the ends.
func Normalize(raw string) ContextString {
	if raw == "" {
		return ""
	}
	return ContextString(strings.Join(strings.Fields(norm.NFC.String(raw)), " "))
}

// String returns the context as plain text.
func (c ContextString) String() string {
	return string(c)
}

// IsEmpty reports whether the context carries no text.
func (c ContextString) IsEmpty() bool {
	return c == ""
}
