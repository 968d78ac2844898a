// Package cssselect synthesizes CSS selectors for DOM elements.
//
// The same algorithm exists twice: Synthesize runs in Go over any Element
// implementation (the extraction arena, parsed HTML in tests), and
// SynthesisJS runs in the page against a live node. Both must agree
// byte for byte.
package cssselect

import (
	"fmt"
	"strings"
)

// specialChars are the characters that must be backslash-escaped before a
// value is interpolated into a selector.
const specialChars = "!\"#$%&'()*+,./:;<=>?@[\\]^`{|}~"

// Escape backslash-escapes every CSS special character in v.
// Used for quoted attribute values.
func Escape(v string) string {
	if !strings.ContainsAny(v, specialChars) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v) + 8)
	for _, r := range v {
		if r < 0x80 && strings.ContainsRune(specialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeIdent escapes v for use as an identifier (the #id form).
// On top of Escape it hex-escapes whitespace, control characters and a
// leading digit (or hyphen followed by a digit), which would otherwise
// end or invalidate the identifier.
func EscapeIdent(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 8)
	for i, r := range v {
		switch {
		case r == 0:
			b.WriteString(`\fffd `)
		case r < 0x20 || r == 0x7f || r == ' ':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, `\%x `, r)
		case i == 1 && r >= '0' && r <= '9' && v[0] == '-':
			fmt.Fprintf(&b, `\%x `, r)
		case r < 0x80 && strings.ContainsRune(specialChars, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
