// Package phone canonicalizes chat-protocol identifiers into bare phone
// digits. Many valid identities on this class of protocol (privacy-preserving
// linked identifiers, lid addresses) carry no phone number at all; those are
// reported as not-a-phone rather than coerced into one.
package phone

import "strings"

const (
	minDigits = 7
	maxDigits = 15
)

// Normalize extracts the canonical phone digits from a raw identifier.
// It strips everything after the first '@' (protocol suffix), everything
// after the first ':' (device segment), and all remaining non-digit
// characters. The result is accepted only if its length is in [7,15];
// otherwise ok is false and the identity has no phone representation.
func Normalize(raw string) (digits string, ok bool) {
	s := raw
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	digits = b.String()
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", false
	}
	return digits, true
}
