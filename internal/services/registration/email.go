package registration

import (
	"net/mail"
	"strings"
)

// emailSafe reports whether r may appear in an email address.
// Letters, digits and !#$%&'*+-=?^_`{|}~@.[] are allowed.
func emailSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+-=?^_`{|}~@.[]", r)
}

// SanitizeEmail drops every character that cannot appear in an email address
// and lower-cases the result
func SanitizeEmail(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if emailSafe(r) {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// MaxEmailLength is the longest address a mail path can carry (RFC 5321)
const MaxEmailLength = 254

// ValidEmail reports whether s is a bare addr-spec with a dotted domain
func ValidEmail(s string) bool {
	if s == "" || len(s) > MaxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}

	at := strings.LastIndexByte(s, '@')
	if at <= 0 {
		return false
	}
	domain := s[at+1:]
	if strings.HasPrefix(domain, "[") {
		return false
	}
	dot := strings.IndexByte(domain, '.')
	return dot > 0 && dot < len(domain)-1 && !strings.Contains(domain, "..")
}

// NormalizeEmail sanitizes s and reports whether the result is a valid address
func NormalizeEmail(s string) (string, bool) {
	email := SanitizeEmail(strings.TrimSpace(s))
	return email, ValidEmail(email)
}
