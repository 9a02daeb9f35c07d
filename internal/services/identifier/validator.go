// Package identifier validates Brazilian CPF national identifiers.
package identifier

import "strings"

// Length is the number of digits in a normalized identifier
const Length = 11

// Normalize strips every non-digit character from s
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Validate reports whether s is a valid identifier.
// Non-digit characters are ignored, so both "111.444.777-35" and
// "11144477735" are accepted.
func Validate(s string) bool {
	digits := Normalize(s)
	if len(digits) != Length {
		return false
	}

	if allSame(digits) {
		return false
	}

	for t := 9; t < Length; t++ {
		if checkDigit(digits, t) != digits[t]-'0' {
			return false
		}
	}
	return true
}

// CheckDigits computes the two check digits for a 9-digit base.
// ok is false if base is not exactly nine ASCII digits.
func CheckDigits(base string) (first, second byte, ok bool) {
	if len(base) != 9 || Normalize(base) != base {
		return 0, 0, false
	}
	first = checkDigit(base, 9)
	second = checkDigit(base+string(rune('0'+first)), 10)
	return first, second, true
}

// Format renders an identifier with the 000.000.000-00 mask.
// Inputs that do not normalize to 11 digits are returned unchanged.
func Format(s string) string {
	d := Normalize(s)
	if len(d) != Length {
		return s
	}
	return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
}

// checkDigit weights the first t digits by (t+1-c) and reduces the sum mod 11
func checkDigit(digits string, t int) byte {
	sum := 0
	for c := 0; c < t; c++ {
		sum += int(digits[c]-'0') * (t + 1 - c)
	}
	return byte(((10 * sum) % 11) % 10)
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}
