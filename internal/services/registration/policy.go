package registration

import (
	"strings"
	"unicode"
)

// MinPasswordLength is counted in characters, not bytes
const MinPasswordLength = 8

// passwordSymbols are the characters that satisfy RequireSymbol
const passwordSymbols = "!@#$%^&*"

// Policy holds the optional password strength rules applied on top of the
// minimum length
type Policy struct {
	RequireMixedCase bool `mapstructure:"require_mixed_case"`
	RequireDigit     bool `mapstructure:"require_digit"`
	RequireSymbol    bool `mapstructure:"require_symbol"`
}

// DefaultPolicy requires upper and lower case letters and a digit
func DefaultPolicy() Policy {
	return Policy{
		RequireMixedCase: true,
		RequireDigit:     true,
	}
}

type passwordClasses struct {
	upper, lower, digit, symbol bool
}

func classify(password string) passwordClasses {
	var c passwordClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case strings.ContainsRune(passwordSymbols, r):
			c.symbol = true
		}
	}
	return c
}

// check returns the first rule password violates, or nil
func (p Policy) check(password string) *FieldError {
	c := classify(password)
	switch {
	case p.RequireMixedCase && !c.upper:
		return fieldError(FieldPassword, "password must contain an uppercase letter")
	case p.RequireMixedCase && !c.lower:
		return fieldError(FieldPassword, "password must contain a lowercase letter")
	case p.RequireDigit && !c.digit:
		return fieldError(FieldPassword, "password must contain a digit")
	case p.RequireSymbol && !c.symbol:
		return fieldError(FieldPassword, "password must contain one of "+passwordSymbols)
	}
	return nil
}
