// Package registration turns raw registration input into a validated
// model.CleanRegistration or a field-level error.
package registration

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/identifier"
)

// Column widths of the stored display names, in characters
const (
	MaxNameLength     = 255
	MaxNicknameLength = 100
)

// markupPattern matches tags, including one left unterminated at end of input
var markupPattern = regexp.MustCompile(`<[^>]*(>|$)`)

// Validator validates registrations against a password policy
type Validator struct {
	policy Policy
}

// NewValidator creates a Validator using policy
func NewValidator(policy Policy) *Validator {
	return &Validator{policy: policy}
}

// Policy returns the password policy in effect
func (v *Validator) Policy() Policy {
	return v.policy
}

// Validate checks raw in a fixed order and stops at the first failure:
// required fields, email, identifier, password, then sanitizes display names.
func (v *Validator) Validate(raw model.RegistrationInput) (model.CleanRegistration, *FieldError) {
	required := []struct {
		field Field
		value string
	}{
		{FieldName, raw.Name},
		{FieldNickname, raw.Nickname},
		{FieldIdentifier, raw.Identifier},
		{FieldEmail, raw.Email},
		{FieldPassword, raw.Password},
	}
	for _, r := range required {
		// Whitespace is a legal password character
		value := r.value
		if r.field != FieldPassword {
			value = strings.TrimSpace(value)
		}
		if value == "" {
			return model.CleanRegistration{}, fieldError(r.field, string(r.field)+" is required")
		}
	}

	email, ok := NormalizeEmail(raw.Email)
	if !ok {
		return model.CleanRegistration{}, fieldError(FieldEmail, "invalid email address")
	}

	id := identifier.Normalize(raw.Identifier)
	if !identifier.Validate(id) {
		return model.CleanRegistration{}, fieldError(FieldIdentifier, "invalid identifier")
	}

	if utf8.RuneCountInString(raw.Password) < MinPasswordLength {
		return model.CleanRegistration{}, fieldError(FieldPassword, "password must be at least 8 characters")
	}
	if ferr := v.policy.check(raw.Password); ferr != nil {
		return model.CleanRegistration{}, ferr
	}

	name := SanitizeText(raw.Name)
	if name == "" {
		return model.CleanRegistration{}, fieldError(FieldName, "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return model.CleanRegistration{}, fieldError(FieldName, "name must be at most 255 characters")
	}
	nickname := SanitizeText(raw.Nickname)
	if nickname == "" {
		return model.CleanRegistration{}, fieldError(FieldNickname, "nickname is required")
	}
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return model.CleanRegistration{}, fieldError(FieldNickname, "nickname must be at most 100 characters")
	}

	return model.NewCleanRegistration(name, nickname, id, email, raw.Password), nil
}

// SanitizeText normalizes s to NFC, strips markup, escapes HTML special
// characters and trims surrounding whitespace
func SanitizeText(s string) string {
	s = norm.NFC.String(s)
	s = markupPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(html.EscapeString(s))
}
