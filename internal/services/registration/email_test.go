package registration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"a@b.com", "a@b.com", true},
		{" User.Name+tag@Example.COM ", "user.name+tag@example.com", true},
		{"a b@c.com", "ab@c.com", true},
		{"açaí@b.com", "aa@b.com", true},
		{"", "", false},
		{"no-at-sign", "no-at-sign", false},
		{"a@localhost", "a@localhost", false},
		{"a@b.", "a@b.", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeEmail(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}

func TestEmailLengthLimit(t *testing.T) {
	longest := "a@" + strings.Repeat("b", MaxEmailLength-6) + ".com"
	assert.Len(t, longest, MaxEmailLength)
	assert.True(t, ValidEmail(longest))

	tooLong := "a@" + strings.Repeat("b", MaxEmailLength-5) + ".com"
	assert.False(t, ValidEmail(tooLong))
}
