package identifier

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ValidatorSuite struct {
	suite.Suite
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) TestAcceptsKnownValid() {
	for _, id := range []string{"11144477735", "12345678909", "52998224725", "39053344705"} {
		s.True(Validate(id), id)
	}
}

func (s *ValidatorSuite) TestAcceptsMaskedInput() {
	s.True(Validate("111.444.777-35"))
	s.True(Validate(" 529.982.247-25 "))
}

func (s *ValidatorSuite) TestRejectsInvalidChecksum() {
	s.False(Validate("12345678900"))
	s.False(Validate("11144477734"))
}

func (s *ValidatorSuite) TestRejectsAllIdenticalDigits() {
	for d := '0'; d <= '9'; d++ {
		id := ""
		for i := 0; i < Length; i++ {
			id += string(d)
		}
		s.False(Validate(id), id)
	}
}

func (s *ValidatorSuite) TestRejectsWrongLength() {
	s.False(Validate(""))
	s.False(Validate("1114447773"))
	s.False(Validate("111444777350"))
	s.False(Validate("abc"))
}

func (s *ValidatorSuite) TestRejectsNonASCIIDigits() {
	// Arabic-Indic digits are not ASCII and are stripped
	s.False(Validate("١١١٤٤٤٧٧٧٣٥"))
}

// Any single-digit change to a check digit must invalidate the identifier
func (s *ValidatorSuite) TestCheckDigitFlipIsRejected() {
	r := rand.New(rand.NewPCG(1, 2))

	for n := 0; n < 500; n++ {
		base := fmt.Sprintf("%09d", r.IntN(1_000_000_000))
		first, second, ok := CheckDigits(base)
		s.Require().True(ok)

		valid := fmt.Sprintf("%s%d%d", base, first, second)
		if allSame(valid) {
			continue
		}
		s.True(Validate(valid), valid)

		for pos := 9; pos < Length; pos++ {
			for delta := 1; delta < 10; delta++ {
				b := []byte(valid)
				b[pos] = '0' + (b[pos]-'0'+byte(delta))%10
				s.False(Validate(string(b)), "flipped %s -> %s", valid, string(b))
			}
		}
	}
}

func (s *ValidatorSuite) TestCheckDigitsRejectsBadBase() {
	_, _, ok := CheckDigits("12345678")
	s.False(ok)
	_, _, ok = CheckDigits("12345678a")
	s.False(ok)
}

func (s *ValidatorSuite) TestCheckDigitsKnownValue() {
	first, second, ok := CheckDigits("111444777")
	s.Require().True(ok)
	s.Equal(byte(3), first)
	s.Equal(byte(5), second)
}

func (s *ValidatorSuite) TestNormalize() {
	s.Equal("11144477735", Normalize("111.444.777-35"))
	s.Equal("", Normalize("abc"))
}

func (s *ValidatorSuite) TestFormat() {
	s.Equal("111.444.777-35", Format("11144477735"))
	s.Equal("111.444.777-35", Format("111.444.777-35"))
	s.Equal("123", Format("123"))
}
