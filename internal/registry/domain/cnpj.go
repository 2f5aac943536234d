// Package domain holds the pure CNPJ value object. No I/O, no context, no clock.
package domain

import (
	"strings"

	dErrors "cnpjota/pkg/domain-errors"
)

const cnpjLength = 14

// CNPJ is a canonical, checksum-valid 14-digit Brazilian company identifier.
//
// Invariants:
//   - exactly 14 ASCII digits
//   - not all digits identical
//   - both check digits match
type CNPJ struct {
	value string
}

// ParseCNPJ strips every non-digit from raw and validates the remainder.
// Accepts masked ("11.222.333/0001-81") and bare forms alike.
func ParseCNPJ(raw string) (CNPJ, error) {
	digits := stripNonDigits(raw)

	if len(digits) != cnpjLength {
		return CNPJ{}, dErrors.New(dErrors.CodeValidation, "cnpj must have 14 digits")
	}
	if allSame(digits) {
		return CNPJ{}, dErrors.New(dErrors.CodeValidation, "invalid cnpj")
	}
	if checkDigit(digits[:12]) != digits[12] || checkDigit(digits[:13]) != digits[13] {
		return CNPJ{}, dErrors.New(dErrors.CodeValidation, "invalid cnpj check digits")
	}
	return CNPJ{value: digits}, nil
}

// MustCNPJ parses raw, panicking if invalid. Use only in tests or for constants.
func MustCNPJ(raw string) CNPJ {
	c, err := ParseCNPJ(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// IsValid reports whether raw parses as a CNPJ.
func IsValid(raw string) bool {
	_, err := ParseCNPJ(raw)
	return err == nil
}

// String returns the 14 canonical digits.
func (c CNPJ) String() string {
	return c.value
}

// IsZero reports whether c is the uninitialized value.
func (c CNPJ) IsZero() bool {
	return c.value == ""
}

// Format renders the masked form NN.NNN.NNN/NNNN-NN.
func (c CNPJ) Format() string {
	if c.IsZero() {
		return ""
	}
	v := c.value
	return v[0:2] + "." + v[2:5] + "." + v[5:8] + "/" + v[8:12] + "-" + v[12:14]
}

// checkDigit computes the mod-11 digit for prefix with weights 2..9 assigned
// from the rightmost position leftward, cycling back to 2 after 9.
func checkDigit(prefix string) byte {
	sum := 0
	weight := 2
	for i := len(prefix) - 1; i >= 0; i-- {
		sum += int(prefix[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	rem := sum % 11
	if rem < 2 {
		return '0'
	}
	return byte('0' + 11 - rem)
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}
