// Package email normalizes account emails and derives display names from them.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "cnpjota/pkg/domain-errors"
)

// Normalize trims and lower-cases addr and rejects anything that is not a
// bare address.
func Normalize(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return "", dErrors.New(dErrors.CodeValidation, "email is required")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr || parsed.Name != "" {
		return "", dErrors.New(dErrors.CodeValidation, "invalid email")
	}
	return addr, nil
}

// DeriveName builds a display name from the local part,
// "ana.souza+x@acme.com.br" becoming "Ana Souza X".
func DeriveName(addr string) string {
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "Cliente"
	}
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
