package providers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"cnpjota/internal/registry/models"
)

// FlexString decodes a JSON string, number or null. Upstreams disagree on
// whether activity codes and ids are numbers or strings.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Ptr returns nil for blank values.
func (f FlexString) Ptr() *string {
	return models.String(string(f))
}

// FlexFloat decodes a JSON number, a numeric string ("1000.00", "1.000,50") or null.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		*f = FlexFloat{}
		return nil
	}
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*f = FlexFloat{}
		return nil
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

// Ptr returns nil when the value was absent or unparseable.
func (f FlexFloat) Ptr() *float64 {
	if !f.Valid {
		return nil
	}
	return models.Float(f.Value)
}

// RequireLegalName fails a mapping whose upstream payload lacks the one field
// every record must carry.
func RequireLegalName(provider string, record *models.Record) (*models.Record, error) {
	if strings.TrimSpace(record.LegalName) == "" {
		return nil, NewProviderError(ErrorBadData, provider, "response missing legal name", nil)
	}
	return record, nil
}
