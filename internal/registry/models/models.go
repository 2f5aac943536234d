package models

import (
	"strings"
	"time"
)

// DefaultMaxAgeDays is how many whole days a cached record stays fresh.
const DefaultMaxAgeDays = 15

// ProvenanceCache marks a lookup answered from the cache.
const ProvenanceCache = "cache"

// Record is the normalized company registration shared by every provider.
// Optional fields are nil when the upstream omitted them.
type Record struct {
	CNPJ                    string   `json:"cnpj"`
	LegalName               string   `json:"legal_name"`
	TradeName               *string  `json:"trade_name"`
	MainActivityCode        *string  `json:"main_activity_code"`
	MainActivityDescription *string  `json:"main_activity_description"`
	LegalNature             *string  `json:"legal_nature"`
	OpenedOn                *string  `json:"opened_on"`
	Status                  *string  `json:"status"`
	StatusDate              *string  `json:"status_date"`
	Capital                 *float64 `json:"capital"`
	Size                    *string  `json:"size"`

	Address  Address   `json:"address"`
	Contact  Contact   `json:"contact"`
	Partners []Partner `json:"partners"`

	Source          string    `json:"source"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
}

type Address struct {
	Street     *string `json:"street"`
	Number     *string `json:"number"`
	Complement *string `json:"complement"`
	District   *string `json:"district"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	ZipCode    *string `json:"zip_code"`
}

type Contact struct {
	Phone *string `json:"phone"`
	Email *string `json:"email"`
}

type Partner struct {
	Name      string  `json:"name"`
	Role      *string `json:"role"`
	EntryDate *string `json:"entry_date"`
	TaxID     *string `json:"tax_id"`
}

// AgeInDays returns the whole days elapsed since the record was refreshed.
func (r *Record) AgeInDays(now time.Time) int {
	return int(now.Sub(r.LastRefreshedAt) / (24 * time.Hour))
}

// IsStaleAt reports whether the record must be refetched at now. A record that
// was never stamped is always stale.
func (r *Record) IsStaleAt(now time.Time, maxAgeDays int) bool {
	if r.LastRefreshedAt.IsZero() {
		return true
	}
	return r.AgeInDays(now) >= maxAgeDays
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.TradeName = cloneString(r.TradeName)
	c.MainActivityCode = cloneString(r.MainActivityCode)
	c.MainActivityDescription = cloneString(r.MainActivityDescription)
	c.LegalNature = cloneString(r.LegalNature)
	c.OpenedOn = cloneString(r.OpenedOn)
	c.Status = cloneString(r.Status)
	c.StatusDate = cloneString(r.StatusDate)
	c.Capital = cloneFloat(r.Capital)
	c.Size = cloneString(r.Size)

	c.Address = Address{
		Street:     cloneString(r.Address.Street),
		Number:     cloneString(r.Address.Number),
		Complement: cloneString(r.Address.Complement),
		District:   cloneString(r.Address.District),
		City:       cloneString(r.Address.City),
		State:      cloneString(r.Address.State),
		ZipCode:    cloneString(r.Address.ZipCode),
	}
	c.Contact = Contact{
		Phone: cloneString(r.Contact.Phone),
		Email: cloneString(r.Contact.Email),
	}

	if r.Partners != nil {
		c.Partners = make([]Partner, len(r.Partners))
		for i, p := range r.Partners {
			c.Partners[i] = Partner{
				Name:      p.Name,
				Role:      cloneString(p.Role),
				EntryDate: cloneString(p.EntryDate),
				TaxID:     cloneString(p.TaxID),
			}
		}
	}
	return &c
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// String returns a pointer to the trimmed value, or nil when it is blank.
func String(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Float returns a pointer to f. Use for upstream numbers that were present.
func Float(f float64) *float64 {
	return &f
}
