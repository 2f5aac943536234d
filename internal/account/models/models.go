package models

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
)

// Plan sets the per-lookup price and request ceiling for its accounts.
type Plan struct {
	Name                 string              `json:"name"`
	CreditCost           creditmodels.Amount `json:"credit_cost_millis"`
	MaxRequestsPerSecond int                 `json:"max_requests_per_second"`
}

const PlanBasicName = "basic"

// DefaultPlans are seeded on startup and by cnpjctl seed.
func DefaultPlans() []Plan {
	return []Plan{
		{Name: PlanBasicName, CreditCost: creditmodels.Credits(0.33), MaxRequestsPerSecond: 2},
		{Name: "pro", CreditCost: creditmodels.Credits(0.25), MaxRequestsPerSecond: 5},
		{Name: "business", CreditCost: creditmodels.Credits(0.20), MaxRequestsPerSecond: 10},
	}
}

func (p Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "plan name is required")
	}
	if p.CreditCost < 0 {
		return dErrors.New(dErrors.CodeValidation, "plan credit cost cannot be negative")
	}
	if p.MaxRequestsPerSecond <= 0 {
		return dErrors.New(dErrors.CodeValidation, "plan request ceiling must be positive")
	}
	return nil
}

// Account owns credits and API keys. PlanName is empty when no plan is
// attached.
type Account struct {
	ID        id.AccountID `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	PlanName  string       `json:"plan,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// APIKey is stored without its secret; only the bcrypt hash is kept.
type APIKey struct {
	ID         id.APIKeyID  `json:"id"`
	AccountID  id.AccountID `json:"account_id"`
	Name       string       `json:"name"`
	SecretHash string       `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	LastUsedAt *time.Time   `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time   `json:"revoked_at,omitempty"`
}

func (k *APIKey) IsActive() bool {
	return k.RevokedAt == nil
}

// KeyPrefix starts every raw API key.
const KeyPrefix = "cnpj_"

// FormatKey renders the raw key handed to the client once:
// cnpj_<32 hex key id>_<secret>.
func FormatKey(keyID id.APIKeyID, secret string) string {
	u := uuid.UUID(keyID)
	return KeyPrefix + hex.EncodeToString(u[:]) + "_" + secret
}

// ParseKey splits a raw key into its id and secret.
func ParseKey(raw string) (id.APIKeyID, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), KeyPrefix)
	if !ok {
		return id.APIKeyID{}, "", dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}
	hexID, secret, ok := strings.Cut(rest, "_")
	if !ok || secret == "" || len(hexID) != 32 {
		return id.APIKeyID{}, "", dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}
	b, err := hex.DecodeString(hexID)
	if err != nil {
		return id.APIKeyID{}, "", dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}
	u, err := uuid.FromBytes(b)
	if err != nil || u == uuid.Nil {
		return id.APIKeyID{}, "", dErrors.New(dErrors.CodeUnauthorized, "malformed api key")
	}
	return id.APIKeyID(u), secret, nil
}

// Principal is the authenticated caller. Plan is nil when the account has
// none, in which case fallback pricing and ceilings apply.
type Principal struct {
	Account *Account
	Plan    *Plan
	KeyID   id.APIKeyID
}

// RequestsPerSecond is the plan ceiling or fallback when no plan is attached.
func (p *Principal) RequestsPerSecond(fallback int) int {
	if p == nil || p.Plan == nil || p.Plan.MaxRequestsPerSecond <= 0 {
		return fallback
	}
	return p.Plan.MaxRequestsPerSecond
}
