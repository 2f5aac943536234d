package httptransport

import (
	"time"

	accountmodels "cnpjota/internal/account/models"
	auditmodels "cnpjota/internal/audit/models"
	creditmodels "cnpjota/internal/credit/models"
)

// Credit amounts leave the API as decimal credits, never milli-credits.

type lookupMeta struct {
	Timestamp        time.Time `json:"timestamp"`
	CreditCost       float64   `json:"credit_cost"`
	CreditsRemaining float64   `json:"credits_remaining"`
	Source           string    `json:"source,omitempty"`
	FromCache        *bool     `json:"from_cache,omitempty"`
}

type statsResponse struct {
	Credits       float64         `json:"credits"`
	TotalQueries  int64           `json:"total_queries"`
	RecentQueries []recentQueryDTO `json:"recent_queries"`
}

type recentQueryDTO struct {
	CNPJ       string    `json:"cnpj"`
	Source     string    `json:"source,omitempty"`
	CreditCost float64   `json:"credit_cost"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`
}

type balanceResponse struct {
	Balance float64    `json:"balance"`
	History []entryDTO `json:"history"`
}

type entryDTO struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Category  string    `json:"category"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type grantRequest struct {
	SubjectID string  `json:"subject_id"`
	Amount    float64 `json:"amount"`
	Category  string  `json:"category"`
	Reason    string  `json:"reason"`
}

type grantResponse struct {
	SubjectID string  `json:"subject_id"`
	Granted   float64 `json:"granted"`
	Balance   float64 `json:"balance"`
}

type createKeyRequest struct {
	Name string `json:"name"`
}

type keyDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// createdKeyResponse is the only response that carries the raw key.
type createdKeyResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type revokedKeyResponse struct {
	ID      string `json:"id"`
	Revoked bool   `json:"revoked"`
}

func toKeys(keys []*accountmodels.APIKey) []keyDTO {
	out := make([]keyDTO, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyDTO{
			ID:         k.ID.String(),
			Name:       k.Name,
			Active:     k.IsActive(),
			LastUsedAt: k.LastUsedAt,
			CreatedAt:  k.CreatedAt,
		})
	}
	return out
}

func toRecentQueries(entries []*auditmodels.Entry) []recentQueryDTO {
	out := make([]recentQueryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, recentQueryDTO{
			CNPJ:       e.CNPJ,
			Source:     e.Source,
			CreditCost: e.Cost.Float(),
			Success:    e.Success,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

func toEntries(entries []*creditmodels.Entry) []entryDTO {
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryDTO{
			ID:        e.ID.String(),
			Amount:    e.Amount.Float(),
			Category:  string(e.Category),
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	return out
}
