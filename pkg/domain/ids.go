// Package domain holds typed identifiers shared across bounded contexts.
package domain

import (
	"github.com/google/uuid"

	dErrors "cnpjota/pkg/domain-errors"
)

// AccountID identifies the subject that owns credits, API keys and quotas.
type AccountID uuid.UUID

// APIKeyID identifies a single issued API key.
type APIKeyID uuid.UUID

func NewAccountID() AccountID { return AccountID(uuid.New()) }
func NewAPIKeyID() APIKeyID   { return APIKeyID(uuid.New()) }

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id APIKeyID) String() string { return uuid.UUID(id).String() }
func (id APIKeyID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id AccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id APIKeyID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }

func (id *AccountID) UnmarshalText(b []byte) error {
	parsed, err := ParseAccountID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseAccountID parses a non-nil UUID into an AccountID.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	return AccountID(u), err
}

// ParseAPIKeyID parses a non-nil UUID into an APIKeyID.
func ParseAPIKeyID(s string) (APIKeyID, error) {
	u, err := parseUUID(s, "api key id")
	return APIKeyID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" cannot be nil")
	}
	return u, nil
}
