package models

import (
	"errors"
	"time"

	"github.com/google/uuid"

	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
)

// Entry records one metered lookup attempt, successful or not. Entries are
// immutable once written.
type Entry struct {
	ID        uuid.UUID    `json:"id"`
	SubjectID id.AccountID `json:"subject_id"`
	// CNPJ is the canonical 14-digit identifier the caller asked for.
	CNPJ string `json:"cnpj"`
	// RecordCNPJ references the cached record that answered, nil on failure.
	RecordCNPJ   *string             `json:"record_cnpj,omitempty"`
	Cost         creditmodels.Amount `json:"cost_millis"`
	Source       string              `json:"source,omitempty"`
	Success      bool                `json:"success"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	RequestID    string              `json:"request_id,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

var (
	errSubjectRequired = errors.New("audit entry requires a subject")
	errCNPJRequired    = errors.New("audit entry requires a cnpj")
	errNegativeCost    = errors.New("audit entry cost must not be negative")
)

// Success builds the entry for a charged lookup.
func Success(subject id.AccountID, cnpj, source string, cost creditmodels.Amount, requestID string, now time.Time) *Entry {
	ref := cnpj
	return &Entry{
		ID:         uuid.New(),
		SubjectID:  subject,
		CNPJ:       cnpj,
		RecordCNPJ: &ref,
		Cost:       cost,
		Source:     source,
		Success:    true,
		RequestID:  requestID,
		CreatedAt:  now,
	}
}

// Failure builds the entry for a lookup that was not charged.
func Failure(subject id.AccountID, cnpj string, cause error, requestID string, now time.Time) *Entry {
	e := &Entry{
		ID:        uuid.New(),
		SubjectID: subject,
		CNPJ:      cnpj,
		RequestID: requestID,
		CreatedAt: now,
	}
	if cause != nil {
		msg := cause.Error()
		e.ErrorMessage = &msg
	}
	return e
}

func (e *Entry) Validate() error {
	switch {
	case e.SubjectID.IsNil():
		return errSubjectRequired
	case e.CNPJ == "":
		return errCNPJRequired
	case e.Cost < 0:
		return errNegativeCost
	}
	return nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	if e.RecordCNPJ != nil {
		v := *e.RecordCNPJ
		out.RecordCNPJ = &v
	}
	if e.ErrorMessage != nil {
		v := *e.ErrorMessage
		out.ErrorMessage = &v
	}
	return &out
}
