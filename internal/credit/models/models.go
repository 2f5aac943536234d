package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
)

// Amount is a signed credit quantity in milli-credits. 1 credit = 1000.
type Amount int64

const MillisPerCredit = 1000

// Credits converts a decimal credit value, rounding to the nearest milli.
func Credits(c float64) Amount {
	return Amount(math.Round(c * MillisPerCredit))
}

// Float returns the amount in credits.
func (a Amount) Float() float64 {
	return float64(a) / MillisPerCredit
}

// String renders the amount with three decimals, e.g. "-0.330".
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%03d", sign, v/MillisPerCredit, v%MillisPerCredit)
}

// Category classifies a ledger entry.
type Category string

const (
	CategoryPurchase   Category = "purchase"
	CategoryBonus      Category = "bonus"
	CategoryDeduction  Category = "deduction"
	CategoryRefund     Category = "refund"
	CategoryAdjustment Category = "adjustment"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryPurchase, CategoryBonus, CategoryDeduction, CategoryRefund, CategoryAdjustment:
		return true
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid credit category %q", s))
	}
	return c, nil
}

// Entry is one immutable ledger line. A subject's balance is the sum of its
// entries.
type Entry struct {
	ID        uuid.UUID    `json:"id"`
	SubjectID id.AccountID `json:"subject_id"`
	Amount    Amount       `json:"amount_millis"`
	Category  Category     `json:"category"`
	Reason    string       `json:"reason"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewEntry validates the sign against the category: deductions are negative,
// everything else except adjustments is positive.
func NewEntry(subject id.AccountID, amount Amount, category Category, reason string, now time.Time) (*Entry, error) {
	if subject.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "subject id is required")
	}
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid credit category %q", category))
	}
	if amount == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "amount must be non-zero")
	}
	switch category {
	case CategoryDeduction:
		if amount > 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "deductions must be negative")
		}
	case CategoryAdjustment:
	default:
		if amount < 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "credits must be positive")
		}
	}
	return &Entry{
		ID:        uuid.New(),
		SubjectID: subject,
		Amount:    amount,
		Category:  category,
		Reason:    reason,
		CreatedAt: now,
	}, nil
}

// InsufficientError is returned when a deduction would take the balance
// below zero.
type InsufficientError struct {
	Balance  Amount
	Required Amount
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient credits: balance %s, required %s", e.Balance, e.Required)
}

func (e *InsufficientError) ErrorDetails() any {
	return map[string]any{
		"balance":  e.Balance.Float(),
		"required": e.Required.Float(),
	}
}

func (e *InsufficientError) Unwrap() error {
	return dErrors.New(dErrors.CodeInsufficientCredits, "insufficient credits")
}
