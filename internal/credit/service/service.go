package service

import (
	"context"
	"errors"
	"log/slog"

	accountmodels "cnpjota/internal/account/models"
	"cnpjota/internal/credit/metrics"
	"cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/requestcontext"
)

// DefaultCost is charged per lookup when a subject has no plan.
const DefaultCost = models.Amount(330)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 50

// Store is the append-only ledger. AppendIfSufficient must check the balance
// and append as one atomic step per subject.
type Store interface {
	Append(ctx context.Context, entry *models.Entry) error
	AppendIfSufficient(ctx context.Context, entry *models.Entry) (models.Amount, bool, error)
	Balance(ctx context.Context, subject id.AccountID) (models.Amount, error)
	History(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error)
}

type Service struct {
	store        Store
	fallbackCost models.Amount
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithFallbackCost(cost models.Amount) Option {
	return func(s *Service) {
		if cost >= 0 {
			s.fallbackCost = cost
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	s := &Service{
		store:        store,
		fallbackCost: DefaultCost,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) Balance(ctx context.Context, subject id.AccountID) (models.Amount, error) {
	balance, err := s.store.Balance(ctx, subject)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return balance, nil
}

func (s *Service) HasSufficient(ctx context.Context, subject id.AccountID, amount models.Amount) (bool, error) {
	balance, err := s.Balance(ctx, subject)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Deduct removes amount from subject's balance and returns what is left.
// When the balance is short nothing is written and the error is
// *models.InsufficientError.
func (s *Service) Deduct(ctx context.Context, subject id.AccountID, amount models.Amount, reason string) (models.Amount, error) {
	if amount <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "deduction amount must be positive")
	}
	entry, err := models.NewEntry(subject, -amount, models.CategoryDeduction, reason, requestcontext.Now(ctx))
	if err != nil {
		return 0, err
	}

	balance, applied, err := s.store.AppendIfSufficient(ctx, entry)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deduct credits")
	}
	if !applied {
		s.metrics.IncrementInsufficient()
		return balance, &models.InsufficientError{Balance: balance, Required: amount}
	}
	s.metrics.ObserveEntry(string(models.CategoryDeduction), int64(amount))
	return balance, nil
}

// Credit appends a positive entry. Deductions go through Deduct.
func (s *Service) Credit(ctx context.Context, subject id.AccountID, amount models.Amount, category models.Category, reason string) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "credit amount must be positive")
	}
	if category == models.CategoryDeduction {
		return dErrors.New(dErrors.CodeValidation, "use Deduct for deductions")
	}
	entry, err := models.NewEntry(subject, amount, category, reason, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit account")
	}
	s.metrics.ObserveEntry(string(category), int64(amount))
	s.logger.InfoContext(ctx, "credits granted",
		"subject", subject.String(),
		"amount", amount.String(),
		"category", category,
	)
	return nil
}

// History returns entries newest first. limit <= 0 means DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := s.store.History(ctx, subject, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read credit history")
	}
	return entries, nil
}

// CostFor is the per-lookup price for a plan, or the fallback without one.
func (s *Service) CostFor(plan *accountmodels.Plan) models.Amount {
	if plan == nil {
		return s.fallbackCost
	}
	return plan.CreditCost
}
