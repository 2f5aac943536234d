// Package service runs the billed lookup flow: rate limit, price, balance
// check, lookup, charge and audit, in that order.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	accountmodels "cnpjota/internal/account/models"
	auditmodels "cnpjota/internal/audit/models"
	creditmodels "cnpjota/internal/credit/models"
	"cnpjota/internal/metering/metrics"
	"cnpjota/internal/registry/domain"
	registrymodels "cnpjota/internal/registry/models"
	registry "cnpjota/internal/registry/service"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/requestcontext"
)

const (
	DefaultRequestsPerSecond = 2
	DefaultWindow            = time.Second
	// DeductionReasonPrefix precedes the canonical CNPJ on ledger entries.
	DeductionReasonPrefix = "Consulta CNPJ: "
	refundReason          = "Estorno: falha ao registrar consulta "
)

type Lookuper interface {
	Lookup(ctx context.Context, raw string) (*registry.Result, error)
}

type Limiter interface {
	CheckAndConsume(ctx context.Context, subject string, ceiling int, window time.Duration) error
}

type Ledger interface {
	Balance(ctx context.Context, subject id.AccountID) (creditmodels.Amount, error)
	Deduct(ctx context.Context, subject id.AccountID, amount creditmodels.Amount, reason string) (creditmodels.Amount, error)
	Credit(ctx context.Context, subject id.AccountID, amount creditmodels.Amount, category creditmodels.Category, reason string) error
	CostFor(plan *accountmodels.Plan) creditmodels.Amount
}

type Auditor interface {
	Record(ctx context.Context, entry *auditmodels.Entry) error
	CountSuccessful(ctx context.Context, subject id.AccountID) (int64, error)
	Recent(ctx context.Context, subject id.AccountID, limit int) ([]*auditmodels.Entry, error)
}

// Result is a charged lookup.
type Result struct {
	Record     *registrymodels.Record
	Provenance string
	FromCache  bool
	Cost       creditmodels.Amount
	Balance    creditmodels.Amount
}

type Stats struct {
	Balance      creditmodels.Amount
	TotalQueries int64
	Recent       []*auditmodels.Entry
}

type Service struct {
	lookup     Lookuper
	limiter    Limiter
	ledger     Ledger
	audit      Auditor
	defaultRPS int
	window     time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

// WithDefaultRequestsPerSecond is the ceiling for accounts without a plan.
func WithDefaultRequestsPerSecond(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.defaultRPS = n
		}
	}
}

func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
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

func New(lookup Lookuper, limiter Limiter, ledger Ledger, audit Auditor, opts ...Option) (*Service, error) {
	switch {
	case lookup == nil:
		return nil, errors.New("lookup service is required")
	case limiter == nil:
		return nil, errors.New("rate limiter is required")
	case ledger == nil:
		return nil, errors.New("credit ledger is required")
	case audit == nil:
		return nil, errors.New("audit publisher is required")
	}
	s := &Service{
		lookup:     lookup,
		limiter:    limiter,
		ledger:     ledger,
		audit:      audit,
		defaultRPS: DefaultRequestsPerSecond,
		window:     DefaultWindow,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup resolves raw for principal and charges the plan price. Nothing is
// charged unless a record is returned. Lookups that fail after validation are
// audited with success=false.
func (s *Service) Lookup(ctx context.Context, principal *accountmodels.Principal, raw string) (*Result, error) {
	subject, err := subjectOf(principal)
	if err != nil {
		return nil, err
	}

	ceiling := principal.RequestsPerSecond(s.defaultRPS)
	if err := s.limiter.CheckAndConsume(ctx, subject.String(), ceiling, s.window); err != nil {
		s.metrics.IncrementOutcome("rate_limited")
		return nil, err
	}

	cost := s.ledger.CostFor(principal.Plan)
	balance, err := s.ledger.Balance(ctx, subject)
	if err != nil {
		return nil, err
	}
	if balance < cost {
		s.metrics.IncrementOutcome("insufficient_credits")
		return nil, &creditmodels.InsufficientError{Balance: balance, Required: cost}
	}

	cnpj, err := domain.ParseCNPJ(raw)
	if err != nil {
		s.metrics.IncrementOutcome("invalid")
		return nil, err
	}

	found, err := s.lookup.Lookup(ctx, cnpj.String())
	if err != nil {
		s.recordFailure(ctx, subject, cnpj, err)
		s.metrics.IncrementOutcome("failed")
		return nil, err
	}

	remaining := balance
	if cost > 0 {
		remaining, err = s.ledger.Deduct(ctx, subject, cost, DeductionReasonPrefix+cnpj.String())
		if err != nil {
			s.recordFailure(ctx, subject, cnpj, err)
			s.metrics.IncrementOutcome("charge_failed")
			return nil, err
		}
	}

	entry := auditmodels.Success(subject, cnpj.String(), found.Provenance, cost,
		requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if err := s.audit.Record(ctx, entry); err != nil {
		s.refund(ctx, subject, cnpj, cost)
		s.metrics.IncrementOutcome("audit_failed")
		return nil, err
	}

	s.metrics.IncrementOutcome("success")
	s.metrics.AddCharged(int64(cost))
	s.logger.InfoContext(ctx, "cnpj lookup charged",
		"subject_id", subject.String(),
		"cnpj", cnpj.String(),
		"provenance", found.Provenance,
		"cost", cost.String(),
		"balance", remaining.String(),
	)

	return &Result{
		Record:     found.Record,
		Provenance: found.Provenance,
		FromCache:  found.FromCache,
		Cost:       cost,
		Balance:    remaining,
	}, nil
}

// Stats reports the balance, successful lookup count and the latest lookups.
func (s *Service) Stats(ctx context.Context, principal *accountmodels.Principal) (*Stats, error) {
	subject, err := subjectOf(principal)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, subject)
	if err != nil {
		return nil, err
	}
	total, err := s.audit.CountSuccessful(ctx, subject)
	if err != nil {
		return nil, err
	}
	recent, err := s.audit.Recent(ctx, subject, 0)
	if err != nil {
		return nil, err
	}
	return &Stats{Balance: balance, TotalQueries: total, Recent: recent}, nil
}

func (s *Service) recordFailure(ctx context.Context, subject id.AccountID, cnpj domain.CNPJ, cause error) {
	entry := auditmodels.Failure(subject, cnpj.String(), cause,
		requestcontext.RequestID(ctx), requestcontext.Now(ctx))
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed lookup not audited",
			"subject_id", subject.String(),
			"cnpj", cnpj.String(),
			"error", err,
		)
	}
}

// refund reverses a charge whose audit entry could not be written.
func (s *Service) refund(ctx context.Context, subject id.AccountID, cnpj domain.CNPJ, cost creditmodels.Amount) {
	if cost <= 0 {
		return
	}
	s.metrics.IncrementRefunds()
	if err := s.ledger.Credit(ctx, subject, cost, creditmodels.CategoryRefund, refundReason+cnpj.String()); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: charge not refunded after audit failure",
			"subject_id", subject.String(),
			"cnpj", cnpj.String(),
			"cost", cost.String(),
			"error", err,
		)
	}
}

func subjectOf(principal *accountmodels.Principal) (id.AccountID, error) {
	if principal == nil || principal.Account == nil || principal.Account.ID.IsNil() {
		return id.AccountID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return principal.Account.ID, nil
}
