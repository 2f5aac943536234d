// Package service admits or rejects requests per subject with a fixed-window
// counter. Bursts at window boundaries are accepted.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cnpjota/internal/ratelimit/metrics"
	"cnpjota/internal/ratelimit/models"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/circuit"
	"cnpjota/pkg/requestcontext"
)

// WindowStore performs the atomic read-check-increment for one subject.
type WindowStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Decision, error)
}

type Limiter struct {
	store    WindowStore
	fallback WindowStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// WithFallback serves decisions from store while the primary keeps failing.
// Typical use: Redis primary, in-memory fallback.
func WithFallback(store WindowStore, breaker *circuit.Breaker) Option {
	return func(l *Limiter) {
		l.fallback = store
		l.breaker = breaker
	}
}

func New(store WindowStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}
	l := &Limiter{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.fallback != nil && l.breaker == nil {
		l.breaker = circuit.New("ratelimit-window-store")
	}
	return l, nil
}

// CheckAndConsume admits one request for subject or returns
// *models.ExceededError. Store failures without a fallback deny the request.
func (l *Limiter) CheckAndConsume(ctx context.Context, subject string, ceiling int, window time.Duration) error {
	if subject == "" {
		return dErrors.New(dErrors.CodeValidation, "rate limit subject is required")
	}
	if ceiling <= 0 || window <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "rate limit ceiling and window must be positive")
	}

	now := requestcontext.Now(ctx)
	decision, err := l.hit(ctx, subject, ceiling, window, now)
	if err != nil {
		l.metrics.IncrementStoreFailures()
		l.logger.ErrorContext(ctx, "rate limit store failed",
			"subject", subject,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "rate limit check failed")
	}

	if !decision.Allowed {
		l.metrics.IncrementRejected()
		exceeded := models.NewExceededError(ceiling, decision.ResetAt, now)
		l.logger.InfoContext(ctx, "rate limit exceeded",
			"subject", subject,
			"limit", ceiling,
			"retry_after_s", exceeded.RetryAfterSeconds(),
		)
		return exceeded
	}
	l.metrics.IncrementAllowed()
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Decision, error) {
	decision, err := l.store.Hit(ctx, key, limit, window, now)
	if l.fallback == nil {
		return decision, err
	}

	if err != nil {
		useFallback, change := l.breaker.RecordFailure()
		if change.Opened {
			l.logger.WarnContext(ctx, "rate limit store degraded, using fallback", "breaker", l.breaker.Name())
		}
		if !useFallback {
			return models.Decision{}, err
		}
		return l.fallback.Hit(ctx, key, limit, window, now)
	}

	// The primary window was charged; its decision stands even while the
	// breaker is still counting successes toward closing.
	if _, change := l.breaker.RecordSuccess(); change.Closed {
		l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
	}
	return decision, nil
}
