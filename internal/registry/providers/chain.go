package providers

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/models"
)

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 10 * time.Second

// Chain tries providers in ascending priority until one succeeds.
// Providers are fixed at construction; Chain is safe for concurrent use.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithAttemptTimeout sets the per-provider deadline.
func WithAttemptTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) ChainOption {
	return func(c *Chain) {
		c.metrics = m
	}
}

func WithTracer(t trace.Tracer) ChainOption {
	return func(c *Chain) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewChain sorts providers by priority. Ties keep their given order.
func NewChain(providers []Provider, opts ...ChainOption) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	sorted := make([]Provider, len(providers))
	copy(sorted, providers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	c := &Chain{
		providers: sorted,
		timeout:   DefaultAttemptTimeout,
		logger:    slog.Default(),
		tracer:    otel.Tracer("cnpjota/registry/providers"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Names returns provider names in attempt order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// FetchWithFallback returns the first successful record and the name of the
// provider that produced it. No provider is retried. When every provider
// fails the error is *AllProvidersFailedError.
func (c *Chain) FetchWithFallback(ctx context.Context, cnpj domain.CNPJ) (*models.Record, string, error) {
	failed := &AllProvidersFailedError{Attempts: make([]Attempt, 0, len(c.providers))}

	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			failed.Cause = err
			break
		}

		record, err := c.attempt(ctx, p, cnpj)
		if err == nil {
			return record, p.Name(), nil
		}

		failed.Attempts = append(failed.Attempts, Attempt{
			Provider: p.Name(),
			Category: GetCategory(err),
			Message:  err.Error(),
		})
	}

	c.metrics.IncrementChainFailure()
	c.logger.WarnContext(ctx, "all cnpj providers failed",
		"cnpj", cnpj.String(),
		"attempts", len(failed.Attempts),
	)
	return nil, "", failed
}

func (c *Chain) attempt(ctx context.Context, p Provider, cnpj domain.CNPJ) (*models.Record, error) {
	ctx, span := c.tracer.Start(ctx, "registry.provider.fetch", trace.WithAttributes(
		attribute.String("provider.name", p.Name()),
		attribute.Int("provider.priority", p.Priority()),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	record, err := p.Fetch(attemptCtx, cnpj)
	elapsed := time.Since(start)

	if err == nil && record == nil {
		err = NewProviderError(ErrorBadData, p.Name(), "empty result", nil)
	}
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			category := ErrorInternal
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				category = ErrorTimeout
			}
			err = NewProviderError(category, p.Name(), "fetch failed", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(GetCategory(err)))
		c.metrics.ObserveProviderAttempt(p.Name(), string(GetCategory(err)), elapsed)
		c.logger.InfoContext(ctx, "cnpj provider attempt failed",
			"provider", p.Name(),
			"category", GetCategory(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	c.metrics.ObserveProviderAttempt(p.Name(), "success", elapsed)
	c.logger.DebugContext(ctx, "cnpj provider attempt succeeded",
		"provider", p.Name(),
		"duration_ms", elapsed.Milliseconds(),
	)
	return record, nil
}
