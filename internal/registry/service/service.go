package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/models"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/requestcontext"
)

// CacheStore persists the latest record per CNPJ. Find returns
// sentinel.ErrNotFound when nothing is cached; stale records are returned.
type CacheStore interface {
	Find(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error)
	Upsert(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) (*models.Record, error)
}

// Fetcher resolves a CNPJ upstream. *providers.Chain implements it.
type Fetcher interface {
	FetchWithFallback(ctx context.Context, cnpj domain.CNPJ) (*models.Record, string, error)
}

// Result is a resolved record and where it came from.
type Result struct {
	Record *models.Record
	// Provenance is "cache" or the name of the provider that answered.
	Provenance string
	FromCache  bool
	// Stale is only ever true for Cached reads.
	Stale bool
}

// Service resolves CNPJs: fresh cache hit, otherwise the provider chain.
// A stale record is never served when the chain fails.
type Service struct {
	cache        CacheStore
	fetcher      Fetcher
	maxAgeDays   int
	storeTimeout time.Duration
	coalesce     bool
	group        singleflight.Group
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
}

type Option func(*Service)

// WithMaxAgeDays sets how many whole days a record stays fresh.
func WithMaxAgeDays(days int) Option {
	return func(s *Service) {
		if days >= 0 {
			s.maxAgeDays = days
		}
	}
}

// WithStoreTimeout bounds each cache read and write.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.storeTimeout = d
	}
}

// WithCoalescing collapses concurrent misses for one CNPJ into a single
// chain run whose result every waiter shares.
func WithCoalescing(enabled bool) Option {
	return func(s *Service) {
		s.coalesce = enabled
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

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(cache CacheStore, fetcher Fetcher, opts ...Option) (*Service, error) {
	if cache == nil {
		return nil, errors.New("cache store is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	s := &Service{
		cache:      cache,
		fetcher:    fetcher,
		maxAgeDays: models.DefaultMaxAgeDays,
		logger:     slog.Default(),
		tracer:     otel.Tracer("cnpjota/registry/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Lookup validates raw, then serves a fresh cached record or refreshes it
// through the provider chain and caches the result.
func (s *Service) Lookup(ctx context.Context, raw string) (*Result, error) {
	cnpj, err := domain.ParseCNPJ(raw)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "registry.lookup", trace.WithAttributes(attribute.String("cnpj", cnpj.String())))
	defer span.End()
	start := time.Now()

	cached, err := s.find(ctx, cnpj)
	switch {
	case err == nil && !cached.IsStaleAt(requestcontext.Now(ctx), s.maxAgeDays):
		s.metrics.ObserveLookup(models.ProvenanceCache, "success", time.Since(start))
		span.SetAttributes(attribute.String("provenance", models.ProvenanceCache))
		return &Result{Record: cached, Provenance: models.ProvenanceCache, FromCache: true}, nil
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache read failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cnpj cache")
	}

	result, err := s.refresh(ctx, cnpj)
	if err != nil {
		s.metrics.ObserveLookup("none", "failure", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "providers exhausted")
		return nil, err
	}
	s.metrics.ObserveLookup(result.Provenance, "success", time.Since(start))
	span.SetAttributes(attribute.String("provenance", result.Provenance))
	return result, nil
}

// Cached reads the cache only, reporting staleness instead of refreshing.
func (s *Service) Cached(ctx context.Context, raw string) (*Result, error) {
	cnpj, err := domain.ParseCNPJ(raw)
	if err != nil {
		return nil, err
	}
	record, err := s.find(ctx, cnpj)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "cnpj not cached")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read cnpj cache")
	}
	return &Result{
		Record:     record,
		Provenance: models.ProvenanceCache,
		FromCache:  true,
		Stale:      record.IsStaleAt(requestcontext.Now(ctx), s.maxAgeDays),
	}, nil
}

func (s *Service) refresh(ctx context.Context, cnpj domain.CNPJ) (*Result, error) {
	if !s.coalesce {
		return s.fetchAndStore(ctx, cnpj)
	}

	// The shared run must not die with whichever caller arrived first.
	shared := context.WithoutCancel(ctx)
	v, err, coalesced := s.group.Do(cnpj.String(), func() (any, error) {
		return s.fetchAndStore(shared, cnpj)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*Result)
	if coalesced {
		s.logger.DebugContext(ctx, "cnpj lookup coalesced", "cnpj", cnpj.String())
	}
	return &Result{Record: result.Record.Clone(), Provenance: result.Provenance}, nil
}

func (s *Service) fetchAndStore(ctx context.Context, cnpj domain.CNPJ) (*Result, error) {
	record, provider, err := s.fetcher.FetchWithFallback(ctx, cnpj)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeServiceUnavailable, "all cnpj providers failed")
	}

	stored, err := s.upsert(ctx, cnpj, record, provider)
	if err != nil {
		// the upstream answer is still valid; the next request refetches
		s.logger.WarnContext(ctx, "failed to cache cnpj record",
			"cnpj", cnpj.String(),
			"provider", provider,
			"error", err,
		)
		stored = record.Clone()
		stored.CNPJ = cnpj.String()
		stored.Source = provider
		stored.LastRefreshedAt = requestcontext.Now(ctx).UTC()
	}
	return &Result{Record: stored, Provenance: provider}, nil
}

func (s *Service) find(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	return s.cache.Find(ctx, cnpj)
}

func (s *Service) upsert(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) (*models.Record, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	return s.cache.Upsert(ctx, cnpj, record, source)
}

func (s *Service) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
