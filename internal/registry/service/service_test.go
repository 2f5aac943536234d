package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
	"cnpjota/internal/registry/providers/mocks"
	"cnpjota/internal/registry/store"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	ctx    context.Context
	now    time.Time
	cnpj   domain.CNPJ
	cache  *store.InMemoryCache
	logger *slog.Logger
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.cnpj = domain.MustCNPJ("11222333000181")
	s.cache = store.NewInMemoryCache(nil)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *ServiceSuite) SetupSubTest() {
	s.ctrl = gomock.NewController(s.T())
	s.cache = store.NewInMemoryCache(nil)
}

func (s *ServiceSuite) provider(name string, priority int) *mocks.MockProvider {
	p := mocks.NewMockProvider(s.ctrl)
	p.EXPECT().Name().Return(name).AnyTimes()
	p.EXPECT().Priority().Return(priority).AnyTimes()
	return p
}

func (s *ServiceSuite) service(opts []Option, ps ...providers.Provider) *Service {
	chain, err := providers.NewChain(ps, providers.WithLogger(s.logger))
	s.Require().NoError(err)
	svc, err := New(s.cache, chain, append([]Option{WithLogger(s.logger)}, opts...)...)
	s.Require().NoError(err)
	return svc
}

// seed stores a record refreshed ageDays ago.
func (s *ServiceSuite) seed(ageDays int, source string) {
	ctx := requestcontext.WithTime(context.Background(), s.now.Add(-time.Duration(ageDays)*24*time.Hour))
	_, err := s.cache.Upsert(ctx, s.cnpj, &models.Record{LegalName: "CACHED LTDA"}, source)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestNew() {
	s.Run("requires a cache", func() {
		_, err := New(nil, &providers.Chain{})
		s.Error(err)
	})
	s.Run("requires a fetcher", func() {
		_, err := New(s.cache, nil)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestLookup() {
	fresh := &models.Record{LegalName: "FRESH LTDA"}

	s.Run("invalid cnpj never touches cache or providers", func() {
		p := s.provider("BrasilAPI", 1)
		svc := s.service(nil, p)

		_, err := svc.Lookup(s.ctx, "12345678901234")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Zero(s.cache.Len())
	})

	s.Run("fresh cache hit is served without providers", func() {
		s.seed(3, "BrasilAPI")
		p := s.provider("BrasilAPI", 1)
		svc := s.service(nil, p)

		res, err := svc.Lookup(s.ctx, "11.222.333/0001-81")
		s.Require().NoError(err)
		s.Equal(models.ProvenanceCache, res.Provenance)
		s.True(res.FromCache)
		s.Equal("CACHED LTDA", res.Record.LegalName)
		s.Equal("BrasilAPI", res.Record.Source)
	})

	s.Run("cache miss fetches and stores", func() {
		p := s.provider("BrasilAPI", 1)
		p.EXPECT().Fetch(gomock.Any(), s.cnpj).Return(fresh, nil)
		svc := s.service(nil, p)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().NoError(err)
		s.Equal("BrasilAPI", res.Provenance)
		s.False(res.FromCache)
		s.Equal(s.cnpj.String(), res.Record.CNPJ)
		s.Equal(s.now, res.Record.LastRefreshedAt)

		cached, err := s.cache.Find(s.ctx, s.cnpj)
		s.Require().NoError(err)
		s.Equal("FRESH LTDA", cached.LegalName)
		s.Equal("BrasilAPI", cached.Source)
	})

	s.Run("stale record is refreshed through the chain", func() {
		s.seed(15, "ReceitaWS")
		p1 := s.provider("BrasilAPI", 1)
		p2 := s.provider("OpenCNPJ", 2)
		p1.EXPECT().Fetch(gomock.Any(), s.cnpj).
			Return(nil, providers.NewProviderError(providers.ErrorProviderOutage, "BrasilAPI", "HTTP 503", nil))
		p2.EXPECT().Fetch(gomock.Any(), s.cnpj).Return(fresh, nil)
		svc := s.service(nil, p1, p2)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().NoError(err)
		s.Equal("OpenCNPJ", res.Provenance)

		cached, err := s.cache.Find(s.ctx, s.cnpj)
		s.Require().NoError(err)
		s.Equal("OpenCNPJ", cached.Source)
		s.Equal(s.now, cached.LastRefreshedAt)
	})

	s.Run("custom freshness window", func() {
		s.seed(2, "BrasilAPI")
		p := s.provider("BrasilAPI", 1)
		p.EXPECT().Fetch(gomock.Any(), s.cnpj).Return(fresh, nil)
		svc := s.service([]Option{WithMaxAgeDays(2)}, p)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().NoError(err)
		s.Equal("BrasilAPI", res.Provenance)
	})

	s.Run("total failure never serves the stale record", func() {
		s.seed(40, "BrasilAPI")
		p := s.provider("BrasilAPI", 1)
		p.EXPECT().Fetch(gomock.Any(), s.cnpj).
			Return(nil, providers.NewProviderError(providers.ErrorTimeout, "BrasilAPI", "request timed out", nil))
		svc := s.service(nil, p)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().Error(err)
		s.Nil(res)
		s.True(dErrors.HasCode(err, dErrors.CodeServiceUnavailable))
		s.ErrorIs(err, providers.ErrAllProvidersFailed)

		cached, err := s.cache.Find(s.ctx, s.cnpj)
		s.Require().NoError(err)
		s.Equal("CACHED LTDA", cached.LegalName, "cache left untouched")
	})

	s.Run("total failure on a cold cache writes nothing", func() {
		p1 := s.provider("BrasilAPI", 1)
		p2 := s.provider("OpenCNPJ", 2)
		p1.EXPECT().Fetch(gomock.Any(), s.cnpj).
			Return(nil, providers.NewProviderError(providers.ErrorProviderOutage, "BrasilAPI", "HTTP 503", nil))
		p2.EXPECT().Fetch(gomock.Any(), s.cnpj).
			Return(nil, providers.NewProviderError(providers.ErrorNotFound, "OpenCNPJ", "HTTP 404", nil))
		svc := s.service(nil, p1, p2)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().Error(err)
		s.Nil(res)
		s.True(dErrors.HasCode(err, dErrors.CodeServiceUnavailable))

		var agg *providers.AllProvidersFailedError
		s.Require().True(errors.As(err, &agg))
		s.Len(agg.Attempts, 2)

		_, err = s.cache.Find(s.ctx, s.cnpj)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.Zero(s.cache.Len())
	})
}

func (s *ServiceSuite) TestCached() {
	s.Run("reports staleness without refreshing", func() {
		s.seed(20, "BrasilAPI")
		svc := s.service(nil, s.provider("BrasilAPI", 1))

		res, err := svc.Cached(s.ctx, s.cnpj.String())
		s.Require().NoError(err)
		s.True(res.Stale)
		s.True(res.FromCache)
	})

	s.Run("miss is not found", func() {
		svc := s.service(nil, s.provider("BrasilAPI", 1))

		_, err := svc.Cached(s.ctx, s.cnpj.String())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestCoalescing() {
	s.Run("concurrent misses share one chain run", func() {
		var calls atomic.Int32
		release := make(chan struct{})
		p := s.provider("BrasilAPI", 1)
		p.EXPECT().Fetch(gomock.Any(), s.cnpj).DoAndReturn(
			func(context.Context, domain.CNPJ) (*models.Record, error) {
				calls.Add(1)
				<-release
				return &models.Record{LegalName: "SHARED LTDA"}, nil
			}).MinTimes(1)
		svc := s.service([]Option{WithCoalescing(true)}, p)

		const callers = 8
		var wg sync.WaitGroup
		results := make(chan *Result, callers)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.Lookup(s.ctx, s.cnpj.String())
				if err == nil {
					results <- res
				}
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		close(results)

		s.Equal(int32(1), calls.Load())
		count := 0
		for res := range results {
			count++
			s.Equal("SHARED LTDA", res.Record.LegalName)
		}
		s.Equal(callers, count)
	})
}

type failingCache struct {
	*store.InMemoryCache
	findErr   error
	upsertErr error
}

func (f *failingCache) Find(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.InMemoryCache.Find(ctx, cnpj)
}

func (f *failingCache) Upsert(ctx context.Context, cnpj domain.CNPJ, r *models.Record, source string) (*models.Record, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.InMemoryCache.Upsert(ctx, cnpj, r, source)
}

func (s *ServiceSuite) TestStoreFailures() {
	s.Run("cache read error is internal", func() {
		chain, err := providers.NewChain([]providers.Provider{s.provider("BrasilAPI", 1)})
		s.Require().NoError(err)
		svc, err := New(&failingCache{InMemoryCache: store.NewInMemoryCache(nil), findErr: errors.New("conn reset")}, chain)
		s.Require().NoError(err)

		_, err = svc.Lookup(s.ctx, s.cnpj.String())
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("cache write error still returns the fetched record", func() {
		p := s.provider("BrasilAPI", 1)
		p.EXPECT().Fetch(gomock.Any(), s.cnpj).Return(&models.Record{LegalName: "FRESH LTDA"}, nil)
		chain, err := providers.NewChain([]providers.Provider{p})
		s.Require().NoError(err)
		svc, err := New(&failingCache{InMemoryCache: store.NewInMemoryCache(nil), upsertErr: errors.New("disk full")}, chain, WithLogger(s.logger))
		s.Require().NoError(err)

		res, err := svc.Lookup(s.ctx, s.cnpj.String())
		s.Require().NoError(err)
		s.Equal("BrasilAPI", res.Record.Source)
		s.Equal(s.cnpj.String(), res.Record.CNPJ)
	})
}
