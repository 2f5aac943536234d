package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cnpjota/internal/audit/models"
	"cnpjota/internal/audit/store"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/requestcontext"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]*models.Entry
	err     error
}

func (s *recordingSink) Publish(_ context.Context, entries []*models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, entries)
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

type brokenStore struct {
	*store.InMemoryStore
}

func (brokenStore) Append(context.Context, *models.Entry) error {
	return errors.New("connection refused")
}

type PublisherSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	subject id.AccountID
	store   *store.InMemoryStore
	logger  *slog.Logger
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(requestcontext.WithTime(context.Background(), s.now), "req-42")
	s.subject = id.NewAccountID()
	s.store = store.NewInMemoryStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *PublisherSuite) publisher(opts ...Option) *Publisher {
	p, err := New(s.store, append([]Option{WithLogger(s.logger)}, opts...)...)
	s.Require().NoError(err)
	return p
}

func (s *PublisherSuite) TestNew() {
	_, err := New(nil)
	s.Error(err)
}

func (s *PublisherSuite) TestRecord() {
	s.Run("stamps time and request id from context", func() {
		p := s.publisher()
		entry := models.Success(s.subject, "11222333000181", "cache", 330, "", time.Time{})
		s.Require().NoError(p.Record(s.ctx, entry))

		recent, err := p.Recent(s.ctx, s.subject, 0)
		s.Require().NoError(err)
		s.Require().Len(recent, 1)
		s.Equal(s.now, recent[0].CreatedAt)
		s.Equal("req-42", recent[0].RequestID)
	})

	s.Run("invalid entry is rejected", func() {
		p := s.publisher()
		err := p.Record(s.ctx, models.Success(id.AccountID{}, "11222333000181", "cache", 330, "", s.now))
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		err = p.Record(s.ctx, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("store failure fails the caller", func() {
		sink := &recordingSink{}
		p, err := New(brokenStore{s.store}, WithLogger(s.logger), WithSink(sink))
		s.Require().NoError(err)

		err = p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, "", s.now))
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Zero(p.Pending(), "unpersisted entries are never streamed")
	})
}

func (s *PublisherSuite) TestStats() {
	p := s.publisher()
	for i := range 12 {
		entry := models.Success(s.subject, "11222333000181", "cache", 330, "", s.now.Add(time.Duration(i)*time.Second))
		s.Require().NoError(p.Record(s.ctx, entry))
	}
	s.Require().NoError(p.Record(s.ctx, models.Failure(s.subject, "33000167000101", errors.New("down"), "", s.now)))

	n, err := p.CountSuccessful(s.ctx, s.subject)
	s.Require().NoError(err)
	s.Equal(int64(12), n)

	recent, err := p.Recent(s.ctx, s.subject, 0)
	s.Require().NoError(err)
	s.Len(recent, DefaultRecentLimit)
}

func (s *PublisherSuite) TestStream() {
	s.Run("flush delivers in batches", func() {
		sink := &recordingSink{}
		p := s.publisher(WithSink(sink), WithBatchSize(2))
		for range 5 {
			s.Require().NoError(p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, "", s.now)))
		}
		s.Equal(5, p.Pending())

		p.Flush(s.ctx)
		s.Zero(p.Pending())
		s.Len(sink.batches, 3)
		s.Equal(5, sink.total())
	})

	s.Run("full buffer drops the oldest", func() {
		sink := &recordingSink{}
		p := s.publisher(WithSink(sink), WithBufferSize(2))
		for _, rid := range []string{"a", "b", "c"} {
			s.Require().NoError(p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, rid, s.now)))
		}
		s.Equal(int64(1), p.Dropped())

		p.Flush(s.ctx)
		s.Require().Len(sink.batches, 1)
		s.Equal("b", sink.batches[0][0].RequestID)
		s.Equal("c", sink.batches[0][1].RequestID)
	})

	s.Run("rejected batch does not block the store", func() {
		sink := &recordingSink{err: errors.New("broker unavailable")}
		p := s.publisher(WithSink(sink), WithBatchSize(1))
		s.Require().NoError(p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, "", s.now)))
		s.Require().NoError(p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, "", s.now)))

		p.Flush(s.ctx)
		s.Equal(1, p.Pending(), "flush stops at the first rejected batch")
	})

	s.Run("run drains on shutdown", func() {
		sink := &recordingSink{}
		p := s.publisher(WithSink(sink), WithFlushInterval(time.Hour))
		s.Require().NoError(p.Record(s.ctx, models.Success(s.subject, "11222333000181", "cache", 330, "", s.now)))

		ctx, cancel := context.WithCancel(s.ctx)
		done := make(chan error, 1)
		go func() { done <- p.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			s.NoError(err)
		case <-time.After(2 * time.Second):
			s.Fail("run did not return")
		}
		s.Equal(1, sink.total())
	})
}
