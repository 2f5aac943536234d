package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cnpjota/internal/audit/models"
	"cnpjota/internal/audit/publisher"
	auditstore "cnpjota/internal/audit/store"
	id "cnpjota/pkg/domain"
)

type countingSink struct {
	mu      sync.Mutex
	entries int
}

func (s *countingSink) Publish(_ context.Context, entries []*models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries += len(entries)
	return nil
}

func (s *countingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

func TestAuditStreamDrainsAfterSignal(t *testing.T) {
	sink := &countingSink{}
	audit, err := publisher.New(auditstore.NewInMemoryStore(),
		publisher.WithSink(sink),
		publisher.WithFlushInterval(time.Hour),
	)
	require.NoError(t, err)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	signalCtx, signal := context.WithCancel(context.Background())
	stop := startAuditStream(signalCtx, audit, log)
	signal()

	// a request still finishing during server shutdown
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, audit.Record(context.Background(),
		models.Success(id.NewAccountID(), "11222333000181", "BrasilAPI", 330, "req-1", now)))
	assert.Equal(t, 1, audit.Pending())

	stop()
	assert.Equal(t, 1, sink.count())
	assert.Zero(t, audit.Pending())
}

func TestAuditStreamStopWithoutSink(t *testing.T) {
	audit, err := publisher.New(auditstore.NewInMemoryStore())
	require.NoError(t, err)

	stop := startAuditStream(context.Background(), audit, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return")
	}
}
