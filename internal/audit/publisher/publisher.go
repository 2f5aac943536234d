// Package publisher records lookup audit entries.
//
// Record is fail-closed: the entry is written to the store synchronously and
// an error is returned when that write fails. When a Sink is configured the
// entry is also queued for stream delivery. Stream delivery is best-effort;
// the store holds the durable copy.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cnpjota/internal/audit/metrics"
	"cnpjota/internal/audit/models"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/requestcontext"
)

const (
	DefaultBufferSize    = 10000
	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	// DefaultRecentLimit is how many entries Recent returns without a limit.
	DefaultRecentLimit = 10

	drainTimeout = 5 * time.Second
)

// Store is the durable audit log.
type Store interface {
	Append(ctx context.Context, entry *models.Entry) error
	CountSuccessful(ctx context.Context, subject id.AccountID) (int64, error)
	Recent(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error)
}

// Sink receives batches of already persisted entries, e.g. a Kafka topic.
type Sink interface {
	Publish(ctx context.Context, entries []*models.Entry) error
}

type Publisher struct {
	store         Store
	sink          Sink
	buffer        *ringBuffer
	batchSize     int
	flushInterval time.Duration
	wake          chan struct{}
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Publisher)

// WithSink enables stream fan-out. Run must be started to drain the buffer.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = newRingBuffer(n)
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(store Store, opts ...Option) (*Publisher, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	p := &Publisher{
		store:         store,
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		wake:          make(chan struct{}, 1),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer == nil {
		p.buffer = newRingBuffer(DefaultBufferSize)
	}
	return p, nil
}

// Record persists entry and, with a sink configured, queues it for the
// stream. The caller's operation must fail when Record fails.
func (p *Publisher) Record(ctx context.Context, entry *models.Entry) error {
	if entry == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry is required")
	}
	if err := entry.Validate(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid audit entry")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	start := time.Now()
	if err := p.store.Append(ctx, entry); err != nil {
		p.metrics.IncrementPersistFailures()
		p.logger.ErrorContext(ctx, "audit entry not persisted",
			"subject_id", entry.SubjectID.String(),
			"cnpj", entry.CNPJ,
			"success", entry.Success,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit entry")
	}
	p.metrics.ObserveRecorded(entry.Success, time.Since(start).Seconds())

	if p.sink != nil {
		if p.buffer.enqueue(entry.Clone()) {
			p.metrics.IncrementStreamDropped()
		}
		if p.buffer.size() >= p.batchSize {
			select {
			case p.wake <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

func (p *Publisher) CountSuccessful(ctx context.Context, subject id.AccountID) (int64, error) {
	n, err := p.store.CountSuccessful(ctx, subject)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count queries")
	}
	return n, nil
}

// Recent returns the subject's latest entries, newest first.
func (p *Publisher) Recent(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	entries, err := p.store.Recent(ctx, subject, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read recent queries")
	}
	return entries, nil
}

// Pending is the number of entries waiting for stream delivery.
func (p *Publisher) Pending() int {
	return p.buffer.size()
}

// Dropped is the number of entries evicted from a full stream buffer.
func (p *Publisher) Dropped() int64 {
	return p.buffer.droppedTotal()
}

// Run drains the stream buffer until ctx is canceled, then makes one last
// bounded flush. Without a sink it only waits for ctx.
func (p *Publisher) Run(ctx context.Context) error {
	if p.sink == nil {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			p.Flush(drainCtx)
			cancel()
			return nil
		case <-ticker.C:
			p.Flush(ctx)
		case <-p.wake:
			p.Flush(ctx)
		}
	}
}

// Flush delivers buffered entries in batches until the buffer is empty or a
// batch is rejected. A rejected batch is counted and dropped; it stays
// queryable from the store.
func (p *Publisher) Flush(ctx context.Context) {
	if p.sink == nil {
		return
	}
	for {
		if ctx.Err() != nil {
			return
		}
		batch := p.buffer.dequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := p.sink.Publish(ctx, batch); err != nil {
			p.metrics.IncrementStreamFailures()
			p.logger.WarnContext(ctx, "audit stream publish failed",
				"entries", len(batch),
				"error", err,
			)
			return
		}
		p.metrics.AddStreamed(len(batch))
	}
}
