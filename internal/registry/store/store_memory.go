package store

import (
	"context"
	"sync"
	"time"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/models"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/requestcontext"
)

// InMemoryCache keeps records in a map. Records never expire; staleness is
// judged by the caller.
type InMemoryCache struct {
	mu      sync.RWMutex
	records map[string]*models.Record
	metrics *metrics.Metrics
}

func NewInMemoryCache(m *metrics.Metrics) *InMemoryCache {
	return &InMemoryCache{
		records: make(map[string]*models.Record),
		metrics: m,
	}
}

func (c *InMemoryCache) Find(_ context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	start := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[cnpj.String()]
	if !ok {
		c.metrics.RecordCacheMiss("memory", time.Since(start))
		return nil, sentinel.ErrNotFound
	}
	c.metrics.RecordCacheHit("memory", time.Since(start))
	return record.Clone(), nil
}

func (c *InMemoryCache) Upsert(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) (*models.Record, error) {
	if record == nil {
		return nil, errRecordRequired
	}
	stored := stamp(ctx, cnpj, record, source)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[cnpj.String()] = stored
	return stored.Clone(), nil
}

// Len returns the number of cached records.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// stamp copies record and sets the fields the cache owns.
func stamp(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) *models.Record {
	stored := record.Clone()
	stored.CNPJ = cnpj.String()
	stored.Source = source
	stored.LastRefreshedAt = requestcontext.Now(ctx).UTC()
	return stored
}
