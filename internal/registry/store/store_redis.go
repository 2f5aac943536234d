package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/models"
	"cnpjota/pkg/platform/sentinel"
)

const recordKeyPrefix = "cnpjota:record:"

// RedisCache stores records as JSON strings without a TTL. It shares one
// cache across API instances when Postgres is not configured.
type RedisCache struct {
	client  redis.UniversalClient
	metrics *metrics.Metrics
}

func NewRedisCache(client redis.UniversalClient, m *metrics.Metrics) *RedisCache {
	return &RedisCache{client: client, metrics: m}
}

func recordKey(cnpj domain.CNPJ) string {
	return recordKeyPrefix + cnpj.String()
}

func (c *RedisCache) Find(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	start := time.Now()
	raw, err := c.client.Get(ctx, recordKey(cnpj)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.metrics.RecordCacheMiss("redis", time.Since(start))
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find cnpj record: %w", err)
	}

	var record models.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode cnpj record: %w", err)
	}
	c.metrics.RecordCacheHit("redis", time.Since(start))
	return &record, nil
}

func (c *RedisCache) Upsert(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) (*models.Record, error) {
	if record == nil {
		return nil, errRecordRequired
	}
	stored := stamp(ctx, cnpj, record, source)

	raw, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("encode cnpj record: %w", err)
	}
	if err := c.client.Set(ctx, recordKey(cnpj), raw, 0).Err(); err != nil {
		return nil, fmt.Errorf("upsert cnpj record: %w", err)
	}
	return stored, nil
}
