package window

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cnpjota/internal/ratelimit/models"
)

const windowKeyPrefix = "cnpjota:ratelimit:"

// hitScript implements the fixed window atomically. The key expires when the
// window closes, so a missing key is a fresh window.
//
// KEYS[1] window key, ARGV[1] window ms, ARGV[2] limit.
// Returns {allowed, count, pttl}.
var hitScript = redis.NewScript(`
local count = redis.call('GET', KEYS[1])
if not count then
  redis.call('SET', KEYS[1], 1, 'PX', ARGV[1])
  return {1, 1, tonumber(ARGV[1])}
end
count = tonumber(count)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
if count >= tonumber(ARGV[2]) then
  return {0, count, ttl}
end
redis.call('INCR', KEYS[1])
return {1, count + 1, ttl}
`)

// RedisStore shares windows across API instances. Expired windows are removed
// by Redis itself, so it needs no sweeper.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.Decision, error) {
	res, err := hitScript.Run(ctx, s.client, []string{windowKeyPrefix + key}, window.Milliseconds(), limit).Int64Slice()
	if err != nil {
		return models.Decision{}, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 3 {
		return models.Decision{}, fmt.Errorf("rate limit hit: unexpected reply %v", res)
	}
	return models.Decision{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		Limit:   limit,
		ResetAt: now.Add(time.Duration(res[2]) * time.Millisecond),
	}, nil
}
