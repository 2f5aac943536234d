//go:build integration

package window_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cnpjota/internal/ratelimit/store/window"
	"cnpjota/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *window.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = window.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestFixedWindow() {
	ctx := context.Background()
	now := time.Now()

	for i := 1; i <= 2; i++ {
		d, err := s.store.Hit(ctx, "acct", 2, 300*time.Millisecond, now)
		s.Require().NoError(err)
		s.True(d.Allowed)
		s.Equal(i, d.Count)
	}

	d, err := s.store.Hit(ctx, "acct", 2, 300*time.Millisecond, now)
	s.Require().NoError(err)
	s.False(d.Allowed)
	s.Equal(2, d.Count)
	s.False(d.ResetAt.Before(now))

	time.Sleep(400 * time.Millisecond)

	d, err = s.store.Hit(ctx, "acct", 2, 300*time.Millisecond, time.Now())
	s.Require().NoError(err)
	s.True(d.Allowed)
	s.Equal(1, d.Count)
}
