package window

import (
	"context"
	"sync"
	"time"

	"cnpjota/internal/ratelimit/models"
)

// InMemoryStore keeps fixed windows per subject in one process. Counts are
// not shared across instances; use RedisStore for that.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*models.Window
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]*models.Window),
	}
}

// Hit admits or rejects one request for key. The read, check and increment
// happen under one lock.
func (s *InMemoryStore) Hit(_ context.Context, key string, limit int, window time.Duration, now time.Time) (models.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w.Elapsed(now) {
		w = &models.Window{Count: 1, ResetAt: now.Add(window)}
		s.windows[key] = w
		return models.Decision{Allowed: true, Count: 1, Limit: limit, ResetAt: w.ResetAt}, nil
	}

	if w.Count >= limit {
		return models.Decision{Allowed: false, Count: w.Count, Limit: limit, ResetAt: w.ResetAt}, nil
	}
	w.Count++
	return models.Decision{Allowed: true, Count: w.Count, Limit: limit, ResetAt: w.ResetAt}, nil
}

// Sweep drops windows that closed before now and returns how many it removed.
func (s *InMemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if w.Elapsed(now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *InMemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Len returns the number of tracked windows.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
