package store

import (
	"context"
	"errors"
	"sync"

	"cnpjota/internal/audit/models"
	id "cnpjota/pkg/domain"
)

var errEntryRequired = errors.New("audit entry is required")

// InMemoryStore keeps entries per subject in append order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.AccountID][]*models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.AccountID][]*models.Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.Entry) error {
	if entry == nil {
		return errEntryRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SubjectID] = append(s.entries[entry.SubjectID], entry.Clone())
	return nil
}

func (s *InMemoryStore) CountSuccessful(_ context.Context, subject id.AccountID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries[subject] {
		if e.Success {
			n++
		}
	}
	return n, nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (s *InMemoryStore) Recent(_ context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[subject]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*models.Entry, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i].Clone())
	}
	return out, nil
}
