package store

import (
	"context"
	"sync"

	"cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
)

// InMemoryStore is the ledger for tests and single-instance deployments.
// One mutex covers every subject, which keeps AppendIfSufficient atomic.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[id.AccountID][]*models.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[id.AccountID][]*models.Entry),
	}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.Entry) error {
	if entry == nil {
		return errEntryRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(entry)
	return nil
}

func (s *InMemoryStore) AppendIfSufficient(_ context.Context, entry *models.Entry) (models.Amount, bool, error) {
	if entry == nil {
		return 0, false, errEntryRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balance(entry.SubjectID)
	if balance+entry.Amount < 0 {
		return balance, false, nil
	}
	s.append(entry)
	return balance + entry.Amount, true, nil
}

func (s *InMemoryStore) Balance(_ context.Context, subject id.AccountID) (models.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance(subject), nil
}

// History returns up to limit entries, newest first.
func (s *InMemoryStore) History(_ context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries[subject]
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*models.Entry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		e := *entries[i]
		out = append(out, &e)
	}
	return out, nil
}

func (s *InMemoryStore) append(entry *models.Entry) {
	e := *entry
	s.entries[entry.SubjectID] = append(s.entries[entry.SubjectID], &e)
}

func (s *InMemoryStore) balance(subject id.AccountID) models.Amount {
	var total models.Amount
	for _, e := range s.entries[subject] {
		total += e.Amount
	}
	return total
}
