package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"cnpjota/internal/account/models"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/platform/sentinel"
)

// InMemoryStore holds plans, accounts and API keys behind one lock.
type InMemoryStore struct {
	mu       sync.RWMutex
	plans    map[string]models.Plan
	accounts map[id.AccountID]*models.Account
	byEmail  map[string]id.AccountID
	keys     map[id.APIKeyID]*models.APIKey
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		plans:    make(map[string]models.Plan),
		accounts: make(map[id.AccountID]*models.Account),
		byEmail:  make(map[string]id.AccountID),
		keys:     make(map[id.APIKeyID]*models.APIKey),
	}
}

func (s *InMemoryStore) UpsertPlan(_ context.Context, plan models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.Name] = plan
	return nil
}

func (s *InMemoryStore) FindPlan(_ context.Context, name string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *InMemoryStore) ListPlans(_ context.Context) ([]models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreditCost > out[j].CreditCost })
	return out, nil
}

// CreateAccount fails with sentinel.ErrConflict when the email is taken.
func (s *InMemoryStore) CreateAccount(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[account.Email]; taken {
		return sentinel.ErrConflict
	}
	a := *account
	s.accounts[a.ID] = &a
	s.byEmail[a.Email] = a.ID
	return nil
}

func (s *InMemoryStore) FindAccount(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *InMemoryStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	accountID, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindAccount(ctx, accountID)
}

func (s *InMemoryStore) CreateKey(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[key.AccountID]; !ok {
		return sentinel.ErrNotFound
	}
	k := *key
	s.keys[k.ID] = &k
	return nil
}

func (s *InMemoryStore) FindKey(_ context.Context, keyID id.APIKeyID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[keyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *k
	return &c, nil
}

// ListKeys returns the account's keys newest first, revoked ones included.
func (s *InMemoryStore) ListKeys(_ context.Context, accountID id.AccountID) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.AccountID == accountID {
			c := *k
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) TouchKey(_ context.Context, keyID id.APIKeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	k.LastUsedAt = &at
	return nil
}

func (s *InMemoryStore) RevokeKey(_ context.Context, keyID id.APIKeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if k.RevokedAt == nil {
		k.RevokedAt = &at
	}
	return nil
}
