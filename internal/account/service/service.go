package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cnpjota/internal/account/metrics"
	"cnpjota/internal/account/models"
	"cnpjota/internal/account/secrets"
	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/email"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/requestcontext"
)

// DefaultWelcomeBonus is granted to every new account.
const DefaultWelcomeBonus = creditmodels.Amount(100_000)

type PlanStore interface {
	UpsertPlan(ctx context.Context, plan models.Plan) error
	FindPlan(ctx context.Context, name string) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	FindAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

type KeyStore interface {
	CreateKey(ctx context.Context, key *models.APIKey) error
	FindKey(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error)
	ListKeys(ctx context.Context, accountID id.AccountID) ([]*models.APIKey, error)
	TouchKey(ctx context.Context, keyID id.APIKeyID, at time.Time) error
	RevokeKey(ctx context.Context, keyID id.APIKeyID, at time.Time) error
}

// Store is satisfied by both the in-memory and Postgres stores.
type Store interface {
	PlanStore
	AccountStore
	KeyStore
}

// Crediter grants the welcome bonus. *credit/service.Service implements it.
type Crediter interface {
	Credit(ctx context.Context, subject id.AccountID, amount creditmodels.Amount, category creditmodels.Category, reason string) error
}

type Service struct {
	store        Store
	credits      Crediter
	welcomeBonus creditmodels.Amount
	hashCost     int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithCrediter(c Crediter) Option {
	return func(s *Service) {
		s.credits = c
	}
}

func WithWelcomeBonus(amount creditmodels.Amount) Option {
	return func(s *Service) {
		if amount >= 0 {
			s.welcomeBonus = amount
		}
	}
}

// WithHashCost overrides the bcrypt cost for issued keys.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.hashCost = cost
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	s := &Service{
		store:        store,
		welcomeBonus: DefaultWelcomeBonus,
		hashCost:     bcrypt.DefaultCost,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SeedPlans upserts plans, DefaultPlans when none are given.
func (s *Service) SeedPlans(ctx context.Context, plans ...models.Plan) error {
	if len(plans) == 0 {
		plans = models.DefaultPlans()
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return err
		}
		if err := s.store.UpsertPlan(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed plan "+p.Name)
		}
	}
	return nil
}

func (s *Service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list plans")
	}
	return plans, nil
}

// CreateAccount registers an account and grants the welcome bonus. An empty
// plan leaves the account on fallback pricing.
func (s *Service) CreateAccount(ctx context.Context, rawEmail, name, planName string) (*models.Account, error) {
	addr, err := email.Normalize(rawEmail)
	if err != nil {
		return nil, err
	}
	planName = strings.TrimSpace(planName)
	if planName != "" {
		if _, err := s.store.FindPlan(ctx, planName); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeValidation, "unknown plan "+planName)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read plan")
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email.DeriveName(addr)
	}

	account := &models.Account{
		ID:        id.NewAccountID(),
		Email:     addr,
		Name:      name,
		PlanName:  planName,
		CreatedAt: requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}
	s.metrics.IncrementAccountsCreated()

	if s.credits != nil && s.welcomeBonus > 0 {
		if err := s.credits.Credit(ctx, account.ID, s.welcomeBonus, creditmodels.CategoryBonus, "welcome bonus"); err != nil {
			return nil, err
		}
	}
	s.logger.InfoContext(ctx, "account created",
		"account_id", account.ID.String(),
		"plan", account.PlanName,
	)
	return account, nil
}

func (s *Service) FindAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read account")
	}
	return account, nil
}

func (s *Service) FindAccountByEmail(ctx context.Context, rawEmail string) (*models.Account, error) {
	addr, err := email.Normalize(rawEmail)
	if err != nil {
		return nil, err
	}
	account, err := s.store.FindAccountByEmail(ctx, addr)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "account not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read account")
	}
	return account, nil
}

// IssuedKey carries the raw key, which is never stored or shown again.
type IssuedKey struct {
	Key *models.APIKey
	Raw string
}

func (s *Service) IssueKey(ctx context.Context, accountID id.AccountID, name string) (*IssuedKey, error) {
	if _, err := s.FindAccount(ctx, accountID); err != nil {
		return nil, err
	}
	secret, err := secrets.Generate()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.HashCost(secret, s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}

	key := &models.APIKey{
		ID:         id.NewAPIKeyID(),
		AccountID:  accountID,
		Name:       strings.TrimSpace(name),
		SecretHash: hash,
		CreatedAt:  requestcontext.Now(ctx).UTC(),
	}
	if err := s.store.CreateKey(ctx, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store api key")
	}
	s.metrics.IncrementKeysIssued()
	return &IssuedKey{Key: key, Raw: models.FormatKey(key.ID, secret)}, nil
}

func (s *Service) RevokeKey(ctx context.Context, keyID id.APIKeyID) error {
	if err := s.store.RevokeKey(ctx, keyID, requestcontext.Now(ctx).UTC()); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke api key")
	}
	s.logger.InfoContext(ctx, "api key revoked", "key_id", keyID.String())
	return nil
}

// RevokeOwnedKey revokes keyID only when it belongs to accountID. Keys of
// other accounts are reported as not found.
func (s *Service) RevokeOwnedKey(ctx context.Context, accountID id.AccountID, keyID id.APIKeyID) error {
	key, err := s.store.FindKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "api key not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read api key")
	}
	if key.AccountID != accountID {
		return dErrors.New(dErrors.CodeNotFound, "api key not found")
	}
	return s.RevokeKey(ctx, keyID)
}

func (s *Service) ListKeys(ctx context.Context, accountID id.AccountID) ([]*models.APIKey, error) {
	keys, err := s.store.ListKeys(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list api keys")
	}
	return keys, nil
}

// Authenticate resolves a raw API key to its account and plan. Every
// credential failure is the same CodeUnauthorized error.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*models.Principal, error) {
	principal, err := s.authenticate(ctx, rawKey)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.metrics.ObserveAuth("rejected")
		} else {
			s.metrics.ObserveAuth("error")
		}
		return nil, err
	}
	s.metrics.ObserveAuth("accepted")
	return principal, nil
}

func (s *Service) authenticate(ctx context.Context, rawKey string) (*models.Principal, error) {
	unauthorized := dErrors.New(dErrors.CodeUnauthorized, "invalid api key")

	keyID, secret, err := models.ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	key, err := s.store.FindKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, unauthorized
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read api key")
	}
	if !key.IsActive() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "api key revoked")
	}
	if err := secrets.Verify(secret, key.SecretHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return nil, unauthorized
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify api key")
	}

	account, err := s.store.FindAccount(ctx, key.AccountID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, unauthorized
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read account")
	}

	var plan *models.Plan
	if account.PlanName != "" {
		plan, err = s.store.FindPlan(ctx, account.PlanName)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read plan")
		}
	}

	if err := s.store.TouchKey(ctx, key.ID, requestcontext.Now(ctx).UTC()); err != nil {
		s.logger.WarnContext(ctx, "failed to stamp api key usage", "key_id", key.ID.String(), "error", err)
	}
	return &models.Principal{Account: account, Plan: plan, KeyID: key.ID}, nil
}
