package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"cnpjota/internal/account/models"
	"cnpjota/internal/account/store"
	creditmodels "cnpjota/internal/credit/models"
	creditservice "cnpjota/internal/credit/service"
	creditstore "cnpjota/internal/credit/store"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/requestcontext"
)

type AccountSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	store   *store.InMemoryStore
	credits *creditservice.Service
	service *Service
}

func TestAccountSuite(t *testing.T) {
	suite.Run(t, new(AccountSuite))
}

func (s *AccountSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemoryStore()

	var err error
	s.credits, err = creditservice.New(creditstore.NewInMemoryStore())
	s.Require().NoError(err)
	s.service, err = New(s.store, WithCrediter(s.credits), WithHashCost(bcrypt.MinCost))
	s.Require().NoError(err)
	s.Require().NoError(s.service.SeedPlans(s.ctx))
}

func (s *AccountSuite) TestSeedPlans() {
	plans, err := s.service.ListPlans(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(plans, 3)
	s.Equal("basic", plans[0].Name)

	err = s.service.SeedPlans(s.ctx, models.Plan{Name: "broken"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *AccountSuite) TestCreateAccount() {
	s.Run("grants the welcome bonus", func() {
		account, err := s.service.CreateAccount(s.ctx, "Ana.Souza@Acme.com.br", "", "pro")
		s.Require().NoError(err)
		s.Equal("ana.souza@acme.com.br", account.Email)
		s.Equal("Ana Souza", account.Name)
		s.Equal("pro", account.PlanName)
		s.Equal(s.now, account.CreatedAt)

		balance, err := s.credits.Balance(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Equal(creditmodels.Credits(100), balance)

		history, err := s.credits.History(s.ctx, account.ID, 0)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(creditmodels.CategoryBonus, history[0].Category)
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.service.CreateAccount(s.ctx, "dup@acme.com", "Dup", "")
		s.Require().NoError(err)
		_, err = s.service.CreateAccount(s.ctx, "DUP@acme.com", "Dup", "")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown plan rejected", func() {
		_, err := s.service.CreateAccount(s.ctx, "x@acme.com", "", "platinum")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("no bonus when disabled", func() {
		svc, err := New(s.store, WithCrediter(s.credits), WithWelcomeBonus(0))
		s.Require().NoError(err)
		account, err := svc.CreateAccount(s.ctx, "nobonus@acme.com", "", "")
		s.Require().NoError(err)

		balance, err := s.credits.Balance(s.ctx, account.ID)
		s.Require().NoError(err)
		s.Zero(balance)
	})
}

func (s *AccountSuite) TestAuthenticate() {
	account, err := s.service.CreateAccount(s.ctx, "dev@acme.com", "Dev", "business")
	s.Require().NoError(err)
	issued, err := s.service.IssueKey(s.ctx, account.ID, "ci")
	s.Require().NoError(err)
	s.True(strings.HasPrefix(issued.Raw, models.KeyPrefix))
	s.NotContains(issued.Key.SecretHash, strings.TrimPrefix(issued.Raw, models.KeyPrefix))

	s.Run("valid key resolves account and plan", func() {
		later := requestcontext.WithTime(s.ctx, s.now.Add(time.Minute))
		principal, err := s.service.Authenticate(later, issued.Raw)
		s.Require().NoError(err)
		s.Equal(account.ID, principal.Account.ID)
		s.Require().NotNil(principal.Plan)
		s.Equal("business", principal.Plan.Name)
		s.Equal(10, principal.RequestsPerSecond(2))
		s.Equal(issued.Key.ID, principal.KeyID)

		key, err := s.store.FindKey(s.ctx, issued.Key.ID)
		s.Require().NoError(err)
		s.Require().NotNil(key.LastUsedAt)
		s.Equal(s.now.Add(time.Minute), *key.LastUsedAt)
	})

	s.Run("wrong secret", func() {
		keyID, _, err := models.ParseKey(issued.Raw)
		s.Require().NoError(err)
		_, err = s.service.Authenticate(s.ctx, models.FormatKey(keyID, "guess"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown key id", func() {
		_, err := s.service.Authenticate(s.ctx, models.FormatKey(id.NewAPIKeyID(), "guess"))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("garbage", func() {
		_, err := s.service.Authenticate(s.ctx, "Bearer nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("revoked key", func() {
		extra, err := s.service.IssueKey(s.ctx, account.ID, "temp")
		s.Require().NoError(err)
		s.Require().NoError(s.service.RevokeKey(s.ctx, extra.Key.ID))

		_, err = s.service.Authenticate(s.ctx, extra.Raw)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *AccountSuite) TestAuthenticateWithoutPlan() {
	account, err := s.service.CreateAccount(s.ctx, "free@acme.com", "", "")
	s.Require().NoError(err)
	issued, err := s.service.IssueKey(s.ctx, account.ID, "")
	s.Require().NoError(err)

	principal, err := s.service.Authenticate(s.ctx, issued.Raw)
	s.Require().NoError(err)
	s.Nil(principal.Plan)
	s.Equal(2, principal.RequestsPerSecond(2))
	s.Equal(creditservice.DefaultCost, s.credits.CostFor(principal.Plan))
}

func (s *AccountSuite) TestIssueKeyForUnknownAccount() {
	_, err := s.service.IssueKey(s.ctx, id.NewAccountID(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AccountSuite) TestKeyManagement() {
	owner, err := s.service.CreateAccount(s.ctx, "owner@acme.com", "", "basic")
	s.Require().NoError(err)
	stranger, err := s.service.CreateAccount(s.ctx, "stranger@acme.com", "", "basic")
	s.Require().NoError(err)

	first, err := s.service.IssueKey(s.ctx, owner.ID, "laptop")
	s.Require().NoError(err)
	second, err := s.service.IssueKey(requestcontext.WithTime(s.ctx, s.now.Add(time.Minute)), owner.ID, "ci")
	s.Require().NoError(err)

	s.Run("lists the account's keys newest first", func() {
		keys, err := s.service.ListKeys(s.ctx, owner.ID)
		s.Require().NoError(err)
		s.Require().Len(keys, 2)
		s.Equal(second.Key.ID, keys[0].ID)
		s.Equal(first.Key.ID, keys[1].ID)
		s.NotEmpty(keys[0].SecretHash)
	})

	s.Run("another account cannot revoke the key", func() {
		err := s.service.RevokeOwnedKey(s.ctx, stranger.ID, first.Key.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.service.Authenticate(s.ctx, first.Raw)
		s.NoError(err)
	})

	s.Run("owner revokes the key", func() {
		s.Require().NoError(s.service.RevokeOwnedKey(s.ctx, owner.ID, first.Key.ID))

		_, err := s.service.Authenticate(s.ctx, first.Raw)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		keys, err := s.service.ListKeys(s.ctx, owner.ID)
		s.Require().NoError(err)
		s.Require().Len(keys, 2)
		s.NotNil(keys[1].RevokedAt)
	})

	s.Run("unknown key", func() {
		err := s.service.RevokeOwnedKey(s.ctx, owner.ID, id.NewAPIKeyID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
