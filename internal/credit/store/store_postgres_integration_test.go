//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"cnpjota/internal/credit/models"
	"cnpjota/internal/credit/store"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *PostgresLedgerSuite) entry(subject id.AccountID, amount models.Amount, category models.Category, reason string) *models.Entry {
	e, err := models.NewEntry(subject, amount, category, reason, time.Now().UTC())
	s.Require().NoError(err)
	return e
}

func (s *PostgresLedgerSuite) TestBalanceAndHistory() {
	ctx := context.Background()
	subject := id.NewAccountID()

	s.Require().NoError(s.store.Append(ctx, s.entry(subject, 1000, models.CategoryBonus, "welcome")))
	s.Require().NoError(s.store.Append(ctx, s.entry(subject, -330, models.CategoryDeduction, "lookup")))

	balance, err := s.store.Balance(ctx, subject)
	s.Require().NoError(err)
	s.Equal(models.Amount(670), balance)

	history, err := s.store.History(ctx, subject, 10)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal("lookup", history[0].Reason)
	s.Equal(subject, history[0].SubjectID)
	s.Equal(models.CategoryDeduction, history[0].Category)
}

func (s *PostgresLedgerSuite) TestAppendIfSufficientRefusesOverdraft() {
	ctx := context.Background()
	subject := id.NewAccountID()
	s.Require().NoError(s.store.Append(ctx, s.entry(subject, 30, models.CategoryPurchase, "")))

	balance, applied, err := s.store.AppendIfSufficient(ctx, s.entry(subject, -50, models.CategoryDeduction, ""))
	s.Require().NoError(err)
	s.False(applied)
	s.Equal(models.Amount(30), balance)

	balance, applied, err = s.store.AppendIfSufficient(ctx, s.entry(subject, -20, models.CategoryDeduction, ""))
	s.Require().NoError(err)
	s.True(applied)
	s.Equal(models.Amount(10), balance)
}

func (s *PostgresLedgerSuite) TestConcurrentDeductionsSerialize() {
	ctx := context.Background()
	subject := id.NewAccountID()
	s.Require().NoError(s.store.Append(ctx, s.entry(subject, 1000, models.CategoryPurchase, "")))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.store.AppendIfSufficient(ctx, s.entry(subject, -330, models.CategoryDeduction, "race"))
			s.NoError(err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(3, applied)
	balance, err := s.store.Balance(ctx, subject)
	s.Require().NoError(err)
	s.Equal(models.Amount(10), balance)
}
