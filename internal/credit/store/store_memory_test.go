package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
)

func entry(t *testing.T, subject id.AccountID, amount models.Amount, category models.Category, at time.Time) *models.Entry {
	t.Helper()
	e, err := models.NewEntry(subject, amount, category, "test", at)
	require.NoError(t, err)
	return e
}

func TestInMemoryAppendIfSufficient(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewAccountID()
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, entry(t, subject, 1000, models.CategoryPurchase, now)))

	balance, ok, err := s.AppendIfSufficient(ctx, entry(t, subject, -330, models.CategoryDeduction, now))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.Amount(670), balance)

	balance, ok, err = s.AppendIfSufficient(ctx, entry(t, subject, -671, models.CategoryDeduction, now))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.Amount(670), balance, "short balance is reported unchanged")

	history, err := s.History(ctx, subject, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	_, _, err = s.AppendIfSufficient(ctx, nil)
	assert.ErrorIs(t, err, errEntryRequired)
}

func TestInMemoryConcurrentDeductions(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewAccountID()
	now := time.Now()
	require.NoError(t, s.Append(ctx, entry(t, subject, 3300, models.CategoryPurchase, now)))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.AppendIfSufficient(ctx, entry(t, subject, -330, models.CategoryDeduction, now))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, applied)
	balance, err := s.Balance(ctx, subject)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestInMemoryHistoryLimitAndCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	subject := id.NewAccountID()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, s.Append(ctx, entry(t, subject, models.Amount(1000*(i+1)), models.CategoryBonus, base.Add(time.Duration(i)*time.Minute))))
	}

	history, err := s.History(ctx, subject, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.Amount(3000), history[0].Amount)
	assert.Equal(t, models.Amount(2000), history[1].Amount)

	history[0].Amount = 1
	again, err := s.History(ctx, subject, 1)
	require.NoError(t, err)
	assert.Equal(t, models.Amount(3000), again[0].Amount)
}
