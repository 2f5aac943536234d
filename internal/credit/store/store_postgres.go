package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/platform/tx"
)

// PostgresStore appends to credit_entries. Balances are computed with SUM on
// read; there is no balance column to drift.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertEntry = `
INSERT INTO credit_entries (id, account_id, amount_millis, category, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

const sumEntries = `SELECT COALESCE(SUM(amount_millis), 0) FROM credit_entries WHERE account_id = $1`

func (s *PostgresStore) Append(ctx context.Context, entry *models.Entry) error {
	if entry == nil {
		return errEntryRequired
	}
	if err := insert(ctx, tx.Pick(ctx, s.db), entry); err != nil {
		return fmt.Errorf("append credit entry: %w", err)
	}
	return nil
}

// AppendIfSufficient serializes writers per subject with a transaction-scoped
// advisory lock, then checks the sum and inserts in the same transaction.
func (s *PostgresStore) AppendIfSufficient(ctx context.Context, entry *models.Entry) (models.Amount, bool, error) {
	if entry == nil {
		return 0, false, errEntryRequired
	}

	var (
		balance models.Amount
		applied bool
	)
	err := tx.Run(ctx, s.db, func(ctx context.Context, t *sql.Tx) error {
		subject := entry.SubjectID.String()
		if _, err := t.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, subject); err != nil {
			return fmt.Errorf("lock subject: %w", err)
		}
		var current int64
		if err := t.QueryRowContext(ctx, sumEntries, subject).Scan(&current); err != nil {
			return fmt.Errorf("sum credit entries: %w", err)
		}
		balance = models.Amount(current)
		if balance+entry.Amount < 0 {
			return nil
		}
		if err := insert(ctx, t, entry); err != nil {
			return err
		}
		balance += entry.Amount
		applied = true
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("conditional append credit entry: %w", err)
	}
	return balance, applied, nil
}

func (s *PostgresStore) Balance(ctx context.Context, subject id.AccountID) (models.Amount, error) {
	var total int64
	if err := tx.Pick(ctx, s.db).QueryRowContext(ctx, sumEntries, subject.String()).Scan(&total); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return models.Amount(total), nil
}

func (s *PostgresStore) History(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	query := `
		SELECT id, account_id, amount_millis, category, reason, created_at
		FROM credit_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, seq DESC`
	args := []any{subject.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("credit history: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		var (
			e         models.Entry
			entryID   uuid.UUID
			accountID uuid.UUID
			amount    int64
			category  string
		)
		if err := rows.Scan(&entryID, &accountID, &amount, &category, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit entry: %w", err)
		}
		e.ID = entryID
		e.SubjectID = id.AccountID(accountID)
		e.Amount = models.Amount(amount)
		e.Category = models.Category(category)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit entries: %w", err)
	}
	return out, nil
}

func insert(ctx context.Context, exec tx.Execer, e *models.Entry) error {
	_, err := exec.ExecContext(ctx, insertEntry,
		e.ID.String(),
		e.SubjectID.String(),
		int64(e.Amount),
		string(e.Category),
		e.Reason,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credit entry: %w", err)
	}
	return nil
}
