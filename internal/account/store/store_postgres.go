package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cnpjota/internal/account/models"
	creditmodels "cnpjota/internal/credit/models"
	"cnpjota/internal/platform/postgres"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/platform/tx"
)

// PostgresStore persists plans, accounts and api_keys.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) UpsertPlan(ctx context.Context, plan models.Plan) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO plans (name, credit_cost_millis, max_requests_per_second)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			credit_cost_millis = EXCLUDED.credit_cost_millis,
			max_requests_per_second = EXCLUDED.max_requests_per_second`,
		plan.Name, int64(plan.CreditCost), plan.MaxRequestsPerSecond,
	)
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindPlan(ctx context.Context, name string) (*models.Plan, error) {
	var (
		p    models.Plan
		cost int64
	)
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT name, credit_cost_millis, max_requests_per_second FROM plans WHERE name = $1`, name,
	).Scan(&p.Name, &cost, &p.MaxRequestsPerSecond)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find plan: %w", err)
	}
	p.CreditCost = creditmodels.Amount(cost)
	return &p, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		`SELECT name, credit_cost_millis, max_requests_per_second FROM plans ORDER BY credit_cost_millis DESC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []models.Plan
	for rows.Next() {
		var (
			p    models.Plan
			cost int64
		)
		if err := rows.Scan(&p.Name, &cost, &p.MaxRequestsPerSecond); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		p.CreditCost = creditmodels.Amount(cost)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account *models.Account) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, plan_name, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		account.ID.String(), account.Email, account.Name, nullString(account.PlanName), account.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

const selectAccount = `SELECT id, email, name, plan_name, created_at FROM accounts`

func (s *PostgresStore) FindAccount(ctx context.Context, accountID id.AccountID) (*models.Account, error) {
	return scanAccount(tx.Pick(ctx, s.db).QueryRowContext(ctx, selectAccount+` WHERE id = $1`, accountID.String()))
}

func (s *PostgresStore) FindAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return scanAccount(tx.Pick(ctx, s.db).QueryRowContext(ctx, selectAccount+` WHERE email = $1`, email))
}

func (s *PostgresStore) CreateKey(ctx context.Context, key *models.APIKey) error {
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO api_keys (id, account_id, name, secret_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		key.ID.String(), key.AccountID.String(), key.Name, key.SecretHash, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

const selectKey = `SELECT id, account_id, name, secret_hash, created_at, last_used_at, revoked_at FROM api_keys`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) FindKey(ctx context.Context, keyID id.APIKeyID) (*models.APIKey, error) {
	k, err := scanKey(tx.Pick(ctx, s.db).QueryRowContext(ctx, selectKey+` WHERE id = $1`, keyID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find api key: %w", err)
	}
	return k, nil
}

func (s *PostgresStore) ListKeys(ctx context.Context, accountID id.AccountID) ([]*models.APIKey, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx,
		selectKey+` WHERE account_id = $1 ORDER BY created_at DESC, id`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return out, nil
}

func scanKey(row rowScanner) (*models.APIKey, error) {
	var (
		k         models.APIKey
		rawID     uuid.UUID
		accountID uuid.UUID
		lastUsed  sql.NullTime
		revoked   sql.NullTime
	)
	if err := row.Scan(&rawID, &accountID, &k.Name, &k.SecretHash, &k.CreatedAt, &lastUsed, &revoked); err != nil {
		return nil, err
	}
	k.ID = id.APIKeyID(rawID)
	k.AccountID = id.AccountID(accountID)
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	if revoked.Valid {
		k.RevokedAt = &revoked.Time
	}
	return &k, nil
}

func (s *PostgresStore) TouchKey(ctx context.Context, keyID id.APIKeyID, at time.Time) error {
	return s.updateKey(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
}

func (s *PostgresStore) RevokeKey(ctx context.Context, keyID id.APIKeyID, at time.Time) error {
	return s.updateKey(ctx, `UPDATE api_keys SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`, keyID, at)
}

func (s *PostgresStore) updateKey(ctx context.Context, query string, keyID id.APIKeyID, at time.Time) error {
	res, err := tx.Pick(ctx, s.db).ExecContext(ctx, query, keyID.String(), at)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var (
		a     models.Account
		rawID uuid.UUID
		plan  sql.NullString
	)
	if err := row.Scan(&rawID, &a.Email, &a.Name, &plan, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	a.ID = id.AccountID(rawID)
	a.PlanName = plan.String
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
