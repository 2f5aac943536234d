package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"cnpjota/internal/audit/models"
	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/platform/tx"
)

// PostgresStore persists entries to cnpj_queries. Writes join an ambient
// transaction when one is on the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.Entry) error {
	if entry == nil {
		return errEntryRequired
	}
	const query = `
INSERT INTO cnpj_queries (
	id, account_id, cnpj, record_cnpj, cost_millis, source,
	success, error_message, request_id, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.Pick(ctx, s.db).ExecContext(ctx, query,
		entry.ID.String(),
		entry.SubjectID.String(),
		entry.CNPJ,
		nullable(entry.RecordCNPJ),
		int64(entry.Cost),
		entry.Source,
		entry.Success,
		nullable(entry.ErrorMessage),
		entry.RequestID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountSuccessful(ctx context.Context, subject id.AccountID) (int64, error) {
	var n int64
	err := tx.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cnpj_queries WHERE account_id = $1 AND success`,
		subject.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Recent(ctx context.Context, subject id.AccountID, limit int) ([]*models.Entry, error) {
	query := `
SELECT id, account_id, cnpj, record_cnpj, cost_millis, source,
       success, error_message, request_id, created_at
FROM cnpj_queries
WHERE account_id = $1
ORDER BY created_at DESC, id`
	args := []any{subject.String()}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		var (
			e          models.Entry
			accountID  uuid.UUID
			recordCNPJ sql.NullString
			errMsg     sql.NullString
			cost       int64
		)
		if err := rows.Scan(&e.ID, &accountID, &e.CNPJ, &recordCNPJ, &cost, &e.Source,
			&e.Success, &errMsg, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.SubjectID = id.AccountID(accountID)
		e.Cost = creditmodels.Amount(cost)
		if recordCNPJ.Valid {
			v := recordCNPJ.String
			e.RecordCNPJ = &v
		}
		if errMsg.Valid {
			v := errMsg.String
			e.ErrorMessage = &v
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
