package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/models"
	"cnpjota/pkg/platform/sentinel"
	"cnpjota/pkg/platform/tx"
)

// PostgresCache persists records in the cnpj_records table. Address, contact
// and partners are JSONB so nil fields round-trip as null.
type PostgresCache struct {
	db      *sql.DB
	metrics *metrics.Metrics
}

func NewPostgresCache(db *sql.DB, m *metrics.Metrics) *PostgresCache {
	return &PostgresCache{db: db, metrics: m}
}

const selectRecord = `
SELECT cnpj, legal_name, trade_name, main_activity_code, main_activity_description,
       legal_nature, opened_on, status, status_date, capital, size,
       address, contact, partners, source, last_refreshed_at
FROM cnpj_records
WHERE cnpj = $1`

const upsertRecord = `
INSERT INTO cnpj_records (
    cnpj, legal_name, trade_name, main_activity_code, main_activity_description,
    legal_nature, opened_on, status, status_date, capital, size,
    address, contact, partners, source, last_refreshed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (cnpj) DO UPDATE SET
    legal_name = EXCLUDED.legal_name,
    trade_name = EXCLUDED.trade_name,
    main_activity_code = EXCLUDED.main_activity_code,
    main_activity_description = EXCLUDED.main_activity_description,
    legal_nature = EXCLUDED.legal_nature,
    opened_on = EXCLUDED.opened_on,
    status = EXCLUDED.status,
    status_date = EXCLUDED.status_date,
    capital = EXCLUDED.capital,
    size = EXCLUDED.size,
    address = EXCLUDED.address,
    contact = EXCLUDED.contact,
    partners = EXCLUDED.partners,
    source = EXCLUDED.source,
    last_refreshed_at = EXCLUDED.last_refreshed_at,
    updated_at = NOW()`

func (c *PostgresCache) Find(ctx context.Context, cnpj domain.CNPJ) (*models.Record, error) {
	start := time.Now()
	row := tx.Pick(ctx, c.db).QueryRowContext(ctx, selectRecord, cnpj.String())

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.metrics.RecordCacheMiss("postgres", time.Since(start))
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find cnpj record: %w", err)
	}
	c.metrics.RecordCacheHit("postgres", time.Since(start))
	return record, nil
}

func (c *PostgresCache) Upsert(ctx context.Context, cnpj domain.CNPJ, record *models.Record, source string) (*models.Record, error) {
	if record == nil {
		return nil, errRecordRequired
	}
	stored := stamp(ctx, cnpj, record, source)

	address, err := json.Marshal(stored.Address)
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	contact, err := json.Marshal(stored.Contact)
	if err != nil {
		return nil, fmt.Errorf("encode contact: %w", err)
	}
	var partners any
	if stored.Partners != nil {
		raw, err := json.Marshal(stored.Partners)
		if err != nil {
			return nil, fmt.Errorf("encode partners: %w", err)
		}
		partners = string(raw)
	}

	_, err = tx.Pick(ctx, c.db).ExecContext(ctx, upsertRecord,
		stored.CNPJ, stored.LegalName, stored.TradeName, stored.MainActivityCode, stored.MainActivityDescription,
		stored.LegalNature, stored.OpenedOn, stored.Status, stored.StatusDate, stored.Capital, stored.Size,
		string(address), string(contact), partners, stored.Source, stored.LastRefreshedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert cnpj record: %w", err)
	}
	return stored, nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		r                            models.Record
		tradeName, activityCode      sql.NullString
		activityDesc, legalNature    sql.NullString
		openedOn, status, statusDate sql.NullString
		size                         sql.NullString
		capital                      sql.NullFloat64
		address, contact, partners   []byte
	)
	err := row.Scan(
		&r.CNPJ, &r.LegalName, &tradeName, &activityCode, &activityDesc,
		&legalNature, &openedOn, &status, &statusDate, &capital, &size,
		&address, &contact, &partners, &r.Source, &r.LastRefreshedAt,
	)
	if err != nil {
		return nil, err
	}

	r.TradeName = nullString(tradeName)
	r.MainActivityCode = nullString(activityCode)
	r.MainActivityDescription = nullString(activityDesc)
	r.LegalNature = nullString(legalNature)
	r.OpenedOn = nullString(openedOn)
	r.Status = nullString(status)
	r.StatusDate = nullString(statusDate)
	r.Size = nullString(size)
	if capital.Valid {
		r.Capital = models.Float(capital.Float64)
	}
	if len(address) > 0 {
		if err := json.Unmarshal(address, &r.Address); err != nil {
			return nil, fmt.Errorf("decode address: %w", err)
		}
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &r.Contact); err != nil {
			return nil, fmt.Errorf("decode contact: %w", err)
		}
	}
	if len(partners) > 0 {
		if err := json.Unmarshal(partners, &r.Partners); err != nil {
			return nil, fmt.Errorf("decode partners: %w", err)
		}
	}
	r.LastRefreshedAt = r.LastRefreshedAt.UTC()
	return &r, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
