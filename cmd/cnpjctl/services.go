package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"

	account "cnpjota/internal/account/service"
	accountstore "cnpjota/internal/account/store"
	creditmodels "cnpjota/internal/credit/models"
	credit "cnpjota/internal/credit/service"
	creditstore "cnpjota/internal/credit/store"
	"cnpjota/internal/platform/config"
	"cnpjota/internal/platform/postgres"
)

var errNoDatabase = errors.New("DATABASE_URL is not set")

// services are the persistent components the CLI mutates.
type services struct {
	db       *sql.DB
	accounts *account.Service
	ledger   *credit.Service
}

func (s *services) Close() error {
	return s.db.Close()
}

func openDB(ctx context.Context) (*sql.DB, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, cfg, err
	}
	if db == nil {
		return nil, cfg, errNoDatabase
	}
	return db, cfg, nil
}

func openServices(ctx context.Context) (*services, error) {
	db, cfg, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger, err := credit.New(creditstore.NewPostgres(db),
		credit.WithFallbackCost(creditmodels.Amount(cfg.Billing.DefaultCostMillis)),
		credit.WithLogger(quiet),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	accounts, err := account.New(accountstore.NewPostgres(db),
		account.WithCrediter(ledger),
		account.WithWelcomeBonus(creditmodels.Amount(cfg.Billing.WelcomeBonusMillis)),
		account.WithLogger(quiet),
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &services{db: db, accounts: accounts, ledger: ledger}, nil
}
