package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	accountmetrics "cnpjota/internal/account/metrics"
	account "cnpjota/internal/account/service"
	accountstore "cnpjota/internal/account/store"
	auditmetrics "cnpjota/internal/audit/metrics"
	"cnpjota/internal/audit/publisher"
	"cnpjota/internal/audit/publisher/kafka"
	auditstore "cnpjota/internal/audit/store"
	creditmetrics "cnpjota/internal/credit/metrics"
	creditmodels "cnpjota/internal/credit/models"
	credit "cnpjota/internal/credit/service"
	creditstore "cnpjota/internal/credit/store"
	meteringmetrics "cnpjota/internal/metering/metrics"
	metering "cnpjota/internal/metering/service"
	"cnpjota/internal/platform/config"
	"cnpjota/internal/platform/httpserver"
	"cnpjota/internal/platform/logger"
	"cnpjota/internal/platform/metrics"
	"cnpjota/internal/platform/postgres"
	"cnpjota/internal/platform/redis"
	ratelimitmetrics "cnpjota/internal/ratelimit/metrics"
	ratelimit "cnpjota/internal/ratelimit/service"
	"cnpjota/internal/ratelimit/store/window"
	registrymetrics "cnpjota/internal/registry/metrics"
	"cnpjota/internal/registry/providers"
	"cnpjota/internal/registry/providers/brasilapi"
	"cnpjota/internal/registry/providers/cnpja"
	"cnpjota/internal/registry/providers/opencnpj"
	"cnpjota/internal/registry/providers/receitaws"
	registry "cnpjota/internal/registry/service"
	registrystore "cnpjota/internal/registry/store"
	httptransport "cnpjota/internal/transport/http"
	"cnpjota/pkg/platform/circuit"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		slog.Error("cnpjota stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
	}
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}
	log.Info("storage configured", "postgres", db != nil, "redis", rdb != nil, "kafka", len(cfg.Kafka.Brokers) > 0)

	ledger, err := credit.New(ledgerStore(db),
		credit.WithFallbackCost(creditmodels.Amount(cfg.Billing.DefaultCostMillis)),
		credit.WithLogger(log),
		credit.WithMetrics(creditmetrics.New()),
	)
	if err != nil {
		return err
	}

	accounts, err := account.New(accountStore(db),
		account.WithCrediter(ledger),
		account.WithWelcomeBonus(creditmodels.Amount(cfg.Billing.WelcomeBonusMillis)),
		account.WithLogger(log),
		account.WithMetrics(accountmetrics.New()),
	)
	if err != nil {
		return err
	}
	if err := accounts.SeedPlans(ctx); err != nil {
		return err
	}

	lookups, err := buildRegistry(cfg, db, rdb, log)
	if err != nil {
		return err
	}

	limiter, err := buildLimiter(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}

	audit, closeAudit, err := buildAudit(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	// runs before closeAudit, after srv.Shutdown has returned
	stopStream := startAuditStream(ctx, audit, log)
	defer stopStream()

	metered, err := metering.New(lookups, limiter, ledger, audit,
		metering.WithDefaultRequestsPerSecond(cfg.RateLimit.DefaultPerSecond),
		metering.WithWindow(cfg.RateLimit.Window),
		metering.WithLogger(log),
		metering.WithMetrics(meteringmetrics.New()),
	)
	if err != nil {
		return err
	}

	checks := map[string]httptransport.HealthCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = rdb.Health
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Authenticator: accounts,
		Metering:      metered,
		Ledger:        ledger,
		Keys:          accounts,
		AdminToken:    cfg.Server.AdminToken,
		Checks:        checks,
		Logger:        log,
		Metrics:       metrics.New(),
	})
	if cfg.Server.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN is empty; admin routes are disabled")
	}

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadHeaderTimeout)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting cnpjota", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ledgerStore(db *sql.DB) credit.Store {
	if db != nil {
		return creditstore.NewPostgres(db)
	}
	return creditstore.NewInMemoryStore()
}

func accountStore(db *sql.DB) account.Store {
	if db != nil {
		return accountstore.NewPostgres(db)
	}
	return accountstore.NewInMemoryStore()
}

// buildRegistry prefers Postgres for the record cache, then Redis, then memory.
func buildRegistry(cfg config.Config, db *sql.DB, rdb *redis.Client, log *slog.Logger) (*registry.Service, error) {
	m := registrymetrics.New()

	var cache registry.CacheStore
	switch {
	case db != nil:
		cache = registrystore.NewPostgresCache(db, m)
	case rdb != nil:
		cache = registrystore.NewRedisCache(rdb.Client, m)
	default:
		cache = registrystore.NewInMemoryCache(m)
	}

	rc := cfg.Registry
	receitaOpts := []providers.SourceOption{providers.WithBaseURL(rc.ReceitaWSURL)}
	if rc.ReceitaWSPerMinute > 0 {
		receitaOpts = append(receitaOpts, providers.WithRateLimit(time.Minute/time.Duration(rc.ReceitaWSPerMinute), rc.ReceitaWSPerMinute))
	}
	chain, err := providers.NewChain([]providers.Provider{
		brasilapi.New(providers.WithBaseURL(rc.BrasilAPIURL)),
		opencnpj.New(providers.WithBaseURL(rc.OpenCNPJURL)),
		cnpja.New(providers.WithBaseURL(rc.CNPJaURL), providers.WithHeader("Authorization", rc.CNPJaToken)),
		receitaws.New(receitaOpts...),
	},
		providers.WithAttemptTimeout(rc.ProviderTimeout),
		providers.WithLogger(log),
		providers.WithMetrics(m),
		providers.WithTracer(otel.Tracer("cnpjota/registry/providers")),
	)
	if err != nil {
		return nil, err
	}
	log.Info("cnpj provider chain ready", "order", chain.Names())

	return registry.New(cache, chain,
		registry.WithMaxAgeDays(rc.CacheMaxAgeDays),
		registry.WithStoreTimeout(cfg.Database.StoreTimeout),
		registry.WithCoalescing(rc.Coalesce),
		registry.WithLogger(log),
		registry.WithMetrics(m),
	)
}

// buildLimiter shares windows through Redis when available and degrades to
// in-process windows while Redis is failing.
func buildLimiter(ctx context.Context, cfg config.Config, rdb *redis.Client, log *slog.Logger) (*ratelimit.Limiter, error) {
	m := ratelimitmetrics.New()
	local := window.NewInMemoryStore()
	go local.RunSweeper(ctx, cfg.RateLimit.SweepInterval)

	if rdb == nil {
		return ratelimit.New(local, ratelimit.WithLogger(log), ratelimit.WithMetrics(m))
	}
	return ratelimit.New(window.NewRedisStore(rdb.Client),
		ratelimit.WithFallback(local, circuit.New("ratelimit-redis")),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
	)
}

func buildAudit(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) (*publisher.Publisher, func(), error) {
	var store publisher.Store = auditstore.NewInMemoryStore()
	if db != nil {
		store = auditstore.NewPostgres(db)
	}

	opts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(auditmetrics.New()),
	}
	closer := func() {}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafka.New(ctx, cfg.Kafka.Brokers,
			kafka.WithTopic(cfg.Kafka.AuditTopic),
			kafka.WithLogger(log),
		)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, publisher.WithSink(sink))
		closer = sink.Close
	}

	p, err := publisher.New(store, opts...)
	if err != nil {
		return nil, nil, err
	}
	return p, closer, nil
}
