// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// a service and encode; business rules live in the services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accountmodels "cnpjota/internal/account/models"
	"cnpjota/internal/platform/metrics"
	"cnpjota/pkg/platform/middleware/admin"
	"cnpjota/pkg/platform/middleware/auth"
	"cnpjota/pkg/platform/middleware/metadata"
	"cnpjota/pkg/platform/middleware/requestlog"
	"cnpjota/pkg/platform/middleware/requesttime"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Authenticator auth.Authenticator[*accountmodels.Principal]
	Metering      MeteringService
	Ledger        LedgerService
	Keys          KeyService
	AdminToken    string
	// Checks run on GET /health, keyed by dependency name.
	Checks  map[string]HealthCheck
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func NewRouter(d Deps) chi.Router {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(requestlog.Middleware(logger))
	r.Use(d.Metrics.Middleware)
	r.Use(chimw.Recoverer)

	health := &healthHandler{checks: d.Checks, logger: logger}
	r.Get("/health", health.HandleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	lookups := &lookupHandler{metering: d.Metering, logger: logger}
	credits := &creditHandler{ledger: d.Ledger, logger: logger}
	keys := &keyHandler{keys: d.Keys, logger: logger}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.RequireAPIKey(d.Authenticator, logger))
		v1.Get("/cnpj/{cnpj}", lookups.HandleLookup)
		v1.Get("/stats", lookups.HandleStats)
		v1.Get("/credits", credits.HandleBalance)
		v1.Route("/keys", func(k chi.Router) {
			k.Get("/", keys.HandleList)
			k.Post("/", keys.HandleCreate)
			k.Delete("/{id}", keys.HandleRevoke)
		})
	})

	r.Route("/admin", func(a chi.Router) {
		a.Use(admin.RequireAdminToken(d.AdminToken, logger))
		a.Post("/credits", credits.HandleGrant)
	})

	return r
}

func principalFrom(ctx context.Context) *accountmodels.Principal {
	p, _ := auth.Principal[*accountmodels.Principal](ctx)
	return p
}
