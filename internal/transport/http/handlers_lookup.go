package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	accountmodels "cnpjota/internal/account/models"
	creditmodels "cnpjota/internal/credit/models"
	metering "cnpjota/internal/metering/service"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/httputil"
	"cnpjota/pkg/requestcontext"
)

type MeteringService interface {
	Lookup(ctx context.Context, principal *accountmodels.Principal, raw string) (*metering.Result, error)
	Stats(ctx context.Context, principal *accountmodels.Principal) (*metering.Stats, error)
}

type lookupHandler struct {
	metering MeteringService
	logger   *slog.Logger
}

// HandleLookup handles GET /v1/cnpj/{cnpj}.
func (h *lookupHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	raw, err := url.PathUnescape(chi.URLParam(r, "cnpj"))
	if err != nil || raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "cnpj is required"))
		return
	}

	res, err := h.metering.Lookup(ctx, principalFrom(ctx), raw)
	if err != nil {
		var short *creditmodels.InsufficientError
		if errors.As(err, &short) {
			httputil.WriteErrorWithMeta(w, err, lookupMeta{
				Timestamp:        requestcontext.Now(ctx),
				CreditCost:       short.Required.Float(),
				CreditsRemaining: short.Balance.Float(),
			})
			return
		}
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "cnpj lookup failed",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	fromCache := res.FromCache
	h.logger.DebugContext(ctx, "cnpj lookup served",
		"request_id", requestcontext.RequestID(ctx),
		"provenance", res.Provenance,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteSuccess(w, http.StatusOK, res.Record, lookupMeta{
		Timestamp:        requestcontext.Now(ctx),
		CreditCost:       res.Cost.Float(),
		CreditsRemaining: res.Balance.Float(),
		Source:           res.Provenance,
		FromCache:        &fromCache,
	})
}

// HandleStats handles GET /v1/stats.
func (h *lookupHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.metering.Stats(ctx, principalFrom(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, statsResponse{
		Credits:       stats.Balance.Float(),
		TotalQueries:  stats.TotalQueries,
		RecentQueries: toRecentQueries(stats.Recent),
	}, nil)
}
