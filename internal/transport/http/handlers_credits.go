package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	creditmodels "cnpjota/internal/credit/models"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/httputil"
	"cnpjota/pkg/requestcontext"
)

type LedgerService interface {
	Balance(ctx context.Context, subject id.AccountID) (creditmodels.Amount, error)
	History(ctx context.Context, subject id.AccountID, limit int) ([]*creditmodels.Entry, error)
	Credit(ctx context.Context, subject id.AccountID, amount creditmodels.Amount, category creditmodels.Category, reason string) error
}

type creditHandler struct {
	ledger LedgerService
	logger *slog.Logger
}

// HandleBalance handles GET /v1/credits.
func (h *creditHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFrom(ctx)
	if principal == nil || principal.Account == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	subject := principal.Account.ID

	balance, err := h.ledger.Balance(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	history, err := h.ledger.History(ctx, subject, 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, balanceResponse{
		Balance: balance.Float(),
		History: toEntries(history),
	}, nil)
}

// HandleGrant handles POST /admin/credits.
func (h *creditHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[grantRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subject, err := id.ParseAccountID(strings.TrimSpace(req.SubjectID))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid subject_id"))
		return
	}
	category := creditmodels.CategoryPurchase
	if req.Category != "" {
		if category, err = creditmodels.ParseCategory(req.Category); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid category"))
			return
		}
	}
	amount := creditmodels.Credits(req.Amount)

	if err := h.ledger.Credit(ctx, subject, amount, category, req.Reason); err != nil {
		httputil.WriteError(w, err)
		return
	}
	balance, err := h.ledger.Balance(ctx, subject)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "admin credit grant",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", subject.String(),
		"amount", amount.String(),
		"category", category,
	)
	httputil.WriteSuccess(w, http.StatusCreated, grantResponse{
		SubjectID: subject.String(),
		Granted:   amount.Float(),
		Balance:   balance.Float(),
	}, nil)
}
