package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	accountmodels "cnpjota/internal/account/models"
	account "cnpjota/internal/account/service"
	id "cnpjota/pkg/domain"
	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/httputil"
	"cnpjota/pkg/requestcontext"
)

const maxKeyNameLength = 100

type KeyService interface {
	ListKeys(ctx context.Context, accountID id.AccountID) ([]*accountmodels.APIKey, error)
	IssueKey(ctx context.Context, accountID id.AccountID, name string) (*account.IssuedKey, error)
	RevokeOwnedKey(ctx context.Context, accountID id.AccountID, keyID id.APIKeyID) error
}

type keyHandler struct {
	keys   KeyService
	logger *slog.Logger
}

// HandleList handles GET /v1/keys.
func (h *keyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFrom(ctx)
	if principal == nil || principal.Account == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	keys, err := h.keys.ListKeys(ctx, principal.Account.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toKeys(keys), nil)
}

// HandleCreate handles POST /v1/keys. The raw key is in this response only.
func (h *keyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFrom(ctx)
	if principal == nil || principal.Account == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, err := httputil.DecodeJSON[createKeyRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxKeyNameLength {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "name must have 1 to 100 characters"))
		return
	}

	issued, err := h.keys.IssueKey(ctx, principal.Account.ID, name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "api key issued",
		"request_id", requestcontext.RequestID(ctx),
		"account_id", principal.Account.ID.String(),
		"key_id", issued.Key.ID.String(),
	)
	httputil.WriteSuccess(w, http.StatusCreated, createdKeyResponse{
		ID:        issued.Key.ID.String(),
		Key:       issued.Raw,
		Name:      issued.Key.Name,
		CreatedAt: issued.Key.CreatedAt,
	}, nil)
}

// HandleRevoke handles DELETE /v1/keys/{id}. A caller may revoke the key it
// is currently using.
func (h *keyHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal := principalFrom(ctx)
	if principal == nil || principal.Account == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	keyID, err := id.ParseAPIKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid key id"))
		return
	}
	if err := h.keys.RevokeOwnedKey(ctx, principal.Account.ID, keyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, revokedKeyResponse{ID: keyID.String(), Revoked: true}, nil)
}
