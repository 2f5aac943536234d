// Package auth guards routes with API keys. The key is read from
// "Authorization: Bearer <key>" or, failing that, "X-API-Key".
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "cnpjota/pkg/domain-errors"
	"cnpjota/pkg/platform/httputil"
	"cnpjota/pkg/requestcontext"
)

const APIKeyHeader = "X-API-Key"

// Authenticator resolves a raw API key into the caller's principal.
type Authenticator[P any] interface {
	Authenticate(ctx context.Context, rawKey string) (P, error)
}

type contextKeyPrincipal struct{}

// Principal returns the principal stored by RequireAPIKey.
func Principal[P any](ctx context.Context) (P, bool) {
	p, ok := ctx.Value(contextKeyPrincipal{}).(P)
	return p, ok
}

// WithPrincipal stores p the way RequireAPIKey does. Handler tests use it to
// skip the middleware.
func WithPrincipal[P any](ctx context.Context, p P) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

// KeyFromRequest extracts the raw API key, or "" when none was sent.
func KeyFromRequest(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func RequireAPIKey[P any](authn Authenticator[P], logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := KeyFromRequest(r)
			if raw == "" {
				logger.WarnContext(ctx, "unauthorized access - missing api key",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "api key required"))
				return
			}

			principal, err := authn.Authenticate(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid api key",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}
