// Package requesttime captures one "now" per request so the rate limiter,
// cache staleness check, ledger entry and audit entry all agree on time.
package requesttime

import (
	"net/http"
	"time"

	"cnpjota/pkg/requestcontext"
)

// Middleware stores the request start time in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
