package testutil

import (
	"net/http"
	"time"

	"cnpjota/pkg/platform/middleware/auth"
	"cnpjota/pkg/requestcontext"
)

// WithPrincipal stores p as the auth middleware would for a valid API key.
func WithPrincipal[P any](req *http.Request, p P) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}

// WithBearer sets an Authorization header carrying key.
func WithBearer(req *http.Request, key string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+key)
	return req
}
