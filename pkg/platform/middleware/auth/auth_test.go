package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "cnpjota/pkg/domain-errors"
)

type staticAuthenticator map[string]string

func (a staticAuthenticator) Authenticate(_ context.Context, raw string) (string, error) {
	if who, ok := a[raw]; ok {
		return who, nil
	}
	return "", dErrors.Wrap(errors.New("no such key"), dErrors.CodeUnauthorized, "invalid api key")
}

func TestKeyFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"bearer", map[string]string{"Authorization": "Bearer cnpj_abc"}, "cnpj_abc"},
		{"x-api-key", map[string]string{APIKeyHeader: " cnpj_abc "}, "cnpj_abc"},
		{"bearer wins", map[string]string{"Authorization": "Bearer one", APIKeyHeader: "two"}, "one"},
		{"basic is ignored", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, KeyFromRequest(req))
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	handler := RequireAPIKey[string](staticAuthenticator{"good": "acct-1"}, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ok bool
			seen, ok = Principal[string](r.Context())
			require.True(t, ok)
			w.WriteHeader(http.StatusNoContent)
		}))

	t.Run("valid key reaches the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "acct-1", seen)
	})

	t.Run("missing key", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"unauthorized"`)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(APIKeyHeader, "bad")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
