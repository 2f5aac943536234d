package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 2 << 20

// HTTPSource performs JSON GETs against one upstream and classifies failures
// into the provider error taxonomy. Adapters embed it and only map payloads.
type HTTPSource struct {
	name    string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	headers http.Header
}

// SourceOption configures an HTTPSource.
type SourceOption func(*HTTPSource)

// WithBaseURL overrides the upstream base URL (tests, mirrors).
func WithBaseURL(u string) SourceOption {
	return func(s *HTTPSource) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) SourceOption {
	return func(s *HTTPSource) {
		if c != nil {
			s.client = c
		}
	}
}

// WithRateLimit throttles outbound calls client-side. A denied call fails
// immediately with ErrorRateLimited instead of waiting.
func WithRateLimit(every time.Duration, burst int) SourceOption {
	return func(s *HTTPSource) {
		if every > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Every(every), burst)
		}
	}
}

// WithHeader adds a header to every request, e.g. an API token.
func WithHeader(key, value string) SourceOption {
	return func(s *HTTPSource) {
		if value != "" {
			s.headers.Set(key, value)
		}
	}
}

// NewHTTPSource builds a source for the named upstream.
func NewHTTPSource(name, defaultBaseURL string, opts ...SourceOption) *HTTPSource {
	s := &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(defaultBaseURL, "/"),
		client:  &http.Client{},
		headers: http.Header{},
	}
	s.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the effective upstream base URL.
func (s *HTTPSource) BaseURL() string {
	return s.baseURL
}

// GetJSON fetches baseURL+path and decodes the body into out. The deadline
// comes from ctx; the chain sets it per attempt.
func (s *HTTPSource) GetJSON(ctx context.Context, path string, out any) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return NewProviderError(ErrorRateLimited, s.name, "client-side throttle", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return NewProviderError(ErrorInternal, s.name, "build request", err)
	}
	for k, v := range s.headers {
		req.Header[k] = v
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return s.transportError(ctx, err)
	}

	if perr := s.statusError(resp.StatusCode); perr != nil {
		return perr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewProviderError(ErrorBadData, s.name, "malformed response body", err)
	}
	return nil
}

func (s *HTTPSource) transportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewProviderError(ErrorTimeout, s.name, "request timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return NewProviderError(ErrorTimeout, s.name, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ErrorInternal, s.name, "request canceled", err)
	default:
		return NewProviderError(ErrorProviderOutage, s.name, "request failed", err)
	}
}

func (s *HTTPSource) statusError(status int) *ProviderError {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := fmt.Sprintf("HTTP %d", status)
	var category ErrorCategory
	switch {
	case status == http.StatusNotFound:
		category = ErrorNotFound
	case status == http.StatusTooManyRequests:
		category = ErrorRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		category = ErrorAuthentication
	case status >= 500:
		category = ErrorProviderOutage
	default:
		category = ErrorBadData
	}
	perr := NewProviderError(category, s.name, msg, nil)
	perr.StatusCode = status
	return perr
}
