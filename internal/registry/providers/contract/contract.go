// Package contract holds reusable tests every provider adapter must pass
// against a canned upstream.
package contract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cnpjota/internal/registry/domain"
	"cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
)

// Factory builds the adapter under test pointed at baseURL.
type Factory func(baseURL string) providers.Provider

// ContractTest is one canned upstream response and its expected mapping.
type ContractTest struct {
	Name         string
	CNPJ         domain.CNPJ
	Status       int
	Body         string
	ValidateFunc func(t *testing.T, record *models.Record)
}

// ContractSuite is a collection of contract tests for a provider
type ContractSuite struct {
	ProviderName string
	Priority     int
	// Path is the expected request path with {cnpj} as placeholder.
	Path    string
	Factory Factory
	Tests   []ContractTest
}

// Run executes all contract tests in the suite
func (s *ContractSuite) Run(t *testing.T) {
	t.Helper()

	probe := s.Factory("http://unused.invalid")
	if probe.Name() != s.ProviderName {
		t.Errorf("expected provider name %s, got %s", s.ProviderName, probe.Name())
	}
	if probe.Priority() != s.Priority {
		t.Errorf("expected priority %d, got %d", s.Priority, probe.Priority())
	}

	for _, test := range s.Tests {
		t.Run(test.Name, func(t *testing.T) {
			wantPath := strings.ReplaceAll(s.Path, "{cnpj}", test.CNPJ.String())
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != wantPath {
					t.Errorf("expected path %s, got %s", wantPath, r.URL.Path)
				}
				status := test.Status
				if status == 0 {
					status = http.StatusOK
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write([]byte(test.Body))
			}))
			defer srv.Close()

			record, err := s.Factory(srv.URL).Fetch(context.Background(), test.CNPJ)
			if err != nil {
				t.Fatalf("provider fetch failed: %v", err)
			}
			if record.CNPJ != test.CNPJ.String() {
				t.Errorf("expected canonical cnpj %s, got %s", test.CNPJ, record.CNPJ)
			}
			if record.LegalName == "" {
				t.Error("legal name not set")
			}
			if test.ValidateFunc != nil {
				test.ValidateFunc(t, record)
			}
		})
	}
}

// ErrorContractTest validates that provider errors follow the taxonomy
type ErrorContractTest struct {
	Name          string
	Status        int
	Body          string
	ExpectedError providers.ErrorCategory
}

// RunErrors executes error contract tests against the factory.
func RunErrors(t *testing.T, factory Factory, cnpj domain.CNPJ, tests []ErrorContractTest) {
	t.Helper()
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.Status)
				_, _ = w.Write([]byte(test.Body))
			}))
			defer srv.Close()

			_, err := factory(srv.URL).Fetch(context.Background(), cnpj)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if category := providers.GetCategory(err); category != test.ExpectedError {
				t.Errorf("expected error category %s, got %s", test.ExpectedError, category)
			}
		})
	}
}

// StandardErrors are the failure modes every HTTP adapter shares.
var StandardErrors = []ErrorContractTest{
	{Name: "not found", Status: http.StatusNotFound, Body: `{"message":"not found"}`, ExpectedError: providers.ErrorNotFound},
	{Name: "throttled upstream", Status: http.StatusTooManyRequests, Body: `{}`, ExpectedError: providers.ErrorRateLimited},
	{Name: "upstream outage", Status: http.StatusServiceUnavailable, Body: ``, ExpectedError: providers.ErrorProviderOutage},
	{Name: "malformed body", Status: http.StatusOK, Body: `{invalid json`, ExpectedError: providers.ErrorBadData},
	{Name: "empty object", Status: http.StatusOK, Body: `{}`, ExpectedError: providers.ErrorBadData},
}
