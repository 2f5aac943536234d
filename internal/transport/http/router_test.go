package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	account "cnpjota/internal/account/service"
	accountstore "cnpjota/internal/account/store"
	"cnpjota/internal/audit/publisher"
	auditstore "cnpjota/internal/audit/store"
	creditmodels "cnpjota/internal/credit/models"
	credit "cnpjota/internal/credit/service"
	creditstore "cnpjota/internal/credit/store"
	metering "cnpjota/internal/metering/service"
	ratelimit "cnpjota/internal/ratelimit/service"
	"cnpjota/internal/ratelimit/store/window"
	"cnpjota/internal/registry/domain"
	registrymodels "cnpjota/internal/registry/models"
	"cnpjota/internal/registry/providers"
	registry "cnpjota/internal/registry/service"
	registrystore "cnpjota/internal/registry/store"
	id "cnpjota/pkg/domain"
	"cnpjota/pkg/testutil"
)

const (
	testAdminToken = "admin-secret"
	okCNPJ         = "11222333000181"
	downCNPJ       = "33000167000101"
)

// stubProvider answers every CNPJ except downCNPJ.
type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Name() string  { return "Stub" }
func (p *stubProvider) Priority() int { return 1 }

func (p *stubProvider) Fetch(_ context.Context, cnpj domain.CNPJ) (*registrymodels.Record, error) {
	p.calls.Add(1)
	if cnpj.String() == downCNPJ {
		return nil, providers.NewProviderError(providers.ErrorProviderOutage, "Stub", "HTTP 503", nil)
	}
	return &registrymodels.Record{CNPJ: cnpj.String(), LegalName: "ACME LTDA"}, nil
}

type RouterSuite struct {
	suite.Suite
	ctx      context.Context
	router   http.Handler
	accounts *account.Service
	ledger   *credit.Service
	provider *stubProvider
	dbDown   bool
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	s.dbDown = false
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.ledger, err = credit.New(creditstore.NewInMemoryStore(), credit.WithLogger(logger))
	s.Require().NoError(err)
	s.accounts, err = account.New(accountstore.NewInMemoryStore(),
		account.WithCrediter(s.ledger), account.WithHashCost(bcrypt.MinCost), account.WithLogger(logger))
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.SeedPlans(s.ctx))

	s.provider = &stubProvider{}
	chain, err := providers.NewChain([]providers.Provider{s.provider}, providers.WithLogger(logger))
	s.Require().NoError(err)
	lookups, err := registry.New(registrystore.NewInMemoryCache(nil), chain, registry.WithLogger(logger))
	s.Require().NoError(err)
	limiter, err := ratelimit.New(window.NewInMemoryStore(), ratelimit.WithLogger(logger))
	s.Require().NoError(err)
	audit, err := publisher.New(auditstore.NewInMemoryStore(), publisher.WithLogger(logger))
	s.Require().NoError(err)
	metered, err := metering.New(lookups, limiter, s.ledger, audit, metering.WithLogger(logger))
	s.Require().NoError(err)

	s.router = NewRouter(Deps{
		Authenticator: s.accounts,
		Metering:      metered,
		Ledger:        s.ledger,
		Keys:          s.accounts,
		AdminToken:    testAdminToken,
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error {
				if s.dbDown {
					return errors.New("connection refused")
				}
				return nil
			},
		},
		Logger: logger,
	})
}

// newKey creates an account on plan and returns its id and raw API key.
func (s *RouterSuite) newKey(plan string) (id.AccountID, string) {
	acct, err := s.accounts.CreateAccount(s.ctx, id.NewAccountID().String()+"@example.com", "", plan)
	s.Require().NoError(err)
	issued, err := s.accounts.IssueKey(s.ctx, acct.ID, "default")
	s.Require().NoError(err)
	return acct.ID, issued.Raw
}

func (s *RouterSuite) get(path, key string) *httptest.ResponseRecorder {
	req := testutil.NewRequest(s.T(), http.MethodGet, path)
	if key != "" {
		testutil.WithBearer(req, key)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) decode(raw json.RawMessage, v any) {
	s.Require().NoError(json.Unmarshal(raw, v))
}

func (s *RouterSuite) TestHealth() {
	rr := s.get("/health", "")
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	s.dbDown = true
	rr = s.get("/health", "")
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
	body := testutil.UnmarshalResponse[healthResponse](s.T(), rr)
	s.Equal("degraded", body.Status)
	s.Equal("down", body.Checks["database"])
}

func (s *RouterSuite) TestMetrics() {
	rr := s.get("/metrics", "")
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
}

func (s *RouterSuite) TestLookupRequiresAPIKey() {
	rr := s.get("/v1/cnpj/"+okCNPJ, "")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	rr = s.get("/v1/cnpj/"+okCNPJ, "cnpj_not-a-real-key")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	s.Zero(s.provider.calls.Load())
}

func (s *RouterSuite) TestLookup() {
	_, key := s.newKey("business")

	rr := s.get("/v1/cnpj/11.222.333%2F0001-81", key)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
	env := testutil.UnmarshalEnvelope(s.T(), rr)
	s.True(env.Success)

	var record registrymodels.Record
	s.decode(env.Data, &record)
	s.Equal("ACME LTDA", record.LegalName)
	s.Equal("Stub", record.Source)

	var meta lookupMeta
	s.decode(env.Meta, &meta)
	s.InDelta(0.2, meta.CreditCost, 1e-9)
	s.InDelta(99.8, meta.CreditsRemaining, 1e-9)
	s.Equal("Stub", meta.Source)
	s.Require().NotNil(meta.FromCache)
	s.False(*meta.FromCache)

	rr = s.get("/v1/cnpj/"+okCNPJ, key)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	env = testutil.UnmarshalEnvelope(s.T(), rr)
	s.decode(env.Meta, &meta)
	s.Equal("cache", meta.Source)
	s.True(*meta.FromCache)
	s.InDelta(99.6, meta.CreditsRemaining, 1e-9)
	s.Equal(int32(1), s.provider.calls.Load())
}

func (s *RouterSuite) TestLookupInvalidCNPJ() {
	_, key := s.newKey("business")
	rr := s.get("/v1/cnpj/12345678901234", key)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	s.Zero(s.provider.calls.Load())
}

func (s *RouterSuite) TestLookupInsufficientCredits() {
	subject, key := s.newKey("business")
	_, err := s.ledger.Deduct(s.ctx, subject, creditmodels.Credits(100), "drain")
	s.Require().NoError(err)

	rr := s.get("/v1/cnpj/"+okCNPJ, key)
	env := testutil.AssertStatusAndError(s.T(), rr, http.StatusPaymentRequired, "insufficient_credits")
	var meta lookupMeta
	s.decode(env.Meta, &meta)
	s.InDelta(0.2, meta.CreditCost, 1e-9)
	s.Zero(meta.CreditsRemaining)
	s.Zero(s.provider.calls.Load())
}

func (s *RouterSuite) TestLookupAllProvidersFailed() {
	subject, key := s.newKey("business")

	rr := s.get("/v1/cnpj/"+downCNPJ, key)
	env := testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "service_unavailable")
	s.Contains(string(env.Error.Details), "Stub")

	balance, err := s.ledger.Balance(s.ctx, subject)
	s.Require().NoError(err)
	s.Equal(creditmodels.Credits(100), balance, "failed lookups are free")
}

func (s *RouterSuite) TestLookupRateLimited() {
	_, key := s.newKey("basic")

	for range 2 {
		testutil.AssertStatus(s.T(), s.get("/v1/cnpj/"+okCNPJ, key), http.StatusOK)
	}
	rr := s.get("/v1/cnpj/"+okCNPJ, key)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusTooManyRequests, "rate_limit_exceeded")
	s.Equal("1", rr.Header().Get("Retry-After"))
}

func (s *RouterSuite) TestStats() {
	_, key := s.newKey("business")
	testutil.AssertStatus(s.T(), s.get("/v1/cnpj/"+okCNPJ, key), http.StatusOK)
	testutil.AssertStatus(s.T(), s.get("/v1/cnpj/"+downCNPJ, key), http.StatusServiceUnavailable)

	rr := s.get("/v1/stats", key)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	var stats statsResponse
	s.decode(testutil.UnmarshalEnvelope(s.T(), rr).Data, &stats)
	s.InDelta(99.8, stats.Credits, 1e-9)
	s.Equal(int64(1), stats.TotalQueries)
	s.Require().Len(stats.RecentQueries, 2)
	s.False(stats.RecentQueries[0].Success)
	s.Equal(okCNPJ, stats.RecentQueries[1].CNPJ)
}

func (s *RouterSuite) TestCredits() {
	_, key := s.newKey("business")
	testutil.AssertStatus(s.T(), s.get("/v1/cnpj/"+okCNPJ, key), http.StatusOK)

	rr := s.get("/v1/credits", key)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	var body balanceResponse
	s.decode(testutil.UnmarshalEnvelope(s.T(), rr).Data, &body)
	s.InDelta(99.8, body.Balance, 1e-9)
	s.Require().Len(body.History, 2)
	s.Equal("deduction", body.History[0].Category)
	s.Equal("Consulta CNPJ: "+okCNPJ, body.History[0].Reason)
	s.Equal("bonus", body.History[1].Category)
}

func (s *RouterSuite) TestAdminGrant() {
	subject, _ := s.newKey("basic")
	grant := func(token string, body any) *httptest.ResponseRecorder {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/credits", body)
		if token != "" {
			req.Header.Set("X-Admin-Token", token)
		}
		return testutil.DoRequest(s.router, req)
	}
	valid := grantRequest{SubjectID: subject.String(), Amount: 50, Category: "purchase", Reason: "pix"}

	s.Run("requires the admin token", func() {
		testutil.AssertStatusAndError(s.T(), grant("", valid), http.StatusUnauthorized, "unauthorized")
		testutil.AssertStatusAndError(s.T(), grant("wrong", valid), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("grants credits", func() {
		rr := grant(testAdminToken, valid)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		var body grantResponse
		s.decode(testutil.UnmarshalEnvelope(s.T(), rr).Data, &body)
		s.InDelta(50, body.Granted, 1e-9)
		s.InDelta(150, body.Balance, 1e-9)
	})

	s.Run("rejects bad input", func() {
		bad := valid
		bad.SubjectID = "nope"
		testutil.AssertStatusAndError(s.T(), grant(testAdminToken, bad), http.StatusBadRequest, "validation_error")

		bad = valid
		bad.Category = "deduction"
		testutil.AssertStatusAndError(s.T(), grant(testAdminToken, bad), http.StatusBadRequest, "validation_error")

		bad = valid
		bad.Amount = -1
		testutil.AssertStatusAndError(s.T(), grant(testAdminToken, bad), http.StatusBadRequest, "validation_error")

		testutil.AssertStatusAndError(s.T(), grant(testAdminToken, map[string]any{"unknown": true}), http.StatusBadRequest, "bad_request")
	})
}

func (s *RouterSuite) TestKeys() {
	_, key := s.newKey("basic")
	send := func(method, path string, body any) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = testutil.NewJSONRequest(s.T(), method, path, body)
		} else {
			req = testutil.NewRequest(s.T(), method, path)
		}
		return testutil.DoRequest(s.router, testutil.WithBearer(req, key))
	}

	var created createdKeyResponse
	s.Run("issues a named key once", func() {
		rr := send(http.MethodPost, "/v1/keys", createKeyRequest{Name: "ci"})
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		s.decode(testutil.UnmarshalEnvelope(s.T(), rr).Data, &created)
		s.Equal("ci", created.Name)
		s.NotEmpty(created.Key)

		testutil.AssertStatus(s.T(), s.get("/v1/credits", created.Key), http.StatusOK)
	})

	s.Run("lists keys without secrets", func() {
		rr := send(http.MethodGet, "/v1/keys", nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		s.NotContains(rr.Body.String(), created.Key)

		var keys []keyDTO
		s.decode(testutil.UnmarshalEnvelope(s.T(), rr).Data, &keys)
		s.Require().Len(keys, 2)
		for _, k := range keys {
			s.True(k.Active)
		}
	})

	s.Run("rejects a blank name", func() {
		rr := send(http.MethodPost, "/v1/keys", createKeyRequest{Name: "  "})
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})

	s.Run("revokes an owned key", func() {
		rr := send(http.MethodDelete, "/v1/keys/"+created.ID, nil)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)

		testutil.AssertStatusAndError(s.T(), s.get("/v1/credits", created.Key), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("keys of other accounts look missing", func() {
		_, otherKey := s.newKey("basic")
		other, err := s.accounts.Authenticate(s.ctx, otherKey)
		s.Require().NoError(err)

		rr := send(http.MethodDelete, "/v1/keys/"+other.KeyID.String(), nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
		testutil.AssertStatus(s.T(), s.get("/v1/credits", otherKey), http.StatusOK)
	})

	s.Run("malformed key id", func() {
		rr := send(http.MethodDelete, "/v1/keys/not-a-uuid", nil)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
	})
}
