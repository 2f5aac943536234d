package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	AuthAttempts    *prometheus.CounterVec
	AccountsCreated prometheus.Counter
	KeysIssued      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_api_key_auth_total",
			Help: "API key authentication attempts by outcome",
		}, []string{"outcome"}),
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_accounts_created_total",
			Help: "Accounts created",
		}),
		KeysIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_api_keys_issued_total",
			Help: "API keys issued",
		}),
	}
}

func (m *Metrics) ObserveAuth(outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementAccountsCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

func (m *Metrics) IncrementKeysIssued() {
	if m == nil {
		return
	}
	m.KeysIssued.Inc()
}
