package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions     *prometheus.CounterVec
	SweptWindows  prometheus.Counter
	StoreFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_ratelimit_decisions_total",
			Help: "Rate limit admission decisions by outcome",
		}, []string{"outcome"}),
		SweptWindows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_ratelimit_swept_windows_total",
			Help: "Closed in-memory windows removed by the sweeper",
		}),
		StoreFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_ratelimit_store_failures_total",
			Help: "Window store errors; requests fail closed",
		}),
	}
}

func (m *Metrics) IncrementAllowed() {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("allowed").Inc()
}

func (m *Metrics) IncrementRejected() {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) AddSwept(n int) {
	if m == nil {
		return
	}
	m.SweptWindows.Add(float64(n))
}

func (m *Metrics) IncrementStoreFailures() {
	if m == nil {
		return
	}
	m.StoreFailures.Inc()
}
