package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Entries           *prometheus.CounterVec
	MillisMoved       *prometheus.CounterVec
	InsufficientTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Entries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_credit_entries_total",
			Help: "Ledger entries appended by category",
		}, []string{"category"}),
		MillisMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_credit_millis_total",
			Help: "Absolute milli-credits appended by category",
		}, []string{"category"}),
		InsufficientTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_credit_insufficient_total",
			Help: "Deductions refused for insufficient balance",
		}),
	}
}

func (m *Metrics) ObserveEntry(category string, millis int64) {
	if m == nil {
		return
	}
	if millis < 0 {
		millis = -millis
	}
	m.Entries.WithLabelValues(category).Inc()
	m.MillisMoved.WithLabelValues(category).Add(float64(millis))
}

func (m *Metrics) IncrementInsufficient() {
	if m == nil {
		return
	}
	m.InsufficientTotal.Inc()
}
