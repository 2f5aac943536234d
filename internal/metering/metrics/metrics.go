package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Lookups      *prometheus.CounterVec
	ChargedMilli prometheus.Counter
	Refunds      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_metered_lookups_total",
			Help: "Metered lookups by outcome",
		}, []string{"outcome"}),
		ChargedMilli: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_metered_charged_millis_total",
			Help: "Milli-credits charged for successful lookups",
		}),
		Refunds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_metered_refunds_total",
			Help: "Charges reversed because the audit entry could not be written",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddCharged(millis int64) {
	if m == nil {
		return
	}
	m.ChargedMilli.Add(float64(millis))
}

func (m *Metrics) IncrementRefunds() {
	if m == nil {
		return
	}
	m.Refunds.Inc()
}
