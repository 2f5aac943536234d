package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Recorded        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
	Streamed        prometheus.Counter
	StreamFailures  prometheus.Counter
	StreamDropped   prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_audit_entries_total",
			Help: "Audit entries persisted by outcome",
		}, []string{"outcome"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_audit_persist_failures_total",
			Help: "Audit entries that could not be persisted",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnpjota_audit_persist_duration_seconds",
			Help:    "Time spent persisting one audit entry",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
		Streamed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_audit_streamed_total",
			Help: "Audit entries delivered to the stream",
		}),
		StreamFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_audit_stream_failures_total",
			Help: "Audit batches the stream rejected",
		}),
		StreamDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_audit_stream_dropped_total",
			Help: "Audit entries dropped because the stream buffer was full",
		}),
	}
}

func (m *Metrics) ObserveRecorded(success bool, seconds float64) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.Recorded.WithLabelValues(outcome).Inc()
	m.PersistDuration.Observe(seconds)
}

func (m *Metrics) IncrementPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) AddStreamed(n int) {
	if m == nil {
		return
	}
	m.Streamed.Add(float64(n))
}

func (m *Metrics) IncrementStreamFailures() {
	if m == nil {
		return
	}
	m.StreamFailures.Inc()
}

func (m *Metrics) IncrementStreamDropped() {
	if m == nil {
		return
	}
	m.StreamDropped.Inc()
}
