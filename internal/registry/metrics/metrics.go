package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for CNPJ lookups, the record cache and the
// upstream provider chain. Construct once per process: collectors register on
// the default registry.
type Metrics struct {
	// Provider attempts by provider and outcome ("success" or error category)
	ProviderAttempts *prometheus.CounterVec

	// Provider round-trip latency
	ProviderLatency *prometheus.HistogramVec

	// Chain exhaustion
	ChainFailures prometheus.Counter

	// Cache reads by store and result ("hit", "miss")
	CacheLookups *prometheus.CounterVec

	// Cache read latency by store
	CacheLatency *prometheus.HistogramVec

	// Lookups by provenance ("cache", provider name) and outcome
	Lookups *prometheus.CounterVec

	// Full lookup latency
	LookupLatency prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		ProviderAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_registry_provider_attempts_total",
			Help: "Upstream provider attempts by provider and outcome",
		}, []string{"provider", "outcome"}),

		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cnpjota_registry_provider_duration_seconds",
			Help:    "Duration of upstream provider calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),

		ChainFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cnpjota_registry_chain_exhausted_total",
			Help: "Lookups where every provider failed",
		}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_registry_cache_lookups_total",
			Help: "Record cache reads by store and result",
		}, []string{"store", "result"}),

		CacheLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cnpjota_registry_cache_duration_seconds",
			Help:    "Duration of record cache reads",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"store"}),

		Lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cnpjota_registry_lookups_total",
			Help: "CNPJ lookups by provenance and outcome",
		}, []string{"provenance", "outcome"}),

		LookupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cnpjota_registry_lookup_duration_seconds",
			Help:    "Duration of a full CNPJ lookup including cache and providers",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveProviderAttempt records one provider call.
func (m *Metrics) ObserveProviderAttempt(provider, outcome string, d time.Duration) {
	if m != nil {
		m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
		m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
	}
}

// IncrementChainFailure records a fully exhausted chain.
func (m *Metrics) IncrementChainFailure() {
	if m != nil {
		m.ChainFailures.Inc()
	}
}

// RecordCacheHit records a cache read that found a record.
func (m *Metrics) RecordCacheHit(store string, d time.Duration) {
	if m != nil {
		m.CacheLookups.WithLabelValues(store, "hit").Inc()
		m.CacheLatency.WithLabelValues(store).Observe(d.Seconds())
	}
}

// RecordCacheMiss records a cache read that found nothing.
func (m *Metrics) RecordCacheMiss(store string, d time.Duration) {
	if m != nil {
		m.CacheLookups.WithLabelValues(store, "miss").Inc()
		m.CacheLatency.WithLabelValues(store).Observe(d.Seconds())
	}
}

// ObserveLookup records a completed lookup.
func (m *Metrics) ObserveLookup(provenance, outcome string, d time.Duration) {
	if m != nil {
		m.Lookups.WithLabelValues(provenance, outcome).Inc()
		m.LookupLatency.Observe(d.Seconds())
	}
}
