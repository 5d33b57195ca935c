// Package metrics holds the Prometheus collectors for the enhancement
// gateway and the history store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "prmptlaba"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	reg prometheus.Registerer

	CacheLookups       *prometheus.CounterVec
	ProviderAttempts   *prometheus.CounterVec
	EnhanceLatency     *prometheus.HistogramVec
	HistoryEvictions   prometheus.Counter
	EnhanceInFlight    prometheus.Gauge
	RateLimiterWaiting prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests so runs don't collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result (hit or miss).",
		}, []string{"result"}),

		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by outcome (ok, retryable, fatal, empty).",
		}, []string{"outcome"}),

		EnhanceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enhance_duration_seconds",
			Help:      "End-to-end enhancement latency by result kind.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),

		HistoryEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_evictions_total",
			Help:      "History entries removed by the capacity bound.",
		}),

		EnhanceInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enhance_in_flight",
			Help:      "Enhancements currently waiting on the provider.",
		}),

		RateLimiterWaiting: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limiter_waiting",
			Help:      "Provider calls blocked on the outbound rate limiter.",
		}),
	}
}

// RegisterCacheSize exposes the live cache entry count.
func (m *Metrics) RegisterCacheSize(size func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Unexpired entries in the response cache.",
	}, func() float64 { return float64(size()) }))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

// ProviderAttempt records one provider call.
func (m *Metrics) ProviderAttempt(outcome string) {
	if m != nil {
		m.ProviderAttempts.WithLabelValues(outcome).Inc()
	}
}

// ObserveEnhance records a finished Enhance call.
func (m *Metrics) ObserveEnhance(result string, d time.Duration) {
	if m != nil {
		m.EnhanceLatency.WithLabelValues(result).Observe(d.Seconds())
	}
}

// HistoryEvicted adds n evicted history entries.
func (m *Metrics) HistoryEvicted(n int) {
	if m != nil {
		m.HistoryEvictions.Add(float64(n))
	}
}

// InFlight increments the in-flight gauge and returns its decrement.
func (m *Metrics) InFlight() func() {
	if m == nil {
		return func() {}
	}
	m.EnhanceInFlight.Inc()
	return m.EnhanceInFlight.Dec
}

// Waiting increments the rate-limiter gauge and returns its decrement.
func (m *Metrics) Waiting() func() {
	if m == nil {
		return func() {}
	}
	m.RateLimiterWaiting.Inc()
	return m.RateLimiterWaiting.Dec
}
