package apikey

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for API key lifecycle operations.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	issuedTotal        prometheus.Counter
	revokedTotal       prometheus.Counter
	registry           *prometheus.Registry
}

var (
	sharedMetrics     *Metrics
	sharedMetricsOnce sync.Once
)

// GetSharedMetrics returns the singleton Metrics instance.
func GetSharedMetrics() *Metrics {
	sharedMetricsOnce.Do(func() {
		sharedMetrics = NewMetrics("keygate")
	})
	return sharedMetrics
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "keygate"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.validationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_total",
			Help:      "Total number of API key validation attempts",
		},
		[]string{"status", "reason"},
	)

	m.validationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "validation_duration_seconds",
			Help:      "API key validation duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"status", "reason"},
	)

	m.issuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "issued_total",
			Help:      "Total number of API keys issued",
		},
	)

	m.revokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "apikey",
			Name:      "revoked_total",
			Help:      "Total number of API keys revoked",
		},
	)

	m.registry.MustRegister(
		m.validationTotal,
		m.validationDuration,
		m.issuedTotal,
		m.revokedTotal,
	)

	return m
}

// Init pre-initializes common label combinations with zero values so the
// metrics appear in scrape output immediately after startup. Prometheus
// *Vec types only emit metric lines after WithLabelValues() has been
// called at least once. Idempotent.
func (m *Metrics) Init() {
	reasons := []string{"valid", "empty_key", "not_found", "expired", "store_error"}
	for _, status := range []string{"success", "error"} {
		for _, reason := range reasons {
			m.validationTotal.WithLabelValues(status, reason)
			m.validationDuration.WithLabelValues(status, reason)
		}
	}
}

// RecordValidation records an API key validation attempt.
func (m *Metrics) RecordValidation(status, reason string, duration time.Duration) {
	m.validationTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.WithLabelValues(status, reason).Observe(duration.Seconds())
}

// RecordIssued records a successful key issuance.
func (m *Metrics) RecordIssued() {
	m.issuedTotal.Inc()
}

// RecordRevoked records a key revocation.
func (m *Metrics) RecordRevoked() {
	m.revokedTotal.Inc()
}

// Registry returns the metrics registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
