package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit reads.
type Metrics struct {
	Duration *prometheus.HistogramVec
	Errors   *prometheus.CounterVec
}

// NewMetrics registers query metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audittrail_audit_query_duration_seconds",
			Help:    "Latency of audit read operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_audit_query_errors_total",
			Help: "Total number of audit read operations that failed",
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveDuration(op string, seconds float64) {
	m.Duration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) IncErrors(op string) {
	m.Errors.WithLabelValues(op).Inc()
}
