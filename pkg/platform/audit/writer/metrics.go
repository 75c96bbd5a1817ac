package writer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit write path.
type Metrics struct {
	Written       prometheus.Counter
	Failed        *prometheus.CounterVec
	WriteDuration prometheus.Histogram
}

// NewMetrics registers writer metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Written: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_audit_records_written_total",
			Help: "Total number of audit records persisted",
		}),
		Failed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "audittrail_audit_write_failures_total",
			Help: "Total number of audit writes that did not persist, by failure policy",
		}, []string{"policy"}),
		WriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "audittrail_audit_write_duration_seconds",
			Help:    "Latency of successful audit record appends",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncWritten increments the written counter.
func (m *Metrics) IncWritten() {
	m.Written.Inc()
}

// IncFailed increments the failure counter for the active policy.
func (m *Metrics) IncFailed(failOpen bool) {
	policy := "fail_closed"
	if failOpen {
		policy = "fail_open"
	}
	m.Failed.WithLabelValues(policy).Inc()
}

// ObserveWriteDuration records how long an append took.
func (m *Metrics) ObserveWriteDuration(seconds float64) {
	m.WriteDuration.Observe(seconds)
}
