package bucket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for failure bucketing.
type Metrics struct {
	Upserts             prometheus.Counter
	Failures            prometheus.Counter
	CircuitBreakerDrops prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers bucket metrics with reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Upserts: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_bucket_upserts_total",
			Help: "Total number of failure bucket upserts",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_bucket_upsert_failures_total",
			Help: "Total number of failure bucket upserts that returned an error",
		}),
		CircuitBreakerDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "audittrail_bucket_circuit_breaker_dropped_total",
			Help: "Total number of bucket upserts skipped because the circuit was open",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "audittrail_bucket_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
	}
}

func (m *Metrics) IncUpserts() {
	m.Upserts.Inc()
}

func (m *Metrics) IncFailures() {
	m.Failures.Inc()
}

func (m *Metrics) IncCircuitBreakerDrops() {
	m.CircuitBreakerDrops.Inc()
}

func (m *Metrics) SetCircuitBreakerState(state float64) {
	m.CircuitBreakerState.Set(state)
}
