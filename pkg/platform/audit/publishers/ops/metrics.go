package ops

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Tracked               prometheus.Counter
	Sampled               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	CircuitBreakerState   prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Tracked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_audit_ops_tracked_total",
			Help: "Operational audit events written",
		}),
		Sampled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_audit_ops_sampled_total",
			Help: "Operational audit events dropped by sampling",
		}),
		CircuitBreakerDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_audit_ops_circuit_breaker_dropped_total",
			Help: "Operational audit events dropped while the circuit was open",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_audit_ops_persist_failures_total",
			Help: "Operational audit events the store rejected",
		}),
		CircuitBreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lineageforge_audit_ops_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncTracked() {
	if m == nil {
		return
	}
	m.Tracked.Inc()
}

func (m *Metrics) IncSampled() {
	if m == nil {
		return
	}
	m.Sampled.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	if m == nil {
		return
	}
	m.CircuitBreakerDropped.Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
