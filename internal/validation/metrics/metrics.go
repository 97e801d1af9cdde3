package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for validation runs.
type Metrics struct {
	// Flags raised by type and severity
	FlagsRaised *prometheus.CounterVec

	// Per-rule evaluation latency
	RuleLatency *prometheus.HistogramVec

	RunOutcome *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		FlagsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lineageforge_validation_flags_total",
			Help: "Total validation flags raised by type and severity",
		}, []string{"type", "severity"}),

		RuleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineageforge_validation_rule_duration_seconds",
			Help:    "Duration of a single rule family over a snapshot",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"rule"}),

		RunOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lineageforge_validation_runs_total",
			Help: "Total validation runs by outcome",
		}, []string{"outcome"}), // outcome: "completed", "failed"
	}
}

func (m *Metrics) IncrementFlag(flagType, severity string) {
	if m != nil {
		m.FlagsRaised.WithLabelValues(flagType, severity).Inc()
	}
}

// ObserveRule records how long one rule family took.
func (m *Metrics) ObserveRule(rule string, d time.Duration) {
	if m != nil {
		m.RuleLatency.WithLabelValues(rule).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.RunOutcome.WithLabelValues(outcome).Inc()
	}
}
