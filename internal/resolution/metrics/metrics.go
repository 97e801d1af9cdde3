package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution runs.
type Metrics struct {
	// Run outcomes by terminal state
	RunOutcome *prometheus.CounterVec

	// Candidate pairs produced by blocking, per pass
	CandidatePairs prometheus.Histogram

	// Merges executed across all runs
	MergesExecuted prometheus.Counter

	// Per-phase latency: blocking, scoring, merging
	PhaseLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all resolution metrics registered.
func New() *Metrics {
	return &Metrics{
		RunOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lineageforge_resolution_runs_total",
			Help: "Total resolution runs by terminal state",
		}, []string{"state"}), // state: "COMPLETED", "FAILED"

		CandidatePairs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lineageforge_resolution_candidate_pairs",
			Help:    "Candidate pairs generated by a blocking pass",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),

		MergesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_resolution_merges_total",
			Help: "Total automatic merges executed",
		}),

		PhaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineageforge_resolution_phase_duration_seconds",
			Help:    "Duration of resolution phases",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"phase"}),
	}
}

// IncrementOutcome records a run reaching a terminal state.
func (m *Metrics) IncrementOutcome(state string) {
	if m != nil {
		m.RunOutcome.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ObserveCandidates(n int) {
	if m != nil {
		m.CandidatePairs.Observe(float64(n))
	}
}

func (m *Metrics) IncrementMerges() {
	if m != nil {
		m.MergesExecuted.Inc()
	}
}

// ObservePhase records how long a phase of a pass took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m != nil {
		m.PhaseLatency.WithLabelValues(phase).Observe(d.Seconds())
	}
}
