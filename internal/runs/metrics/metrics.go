package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for run orchestration.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	LockContention prometheus.Counter
	AuditFailures  prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lineageforge_runs_total",
			Help: "Runs finished, by job type and terminal status",
		}, []string{"job_type", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lineageforge_runs_duration_seconds",
			Help:    "Wall time of a run from lock acquisition to terminal status",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"job_type"}),
		LockContention: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_runs_lock_contention_total",
			Help: "Resolution runs rejected because another run held the lock",
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lineageforge_runs_audit_failures_total",
			Help: "Runs failed closed because a compliance audit event could not be persisted",
		}),
	}
}

func (m *Metrics) ObserveRun(jobType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(jobType, status).Inc()
	m.RunDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) IncrementLockContention() {
	if m == nil {
		return
	}
	m.LockContention.Inc()
}

func (m *Metrics) IncrementAuditFailures() {
	if m == nil {
		return
	}
	m.AuditFailures.Inc()
}
