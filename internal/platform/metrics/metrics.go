package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics. Module metrics live next
// to their modules.
type Metrics struct {
	BuildInfo    *prometheus.GaugeVec
	StoreBackend *prometheus.GaugeVec
}

// New creates and registers the process metrics.
func New() *Metrics {
	return &Metrics{
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineageforge_build_info",
			Help: "Always 1; labelled with the running version",
		}, []string{"version"}),
		StoreBackend: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lineageforge_store_backend",
			Help: "1 for the active storage and lock backends",
		}, []string{"component", "backend"}),
	}
}

func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.BuildInfo.WithLabelValues(version).Set(1)
}

// SetBackend records which implementation serves a component, e.g.
// ("lock", "redis") or ("graph", "postgres").
func (m *Metrics) SetBackend(component, backend string) {
	if m == nil {
		return
	}
	m.StoreBackend.WithLabelValues(component, backend).Set(1)
}
