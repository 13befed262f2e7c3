package metrics

import (
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ResourceMetrics tracks ephemeral resource behavior that the decision
// counters cannot express.
//
// Metrics:
//   - ganymede_engine_spin_up_duration_seconds: Provision-to-ready latency by kind
type ResourceMetrics struct {
	spinUp *prometheus.HistogramVec
}

// NewResourceMetrics creates and registers resource metrics with the
// provided registry.
func NewResourceMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ResourceMetrics {
	rm := &ResourceMetrics{
		spinUp: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "spin_up_duration_seconds",
				Help:      "Time from resource provisioning to ready, in seconds",
				// Spin-up budgets run in minutes, not milliseconds
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(rm.spinUp)

	return rm
}

// ObserveSpinUp records one provision-to-ready latency.
func (rm *ResourceMetrics) ObserveSpinUp(kind string, latency time.Duration) {
	if latency <= 0 {
		return
	}
	rm.spinUp.WithLabelValues(kind).Observe(latency.Seconds())
}
