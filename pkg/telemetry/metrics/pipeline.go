package metrics

import (
	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks pipeline run movement.
//
// Metrics:
//   - ganymede_engine_stage_transitions_total: Admitted transitions by edge
//
// Both stage labels come from the fixed stage graph, so the label
// space is bounded without any limiter.
type PipelineMetrics struct {
	transitions *prometheus.CounterVec
}

// NewPipelineMetrics creates and registers pipeline metrics with the
// provided registry.
func NewPipelineMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PipelineMetrics {
	pm := &PipelineMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_transitions_total",
				Help:      "Total number of admitted stage transitions, by source and target stage",
			},
			[]string{"from_stage", "to_stage"},
		),
	}

	registry.MustRegister(pm.transitions)

	return pm
}

// Observe counts the transition carried by an admitted pipeline
// decision. Denials and advisories carry no target stage and are
// covered by the decision counters.
func (pm *PipelineMetrics) Observe(d *audit.Decision) {
	if d.Outcome != audit.OutcomeAdmit || d.Stage == "" || d.TargetStage == "" {
		return
	}
	pm.transitions.WithLabelValues(d.Stage, d.TargetStage).Inc()
}
