package metrics

import (
	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks the decisions the engine records, mirroring
// the audit log at counter granularity.
//
// Metrics:
//   - ganymede_engine_decisions_total: Decisions by component and outcome
//   - ganymede_engine_rule_matches_total: Decisions attributed to a rule
type DecisionMetrics struct {
	decisionsTotal *prometheus.CounterVec

	// Decisions that name the rule which produced them. Decisions
	// resolved by configured defaults carry no rule id and are not
	// counted here.
	ruleMatches *prometheus.CounterVec
}

// NewDecisionMetrics creates and registers decision metrics with the
// provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of decisions recorded, by component and outcome",
			},
			[]string{"component", "outcome"},
		),

		ruleMatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_matches_total",
				Help:      "Total number of decisions attributed to a rule, by rule id and outcome",
			},
			[]string{"rule_id", "outcome"},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.ruleMatches,
	)

	return dm
}

// Observe counts one recorded decision.
func (dm *DecisionMetrics) Observe(d *audit.Decision) {
	dm.decisionsTotal.WithLabelValues(string(d.Component), string(d.Outcome)).Inc()

	if d.RuleID != "" {
		dm.ruleMatches.WithLabelValues(d.RuleID, string(d.Outcome)).Inc()
	}
}
