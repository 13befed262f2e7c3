package metrics

import (
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// LimiterMetrics tracks rate limit pressure per action.
//
// Metrics:
//   - ganymede_engine_request_attempts_total: Attempts by action and outcome
//   - ganymede_engine_retry_wait_seconds: Back-off handed to denied attempts
//
// Action names are caller-supplied; the collector bounds them through
// its cardinality limiter before they reach this group.
type LimiterMetrics struct {
	attempts  *prometheus.CounterVec
	retryWait prometheus.Histogram
}

// NewLimiterMetrics creates and registers limiter metrics with the
// provided registry.
func NewLimiterMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LimiterMetrics {
	lm := &LimiterMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_attempts_total",
				Help:      "Total number of rate limited request attempts, by action and outcome",
			},
			[]string{"action", "outcome"},
		),

		retryWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "retry_wait_seconds",
				Help:      "Back-off durations returned with denied request attempts, in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
	}

	registry.MustRegister(
		lm.attempts,
		lm.retryWait,
	)

	return lm
}

// ObserveAttempt counts one request attempt verdict.
func (lm *LimiterMetrics) ObserveAttempt(action, outcome string) {
	lm.attempts.WithLabelValues(action, outcome).Inc()
}

// ObserveRetryWait records the back-off attached to a denial.
func (lm *LimiterMetrics) ObserveRetryWait(wait time.Duration) {
	lm.retryWait.Observe(wait.Seconds())
}
