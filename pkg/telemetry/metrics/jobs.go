package metrics

import (
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks the engine's scheduled background jobs.
//
// Metrics:
//   - ganymede_engine_job_runs_total: Completed job runs by job name
//   - ganymede_engine_job_duration_seconds: Job duration by job name
type JobMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewJobMetrics creates and registers job metrics with the provided
// registry.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_runs_total",
				Help:      "Total number of completed background job runs, by job",
			},
			[]string{"job"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Duration of background job runs in seconds, by job",
				Buckets:   []float64{0.001, 0.01, 0.1, 1, 10, 60},
			},
			[]string{"job"},
		),
	}

	registry.MustRegister(
		jm.runs,
		jm.duration,
	)

	return jm
}

// Observe records one completed job run.
func (jm *JobMetrics) Observe(job string, d time.Duration) {
	jm.runs.WithLabelValues(job).Inc()
	jm.duration.WithLabelValues(job).Observe(d.Seconds())
}
