package metrics

import (
	"strconv"
	"time"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks the admin API surface.
//
// Metrics:
//   - ganymede_engine_http_requests_total: Requests by method, route, status
//   - ganymede_engine_http_request_duration_seconds: Request duration by method and route
//
// Routes are registered mux patterns, so the label space stays bounded
// no matter what paths clients probe.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates and registers HTTP metrics with the provided
// registry.
func NewHTTPMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *HTTPMetrics {
	hm := &HTTPMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of API requests served, by method, route, and status code",
			},
			[]string{"method", "route", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of API requests in seconds, by method and route",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		hm.requests,
		hm.duration,
	)

	return hm
}

// Record records one served request.
func (hm *HTTPMetrics) Record(method, route string, status int, d time.Duration) {
	hm.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	hm.duration.WithLabelValues(method, route).Observe(d.Seconds())
}
