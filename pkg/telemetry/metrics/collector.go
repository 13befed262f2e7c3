package metrics

import (
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every Prometheus metric the engine exports. It wires
// the per-concern metric groups into one registry and offers typed
// recording methods so callers never touch label plumbing directly.
//
// Decision counters are fed from the engine's decision observer, which
// fires only after the audit recorder accepts the write. A decision
// that never reached the log is therefore never counted, and the
// counters can be reconciled against the log after the fact.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	decisions *DecisionMetrics
	pipeline  *PipelineMetrics
	resources *ResourceMetrics
	limiter   *LimiterMetrics
	jobs      *JobMetrics
	http      *HTTPMetrics

	// Bounds caller-supplied label values (action names, resource
	// kinds) so one misbehaving client cannot grow the label space
	// without limit.
	cardinality *CardinalityLimiter
}

// NewCollector creates a collector with all metric groups registered.
// If registry is nil a fresh private registry is used, which keeps the
// exported families free of the Go runtime collectors.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "ganymede"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "engine"
	}

	c := &Collector{
		config:      cfg,
		registry:    registry,
		cardinality: NewCardinalityLimiter(1000),
	}

	c.decisions = NewDecisionMetrics(cfg, registry)
	c.pipeline = NewPipelineMetrics(cfg, registry)
	c.resources = NewResourceMetrics(cfg, registry)
	c.limiter = NewLimiterMetrics(cfg, registry)
	c.jobs = NewJobMetrics(cfg, registry)
	c.http = NewHTTPMetrics(cfg, registry)

	return c
}

// ObserveDecision counts one recorded decision. Safe to install as the
// engine's decision observer; it never blocks and tolerates being
// called from multiple goroutines.
func (c *Collector) ObserveDecision(d *audit.Decision) {
	if !c.config.Enabled || d == nil {
		return
	}

	c.decisions.Observe(d)

	switch d.Component {
	case audit.ComponentPipeline:
		c.pipeline.Observe(d)
	case audit.ComponentRateLimit:
		c.limiter.ObserveAttempt(c.boundLabel("action", d.ActionName), string(d.Outcome))
	}
}

// ObserveJob records one completed background job run. Job names come
// from the engine scheduler ("resource_sweep", "stale_scan",
// "bucket_eviction").
func (c *Collector) ObserveJob(job string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.jobs.Observe(job, duration)
}

// ObserveSpinUp records how long a resource took from provisioning to
// ready, labeled by resource kind.
func (c *Collector) ObserveSpinUp(kind string, latency time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.resources.ObserveSpinUp(c.boundLabel("kind", kind), latency)
}

// ObserveRetryWait records the wait a denied request attempt was told
// to back off for.
func (c *Collector) ObserveRetryWait(wait time.Duration) {
	if !c.config.Enabled || wait <= 0 {
		return
	}
	c.limiter.ObserveRetryWait(wait)
}

// RecordHTTPRequest records one served API request. The route should
// be the registered pattern, never the raw URL path, to keep the label
// space bounded.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.http.Record(method, route, status, duration)
}

// Registry returns the Prometheus registry backing this collector, for
// registering additional collectors or building a scrape handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// boundLabel admits value as a label under the shared cardinality
// budget, collapsing it to "other" once the budget is spent. The group
// prefix keeps distinct label dimensions from competing for the same
// slots.
func (c *Collector) boundLabel(group, value string) string {
	if value == "" {
		return "none"
	}
	if !c.cardinality.Allow(group + ":" + value) {
		return "other"
	}
	return value
}

// CardinalityLimiter caps the number of unique label values a metric
// dimension may take over the process lifetime.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most
// maxCardinality distinct values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether the value may be used as a label. Known values
// are always allowed; new values are admitted until the limit is
// reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[value] = struct{}{}
	return true
}

// Count returns how many distinct values have been admitted.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
