package metrics

import (
	"context"

	"mercator-hq/ganymede/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineSnapshot carries the point-in-time values scraped from a
// running engine. The server adapts the engine's own stats type into
// this struct so the metrics package stays free of engine imports.
type EngineSnapshot struct {
	// RunsTracked is the number of pipeline runs held in memory,
	// terminal runs included until eviction.
	RunsTracked int

	// RunsActive is the number of runs not yet terminal.
	RunsActive int

	// ResourcesLive is the number of resources not yet destroyed.
	ResourcesLive int

	// Buckets is the number of token buckets currently tracked.
	Buckets int

	// ActiveRules is the size of the rule set in force.
	ActiveRules int

	// RuleSetVersion is the content-derived version of the active set.
	RuleSetVersion string

	// Sweeps is the number of completed resource sweeps, manual runs
	// included.
	Sweeps uint64

	// StaleScans is the number of completed stale-run scans.
	StaleScans uint64
}

// SnapshotFunc returns the current engine snapshot. It is invoked once
// per scrape and should be cheap.
type SnapshotFunc func(ctx context.Context) EngineSnapshot

// RegisterEngineSnapshot registers a collector that exports the
// engine's gauges at scrape time, so the values are always current
// without any push wiring.
func (c *Collector) RegisterEngineSnapshot(fn SnapshotFunc) {
	if fn == nil {
		return
	}
	c.registry.MustRegister(newSnapshotCollector(c.config, fn))
}

// snapshotCollector reads one engine snapshot per scrape and emits its
// fields as const metrics.
type snapshotCollector struct {
	fn SnapshotFunc

	runsTracked   *prometheus.Desc
	runsActive    *prometheus.Desc
	resourcesLive *prometheus.Desc
	buckets       *prometheus.Desc
	activeRules   *prometheus.Desc
	rulesetInfo   *prometheus.Desc
	sweeps        *prometheus.Desc
	staleScans    *prometheus.Desc
}

func newSnapshotCollector(cfg *config.MetricsConfig, fn SnapshotFunc) *snapshotCollector {
	name := func(metric string) string {
		return prometheus.BuildFQName(cfg.Namespace, cfg.Subsystem, metric)
	}

	return &snapshotCollector{
		fn: fn,
		runsTracked: prometheus.NewDesc(name("runs_tracked"),
			"Number of pipeline runs currently held, terminal runs included", nil, nil),
		runsActive: prometheus.NewDesc(name("runs_active"),
			"Number of pipeline runs not yet terminal", nil, nil),
		resourcesLive: prometheus.NewDesc(name("resources_live"),
			"Number of ephemeral resources not yet destroyed", nil, nil),
		buckets: prometheus.NewDesc(name("limiter_buckets"),
			"Number of token buckets currently tracked", nil, nil),
		activeRules: prometheus.NewDesc(name("rules_active"),
			"Number of rules in the active rule set", nil, nil),
		rulesetInfo: prometheus.NewDesc(name("ruleset_info"),
			"Active rule set version, exported as an info metric", []string{"version"}, nil),
		sweeps: prometheus.NewDesc(name("sweeps_total"),
			"Total number of completed resource sweeps", nil, nil),
		staleScans: prometheus.NewDesc(name("stale_scans_total"),
			"Total number of completed stale-run scans", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (sc *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sc.runsTracked
	ch <- sc.runsActive
	ch <- sc.resourcesLive
	ch <- sc.buckets
	ch <- sc.activeRules
	ch <- sc.rulesetInfo
	ch <- sc.sweeps
	ch <- sc.staleScans
}

// Collect implements prometheus.Collector.
func (sc *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	s := sc.fn(context.Background())

	ch <- prometheus.MustNewConstMetric(sc.runsTracked, prometheus.GaugeValue, float64(s.RunsTracked))
	ch <- prometheus.MustNewConstMetric(sc.runsActive, prometheus.GaugeValue, float64(s.RunsActive))
	ch <- prometheus.MustNewConstMetric(sc.resourcesLive, prometheus.GaugeValue, float64(s.ResourcesLive))
	ch <- prometheus.MustNewConstMetric(sc.buckets, prometheus.GaugeValue, float64(s.Buckets))
	ch <- prometheus.MustNewConstMetric(sc.activeRules, prometheus.GaugeValue, float64(s.ActiveRules))
	ch <- prometheus.MustNewConstMetric(sc.rulesetInfo, prometheus.GaugeValue, 1, s.RuleSetVersion)
	ch <- prometheus.MustNewConstMetric(sc.sweeps, prometheus.CounterValue, float64(s.Sweeps))
	ch <- prometheus.MustNewConstMetric(sc.staleScans, prometheus.CounterValue, float64(s.StaleScans))
}
