// Package metrics exposes the engine's Prometheus metrics.
//
// # Overview
//
// The Collector registers every metric family on one registry and
// offers typed recording methods. Decision counters are driven by the
// engine's decision observer, so they track the audit log exactly;
// gauges are exported through a snapshot collector that reads the
// engine's stats at scrape time.
//
// # Metric Families
//
//   - Decisions: decisions_total, rule_matches_total
//   - Pipeline: stage_transitions_total
//   - Resources: spin_up_duration_seconds
//   - Limiter: request_attempts_total, retry_wait_seconds
//   - Jobs: job_runs_total, job_duration_seconds
//   - HTTP: http_requests_total, http_request_duration_seconds
//   - Snapshot: runs_tracked, runs_active, resources_live,
//     limiter_buckets, rules_active, ruleset_info, sweeps_total,
//     stale_scans_total
//
// All families carry the configured namespace and subsystem, by
// default "ganymede" and "engine".
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	eng, err := engine.New(ctx, cfg, &engine.Options{
//		DecisionObserver: collector.ObserveDecision,
//		JobObserver:      collector.ObserveJob,
//	})
//
//	collector.RegisterEngineSnapshot(func(ctx context.Context) metrics.EngineSnapshot {
//		s := eng.Stats(ctx)
//		return metrics.EngineSnapshot{RunsActive: s.Pipeline.Active /* ... */}
//	})
//
//	mux.Handle("/metrics", collector.Handler())
//
// # Cardinality
//
// Caller-supplied label values (action names, resource kinds) pass
// through a shared cardinality limiter and collapse to "other" once
// the budget of distinct values is spent. Stage and route labels come
// from fixed sets and are exported as-is.
package metrics
