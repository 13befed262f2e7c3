// Package telemetry groups the engine's observability surfaces.
//
// # Components
//
//   - logging: process logger construction and context-carried
//     request scope
//   - metrics: Prometheus metric families and the scrape handler
//   - health: liveness and readiness probes
//
// Each subpackage stands alone; the admin server and the CLI wire
// them together from TelemetryConfig. Decision counters are fed from
// the engine's decision observer so they never drift from the audit
// log, and readiness degrades while a storage backend stops
// responding.
package telemetry
