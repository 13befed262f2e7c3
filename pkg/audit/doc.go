// Package audit provides the append-only decision log shared by every
// component of the engine. Each admit/deny/redact verdict is captured as an
// immutable Decision record for compliance, debugging, and alerting.
//
// # Architecture
//
// The audit system consists of three layers:
//
//  1. Decision Recorder - Builds and enqueues decision records from engine events
//  2. Storage Backend - Persists decisions (memory, SQLite, PostgreSQL)
//  3. Query Engine - Retrieves and filters decisions by subject and time window
//
// # Decision Records
//
// Each decision captures:
//   - The outcome (admit, deny, redact) and a human-readable reason
//   - The rule that produced it and the rule set version in force
//   - The subject key: pipeline run, ephemeral resource, or rate-limited action
//   - A hash chain linking each record to its predecessor
//   - Timestamps (decision time and recorded time)
//
// # Recording Flow
//
// Decisions are recorded asynchronously so evaluation paths never block on
// storage:
//
//	Engine Event → Rule Evaluation → Decision
//	     ↓
//	Decision Recorder (async)
//	     ↓
//	Chain Hash
//	     ↓
//	Storage Backend
//	     ↓
//	Write to Database (WAL mode)
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:    "data/decisions.db",
//	    WALMode: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	rec := recorder.NewRecorder(store, &recorder.Config{
//	    Enabled:     true,
//	    AsyncBuffer: 1000,
//	})
//	defer rec.Close()
//
//	rec.Record(ctx, decision)
//
// # Querying Decisions
//
//	query := &audit.Query{
//	    RunID:     "run-42",
//	    StartTime: &since,
//	    Limit:     100,
//	}
//	decisions, err := store.Query(ctx, query)
//
// # Retention
//
// The engine itself never deletes a decision. Retention pruning is a separate
// scheduled collaborator acting directly on the storage backend:
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 90,
//	    PruneSchedule: "0 3 * * *",
//	})
//	pruner.Start(ctx)
//	defer pruner.Stop()
//
// # Thread Safety
//
// All audit types are safe for concurrent use:
//   - Recorder: thread-safe async channel
//   - Storage: thread-safe with connection pooling
//   - Query: stateless, can be executed concurrently
//
// # Storage Backends
//
// Backends implement the Storage interface:
//   - Memory: tests and ephemeral deployments
//   - SQLite: single-node, embedded
//   - PostgreSQL: shared, high-volume deployments
//
// Custom backends can be supplied by satisfying the Storage interface.
package audit
