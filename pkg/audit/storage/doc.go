// Package storage provides storage backends for the decision log.
//
// # Storage Backends
//
// The storage package defines concrete implementations of the audit.Storage
// interface:
//
//   - Memory: in-memory slice for tests and ephemeral deployments
//   - SQLite: embedded database for single-node deployments
//   - PostgreSQL: shared database for high-volume deployments
//
// # SQLite Backend
//
// The SQLite backend provides durable storage with:
//
//   - WAL mode for concurrent reads/writes
//   - Indexes on subject keys and timestamps
//   - Connection pooling for concurrent access
//   - Busy timeout for handling locks
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:         "data/decisions.db",
//	    MaxOpenConns: 10,
//	    WALMode:      true,
//	    BusyTimeout:  5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Store(ctx, decision)
//
//	decisions, err := store.Query(ctx, &audit.Query{
//	    RunID: "run-42",
//	    Limit: 100,
//	})
//
// # Ordering
//
// Every backend keeps a monotonically increasing sequence column so the log
// preserves append order even when two decisions share a timestamp. Queries
// default to timestamp ascending with the sequence as tie-break.
//
// # Thread Safety
//
// All storage backends are thread-safe: Store may be called concurrently
// from multiple goroutines, and Query may run concurrently with Store.
//
// # Schema Migration
//
// The SQLite backend initializes its schema on first use and records the
// schema version in the schema_version table for future migrations.
package storage
