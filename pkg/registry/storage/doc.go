// Package storage provides storage backends for resource lifecycle
// state.
//
// Two implementations of registry.Storage are available:
//
//   - Memory: in-process map for tests and ephemeral deployments
//   - SQLite: embedded database (pure Go driver, no cgo) for
//     single-node deployments that must resume interrupted teardowns
//     after a restart
//
// The SQLite backend stores timestamps at nanosecond precision so
// idle and expiry arithmetic survives a round-trip unchanged, and
// keeps state in WAL mode so sweep writes do not block readers.
package storage
