// Package recorder builds and persists decision records.
//
// The recorder is the single write path into the audit log. It assigns each
// decision a UUID, stamps the recorded time, links the record into a
// tamper-evident SHA-256 hash chain, and hands it to the storage backend.
//
// # Write Modes
//
// In async mode (the default), Record enqueues onto a buffered channel
// drained by a background worker, so evaluation paths never block on
// storage. Close drains the channel before returning. In sync mode, Record
// writes through to storage and returns the storage error to the caller;
// the engine uses sync mode so infrastructure faults surface immediately.
//
// # Hash Chain
//
// Each record's hash commits to its own canonical content and to the hash
// of the preceding record. The chain is seeded from storage at startup, so
// it spans restarts. A dropped record (channel overflow) leaves a gap the
// next verification pass will flag; VerifyChain locates the first broken
// link.
package recorder
