// Package retention enforces retention policies on the decision log.
//
// The decision log is append-only during normal operation. Retention is
// the single sanctioned path that removes records, and it always removes
// from the oldest end of the log so the hash chain over retained records
// stays verifiable from the first surviving record.
//
// # Pruning Phases
//
// Each pruning cycle runs up to two phases:
//
//  1. Age-based: records older than RetentionDays are deleted
//  2. Count-based: if the total exceeds MaxRecords, the oldest are deleted
//
// # Scheduling
//
// Pruning runs on a cron schedule (default daily at 3 AM):
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    RetentionDays: 90,
//	    PruneSchedule: "0 3 * * *",
//	})
//
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
//
// # Archival
//
// With ArchiveBeforeDelete enabled, records are exported as JSON before
// deletion, either to the local ArchivePath directory or, when an object
// archiver is set, to an S3-compatible bucket:
//
//	archiver, _ := export.NewObjectArchiver(cfg)
//	pruner.SetArchiver(archiver)
package retention
