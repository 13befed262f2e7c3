// Package pipeline evaluates delivery pipeline runs against the active
// rule set as they move through a fixed stage graph, from Branch
// through CI, review, and staged deployment to a terminal stage.
//
// # Stage graph
//
// The graph is fixed; rules decide passage, never shape. CIRunning and
// E2ERunning are branch points: a failed check selects the failure
// edge, otherwise the run aims at the success edge and the stage gate
// decides. Failure and remediation edges (CIFailed back to PRCreated,
// ReviewRejected back to PRCreated, E2EFailed to RolledBack) record
// observed outcomes and are not gated. ProductionDeployed, RolledBack,
// and Aborted are terminal; a terminal run accepts no further events.
//
// # Decisions
//
// Every advance attempt produces exactly one decision, admitted or
// denied, and a denied attempt never mutates the run. Check
// submissions auto-advance the run when every known check passes;
// approvals at ReviewPending trigger an advance attempt per approval,
// so insufficient approvals surface as a denied decision rather than
// silence. A run's transition history is append-only.
//
// # Staleness
//
// The caller schedules ScanStale periodically; no background goroutine
// hides inside the package. A scan flags runs sitting in one stage
// past the max_stage_age rule for that stage, else the configured
// fallback, and records an advisory decision for each. The evaluator
// never aborts or rolls back a stale run on its own.
//
// # Usage
//
//	eval := pipeline.NewEvaluator(ruleRegistry, &cfg.Pipeline).WithSink(recorder)
//
//	eval.StartRun(ctx, "run-42")
//	eval.Advance(ctx, "run-42")
//	eval.SubmitCheckResult(ctx, "run-42", "unit-tests", pipeline.CheckPass)
//	eval.RecordApproval(ctx, "run-42", "reviewer-1", false)
//
// Mutation is serialized per run id; runs with different ids proceed
// fully in parallel.
package pipeline
