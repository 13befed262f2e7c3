// Package engine assembles the policy decision engine behind one
// ingestion surface.
//
// An Engine owns the four evaluation components and the shared
// machinery they hang off: the pipeline evaluator, the resource
// registry, the rate limiter, and the error redactor, wired to a rule
// store that hot-swaps rule sets atomically and a recorder that appends
// every verdict to the decision log. Callers feed it events and read
// back decisions; they never touch the components directly.
//
// # Events
//
// Four event shapes cover the engine's surface. StageEvent reports
// pipeline progress and check verdicts, ReviewEvent delivers reviewer
// approvals and rejections, ResourceEvent drives ephemeral resource
// lifecycles, and RequestAttempt asks for admission to a rate limited
// action. Each ingestion call returns the recorded decision, so a
// caller holds the verdict and its audit identity in the same breath.
//
// # Lifecycle
//
//	eng, err := engine.New(ctx, cfg, &engine.Options{Logger: logger})
//	if err != nil {
//		return err
//	}
//	defer eng.Close()
//
//	if err := eng.Start(ctx); err != nil {
//		return err
//	}
//
//	d, err := eng.HandleStageEvent(ctx, engine.StageEvent{RunID: "r-42"})
//
// Start launches the periodic work: the resource expiry sweep, the
// stale-run scan, idle bucket eviction, retention pruning, and rule
// source watching. An engine that is never started evaluates normally
// and only loses those background behaviors, which suits tests and
// short-lived administrative commands. Close drains buffered decision
// writes before releasing the storage backends.
package engine
