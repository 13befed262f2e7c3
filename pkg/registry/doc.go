// Package registry tracks ephemeral resources (build VMs, preview
// environments) through a provisioning, active, expiring, destroyed
// lifecycle, and retires them when they go idle or outlive their hard
// expiry.
//
// # Lifecycle
//
// Provision admits a resource against the concurrent quota for its
// kind (max_concurrent rule, else the configured default) and asks the
// collaborator to build it. MarkReady moves it to active and captures
// the spin-up latency; a latency beyond the budget for the kind emits
// an advisory decision rather than a destroy. Heartbeat resets the
// inactivity clock. Destroyed is absorbing: lifecycle operations on a
// destroyed id fail with UnknownResourceError.
//
// # Sweep
//
// Retirement is explicit. The caller schedules Sweep periodically; no
// background goroutine hides inside the package. A sweep lists the
// live resources once, retires the ones past their hard expiry or idle
// limit, and resumes any teardown a previous sweep left in the
// expiring state. At most one sweep runs at a time.
//
// Teardown is delegated to the collaborator with the resource id as
// idempotency key, and every state transition is persisted before the
// external call it precedes. A crash at any point leaves state the
// next sweep can finish from without destroying anything twice.
//
// # Usage
//
//	reg, err := registry.NewRegistry(store, collab, ruleRegistry, &cfg.Registry)
//	if err != nil {
//	    return err
//	}
//	reg.WithSink(recorder)
//
//	res, err := reg.Provision(ctx, "build-vm", 4*time.Hour)
//	...
//	reg.MarkReady(ctx, res.ID)
//	reg.Heartbeat(ctx, res.ID)
//
// Every admit, deny, and advisory verdict is emitted to the decision
// sink with the rule that produced it.
package registry
