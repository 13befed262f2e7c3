package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/rules"
)

// RuleSource supplies the rule set in force. The rule store's registry
// satisfies this.
type RuleSource interface {
	Active() *rules.RuleSet
}

// DecisionSink receives the decisions the registry emits. The audit
// recorder satisfies this.
type DecisionSink interface {
	Record(ctx context.Context, d *audit.Decision) error
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	// Scanned is how many live resources the sweep examined.
	Scanned int

	// Destroyed is how many resources were torn down this sweep.
	Destroyed int

	// Failed is how many teardown attempts failed. The resources stay
	// expiring and the next sweep retries them.
	Failed int

	// Skipped is true when another sweep was already running and this
	// one returned without doing anything.
	Skipped bool
}

// Stats is a snapshot of registry counters.
type Stats struct {
	Live        int
	Provisioned uint64
	Denied      uint64
	Destroyed   uint64
	Sweeps      uint64
}

// Registry tracks ephemeral resources from provisioning to teardown.
// Quota and spin-up budgets come from the active rule set, falling
// back to the configured defaults; retirement is driven by a periodic
// sweep that the caller schedules.
type Registry struct {
	store  Storage
	collab Collaborator
	source RuleSource
	sink   DecisionSink
	config *config.RegistryConfig
	logger *slog.Logger
	now    func() time.Time

	// provisionMu serializes the quota check with resource creation so
	// concurrent provisions cannot both squeeze past a nearly-full
	// quota.
	provisionMu sync.Mutex

	// sweepMu admits one sweep at a time. An overlapping sweep is
	// skipped, not queued.
	sweepMu sync.Mutex

	provisioned atomic.Uint64
	denied      atomic.Uint64
	destroyed   atomic.Uint64
	sweeps      atomic.Uint64
}

// NewRegistry creates a registry over the given state store. A nil
// collaborator means lifecycle tracking only (NopCollaborator); a nil
// config applies the package defaults.
func NewRegistry(store Storage, collab Collaborator, source RuleSource, cfg *config.RegistryConfig) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if collab == nil {
		collab = NopCollaborator{}
	}
	if cfg == nil {
		cfg = &config.RegistryConfig{
			DefaultTTL:   4 * time.Hour,
			HardExpiry:   4 * time.Hour,
			SpinUpBudget: 10 * time.Minute,
		}
	}
	return &Registry{
		store:  store,
		collab: collab,
		source: source,
		config: cfg,
		logger: slog.Default().With("component", "registry"),
		now:    time.Now,
	}, nil
}

// WithSink routes the registry's decisions to sink. Without one the
// decisions are dropped.
func (r *Registry) WithSink(sink DecisionSink) *Registry {
	r.sink = sink
	return r
}

// WithLogger replaces the registry's logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	if logger != nil {
		r.logger = logger.With("component", "registry")
	}
	return r
}

// WithClock replaces the registry's time source. Tests inject a fixed
// clock to make expiry arithmetic exact.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	if now != nil {
		r.now = now
	}
	return r
}

// Provision admits a new resource of the given kind into the registry
// and asks the collaborator to build it. The hard expiry is capped at
// now plus hardExpiryIn; zero falls back to the configured hard
// expiry, and zero there means no cap.
//
// Provision fails with QuotaExceededError when the concurrent quota
// for the kind is at capacity. The quota comes from the max_concurrent
// rule scoped to the kind, else the configured default; zero means
// unlimited.
func (r *Registry) Provision(ctx context.Context, kind string, hardExpiryIn time.Duration) (*EphemeralResource, error) {
	if kind == "" {
		return nil, fmt.Errorf("resource kind cannot be empty")
	}

	set := r.activeSet()
	limit, ruleID, found := set.QuotaFor(kind)
	if !found {
		limit, ruleID = r.config.DefaultQuota, ""
	}

	now := r.now()
	if hardExpiryIn <= 0 {
		hardExpiryIn = r.config.HardExpiry
	}

	res := &EphemeralResource{
		ID:             uuid.NewString(),
		Kind:           kind,
		State:          StateProvisioning,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if hardExpiryIn > 0 {
		res.HardExpiry = now.Add(hardExpiryIn)
	}

	// Quota check and creation under one lock, so two provisions
	// cannot both observe the last free slot.
	r.provisionMu.Lock()
	live, err := r.store.CountLive(ctx, kind)
	if err != nil {
		r.provisionMu.Unlock()
		return nil, NewInfrastructureError("provision", err)
	}
	if limit > 0 && live >= limit {
		r.provisionMu.Unlock()
		r.denied.Add(1)
		// The denied attempt still gets a subject id so the decision
		// is queryable, even though no resource was created.
		r.record(ctx, &audit.Decision{
			EventID:        uuid.NewString(),
			RuleID:         ruleID,
			RuleSetVersion: set.Version(),
			Outcome:        audit.OutcomeDeny,
			Reason:         fmt.Sprintf("concurrent quota for kind %q at capacity: %d in use, limit %d", kind, live, limit),
			ResourceID:     res.ID,
			ResourceKind:   kind,
			Component:      audit.ComponentRegistry,
			Timestamp:      now,
		})
		return nil, NewQuotaExceededError(kind, limit, live, ruleID)
	}
	if err := r.store.Create(ctx, res); err != nil {
		r.provisionMu.Unlock()
		return nil, NewInfrastructureError("provision", err)
	}
	r.provisionMu.Unlock()

	// The external call runs outside the lock. The id is the
	// idempotency key, so a retried request cannot build twice.
	if err := r.collab.ProvisionRequest(ctx, kind, res.ID); err != nil {
		if delErr := r.store.Delete(ctx, res.ID); delErr != nil {
			r.logger.Error("failed to roll back provision",
				"resource_id", res.ID, "error", delErr)
		}
		return nil, NewInfrastructureError("provision", err)
	}

	r.provisioned.Add(1)
	reason := fmt.Sprintf("provision admitted: no concurrent quota for kind %q", kind)
	if limit > 0 {
		reason = fmt.Sprintf("provision admitted: %d of %d %s resources in use", live+1, limit, kind)
	}
	r.record(ctx, &audit.Decision{
		EventID:        uuid.NewString(),
		RuleID:         ruleID,
		RuleSetVersion: set.Version(),
		Outcome:        audit.OutcomeAdmit,
		Reason:         reason,
		ResourceID:     res.ID,
		ResourceKind:   kind,
		Component:      audit.ComponentRegistry,
		Timestamp:      now,
	})

	r.logger.Info("resource provisioned",
		"resource_id", res.ID, "kind", kind, "hard_expiry", res.HardExpiry)
	return res.Clone(), nil
}

// MarkReady transitions the resource from provisioning to active and
// captures the spin-up latency. Latency beyond the budget for the kind
// (spin_up_within rule, else the configured default) emits an advisory
// decision; the resource still goes active. Marking an already active
// resource is a no-op.
func (r *Registry) MarkReady(ctx context.Context, id string) (*EphemeralResource, error) {
	res, err := r.liveResource(ctx, id, "mark ready")
	if err != nil {
		return nil, err
	}
	if res.State == StateActive {
		return res, nil
	}

	now := r.now()
	res.State = StateActive
	res.ReadyAt = now
	res.LastActivityAt = now
	res.SpinUpLatency = now.Sub(res.CreatedAt)

	if err := r.store.Update(ctx, res); err != nil {
		return nil, NewInfrastructureError("mark ready", err)
	}

	set := r.activeSet()
	budget, ruleID, found := set.SpinUpBudgetFor(res.Kind)
	if !found {
		budget, ruleID = r.config.SpinUpBudget, ""
	}
	if budget > 0 && res.SpinUpLatency > budget {
		r.record(ctx, &audit.Decision{
			EventID:        uuid.NewString(),
			RuleID:         ruleID,
			RuleSetVersion: set.Version(),
			Outcome:        audit.OutcomeRedact,
			Reason: fmt.Sprintf("spin-up latency %s exceeded budget %s for kind %q",
				res.SpinUpLatency.Truncate(time.Second), budget, res.Kind),
			ResourceID:   res.ID,
			ResourceKind: res.Kind,
			Component:    audit.ComponentRegistry,
			Timestamp:    now,
		})
		r.logger.Warn("spin-up budget exceeded",
			"resource_id", res.ID, "kind", res.Kind,
			"latency", res.SpinUpLatency, "budget", budget)
	}

	r.logger.Info("resource ready",
		"resource_id", res.ID, "kind", res.Kind, "spin_up", res.SpinUpLatency)
	return res.Clone(), nil
}

// Heartbeat records activity on the resource, resetting its
// inactivity clock. Heartbeats are accepted while provisioning and
// while active.
func (r *Registry) Heartbeat(ctx context.Context, id string) error {
	res, err := r.liveResource(ctx, id, "heartbeat")
	if err != nil {
		return err
	}

	res.LastActivityAt = r.now()
	if err := r.store.Update(ctx, res); err != nil {
		return NewInfrastructureError("heartbeat", err)
	}
	return nil
}

// Get returns the resource record for id, in whatever state it is in.
// Destroyed records remain readable for inspection; only lifecycle
// operations treat them as gone.
func (r *Registry) Get(ctx context.Context, id string) (*EphemeralResource, error) {
	res, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, NewInfrastructureError("get", err)
	}
	if res == nil {
		return nil, NewUnknownResourceError(id)
	}
	return res, nil
}

// List returns resources in any of the given states, or all resources
// when no states are given.
func (r *Registry) List(ctx context.Context, states ...ResourceState) ([]*EphemeralResource, error) {
	out, err := r.store.List(ctx, states...)
	if err != nil {
		return nil, NewInfrastructureError("list", err)
	}
	return out, nil
}

// Sweep retires resources that are past their hard expiry or idle
// beyond the inactivity limit, and resumes any teardown a previous
// sweep left unfinished. At most one sweep runs at a time; a call that
// finds one already running returns immediately with Skipped set.
//
// For each resource due, the expiring transition is persisted first,
// then the collaborator's Destroy is called with the resource id as
// idempotency key, then the destroyed state is persisted. A crash
// between those steps leaves the resource expiring, and the next sweep
// repeats the teardown call; the key makes the repeat harmless.
func (r *Registry) Sweep(ctx context.Context) (*SweepResult, error) {
	if !r.sweepMu.TryLock() {
		r.logger.Debug("sweep already running, skipping")
		return &SweepResult{Skipped: true}, nil
	}
	defer r.sweepMu.Unlock()
	r.sweeps.Add(1)

	live, err := r.store.List(ctx, StateProvisioning, StateActive, StateExpiring)
	if err != nil {
		return nil, NewInfrastructureError("sweep", err)
	}

	now := r.now()
	result := &SweepResult{Scanned: len(live)}
	for _, res := range live {
		reason, due := r.dueForTeardown(res, now)
		if !due {
			continue
		}

		if res.State != StateExpiring {
			res.State = StateExpiring
			if err := r.store.Update(ctx, res); err != nil {
				r.logger.Error("failed to persist expiring transition",
					"resource_id", res.ID, "error", err)
				result.Failed++
				continue
			}
		}

		if err := r.collab.Destroy(ctx, res.ID, res.ID); err != nil {
			r.logger.Error("teardown failed, will retry next sweep",
				"resource_id", res.ID, "kind", res.Kind, "error", err)
			result.Failed++
			continue
		}

		res.State = StateDestroyed
		res.DestroyedAt = now
		if err := r.store.Update(ctx, res); err != nil {
			// The collaborator already deduplicates on the id, so the
			// retry next sweep cannot destroy twice.
			r.logger.Error("failed to persist destroyed transition",
				"resource_id", res.ID, "error", err)
			result.Failed++
			continue
		}

		result.Destroyed++
		r.destroyed.Add(1)
		r.record(ctx, &audit.Decision{
			EventID:        uuid.NewString(),
			RuleSetVersion: r.activeSet().Version(),
			Outcome:        audit.OutcomeAdmit,
			Reason:         reason,
			ResourceID:     res.ID,
			ResourceKind:   res.Kind,
			Component:      audit.ComponentRegistry,
			Timestamp:      now,
		})
		r.logger.Info("resource destroyed",
			"resource_id", res.ID, "kind", res.Kind, "reason", reason)
	}

	return result, nil
}

// Stats returns a snapshot of registry counters. Live is counted from
// the store and reflects all kinds.
func (r *Registry) Stats(ctx context.Context) Stats {
	live := 0
	if resources, err := r.store.List(ctx, StateProvisioning, StateActive, StateExpiring); err == nil {
		live = len(resources)
	}
	return Stats{
		Live:        live,
		Provisioned: r.provisioned.Load(),
		Denied:      r.denied.Load(),
		Destroyed:   r.destroyed.Load(),
		Sweeps:      r.sweeps.Load(),
	}
}

// dueForTeardown decides whether the sweep should retire the resource
// now, and with what reason.
func (r *Registry) dueForTeardown(res *EphemeralResource, now time.Time) (string, bool) {
	// An expiring resource is a teardown a previous sweep started and
	// did not finish.
	if res.State == StateExpiring {
		return "teardown resumed after interrupted sweep", true
	}

	if !res.HardExpiry.IsZero() && !now.Before(res.HardExpiry) {
		return fmt.Sprintf("hard expiry reached after %s",
			now.Sub(res.CreatedAt).Truncate(time.Second)), true
	}

	// Inactivity applies to active resources only. A provisioning
	// resource has no duty to heartbeat yet; its hard expiry bounds how
	// long it can linger.
	if res.State == StateActive && r.config.DefaultTTL > 0 {
		idle := now.Sub(res.LastActivityAt)
		if idle >= r.config.DefaultTTL {
			return fmt.Sprintf("idle for %s, limit %s",
				idle.Truncate(time.Second), r.config.DefaultTTL), true
		}
	}

	return "", false
}

// liveResource loads a resource for a lifecycle operation. Absent,
// destroyed, and expiring resources are all unknown to callers:
// teardown has the same finality as never having existed.
func (r *Registry) liveResource(ctx context.Context, id, op string) (*EphemeralResource, error) {
	res, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, NewInfrastructureError(op, err)
	}
	if res == nil || res.State == StateDestroyed || res.State == StateExpiring {
		return nil, NewUnknownResourceError(id)
	}
	return res, nil
}

// activeSet returns the rule set in force, or the empty set when no
// source is wired.
func (r *Registry) activeSet() *rules.RuleSet {
	if r.source != nil {
		if set := r.source.Active(); set != nil {
			return set
		}
	}
	return rules.Empty()
}

// record hands a decision to the sink. Recording failures are logged,
// not propagated: a full audit buffer must not wedge the lifecycle.
func (r *Registry) record(ctx context.Context, d *audit.Decision) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Record(ctx, d); err != nil {
		r.logger.Error("failed to record decision",
			"resource_id", d.ResourceID, "outcome", d.Outcome, "error", err)
	}
}
