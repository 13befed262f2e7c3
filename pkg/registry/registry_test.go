package registry_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/registry"
	"mercator-hq/ganymede/pkg/registry/storage"
	"mercator-hq/ganymede/pkg/rules"
)

var registryEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// fakeCollaborator counts calls per idempotency key and can be told to
// fail or to block mid-teardown.
type fakeCollaborator struct {
	mu           sync.Mutex
	provisions   map[string]int
	destroys     map[string]int
	provisionErr error
	destroyErr   error

	destroyEnter chan string   // receives the id when Destroy is entered
	destroyBlock chan struct{} // Destroy waits on this before returning
}

func newFakeCollaborator() *fakeCollaborator {
	return &fakeCollaborator{
		provisions: make(map[string]int),
		destroys:   make(map[string]int),
	}
}

func (f *fakeCollaborator) ProvisionRequest(ctx context.Context, kind, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisions[key]++
	return f.provisionErr
}

func (f *fakeCollaborator) Destroy(ctx context.Context, resourceID, key string) error {
	if f.destroyEnter != nil {
		f.destroyEnter <- resourceID
	}
	if f.destroyBlock != nil {
		<-f.destroyBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys[key]++
	return f.destroyErr
}

func (f *fakeCollaborator) provisionCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provisions[key]
}

func (f *fakeCollaborator) destroyCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.destroys[key]
}

func (f *fakeCollaborator) destroyedKeys() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.destroys)
}

func (f *fakeCollaborator) setDestroyErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyErr = err
}

// decisionLog collects emitted decisions for assertions.
type decisionLog struct {
	mu        sync.Mutex
	decisions []*audit.Decision
}

func (l *decisionLog) Record(ctx context.Context, d *audit.Decision) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decisions = append(l.decisions, d)
	return nil
}

func (l *decisionLog) byOutcome(o audit.Outcome) []*audit.Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*audit.Decision
	for _, d := range l.decisions {
		if d.Outcome == o {
			out = append(out, d)
		}
	}
	return out
}

func (l *decisionLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.decisions)
}

type staticSource struct {
	set *rules.RuleSet
}

func (s *staticSource) Active() *rules.RuleSet {
	return s.set
}

func quotaRules(t *testing.T, kind string, limit int) *rules.RuleSet {
	t.Helper()
	set, err := rules.NewRuleSet([]rules.Rule{{
		ID:        kind + "-quota",
		Subject:   rules.Subject{Kind: rules.SubjectResourceKind, Value: kind},
		Predicate: rules.MaxConcurrent{Limit: limit},
		Effect:    rules.EffectDeny,
	}})
	if err != nil {
		t.Fatalf("failed to build rule set: %v", err)
	}
	return set
}

func spinUpRules(t *testing.T, kind string, budget time.Duration) *rules.RuleSet {
	t.Helper()
	set, err := rules.NewRuleSet([]rules.Rule{{
		ID:        kind + "-spinup",
		Subject:   rules.Subject{Kind: rules.SubjectResourceKind, Value: kind},
		Predicate: rules.SpinUpWithin{Budget: budget},
		Effect:    rules.EffectRedact,
	}})
	if err != nil {
		t.Fatalf("failed to build rule set: %v", err)
	}
	return set
}

func testConfig() *config.RegistryConfig {
	return &config.RegistryConfig{
		DefaultTTL:   4 * time.Hour,
		HardExpiry:   4 * time.Hour,
		SpinUpBudget: 10 * time.Minute,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestRegistry builds a registry over fresh in-memory storage with
// an adjustable clock starting at registryEpoch.
func newTestRegistry(t *testing.T, set *rules.RuleSet, cfg *config.RegistryConfig) (*registry.Registry, *fakeCollaborator, *decisionLog, func(time.Duration)) {
	t.Helper()

	collab := newFakeCollaborator()
	log := &decisionLog{}

	var mu sync.Mutex
	now := registryEpoch
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	reg, err := registry.NewRegistry(storage.NewMemoryStorage(), collab, &staticSource{set: set}, cfg)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	reg.WithSink(log).WithClock(clock).WithLogger(quietLogger())
	return reg, collab, log, advance
}

func TestNewRegistry_NilStorage(t *testing.T) {
	if _, err := registry.NewRegistry(nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil storage")
	}
}

func TestProvision_CreatesProvisioningResource(t *testing.T) {
	reg, collab, log, _ := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if res.State != registry.StateProvisioning {
		t.Errorf("expected state provisioning, got %s", res.State)
	}
	if !res.CreatedAt.Equal(registryEpoch) || !res.LastActivityAt.Equal(registryEpoch) {
		t.Errorf("expected timestamps at epoch, got created %v activity %v", res.CreatedAt, res.LastActivityAt)
	}
	// No explicit duration, so the configured hard expiry applies.
	if want := registryEpoch.Add(4 * time.Hour); !res.HardExpiry.Equal(want) {
		t.Errorf("expected hard expiry %v, got %v", want, res.HardExpiry)
	}

	if calls := collab.provisionCount(res.ID); calls != 1 {
		t.Errorf("expected one provision request keyed by id, got %d", calls)
	}

	admits := log.byOutcome(audit.OutcomeAdmit)
	if len(admits) != 1 {
		t.Fatalf("expected one admit decision, got %d", len(admits))
	}
	d := admits[0]
	if d.ResourceID != res.ID || d.ResourceKind != "build-vm" || d.Component != audit.ComponentRegistry {
		t.Errorf("decision subject wrong: %+v", d)
	}
	if d.RuleID != "" {
		t.Errorf("expected no rule cited without a quota rule, got %q", d.RuleID)
	}
}

func TestProvision_ExplicitHardExpiry(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t, rules.Empty(), testConfig())

	res, err := reg.Provision(context.Background(), "build-vm", 2*time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if want := registryEpoch.Add(2 * time.Hour); !res.HardExpiry.Equal(want) {
		t.Errorf("expected hard expiry %v, got %v", want, res.HardExpiry)
	}
}

func TestProvision_EmptyKind(t *testing.T) {
	reg, _, log, _ := newTestRegistry(t, rules.Empty(), testConfig())

	if _, err := reg.Provision(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty kind")
	}
	if log.count() != 0 {
		t.Errorf("expected no decisions, got %d", log.count())
	}
}

func TestProvision_QuotaFromRule(t *testing.T) {
	reg, _, log, _ := newTestRegistry(t, quotaRules(t, "build-vm", 2), testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := reg.Provision(ctx, "build-vm", 0); err != nil {
			t.Fatalf("provision %d failed: %v", i+1, err)
		}
	}

	_, err := reg.Provision(ctx, "build-vm", 0)
	if err == nil {
		t.Fatal("expected third provision to be denied")
	}
	var quotaErr *registry.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %T: %v", err, err)
	}
	if quotaErr.Kind != "build-vm" || quotaErr.Limit != 2 || quotaErr.Active != 2 {
		t.Errorf("unexpected error detail: %+v", quotaErr)
	}
	if quotaErr.RuleID != "build-vm-quota" {
		t.Errorf("expected the quota rule cited, got %q", quotaErr.RuleID)
	}
	if code := quotaErr.Code(); code != "QUOTA_EXCEEDED" {
		t.Errorf("expected code QUOTA_EXCEEDED, got %s", code)
	}

	denies := log.byOutcome(audit.OutcomeDeny)
	if len(denies) != 1 {
		t.Fatalf("expected one deny decision, got %d", len(denies))
	}
	if denies[0].RuleID != "build-vm-quota" {
		t.Errorf("deny cites %q, want the quota rule", denies[0].RuleID)
	}

	// The quota is scoped to the kind: other kinds are unconstrained.
	if _, err := reg.Provision(ctx, "preview-env", 0); err != nil {
		t.Errorf("provision of unrelated kind failed: %v", err)
	}
}

func TestProvision_QuotaConfigFallback(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultQuota = 1
	reg, _, log, _ := newTestRegistry(t, rules.Empty(), cfg)
	ctx := context.Background()

	if _, err := reg.Provision(ctx, "build-vm", 0); err != nil {
		t.Fatalf("first provision failed: %v", err)
	}

	_, err := reg.Provision(ctx, "build-vm", 0)
	var quotaErr *registry.QuotaExceededError
	if !errors.As(err, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quotaErr.RuleID != "" {
		t.Errorf("config fallback should cite no rule, got %q", quotaErr.RuleID)
	}

	denies := log.byOutcome(audit.OutcomeDeny)
	if len(denies) != 1 || denies[0].RuleID != "" {
		t.Errorf("expected one deny with empty rule id, got %+v", denies)
	}
}

func TestProvision_CollaboratorFailureRollsBack(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultQuota = 1
	reg, collab, log, _ := newTestRegistry(t, rules.Empty(), cfg)
	ctx := context.Background()

	collab.provisionErr = errors.New("cloud API unavailable")

	_, err := reg.Provision(ctx, "build-vm", 0)
	var infraErr *registry.InfrastructureError
	if !errors.As(err, &infraErr) {
		t.Fatalf("expected InfrastructureError, got %T: %v", err, err)
	}
	if !errors.Is(err, collab.provisionErr) {
		t.Error("expected the collaborator error in the chain")
	}
	if log.byOutcome(audit.OutcomeAdmit) != nil {
		t.Error("failed provision must not emit an admit decision")
	}

	// The rolled-back attempt must not consume the quota slot.
	collab.provisionErr = nil
	if _, err := reg.Provision(ctx, "build-vm", 0); err != nil {
		t.Errorf("provision after rollback failed: %v", err)
	}
}

func TestMarkReady_CapturesSpinUpLatency(t *testing.T) {
	reg, _, log, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	advance(3 * time.Minute)
	ready, err := reg.MarkReady(ctx, res.ID)
	if err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	if ready.State != registry.StateActive {
		t.Errorf("expected state active, got %s", ready.State)
	}
	if ready.SpinUpLatency != 3*time.Minute {
		t.Errorf("expected spin-up latency 3m, got %v", ready.SpinUpLatency)
	}
	if want := registryEpoch.Add(3 * time.Minute); !ready.ReadyAt.Equal(want) || !ready.LastActivityAt.Equal(want) {
		t.Errorf("expected ready/activity at %v, got %v / %v", want, ready.ReadyAt, ready.LastActivityAt)
	}
	if advisories := log.byOutcome(audit.OutcomeRedact); advisories != nil {
		t.Errorf("within budget, expected no advisory, got %+v", advisories)
	}

	// Marking again is a no-op: latency keeps the original value and no
	// further decision is emitted.
	before := log.count()
	advance(10 * time.Minute)
	again, err := reg.MarkReady(ctx, res.ID)
	if err != nil {
		t.Fatalf("repeated MarkReady failed: %v", err)
	}
	if again.SpinUpLatency != 3*time.Minute {
		t.Errorf("repeated MarkReady changed latency to %v", again.SpinUpLatency)
	}
	if log.count() != before {
		t.Error("repeated MarkReady emitted a decision")
	}
}

func TestMarkReady_OverBudgetEmitsAdvisory(t *testing.T) {
	reg, _, log, advance := newTestRegistry(t, spinUpRules(t, "build-vm", 5*time.Minute), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	advance(7 * time.Minute)
	ready, err := reg.MarkReady(ctx, res.ID)
	if err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	// Over budget surfaces as an advisory, never a destroy.
	if ready.State != registry.StateActive {
		t.Errorf("expected resource active despite slow spin-up, got %s", ready.State)
	}

	advisories := log.byOutcome(audit.OutcomeRedact)
	if len(advisories) != 1 {
		t.Fatalf("expected one advisory decision, got %d", len(advisories))
	}
	if advisories[0].RuleID != "build-vm-spinup" {
		t.Errorf("advisory cites %q, want the spin-up rule", advisories[0].RuleID)
	}
}

func TestMarkReady_ConfigBudgetFallback(t *testing.T) {
	reg, _, log, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	advance(11 * time.Minute)
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advisories := log.byOutcome(audit.OutcomeRedact)
	if len(advisories) != 1 {
		t.Fatalf("expected one advisory from the 10m config budget, got %d", len(advisories))
	}
	if advisories[0].RuleID != "" {
		t.Errorf("config fallback should cite no rule, got %q", advisories[0].RuleID)
	}
}

func TestMarkReady_UnknownResource(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t, rules.Empty(), testConfig())

	_, err := reg.MarkReady(context.Background(), "nope")
	var unknownErr *registry.UnknownResourceError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownResourceError, got %T: %v", err, err)
	}
	if unknownErr.ResourceID != "nope" {
		t.Errorf("expected the id in the error, got %q", unknownErr.ResourceID)
	}
	if code := unknownErr.Code(); code != "UNKNOWN_RESOURCE" {
		t.Errorf("expected code UNKNOWN_RESOURCE, got %s", code)
	}
}

func TestHeartbeat_ResetsInactivityClock(t *testing.T) {
	reg, _, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	// Heartbeats are accepted while still provisioning.
	advance(time.Minute)
	if err := reg.Heartbeat(ctx, res.ID); err != nil {
		t.Fatalf("Heartbeat while provisioning failed: %v", err)
	}

	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advance(90 * time.Minute)
	if err := reg.Heartbeat(ctx, res.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	loaded, err := reg.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if want := registryEpoch.Add(91 * time.Minute); !loaded.LastActivityAt.Equal(want) {
		t.Errorf("expected last activity %v, got %v", want, loaded.LastActivityAt)
	}
}

func TestHeartbeat_UnknownResource(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t, rules.Empty(), testConfig())

	err := reg.Heartbeat(context.Background(), "nope")
	var unknownErr *registry.UnknownResourceError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("expected UnknownResourceError, got %v", err)
	}
}

func TestSweep_IdleExpiry(t *testing.T) {
	reg, collab, log, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 24*time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advance(4*time.Hour + time.Minute)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Destroyed != 1 || result.Failed != 0 {
		t.Fatalf("expected one destroy, got %+v", result)
	}

	loaded, err := reg.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateDestroyed {
		t.Errorf("expected state destroyed, got %s", loaded.State)
	}
	if loaded.DestroyedAt.IsZero() {
		t.Error("expected destroyed_at to be set")
	}
	if collab.destroyCount(res.ID) != 1 {
		t.Errorf("expected exactly one teardown, got %d", collab.destroyCount(res.ID))
	}

	// The eviction decision explains which limit fired.
	var found bool
	for _, d := range log.byOutcome(audit.OutcomeAdmit) {
		if d.ResourceID == res.ID && strings.Contains(d.Reason, "idle for") {
			found = true
		}
	}
	if !found {
		t.Error("expected an eviction decision citing idleness")
	}
}

func TestSweep_HeartbeatDefersIdleExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.HardExpiry = 0 // isolate the inactivity path
	reg, collab, _, advance := newTestRegistry(t, rules.Empty(), cfg)
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advance(3*time.Hour + 50*time.Minute)
	if err := reg.Heartbeat(ctx, res.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	// 4h11m after creation but only 21m after the heartbeat.
	advance(21 * time.Minute)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Destroyed != 0 {
		t.Fatalf("heartbeated resource was destroyed: %+v", result)
	}

	advance(4 * time.Hour)
	result, err = reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Destroyed != 1 {
		t.Fatalf("expected idle destroy once the heartbeat aged out, got %+v", result)
	}
	if collab.destroyCount(res.ID) != 1 {
		t.Errorf("expected one teardown, got %d", collab.destroyCount(res.ID))
	}
}

// A resource with a 4h hard expiry, heartbeated at creation and never
// again, is destroyed by the sweep at 4h01m exactly once. Further
// sweeps must not touch it again.
func TestSweep_HardExpiryDestroysExactlyOnce(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultTTL = 24 * time.Hour // isolate the hard expiry path
	reg, collab, log, advance := newTestRegistry(t, rules.Empty(), cfg)
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 4*time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	if err := reg.Heartbeat(ctx, res.ID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	advance(4*time.Hour + time.Minute)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Destroyed != 1 {
		t.Fatalf("expected the expired resource destroyed, got %+v", result)
	}

	for i := 0; i < 3; i++ {
		advance(5 * time.Minute)
		result, err := reg.Sweep(ctx)
		if err != nil {
			t.Fatalf("repeat sweep failed: %v", err)
		}
		if result.Destroyed != 0 {
			t.Fatalf("repeat sweep destroyed again: %+v", result)
		}
	}
	if collab.destroyCount(res.ID) != 1 {
		t.Errorf("expected exactly one teardown across sweeps, got %d", collab.destroyCount(res.ID))
	}

	// One admit at provision time, one at eviction, nothing more.
	admits := log.byOutcome(audit.OutcomeAdmit)
	if len(admits) != 2 {
		t.Fatalf("expected provision and eviction decisions only, got %d admits", len(admits))
	}
	if !strings.Contains(admits[1].Reason, "hard expiry") {
		t.Errorf("eviction reason %q does not cite the hard expiry", admits[1].Reason)
	}
}

func TestSweep_ProvisioningPastHardExpiry(t *testing.T) {
	reg, collab, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	// Never marked ready: a provisioning zombie.
	res, err := reg.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	advance(61 * time.Minute)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Destroyed != 1 {
		t.Fatalf("expected the zombie destroyed, got %+v", result)
	}
	if collab.destroyCount(res.ID) != 1 {
		t.Errorf("expected one teardown, got %d", collab.destroyCount(res.ID))
	}
}

func TestSweep_TeardownFailureRetriesWithSameKey(t *testing.T) {
	reg, collab, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	collab.setDestroyErr(errors.New("teardown API unavailable"))

	advance(2 * time.Hour)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Failed != 1 || result.Destroyed != 0 {
		t.Fatalf("expected one failed teardown, got %+v", result)
	}

	// The resource is expiring: gone from the caller's point of view,
	// but not yet destroyed.
	loaded, err := reg.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateExpiring {
		t.Errorf("expected state expiring after failed teardown, got %s", loaded.State)
	}
	var unknownErr *registry.UnknownResourceError
	if err := reg.Heartbeat(ctx, res.ID); !errors.As(err, &unknownErr) {
		t.Errorf("expected heartbeat on expiring resource to fail unknown, got %v", err)
	}

	// Next sweep retries the teardown with the same idempotency key.
	collab.setDestroyErr(nil)
	result, err = reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("retry sweep failed: %v", err)
	}
	if result.Destroyed != 1 {
		t.Fatalf("expected the retry to destroy, got %+v", result)
	}
	if collab.destroyCount(res.ID) != 2 {
		t.Errorf("expected two calls on the same key, got %d", collab.destroyCount(res.ID))
	}
	if collab.destroyedKeys() != 1 {
		t.Errorf("expected a single idempotency key, got %d", collab.destroyedKeys())
	}

	loaded, err = reg.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateDestroyed {
		t.Errorf("expected state destroyed, got %s", loaded.State)
	}
}

// An interrupted teardown must be resumed by a fresh registry over the
// same store, as after a crash and restart.
func TestSweep_ResumesAfterRestart(t *testing.T) {
	store := storage.NewMemoryStorage()
	collab := newFakeCollaborator()
	log := &decisionLog{}

	var mu sync.Mutex
	now := registryEpoch
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	reg1, err := registry.NewRegistry(store, collab, &staticSource{set: rules.Empty()}, testConfig())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	reg1.WithSink(log).WithClock(clock).WithLogger(quietLogger())
	ctx := context.Background()

	res, err := reg1.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg1.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	// First process crashes mid-teardown: expiring is persisted, the
	// destroy call fails.
	collab.setDestroyErr(errors.New("process killed"))
	if _, err := reg1.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	collab.setDestroyErr(nil)
	reg2, err := registry.NewRegistry(store, collab, &staticSource{set: rules.Empty()}, testConfig())
	if err != nil {
		t.Fatalf("NewRegistry (restart) failed: %v", err)
	}
	reg2.WithSink(log).WithClock(clock).WithLogger(quietLogger())

	result, err := reg2.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep after restart failed: %v", err)
	}
	if result.Destroyed != 1 {
		t.Fatalf("expected the restart sweep to finish the teardown, got %+v", result)
	}
	if collab.destroyedKeys() != 1 {
		t.Errorf("teardown used %d keys, want 1", collab.destroyedKeys())
	}

	loaded, err := reg2.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateDestroyed {
		t.Errorf("expected state destroyed after restart sweep, got %s", loaded.State)
	}
}

func TestSweep_SkipsOverlappingSweep(t *testing.T) {
	reg, collab, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	advance(2 * time.Hour)

	collab.destroyEnter = make(chan string)
	collab.destroyBlock = make(chan struct{})

	type sweepOutcome struct {
		result *registry.SweepResult
		err    error
	}
	done := make(chan sweepOutcome, 1)
	go func() {
		result, err := reg.Sweep(ctx)
		done <- sweepOutcome{result, err}
	}()

	// Wait until the first sweep is inside the teardown call.
	select {
	case <-collab.destroyEnter:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never reached the collaborator")
	}

	second, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("overlapping Sweep failed: %v", err)
	}
	if !second.Skipped {
		t.Error("expected the overlapping sweep to be skipped")
	}

	close(collab.destroyBlock)
	outcome := <-done
	if outcome.err != nil {
		t.Fatalf("first sweep failed: %v", outcome.err)
	}
	if outcome.result.Destroyed != 1 {
		t.Errorf("expected the first sweep to destroy, got %+v", outcome.result)
	}
	if collab.destroyCount(res.ID) != 1 {
		t.Errorf("expected one teardown, got %d", collab.destroyCount(res.ID))
	}
}

func TestSweep_NothingDue(t *testing.T) {
	reg, _, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advance(time.Hour)
	result, err := reg.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Scanned != 1 || result.Destroyed != 0 || result.Failed != 0 || result.Skipped {
		t.Errorf("unexpected sweep result: %+v", result)
	}
}

func TestDestroyedIsAbsorbing(t *testing.T) {
	reg, _, _, advance := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}
	advance(2 * time.Hour)
	if _, err := reg.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	var unknownErr *registry.UnknownResourceError
	if err := reg.Heartbeat(ctx, res.ID); !errors.As(err, &unknownErr) {
		t.Errorf("heartbeat on destroyed: want UnknownResourceError, got %v", err)
	}
	if _, err := reg.MarkReady(ctx, res.ID); !errors.As(err, &unknownErr) {
		t.Errorf("mark ready on destroyed: want UnknownResourceError, got %v", err)
	}

	// The record itself stays readable for inspection.
	loaded, err := reg.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateDestroyed {
		t.Errorf("expected destroyed record, got %s", loaded.State)
	}
}

func TestStats(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultQuota = 1
	reg, _, _, advance := newTestRegistry(t, rules.Empty(), cfg)
	ctx := context.Background()

	res, err := reg.Provision(ctx, "build-vm", time.Hour)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.Provision(ctx, "build-vm", time.Hour); err == nil {
		t.Fatal("expected second provision denied")
	}
	if _, err := reg.MarkReady(ctx, res.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	advance(2 * time.Hour)
	if _, err := reg.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	stats := reg.Stats(ctx)
	if stats.Provisioned != 1 || stats.Denied != 1 || stats.Destroyed != 1 || stats.Sweeps != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Live != 0 {
		t.Errorf("expected no live resources, got %d", stats.Live)
	}
}

func TestList_FiltersByState(t *testing.T) {
	reg, _, _, _ := newTestRegistry(t, rules.Empty(), testConfig())
	ctx := context.Background()

	first, err := reg.Provision(ctx, "build-vm", 0)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.Provision(ctx, "build-vm", 0); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := reg.MarkReady(ctx, first.ID); err != nil {
		t.Fatalf("MarkReady failed: %v", err)
	}

	active, err := reg.List(ctx, registry.StateActive)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != first.ID {
		t.Errorf("expected only the ready resource active, got %+v", active)
	}

	all, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 resources, got %d", len(all))
	}
}
