package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
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

// DecisionSink receives the decisions the evaluator emits. The audit
// recorder satisfies this.
type DecisionSink interface {
	Record(ctx context.Context, d *audit.Decision) error
}

// StaleRun describes a run that has sat in one stage past its age
// limit. The evaluator only reports staleness; it never aborts or
// rolls a stale run back on its own.
type StaleRun struct {
	RunID  string
	Stage  Stage
	Age    time.Duration
	Limit  time.Duration
	RuleID string // rule that supplied the limit, empty for the config default
}

// StaleFunc is notified for each stale run a scan detects.
type StaleFunc func(StaleRun)

// ScanResult summarizes one stale-run scan.
type ScanResult struct {
	// Scanned is how many non-terminal runs the scan examined.
	Scanned int

	// Stale is how many of those sat past their stage age limit.
	Stale int

	// Skipped is true when another scan was already running and this
	// one returned without doing anything.
	Skipped bool
}

// Stats is a snapshot of evaluator counters. Admits counts applied
// stage transitions, Aborts counts explicit aborts separately.
type Stats struct {
	Runs   int
	Active int
	Admits uint64
	Denies uint64
	Aborts uint64
	Scans  uint64
}

// runEntry pairs a run with the mutex that serializes its mutation.
// Different runs proceed fully in parallel.
type runEntry struct {
	mu  sync.Mutex
	run *PipelineRun
}

// Evaluator moves pipeline runs through the stage graph under the
// active rule set. Every advance attempt, admitted or denied, emits
// exactly one decision; a refused transition never mutates the run.
type Evaluator struct {
	source RuleSource
	sink   DecisionSink
	config *config.PipelineConfig
	logger *slog.Logger
	now    func() time.Time

	staleFn StaleFunc

	// mu guards the runs map only. Per-run state is guarded by each
	// entry's own mutex, taken after the map lock is released.
	mu   sync.RWMutex
	runs map[string]*runEntry

	// scanMu admits one stale-run scan at a time. An overlapping scan
	// is skipped, not queued.
	scanMu sync.Mutex

	admits atomic.Uint64
	denies atomic.Uint64
	aborts atomic.Uint64
	scans  atomic.Uint64
}

// NewEvaluator creates an evaluator over an empty run set. A nil
// config applies the package defaults.
func NewEvaluator(source RuleSource, cfg *config.PipelineConfig) *Evaluator {
	if cfg == nil {
		cfg = &config.PipelineConfig{
			MaxStageAge: 24 * time.Hour,
		}
	}
	return &Evaluator{
		source: source,
		config: cfg,
		logger: slog.Default().With("component", "pipeline"),
		now:    time.Now,
		runs:   make(map[string]*runEntry),
	}
}

// WithSink routes the evaluator's decisions to sink. Without one the
// decisions are dropped.
func (e *Evaluator) WithSink(sink DecisionSink) *Evaluator {
	e.sink = sink
	return e
}

// WithLogger replaces the evaluator's logger.
func (e *Evaluator) WithLogger(logger *slog.Logger) *Evaluator {
	if logger != nil {
		e.logger = logger.With("component", "pipeline")
	}
	return e
}

// WithClock replaces the evaluator's time source. Tests inject a fixed
// clock to make stage age arithmetic exact.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	if now != nil {
		e.now = now
	}
	return e
}

// WithStaleHandler registers fn to be called for each stale run a scan
// detects, in addition to the advisory decision the scan records.
func (e *Evaluator) WithStaleHandler(fn StaleFunc) *Evaluator {
	e.staleFn = fn
	return e
}

// StartRun registers a run at the Branch stage. Starting an already
// tracked run is a no-op that returns the existing run, so event
// ingestion can create runs on first reference without coordination.
func (e *Evaluator) StartRun(ctx context.Context, runID string) (*PipelineRun, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id cannot be empty")
	}

	e.mu.Lock()
	en, ok := e.runs[runID]
	if !ok {
		now := e.now()
		en = &runEntry{run: &PipelineRun{
			ID:             runID,
			CurrentStage:   StageBranch,
			Approvals:      make(map[string]bool),
			CheckResults:   make(map[string]CheckResult),
			CreatedAt:      now,
			StageEnteredAt: now,
		}}
		e.runs[runID] = en
		e.logger.Info("run started", "run_id", runID)
	}
	e.mu.Unlock()

	en.mu.Lock()
	defer en.mu.Unlock()
	return en.run.Clone(), nil
}

// Run returns a snapshot of a tracked run. Terminal runs remain
// readable until evicted.
func (e *Evaluator) Run(ctx context.Context, runID string) (*PipelineRun, error) {
	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.run.Clone(), nil
}

// Runs returns snapshots of every tracked run, ordered by id.
func (e *Evaluator) Runs(ctx context.Context) []*PipelineRun {
	e.mu.RLock()
	entries := make([]*runEntry, 0, len(e.runs))
	for _, en := range e.runs {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	out := make([]*PipelineRun, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		out = append(out, en.run.Clone())
		en.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SubmitCheckResult records the latest result for a named check.
// Resubmission overwrites. When the run sits in a check-running stage
// and every known check passes, the evaluator attempts to advance
// automatically and returns that decision; otherwise the returned
// decision is nil.
//
// A result for a terminal run is denied without being recorded.
func (e *Evaluator) SubmitCheckResult(ctx context.Context, runID, checkName string, result CheckResult) (*audit.Decision, error) {
	if checkName == "" {
		return nil, fmt.Errorf("check name cannot be empty")
	}
	if !result.Valid() {
		return nil, fmt.Errorf("invalid check result %q", result)
	}

	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	run := en.run
	set := e.activeSet()
	if run.Terminal() {
		reason := fmt.Sprintf("check result for %q not applicable: run is terminal in stage %s", checkName, run.CurrentStage)
		return e.denyEvent(ctx, set, run, "", "", reason, "")
	}

	run.CheckResults[checkName] = result
	e.logger.Debug("check result recorded",
		"run_id", run.ID,
		"check", checkName,
		"result", result,
	)

	if checksStage(run.CurrentStage) && allChecksPass(run) {
		return e.advanceLocked(ctx, set, run, "")
	}
	return nil, nil
}

// RecordApproval records a reviewer's approval. Recording is
// idempotent per reviewer and an owner flag, once set, stays set.
// While the run sits at ReviewPending each approval triggers an
// advance attempt whose decision is returned; approvals arriving in
// earlier stages are recorded silently and the returned decision is
// nil. An approval for a run already past review is denied without
// being recorded.
func (e *Evaluator) RecordApproval(ctx context.Context, runID, reviewerID string, isCodeOwner bool) (*audit.Decision, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer id cannot be empty")
	}

	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	run := en.run
	set := e.activeSet()
	if !reviewOpen(run.CurrentStage) {
		reason := fmt.Sprintf("approval from reviewer %q not applicable in stage %s", reviewerID, run.CurrentStage)
		return e.denyEvent(ctx, set, run, "", "", reason, reviewerID)
	}

	run.Approvals[reviewerID] = run.Approvals[reviewerID] || isCodeOwner
	e.logger.Debug("approval recorded",
		"run_id", run.ID,
		"reviewer", reviewerID,
		"code_owner", run.Approvals[reviewerID],
	)

	if run.CurrentStage == StageReviewPending {
		return e.advanceLocked(ctx, set, run, reviewerID)
	}
	return nil, nil
}

// RecordRejection records a reviewer's rejection, moving a run at
// ReviewPending onto the rework path through ReviewRejected. A
// rejection in any other stage is denied.
func (e *Evaluator) RecordRejection(ctx context.Context, runID, reviewerID string) (*audit.Decision, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer id cannot be empty")
	}

	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	run := en.run
	set := e.activeSet()
	if run.CurrentStage != StageReviewPending {
		reason := fmt.Sprintf("rejection from reviewer %q not applicable in stage %s", reviewerID, run.CurrentStage)
		return e.denyEvent(ctx, set, run, "", "", reason, reviewerID)
	}

	reason := fmt.Sprintf("change rejected by reviewer %q", reviewerID)
	return e.commitTransition(ctx, set, run, StageReviewRejected, "", reason, reviewerID)
}

// Advance re-evaluates the run against the active rule set and either
// applies the next transition or refuses it. The outcome depends only
// on the rule set and the run's state, so repeating a denied advance
// yields the same decision.
func (e *Evaluator) Advance(ctx context.Context, runID string) (*audit.Decision, error) {
	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	return e.advanceLocked(ctx, e.activeSet(), en.run, "")
}

// Abort explicitly terminates a run from any non-terminal stage.
// Aborting a terminal run is denied.
func (e *Evaluator) Abort(ctx context.Context, runID, reason string) (*audit.Decision, error) {
	en, ok := e.entry(runID)
	if !ok {
		return nil, NewUnknownRunError(runID)
	}
	en.mu.Lock()
	defer en.mu.Unlock()

	run := en.run
	set := e.activeSet()
	if run.Terminal() {
		msg := fmt.Sprintf("run is terminal in stage %s", run.CurrentStage)
		return e.denyEvent(ctx, set, run, "", "", msg, "")
	}

	msg := "run aborted"
	if reason != "" {
		msg = "run aborted: " + reason
	}
	return e.commitTransition(ctx, set, run, StageAborted, "", msg, "")
}

// ScanStale examines every non-terminal run and records an advisory
// decision for each one sitting in its current stage past the age
// limit. The limit comes from the max_stage_age rule scoped to the
// stage, else the configured fallback; zero for both exempts the
// stage. Detection only: the run itself is not touched.
//
// Overlapping scans are skipped, not queued.
func (e *Evaluator) ScanStale(ctx context.Context) (*ScanResult, error) {
	if !e.scanMu.TryLock() {
		return &ScanResult{Skipped: true}, nil
	}
	defer e.scanMu.Unlock()
	e.scans.Add(1)

	set := e.activeSet()
	now := e.now()

	e.mu.RLock()
	entries := make([]*runEntry, 0, len(e.runs))
	for _, en := range e.runs {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	result := &ScanResult{}
	var stale []StaleRun
	for _, en := range entries {
		en.mu.Lock()
		run := en.run
		if run.Terminal() {
			en.mu.Unlock()
			continue
		}
		result.Scanned++

		age := now.Sub(run.StageEnteredAt)
		limit, ruleID, found := set.MaxStageAgeFor(string(run.CurrentStage))
		if !found {
			limit = e.config.MaxStageAge
		}
		if limit <= 0 || age < limit {
			en.mu.Unlock()
			continue
		}
		stale = append(stale, StaleRun{
			RunID:  run.ID,
			Stage:  run.CurrentStage,
			Age:    age,
			Limit:  limit,
			RuleID: ruleID,
		})
		en.mu.Unlock()
	}

	for _, s := range stale {
		e.logger.Warn("stale run detected",
			"run_id", s.RunID,
			"stage", s.Stage,
			"age", s.Age,
			"limit", s.Limit,
		)
		d := &audit.Decision{
			EventID:        uuid.NewString(),
			RuleID:         s.RuleID,
			RuleSetVersion: set.Version(),
			Outcome:        audit.OutcomeRedact,
			Reason: fmt.Sprintf("run stalled in stage %s: idle for %s, limit %s",
				s.Stage, s.Age.Truncate(time.Second), s.Limit.Truncate(time.Second)),
			RunID:     s.RunID,
			Stage:     string(s.Stage),
			Component: audit.ComponentPipeline,
			Timestamp: now,
		}
		if err := e.record(ctx, d); err != nil {
			e.logger.Error("failed to record stale-run advisory",
				"run_id", s.RunID,
				"error", err,
			)
		}
		if e.staleFn != nil {
			e.staleFn(s)
		}
		result.Stale++
	}
	return result, nil
}

// EvictTerminal drops terminal runs that finished at least olderThan
// ago and returns how many were evicted. Zero evicts every terminal
// run.
func (e *Evaluator) EvictTerminal(olderThan time.Duration) int {
	cutoff := e.now().Add(-olderThan)

	e.mu.Lock()
	defer e.mu.Unlock()
	evicted := 0
	for id, en := range e.runs {
		en.mu.Lock()
		if en.run.Terminal() && !en.run.StageEnteredAt.After(cutoff) {
			delete(e.runs, id)
			evicted++
		}
		en.mu.Unlock()
	}
	if evicted > 0 {
		e.logger.Info("evicted terminal runs", "count", evicted)
	}
	return evicted
}

// Stats returns a snapshot of evaluator counters.
func (e *Evaluator) Stats() Stats {
	e.mu.RLock()
	entries := make([]*runEntry, 0, len(e.runs))
	for _, en := range e.runs {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	active := 0
	for _, en := range entries {
		en.mu.Lock()
		if !en.run.Terminal() {
			active++
		}
		en.mu.Unlock()
	}
	return Stats{
		Runs:   len(entries),
		Active: active,
		Admits: e.admits.Load(),
		Denies: e.denies.Load(),
		Aborts: e.aborts.Load(),
		Scans:  e.scans.Load(),
	}
}

// advanceLocked decides and, if admitted, applies the run's next
// transition. The caller holds the run's lock.
func (e *Evaluator) advanceLocked(ctx context.Context, set *rules.RuleSet, run *PipelineRun, subjectID string) (*audit.Decision, error) {
	if run.Terminal() {
		reason := fmt.Sprintf("run is terminal in stage %s", run.CurrentStage)
		return e.denyEvent(ctx, set, run, "", "", reason, subjectID)
	}

	target, mechanical, reason := nextStage(run)
	if mechanical {
		return e.commitTransition(ctx, set, run, target, "", reason, subjectID)
	}

	gate := set.EvaluateGate(rules.SubjectStage, string(run.CurrentStage), factsFor(run, e.now()))
	for _, adv := range gate.Advisories {
		e.logger.Warn("gate advisory",
			"run_id", run.ID,
			"stage", run.CurrentStage,
			"rule_id", adv.RuleID,
			"reason", adv.Reason,
		)
	}
	if gate.Effect == rules.EffectDeny {
		return e.denyEvent(ctx, set, run, target, gate.RuleID, gate.Reason, subjectID)
	}
	return e.commitTransition(ctx, set, run, target, gate.RuleID, "advance admitted: "+gate.Reason, subjectID)
}

// nextStage selects the successor the run's state calls for. A
// mechanical move records an observed outcome, a failed check or a
// completed remediation, and is not subject to the stage gate.
func nextStage(run *PipelineRun) (target Stage, mechanical bool, reason string) {
	switch run.CurrentStage {
	case StageCIRunning:
		if failed := failedChecks(run); len(failed) > 0 {
			return StageCIFailed, true, "required checks failed: " + strings.Join(failed, ", ")
		}
		return StageCIPassed, false, ""
	case StageE2ERunning:
		if failed := failedChecks(run); len(failed) > 0 {
			return StageE2EFailed, true, "required checks failed: " + strings.Join(failed, ", ")
		}
		return StageE2EPassed, false, ""
	case StageCIFailed:
		return StagePRCreated, true, "returning for rework after failed checks"
	case StageReviewRejected:
		return StagePRCreated, true, "returning for rework after review rejection"
	case StageE2EFailed:
		return StageRolledBack, true, "rolling back after failed end-to-end checks"
	default:
		return successors[run.CurrentStage][0], false, ""
	}
}

// commitTransition records the admit decision and then applies the
// transition. Recording comes first so an unrecordable verdict never
// mutates the run. The caller holds the run's lock.
func (e *Evaluator) commitTransition(ctx context.Context, set *rules.RuleSet, run *PipelineRun, target Stage, ruleID, reason, subjectID string) (*audit.Decision, error) {
	d := e.newDecision(set, run, audit.OutcomeAdmit, ruleID, reason, subjectID)
	d.TargetStage = string(target)
	if err := e.record(ctx, d); err != nil {
		return nil, err
	}

	run.History = append(run.History, StageTransition{
		From:   run.CurrentStage,
		To:     target,
		At:     d.Timestamp,
		Reason: reason,
		RuleID: ruleID,
	})
	from := run.CurrentStage
	run.CurrentStage = target
	run.StageEnteredAt = d.Timestamp

	if target == StageAborted {
		e.aborts.Add(1)
	} else {
		e.admits.Add(1)
	}
	e.logger.Info("stage transition",
		"run_id", run.ID,
		"from", from,
		"to", target,
		"reason", reason,
	)
	return d, nil
}

// denyEvent records a deny decision without touching the run. The
// caller holds the run's lock.
func (e *Evaluator) denyEvent(ctx context.Context, set *rules.RuleSet, run *PipelineRun, target Stage, ruleID, reason, subjectID string) (*audit.Decision, error) {
	d := e.newDecision(set, run, audit.OutcomeDeny, ruleID, reason, subjectID)
	if target != "" {
		d.TargetStage = string(target)
	}
	if err := e.record(ctx, d); err != nil {
		return nil, err
	}
	e.denies.Add(1)
	e.logger.Info("event denied",
		"run_id", run.ID,
		"stage", run.CurrentStage,
		"rule_id", ruleID,
		"reason", reason,
	)
	return d, nil
}

// newDecision builds a decision for the run in its current stage.
func (e *Evaluator) newDecision(set *rules.RuleSet, run *PipelineRun, outcome audit.Outcome, ruleID, reason, subjectID string) *audit.Decision {
	return &audit.Decision{
		EventID:        uuid.NewString(),
		RuleID:         ruleID,
		RuleSetVersion: set.Version(),
		Outcome:        outcome,
		Reason:         reason,
		RunID:          run.ID,
		SubjectID:      subjectID,
		Stage:          string(run.CurrentStage),
		Component:      audit.ComponentPipeline,
		Timestamp:      e.now(),
	}
}

// record hands a decision to the sink. A nil sink drops it; a sink
// failure is an infrastructure fault the caller must surface, since
// an unrecorded verdict must not take effect.
func (e *Evaluator) record(ctx context.Context, d *audit.Decision) error {
	if e.sink == nil {
		return nil
	}
	if err := e.sink.Record(ctx, d); err != nil {
		return NewInfrastructureError("record decision", err)
	}
	return nil
}

// factsFor assembles the rule facts observable on the run.
func factsFor(run *PipelineRun, now time.Time) rules.Facts {
	var passed, failed int
	for _, res := range run.CheckResults {
		switch res {
		case CheckPass:
			passed++
		case CheckFail:
			failed++
		}
	}
	total, owners := run.ApprovalCounts()
	return rules.Facts{
		Approvals:      total,
		OwnerApprovals: owners,
		ChecksTotal:    len(run.CheckResults),
		ChecksPassed:   passed,
		ChecksFailed:   failed,
		StageAge:       now.Sub(run.StageEnteredAt),
	}
}

// failedChecks lists the names of failed checks, sorted so the reason
// text is stable across repeated evaluations.
func failedChecks(run *PipelineRun) []string {
	var failed []string
	for name, res := range run.CheckResults {
		if res == CheckFail {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// allChecksPass reports whether every known check passed. A run with
// no known checks trivially passes.
func allChecksPass(run *PipelineRun) bool {
	for _, res := range run.CheckResults {
		if res != CheckPass {
			return false
		}
	}
	return true
}

// checksStage reports whether s is a stage whose gate is decided by
// check results, where a passing submission may auto-advance the run.
func checksStage(s Stage) bool {
	return s == StageCIRunning || s == StageE2ERunning
}

// reviewOpen reports whether approvals are still being accepted, that
// is, the run has not yet passed review.
func reviewOpen(s Stage) bool {
	switch s {
	case StageBranch, StagePRCreated, StageCIRunning, StageCIFailed,
		StageCIPassed, StageReviewPending, StageReviewRejected:
		return true
	}
	return false
}

// entry looks up a run's entry without holding the map lock past the
// lookup.
func (e *Evaluator) entry(runID string) (*runEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.runs[runID]
	return en, ok
}

// activeSet returns the rule set in force, or the empty set when no
// source is wired.
func (e *Evaluator) activeSet() *rules.RuleSet {
	if e.source != nil {
		if set := e.source.Active(); set != nil {
			return set
		}
	}
	return rules.Empty()
}
