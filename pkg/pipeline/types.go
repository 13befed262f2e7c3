package pipeline

import "time"

// CheckResult is the reported outcome of a required check.
type CheckResult string

const (
	CheckPass    CheckResult = "pass"
	CheckFail    CheckResult = "fail"
	CheckPending CheckResult = "pending"
)

// Valid reports whether c is a known check result.
func (c CheckResult) Valid() bool {
	switch c {
	case CheckPass, CheckFail, CheckPending:
		return true
	}
	return false
}

// StageTransition is one applied move through the stage graph. A run's
// history is the ordered list of its transitions and is append-only;
// nothing rewrites or drops an entry once applied.
type StageTransition struct {
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`

	// RuleID is the rule that admitted the transition, empty for
	// mechanical moves and for gates no rule covered.
	RuleID string `json:"rule_id,omitempty"`
}

// PipelineRun is the tracked state of one change moving through the
// delivery pipeline. Runs are created at Branch and advance through
// the stage graph until they reach a terminal stage.
type PipelineRun struct {
	// ID is the caller-assigned run identifier.
	ID string `json:"id"`

	// CurrentStage is where the run sits now.
	CurrentStage Stage `json:"current_stage"`

	// History records every applied transition in order.
	History []StageTransition `json:"history"`

	// Approvals maps reviewer id to whether that reviewer is a
	// designated code owner. Recording the same reviewer again does not
	// duplicate; an owner flag, once set, stays set.
	Approvals map[string]bool `json:"approvals"`

	// CheckResults holds the latest reported result per check name.
	// Resubmitting a check overwrites its previous result.
	CheckResults map[string]CheckResult `json:"check_results"`

	// CreatedAt is when the run was first seen.
	CreatedAt time.Time `json:"created_at"`

	// StageEnteredAt is when the run entered its current stage. Stage
	// age for staleness detection is measured from here.
	StageEnteredAt time.Time `json:"stage_entered_at"`
}

// Terminal reports whether the run has finished, successfully or not.
func (r *PipelineRun) Terminal() bool {
	return r.CurrentStage.Terminal()
}

// ApprovalCounts returns the number of recorded approvals and how many
// of those came from designated code owners.
func (r *PipelineRun) ApprovalCounts() (total, owners int) {
	for _, owner := range r.Approvals {
		if owner {
			owners++
		}
	}
	return len(r.Approvals), owners
}

// Clone returns a deep copy safe to hand to callers.
func (r *PipelineRun) Clone() *PipelineRun {
	out := *r
	out.History = make([]StageTransition, len(r.History))
	copy(out.History, r.History)
	out.Approvals = make(map[string]bool, len(r.Approvals))
	for id, owner := range r.Approvals {
		out.Approvals[id] = owner
	}
	out.CheckResults = make(map[string]CheckResult, len(r.CheckResults))
	for name, res := range r.CheckResults {
		out.CheckResults[name] = res
	}
	return &out
}
