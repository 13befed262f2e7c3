package rules

import "time"

// Effect is the outcome a rule contributes when it takes effect.
type Effect string

const (
	// EffectAdmit marks an override rule: if its predicate holds, the
	// gate admits immediately and remaining rules are skipped.
	EffectAdmit Effect = "admit"

	// EffectDeny marks a requirement rule: its predicate must hold,
	// otherwise the gate denies citing this rule.
	EffectDeny Effect = "deny"

	// EffectRedact marks an advisory rule: a violated predicate is
	// surfaced as an advisory but never blocks the gate.
	EffectRedact Effect = "redact"
)

// Valid reports whether the effect is one of the known values.
func (e Effect) Valid() bool {
	switch e {
	case EffectAdmit, EffectDeny, EffectRedact:
		return true
	}
	return false
}

// SubjectKind scopes a rule to one of the three event domains.
type SubjectKind string

const (
	// SubjectStage scopes a rule to a pipeline stage name.
	SubjectStage SubjectKind = "stage"

	// SubjectResourceKind scopes a rule to an ephemeral resource kind.
	SubjectResourceKind SubjectKind = "resource_kind"

	// SubjectAction scopes a rule to a rate-limited action name.
	SubjectAction SubjectKind = "action"
)

// Valid reports whether the subject kind is one of the known values.
func (k SubjectKind) Valid() bool {
	switch k {
	case SubjectStage, SubjectResourceKind, SubjectAction:
		return true
	}
	return false
}

// Subject identifies what a rule applies to. Value "*" matches every
// subject of the kind.
type Subject struct {
	Kind  SubjectKind `yaml:"kind" json:"kind"`
	Value string      `yaml:"value" json:"value"`
}

// Matches reports whether the subject covers the given kind and value.
func (s Subject) Matches(kind SubjectKind, value string) bool {
	if s.Kind != kind {
		return false
	}
	return s.Value == "*" || s.Value == value
}

// Default priorities for rules. Higher priorities evaluate first.
const (
	// PriorityHigh is for overrides and hard requirements.
	PriorityHigh = 100

	// PriorityMedium is for ordinary gate requirements.
	PriorityMedium = 50

	// PriorityLow is for advisories.
	PriorityLow = 10

	// PriorityDefault is assigned when a rule carries no priority.
	PriorityDefault = PriorityMedium
)

// Rule is a single policy rule. Rules are value types; once a rule is
// handed to NewRuleSet it is copied and the set's copy never changes.
type Rule struct {
	// ID uniquely identifies the rule within its set.
	ID string

	// Name is an optional human-readable label.
	Name string

	// Subject scopes the rule to a stage, resource kind, or action.
	Subject Subject

	// Predicate is the condition the rule tests. One of the closed
	// predicate set in predicates.go.
	Predicate Predicate

	// Effect determines how the rule participates in gate evaluation.
	Effect Effect

	// Priority orders evaluation, highest first. Equal priorities keep
	// definition order.
	Priority int

	// Reason overrides the predicate's default explanation in
	// decisions. Optional.
	Reason string
}

// reason returns the explanation cited when this rule takes effect.
func (r *Rule) reason() string {
	if r.Reason != "" {
		return r.Reason
	}
	return r.Predicate.defaultReason()
}

// Facts carries the observed state a predicate is tested against.
// Callers populate the fields relevant to the gate being evaluated and
// leave the rest zero.
type Facts struct {
	// Approvals is the number of distinct recorded approvals.
	// Read by MinApprovals.
	Approvals int

	// OwnerApprovals is the number of approvals from designated code
	// owners. Read by RequiresOwnerApproval.
	OwnerApprovals int

	// ChecksTotal, ChecksPassed and ChecksFailed describe the required
	// checks of the current stage. Read by AllChecksPass; zero required
	// checks satisfies the predicate.
	ChecksTotal  int
	ChecksPassed int
	ChecksFailed int

	// StageAge is how long the run has sat in its current stage.
	// Read by MaxStageAge.
	StageAge time.Duration

	// ActiveCount is the number of live resources of the kind prior to
	// the operation under evaluation. Read by MaxConcurrent.
	ActiveCount int

	// SpinUpLatency is the observed provision-to-ready duration.
	// Read by SpinUpWithin.
	SpinUpLatency time.Duration
}

// GateResult is the outcome of evaluating a gate against a RuleSet.
type GateResult struct {
	// Effect is EffectAdmit or EffectDeny. Advisory rules never decide
	// the gate.
	Effect Effect

	// RuleID cites the deciding rule, or "" when no rule applied.
	RuleID string

	// Reason explains the outcome.
	Reason string

	// Advisories lists violated advisory rules, in evaluation order.
	Advisories []Advisory
}

// Denied reports whether the gate denied.
func (g GateResult) Denied() bool {
	return g.Effect == EffectDeny
}

// Advisory is a violated advisory rule surfaced alongside a gate result.
type Advisory struct {
	RuleID string
	Reason string
}
