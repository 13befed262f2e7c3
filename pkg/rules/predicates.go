package rules

import (
	"fmt"
	"time"
)

// PredicateKind names a predicate variant. The set is closed: adding a
// variant means touching the dispatcher in eval.go, the parser, and the
// validator together.
type PredicateKind string

const (
	KindMinApprovals          PredicateKind = "min_approvals"
	KindRequiresOwnerApproval PredicateKind = "requires_owner_approval"
	KindAllChecksPass         PredicateKind = "all_checks_pass"
	KindMaxConcurrent         PredicateKind = "max_concurrent"
	KindRateLimit             PredicateKind = "rate_limit"
	KindSpinUpWithin          PredicateKind = "spin_up_within"
	KindMaxStageAge           PredicateKind = "max_stage_age"
)

// Predicate is a condition tested against Facts. Implementations form a
// closed set; the marker method keeps external packages from adding
// variants the dispatcher does not know.
type Predicate interface {
	Kind() PredicateKind

	// String renders the predicate with its parameters, for version
	// hashing and log fields.
	String() string

	// defaultReason is the explanation cited when a rule with this
	// predicate takes effect and carries no custom reason.
	defaultReason() string

	isPredicate()
}

// MinApprovals requires at least Count recorded approvals.
type MinApprovals struct {
	Count int
}

func (p MinApprovals) Kind() PredicateKind { return KindMinApprovals }
func (p MinApprovals) String() string      { return fmt.Sprintf("min_approvals(%d)", p.Count) }
func (p MinApprovals) defaultReason() string {
	return fmt.Sprintf("insufficient approvals (need %d)", p.Count)
}
func (p MinApprovals) isPredicate() {}

// RequiresOwnerApproval requires at least one approval from a
// designated code owner.
type RequiresOwnerApproval struct{}

func (p RequiresOwnerApproval) Kind() PredicateKind { return KindRequiresOwnerApproval }
func (p RequiresOwnerApproval) String() string      { return "requires_owner_approval" }
func (p RequiresOwnerApproval) defaultReason() string {
	return "approval from a designated code owner required"
}
func (p RequiresOwnerApproval) isPredicate() {}

// AllChecksPass requires every required check of the current stage to
// have passed. A stage with zero required checks satisfies the
// predicate.
type AllChecksPass struct{}

func (p AllChecksPass) Kind() PredicateKind { return KindAllChecksPass }
func (p AllChecksPass) String() string      { return "all_checks_pass" }
func (p AllChecksPass) defaultReason() string {
	return "required checks have not all passed"
}
func (p AllChecksPass) isPredicate() {}

// MaxConcurrent caps the number of live resources of a kind. The
// predicate holds while the count prior to the operation is below the
// limit.
type MaxConcurrent struct {
	Limit int
}

func (p MaxConcurrent) Kind() PredicateKind { return KindMaxConcurrent }
func (p MaxConcurrent) String() string      { return fmt.Sprintf("max_concurrent(%d)", p.Limit) }
func (p MaxConcurrent) defaultReason() string {
	return fmt.Sprintf("concurrent resource quota of %d reached", p.Limit)
}
func (p MaxConcurrent) isPredicate() {}

// RateLimit carries token-bucket parameters for an action. The
// predicate itself always holds; the limiter reads Capacity and
// RefillInterval from the matching rule and applies the arithmetic.
type RateLimit struct {
	Capacity       float64
	RefillInterval time.Duration
}

func (p RateLimit) Kind() PredicateKind { return KindRateLimit }
func (p RateLimit) String() string {
	return fmt.Sprintf("rate_limit(%g per %s)", p.Capacity, p.RefillInterval)
}
func (p RateLimit) defaultReason() string {
	return fmt.Sprintf("rate limit of %g per %s exceeded", p.Capacity, p.RefillInterval)
}
func (p RateLimit) isPredicate() {}

// SpinUpWithin sets the provisioning latency budget for a resource
// kind. The predicate holds while observed spin-up latency is within
// the budget.
type SpinUpWithin struct {
	Budget time.Duration
}

func (p SpinUpWithin) Kind() PredicateKind { return KindSpinUpWithin }
func (p SpinUpWithin) String() string      { return fmt.Sprintf("spin_up_within(%s)", p.Budget) }
func (p SpinUpWithin) defaultReason() string {
	return fmt.Sprintf("spin-up exceeded the %s budget", p.Budget)
}
func (p SpinUpWithin) isPredicate() {}

// MaxStageAge bounds how long a run may sit in a non-terminal stage
// before it is surfaced as stale. The predicate holds while the stage
// age is within the limit.
type MaxStageAge struct {
	Limit time.Duration
}

func (p MaxStageAge) Kind() PredicateKind { return KindMaxStageAge }
func (p MaxStageAge) String() string      { return fmt.Sprintf("max_stage_age(%s)", p.Limit) }
func (p MaxStageAge) defaultReason() string {
	return fmt.Sprintf("run exceeded the %s stage age limit", p.Limit)
}
func (p MaxStageAge) isPredicate() {}
