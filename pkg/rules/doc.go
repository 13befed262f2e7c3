// Package rules provides the immutable, versioned rule model shared by
// every decision-making component of the engine.
//
// A RuleSet is an ordered collection of rules, each scoping a typed
// predicate to a pipeline stage, a resource kind, or an action name.
// The predicate set is closed: min_approvals, requires_owner_approval,
// all_checks_pass, max_concurrent, rate_limit, spin_up_within and
// max_stage_age, evaluated by a single dispatcher. There is no
// expression language.
//
// # Evaluation Model
//
// Rules are evaluated in priority order, highest first; rules of equal
// priority keep their definition order. A rule's effect determines how
// it participates in a gate:
//
//   - deny: requirement. The predicate must hold; the first violated
//     requirement denies the gate, citing the rule.
//   - admit: override. A satisfied override admits the gate
//     immediately, skipping any remaining requirements.
//   - redact: advisory. A violated predicate is surfaced as an
//     advisory alongside the result; it never blocks.
//
// A gate with no deciding rule admits with no rule cited.
//
// # Configuration-Bearing Rules
//
// rate_limit, max_concurrent, spin_up_within and max_stage_age rules
// double as policy-supplied configuration: the limiter, registry and
// staleness scan read their parameters through RateLimitFor, QuotaFor,
// SpinUpBudgetFor and MaxStageAgeFor instead of hard-coded constants,
// so operational limits change by publishing a new RuleSet.
//
// # Basic Usage
//
//	set, err := rules.NewRuleSet([]rules.Rule{
//	    {
//	        ID:        "review-quorum",
//	        Subject:   rules.Subject{Kind: rules.SubjectStage, Value: "review_pending"},
//	        Predicate: rules.MinApprovals{Count: 2},
//	        Effect:    rules.EffectDeny,
//	        Priority:  rules.PriorityHigh,
//	    },
//	    {
//	        ID:        "review-owner",
//	        Subject:   rules.Subject{Kind: rules.SubjectStage, Value: "review_pending"},
//	        Predicate: rules.RequiresOwnerApproval{},
//	        Effect:    rules.EffectDeny,
//	        Priority:  rules.PriorityHigh,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result := set.EvaluateGate(rules.SubjectStage, "review_pending", rules.Facts{
//	    Approvals:      2,
//	    OwnerApprovals: 1,
//	})
//	if result.Denied() {
//	    fmt.Println("denied:", result.Reason)
//	}
//
// # Immutability and Versioning
//
// NewRuleSet copies its input, validates it, and derives a 16-hex
// version id from the full rule content, so any change to any rule
// yields a new version. Published sets are shared by reference across
// concurrent evaluators; swapping the active set is the store's job
// (see pkg/rules/store), never an in-place edit.
package rules
