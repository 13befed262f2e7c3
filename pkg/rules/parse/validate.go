package parse

import (
	"fmt"

	"mercator-hq/ganymede/pkg/rules"
)

// predicateSubjects maps each predicate kind to the subject kind whose
// facts it reads. A rule scoped to any other kind would never be
// consulted.
var predicateSubjects = map[rules.PredicateKind]rules.SubjectKind{
	rules.KindMinApprovals:          rules.SubjectStage,
	rules.KindRequiresOwnerApproval: rules.SubjectStage,
	rules.KindAllChecksPass:         rules.SubjectStage,
	rules.KindMaxStageAge:           rules.SubjectStage,
	rules.KindMaxConcurrent:         rules.SubjectResourceKind,
	rules.KindSpinUpWithin:          rules.SubjectResourceKind,
	rules.KindRateLimit:             rules.SubjectAction,
}

// validateRules runs the semantic pass over structurally sound rules.
// It catches what cannot be seen one field at a time: identifier
// collisions, predicates scoped to subjects that never carry their
// facts, parameter values outside their working range, and effects the
// predicate cannot act through.
func validateRules(built []builtRule, errors *ErrorList) {
	seen := make(map[string]Location, len(built))
	for i := range built {
		br := &built[i]

		if first, dup := seen[br.rule.ID]; dup {
			errors.AddErrorWithSuggestion(ErrorTypeSemantic,
				fmt.Sprintf("Duplicate rule id %q (first defined at line %d)", br.rule.ID, first.Line),
				br.loc,
				"Give each rule a unique id")
		} else {
			seen[br.rule.ID] = br.loc
		}

		validateSubjectKind(br, errors)
		validateParams(br, errors)
		validateEffect(br, errors)
	}
}

// validateSubjectKind checks that the predicate is scoped to the
// subject kind it reads facts from.
func validateSubjectKind(br *builtRule, errors *ErrorList) {
	want, known := predicateSubjects[br.rule.Predicate.Kind()]
	if !known || br.rule.Subject.Kind == want {
		return
	}

	errors.AddErrorWithSuggestion(ErrorTypeSemantic,
		fmt.Sprintf("Rule %q predicate %q reads %s facts but the subject kind is %s, so the rule would never be consulted",
			br.rule.ID, br.rule.Predicate.Kind(), want, br.rule.Subject.Kind),
		br.subjectLoc,
		fmt.Sprintf("Change the subject kind to '%s'", want))
}

// validateParams checks parameter values against their working ranges.
func validateParams(br *builtRule, errors *ErrorList) {
	add := func(msg string) {
		errors.AddError(ErrorTypeSemantic,
			fmt.Sprintf("Rule %q %s", br.rule.ID, msg),
			br.predicateLoc)
	}

	switch p := br.rule.Predicate.(type) {
	case rules.MinApprovals:
		if p.Count < 1 {
			add(fmt.Sprintf("must require at least 1 approval, got count %d", p.Count))
		}
	case rules.MaxConcurrent:
		if p.Limit < 1 {
			add(fmt.Sprintf("needs a concurrency limit of at least 1, got %d", p.Limit))
		}
	case rules.RateLimit:
		if p.Capacity <= 0 {
			add(fmt.Sprintf("needs a positive capacity, got %g", p.Capacity))
		}
		if p.RefillInterval <= 0 {
			add(fmt.Sprintf("needs a positive refill interval, got %s", p.RefillInterval))
		}
	case rules.SpinUpWithin:
		if p.Budget <= 0 {
			add(fmt.Sprintf("needs a positive spin-up budget, got %s", p.Budget))
		}
	case rules.MaxStageAge:
		if p.Limit <= 0 {
			add(fmt.Sprintf("needs a positive stage age limit, got %s", p.Limit))
		}
	}
}

// validateEffect checks effects some predicates are bound to by how the
// engine consumes them. Spin-up budgets are advisory only, while rate
// limits and concurrency quotas only ever act by denial.
func validateEffect(br *builtRule, errors *ErrorList) {
	var want rules.Effect
	switch br.rule.Predicate.Kind() {
	case rules.KindSpinUpWithin:
		want = rules.EffectRedact
	case rules.KindRateLimit, rules.KindMaxConcurrent:
		want = rules.EffectDeny
	default:
		return
	}

	if br.rule.Effect == want {
		return
	}

	errors.AddErrorWithSuggestion(ErrorTypeSemantic,
		fmt.Sprintf("Rule %q predicate %q only works with effect %q, got %q",
			br.rule.ID, br.rule.Predicate.Kind(), want, br.rule.Effect),
		br.loc,
		fmt.Sprintf("Change the effect to '%s'", want))
}
