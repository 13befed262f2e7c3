package rules

import "time"

// EvaluateGate tests the rules scoped to (kind, value) against the
// given facts and decides the gate.
//
// Rules are visited in evaluation order (priority descending, then
// definition order). For each applicable rule:
//
//   - EffectDeny: the predicate is a requirement. The first violated
//     requirement decides the gate as Deny, citing that rule.
//   - EffectAdmit: the predicate is an override. The first satisfied
//     override decides the gate as Admit immediately, skipping any
//     remaining requirements.
//   - EffectRedact: the predicate is advisory. A violation is appended
//     to Advisories and evaluation continues.
//
// If no rule decides the gate, the result is Admit with no rule cited.
// Equal-priority conflicts between an override and a requirement are
// settled by definition order, because the first of the two to decide
// wins.
func (rs *RuleSet) EvaluateGate(kind SubjectKind, value string, f Facts) GateResult {
	result := GateResult{Effect: EffectAdmit}

	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.Subject.Matches(kind, value) {
			continue
		}

		holds := predicateHolds(r.Predicate, f)

		switch r.Effect {
		case EffectDeny:
			if !holds {
				result.Effect = EffectDeny
				result.RuleID = r.ID
				result.Reason = r.reason()
				return result
			}
			// Satisfied requirement: remember the first one so an
			// admitted gate can cite it.
			if result.RuleID == "" {
				result.RuleID = r.ID
				result.Reason = "all gate requirements satisfied"
			}

		case EffectAdmit:
			if holds {
				result.Effect = EffectAdmit
				result.RuleID = r.ID
				result.Reason = r.reason()
				return result
			}

		case EffectRedact:
			if !holds {
				result.Advisories = append(result.Advisories, Advisory{
					RuleID: r.ID,
					Reason: r.reason(),
				})
			}
		}
	}

	if result.RuleID == "" {
		result.Reason = "no applicable rules"
	}
	return result
}

// predicateHolds dispatches over the closed predicate set.
func predicateHolds(p Predicate, f Facts) bool {
	switch pred := p.(type) {
	case MinApprovals:
		return f.Approvals >= pred.Count
	case RequiresOwnerApproval:
		return f.OwnerApprovals >= 1
	case AllChecksPass:
		return f.ChecksFailed == 0 && f.ChecksPassed == f.ChecksTotal
	case MaxConcurrent:
		return f.ActiveCount < pred.Limit
	case RateLimit:
		// Holds by definition: the limiter applies the arithmetic from
		// the rule's parameters, not from the gate.
		return true
	case SpinUpWithin:
		return f.SpinUpLatency <= pred.Budget
	case MaxStageAge:
		return f.StageAge <= pred.Limit
	default:
		// Unknown predicate: fail closed.
		return false
	}
}

// RateLimitFor returns the token-bucket parameters configured for an
// action, with the id of the rule that supplied them. Returns found
// false when no rate_limit rule is scoped to the action.
func (rs *RuleSet) RateLimitFor(action string) (RateLimit, string, bool) {
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.Subject.Matches(SubjectAction, action) {
			continue
		}
		if p, ok := r.Predicate.(RateLimit); ok {
			return p, r.ID, true
		}
	}
	return RateLimit{}, "", false
}

// QuotaFor returns the concurrent-resource quota configured for a
// resource kind, with the supplying rule id.
func (rs *RuleSet) QuotaFor(kind string) (int, string, bool) {
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.Subject.Matches(SubjectResourceKind, kind) {
			continue
		}
		if p, ok := r.Predicate.(MaxConcurrent); ok {
			return p.Limit, r.ID, true
		}
	}
	return 0, "", false
}

// SpinUpBudgetFor returns the provisioning latency budget configured
// for a resource kind, with the supplying rule id.
func (rs *RuleSet) SpinUpBudgetFor(kind string) (time.Duration, string, bool) {
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.Subject.Matches(SubjectResourceKind, kind) {
			continue
		}
		if p, ok := r.Predicate.(SpinUpWithin); ok {
			return p.Budget, r.ID, true
		}
	}
	return 0, "", false
}

// MaxStageAgeFor returns the stage age limit configured for a stage,
// with the supplying rule id.
func (rs *RuleSet) MaxStageAgeFor(stage string) (time.Duration, string, bool) {
	for i := range rs.rules {
		r := &rs.rules[i]
		if !r.Subject.Matches(SubjectStage, stage) {
			continue
		}
		if p, ok := r.Predicate.(MaxStageAge); ok {
			return p.Limit, r.ID, true
		}
	}
	return 0, "", false
}
