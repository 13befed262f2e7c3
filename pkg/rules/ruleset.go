package rules

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
)

// RuleSet is an immutable, versioned collection of rules. Construction
// copies the input, validates it, orders it for evaluation (priority
// descending, definition order on ties) and derives the version from
// the rule content. A published RuleSet is shared by reference across
// concurrent evaluators; nothing mutates it after NewRuleSet returns.
type RuleSet struct {
	version   string
	createdAt time.Time
	rules     []Rule
}

// NewRuleSet builds a RuleSet from the given rules. The slice and its
// elements are copied; the caller keeps ownership of its input.
func NewRuleSet(rs []Rule) (*RuleSet, error) {
	if err := validateRules(rs); err != nil {
		return nil, err
	}

	sorted := make([]Rule, len(rs))
	copy(sorted, rs)
	for i := range sorted {
		if sorted[i].Priority == 0 {
			sorted[i].Priority = PriorityDefault
		}
	}

	// Stable sort keeps definition order within equal priorities.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &RuleSet{
		version:   computeVersion(rs),
		createdAt: time.Now(),
		rules:     sorted,
	}, nil
}

// Empty returns a RuleSet with no rules. Gates evaluated against it
// admit with no rule cited; config lookups fall back to defaults.
func Empty() *RuleSet {
	return &RuleSet{
		version:   computeVersion(nil),
		createdAt: time.Now(),
		rules:     nil,
	}
}

// Version returns the content-derived version id of the set.
func (rs *RuleSet) Version() string {
	return rs.version
}

// CreatedAt returns when this RuleSet object was constructed.
func (rs *RuleSet) CreatedAt() time.Time {
	return rs.createdAt
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns a copy of the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Rule returns the rule with the given id.
func (rs *RuleSet) Rule(id string) (Rule, bool) {
	for _, r := range rs.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// validateRules checks structural invariants of a rule slice.
func validateRules(rs []Rule) error {
	var problems []string

	seen := make(map[string]bool, len(rs))
	for i, r := range rs {
		if r.ID == "" {
			problems = append(problems, fmt.Sprintf("rule %d: id is required", i))
		} else if seen[r.ID] {
			problems = append(problems, fmt.Sprintf("rule %d: duplicate id %q", i, r.ID))
		} else {
			seen[r.ID] = true
		}

		if !r.Subject.Kind.Valid() {
			problems = append(problems, fmt.Sprintf("rule %d (%s): unknown subject kind %q", i, r.ID, r.Subject.Kind))
		}
		if r.Subject.Value == "" {
			problems = append(problems, fmt.Sprintf("rule %d (%s): subject value is required", i, r.ID))
		}
		if r.Predicate == nil {
			problems = append(problems, fmt.Sprintf("rule %d (%s): predicate is required", i, r.ID))
		}
		if !r.Effect.Valid() {
			problems = append(problems, fmt.Sprintf("rule %d (%s): unknown effect %q", i, r.ID, r.Effect))
		}
		if r.Priority < 0 {
			problems = append(problems, fmt.Sprintf("rule %d (%s): priority must not be negative", i, r.ID))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}
	return nil
}

// computeVersion derives the version id from the full rule content in
// definition order, so any change to any rule produces a new version.
func computeVersion(rs []Rule) string {
	h := sha256.New()
	for _, r := range rs {
		fmt.Fprintf(h, "%s|%s|%s|%s|%s|%d|%s\n",
			r.ID, r.Subject.Kind, r.Subject.Value,
			predicateString(r.Predicate), r.Effect, r.Priority, r.Reason)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}

func predicateString(p Predicate) string {
	if p == nil {
		return "<nil>"
	}
	return p.String()
}
