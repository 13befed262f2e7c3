package parse

import (
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"mercator-hq/ganymede/pkg/rules"
)

// kebabCasePattern validates rule file names and rule identifiers
// (e.g. "review-quorum").
var kebabCasePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// builtRule pairs a typed rule with the source positions it came from,
// so the semantic pass can point errors at the right lines.
type builtRule struct {
	rule         rules.Rule
	loc          Location
	subjectLoc   Location
	predicateLoc Location
}

// builder converts intermediate YAML structures into typed rules. It
// accumulates structural errors and keeps going, so one malformed rule
// does not hide problems in the rest of the file.
type builder struct {
	sourcePath string
	errors     *ErrorList
}

// newBuilder creates a builder for the given source file.
func newBuilder(sourcePath string) *builder {
	return &builder{
		sourcePath: sourcePath,
		errors:     NewErrorList(),
	}
}

// location makes a Location in the builder's source file.
func (b *builder) location(line, column int) Location {
	return Location{File: b.sourcePath, Line: line, Column: column}
}

// buildDocument checks document-level fields and builds every rule.
// Rules that fail structurally are dropped from the result; their
// errors stay in b.errors.
func (b *builder) buildDocument(doc *yamlDocument) []builtRule {
	if doc.Name == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			"Missing required field 'name'",
			b.location(1, 1),
			suggestMissingField("name", "review-gates"))
	} else if !kebabCasePattern.MatchString(doc.Name) {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule file name %q must be kebab-case (lowercase with hyphens)", doc.Name),
			b.location(1, 1),
			"Example: 'review-gates'")
	}

	if len(doc.Rules) == 0 {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			"Rule file must have at least one rule",
			b.location(1, 1),
			"Add a 'rules' section with at least one rule")
		return nil
	}

	built := make([]builtRule, 0, len(doc.Rules))
	for i := range doc.Rules {
		if br, ok := b.buildRule(&doc.Rules[i], i); ok {
			built = append(built, br)
		}
	}
	return built
}

// buildRule converts one YAML rule into a typed rule.
func (b *builder) buildRule(yr *yamlRule, index int) (builtRule, bool) {
	loc := b.location(yr.line, yr.column)

	// ref names the rule in error messages even when the id is absent.
	ref := fmt.Sprintf("%q", yr.ID)
	if yr.ID == "" {
		ref = fmt.Sprintf("at index %d", index)
	}

	ok := true
	if yr.ID == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s is missing required field 'id'", ref),
			loc,
			suggestMissingField("id", "review-quorum"))
		ok = false
	} else if !kebabCasePattern.MatchString(yr.ID) {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule id %q must be kebab-case (lowercase with hyphens)", yr.ID),
			loc,
			"Example: 'review-quorum'")
		ok = false
	}

	subject, subjectLoc, subjectOK := b.buildSubject(yr, ref, loc)
	predicate, predicateLoc, predicateOK := b.buildPredicate(yr, ref, loc)
	effect, effectOK := b.buildEffect(yr, ref, loc)

	if yr.Priority < 0 {
		b.errors.AddError(ErrorTypeStructural,
			fmt.Sprintf("Rule %s has negative priority %d", ref, yr.Priority),
			loc)
		ok = false
	}

	if !ok || !subjectOK || !predicateOK || !effectOK {
		return builtRule{}, false
	}

	name := yr.Name
	if name == "" {
		name = yr.ID
	}

	return builtRule{
		rule: rules.Rule{
			ID:        yr.ID,
			Name:      name,
			Subject:   subject,
			Predicate: predicate,
			Effect:    effect,
			Priority:  yr.Priority,
			Reason:    yr.Reason,
		},
		loc:          loc,
		subjectLoc:   subjectLoc,
		predicateLoc: predicateLoc,
	}, true
}

// buildSubject converts the subject mapping of a rule.
func (b *builder) buildSubject(yr *yamlRule, ref string, ruleLoc Location) (rules.Subject, Location, bool) {
	if yr.Subject == nil {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s is missing required field 'subject'", ref),
			ruleLoc,
			"Add a subject mapping with 'kind' and 'value'")
		return rules.Subject{}, ruleLoc, false
	}

	loc := b.location(yr.Subject.line, yr.Subject.column)
	kind := rules.SubjectKind(yr.Subject.Kind)
	ok := true

	if yr.Subject.Kind == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s subject is missing 'kind'", ref),
			loc,
			suggestMissingField("kind", "stage"))
		ok = false
	} else if !kind.Valid() {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s has unknown subject kind %q", ref, yr.Subject.Kind),
			loc,
			suggestValue(yr.Subject.Kind, subjectKindNames()))
		ok = false
	}

	if yr.Subject.Value == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s subject is missing 'value'", ref),
			loc,
			"Name a stage, resource kind, or action, or '*' for all")
		ok = false
	}

	return rules.Subject{Kind: kind, Value: yr.Subject.Value}, loc, ok
}

// buildEffect converts the effect field of a rule.
func (b *builder) buildEffect(yr *yamlRule, ref string, loc Location) (rules.Effect, bool) {
	if yr.Effect == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s is missing required field 'effect'", ref),
			loc,
			suggestMissingField("effect", "deny"))
		return "", false
	}

	effect := rules.Effect(yr.Effect)
	if !effect.Valid() {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s has unknown effect %q", ref, yr.Effect),
			loc,
			suggestValue(yr.Effect, effectNames()))
		return "", false
	}

	return effect, true
}

// buildPredicate converts the predicate mapping of a rule into one of
// the closed predicate variants, extracting the parameters the variant
// expects.
func (b *builder) buildPredicate(yr *yamlRule, ref string, ruleLoc Location) (rules.Predicate, Location, bool) {
	yp := yr.Predicate
	if yp == nil {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s is missing required field 'predicate'", ref),
			ruleLoc,
			"Add a predicate mapping with a 'type' field")
		return nil, ruleLoc, false
	}

	loc := b.location(yp.line, yp.column)

	if yp.node != nil && yp.node.Kind != yaml.MappingNode {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate must be a mapping", ref),
			loc,
			"Write the predicate as a nested mapping with a 'type' field")
		return nil, loc, false
	}

	if yp.Type == "" {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate is missing 'type'", ref),
			loc,
			suggestMissingField("type", "min_approvals"))
		return nil, loc, false
	}

	var (
		pred rules.Predicate
		ok   bool
	)
	switch rules.PredicateKind(yp.Type) {
	case rules.KindMinApprovals:
		count, countOK := b.intParam(yp, ref, "count", loc)
		pred, ok = rules.MinApprovals{Count: count}, countOK
		b.checkParams(yp, ref, "count")
	case rules.KindRequiresOwnerApproval:
		pred, ok = rules.RequiresOwnerApproval{}, true
		b.checkParams(yp, ref)
	case rules.KindAllChecksPass:
		pred, ok = rules.AllChecksPass{}, true
		b.checkParams(yp, ref)
	case rules.KindMaxConcurrent:
		limit, limitOK := b.intParam(yp, ref, "limit", loc)
		pred, ok = rules.MaxConcurrent{Limit: limit}, limitOK
		b.checkParams(yp, ref, "limit")
	case rules.KindRateLimit:
		capacity, capOK := b.floatParam(yp, ref, "capacity", loc)
		refill, refillOK := b.durationParam(yp, ref, "refill_interval", loc)
		pred, ok = rules.RateLimit{Capacity: capacity, RefillInterval: refill}, capOK && refillOK
		b.checkParams(yp, ref, "capacity", "refill_interval")
	case rules.KindSpinUpWithin:
		budget, budgetOK := b.durationParam(yp, ref, "budget", loc)
		pred, ok = rules.SpinUpWithin{Budget: budget}, budgetOK
		b.checkParams(yp, ref, "budget")
	case rules.KindMaxStageAge:
		limit, limitOK := b.durationParam(yp, ref, "limit", loc)
		pred, ok = rules.MaxStageAge{Limit: limit}, limitOK
		b.checkParams(yp, ref, "limit")
	default:
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s has unknown predicate type %q", ref, yp.Type),
			loc,
			suggestValue(yp.Type, predicateTypeNames()))
		return nil, loc, false
	}

	return pred, loc, ok
}

// intParam extracts a required integer parameter.
func (b *builder) intParam(yp *yamlPredicate, ref, name string, predLoc Location) (int, bool) {
	node, found := yp.param(name)
	if !found {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate %q requires parameter %q", ref, yp.Type, name),
			predLoc,
			suggestMissingField(name, "2"))
		return 0, false
	}

	var v int
	if err := node.Decode(&v); err != nil {
		b.errors.AddError(ErrorTypeStructural,
			fmt.Sprintf("Rule %s parameter %q must be an integer", ref, name),
			b.location(node.Line, node.Column))
		return 0, false
	}
	return v, true
}

// floatParam extracts a required numeric parameter.
func (b *builder) floatParam(yp *yamlPredicate, ref, name string, predLoc Location) (float64, bool) {
	node, found := yp.param(name)
	if !found {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate %q requires parameter %q", ref, yp.Type, name),
			predLoc,
			suggestMissingField(name, "3"))
		return 0, false
	}

	var v float64
	if err := node.Decode(&v); err != nil {
		b.errors.AddError(ErrorTypeStructural,
			fmt.Sprintf("Rule %s parameter %q must be a number", ref, name),
			b.location(node.Line, node.Column))
		return 0, false
	}
	return v, true
}

// durationParam extracts a required duration parameter written in Go
// duration syntax.
func (b *builder) durationParam(yp *yamlPredicate, ref, name string, predLoc Location) (time.Duration, bool) {
	node, found := yp.param(name)
	if !found {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate %q requires parameter %q", ref, yp.Type, name),
			predLoc,
			suggestMissingField(name, "1h"))
		return 0, false
	}

	if node.Kind != yaml.ScalarNode {
		b.errors.AddError(ErrorTypeStructural,
			fmt.Sprintf("Rule %s parameter %q must be a duration string", ref, name),
			b.location(node.Line, node.Column))
		return 0, false
	}

	d, err := time.ParseDuration(node.Value)
	if err != nil {
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s parameter %q is not a valid duration: %v", ref, name, err),
			b.location(node.Line, node.Column),
			"Use Go duration syntax such as '30s', '5m' or '4h'")
		return 0, false
	}
	return d, true
}

// checkParams flags parameters the predicate type does not take.
func (b *builder) checkParams(yp *yamlPredicate, ref string, valid ...string) {
	for _, pr := range yp.params {
		known := false
		for _, v := range valid {
			if pr.name == v {
				known = true
				break
			}
		}
		if known {
			continue
		}

		suggestion := fmt.Sprintf("Predicate %q takes no parameters", yp.Type)
		if len(valid) > 0 {
			suggestion = suggestValue(pr.name, valid)
		}
		b.errors.AddErrorWithSuggestion(ErrorTypeStructural,
			fmt.Sprintf("Rule %s predicate %q has unknown parameter %q", ref, yp.Type, pr.name),
			b.location(pr.node.Line, pr.node.Column),
			suggestion)
	}
}

// subjectKindNames lists the valid subject kinds for suggestions.
func subjectKindNames() []string {
	return []string{
		string(rules.SubjectStage),
		string(rules.SubjectResourceKind),
		string(rules.SubjectAction),
	}
}

// predicateTypeNames lists the valid predicate types for suggestions.
func predicateTypeNames() []string {
	return []string{
		string(rules.KindMinApprovals),
		string(rules.KindRequiresOwnerApproval),
		string(rules.KindAllChecksPass),
		string(rules.KindMaxConcurrent),
		string(rules.KindRateLimit),
		string(rules.KindSpinUpWithin),
		string(rules.KindMaxStageAge),
	}
}

// effectNames lists the valid effects for suggestions.
func effectNames() []string {
	return []string{
		string(rules.EffectAdmit),
		string(rules.EffectDeny),
		string(rules.EffectRedact),
	}
}
