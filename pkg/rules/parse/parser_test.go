package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/rules"
)

const pipelineGatesDoc = `name: pipeline-gates
description: Gates for the delivery pipeline.
rules:
  - id: review-quorum
    name: Review quorum
    subject:
      kind: stage
      value: review_pending
    predicate:
      type: min_approvals
      count: 2
    effect: deny
    priority: 100

  - id: review-owner
    subject:
      kind: stage
      value: review_pending
    predicate:
      type: requires_owner_approval
    effect: deny
    priority: 100
    reason: a code owner must sign off

  - id: ci-checks
    subject:
      kind: stage
      value: ci_running
    predicate:
      type: all_checks_pass
    effect: deny

  - id: preview-quota
    subject:
      kind: resource_kind
      value: preview
    predicate:
      type: max_concurrent
      limit: 5
    effect: deny

  - id: deploy-rate
    subject:
      kind: action
      value: deploy
    predicate:
      type: rate_limit
      capacity: 3
      refill_interval: 60m
    effect: deny

  - id: preview-spinup
    subject:
      kind: resource_kind
      value: preview
    predicate:
      type: spin_up_within
      budget: 5m
    effect: redact
    priority: 10

  - id: stale-runs
    subject:
      kind: stage
      value: "*"
    predicate:
      type: max_stage_age
      limit: 24h
    effect: redact
    priority: 10
`

// ============================================================================
// Parsing Tests
// ============================================================================

func TestParser_ParseBytes_Valid(t *testing.T) {
	doc, err := NewParser().ParseBytes([]byte(pipelineGatesDoc), "gates.yaml")
	if err != nil {
		t.Fatalf("ParseBytes() failed: %v", err)
	}

	if doc.Name != "pipeline-gates" {
		t.Errorf("Name = %q, want %q", doc.Name, "pipeline-gates")
	}
	if doc.SourceFile != "gates.yaml" {
		t.Errorf("SourceFile = %q, want %q", doc.SourceFile, "gates.yaml")
	}
	if len(doc.Rules) != 7 {
		t.Fatalf("len(Rules) = %d, want 7", len(doc.Rules))
	}

	quorum := doc.Rules[0]
	if quorum.ID != "review-quorum" {
		t.Errorf("Rules[0].ID = %q, want %q", quorum.ID, "review-quorum")
	}
	if quorum.Name != "Review quorum" {
		t.Errorf("Rules[0].Name = %q, want %q", quorum.Name, "Review quorum")
	}
	if quorum.Subject.Kind != rules.SubjectStage || quorum.Subject.Value != "review_pending" {
		t.Errorf("Rules[0].Subject = %+v, want stage/review_pending", quorum.Subject)
	}
	ma, ok := quorum.Predicate.(rules.MinApprovals)
	if !ok {
		t.Fatalf("Rules[0].Predicate type = %T, want MinApprovals", quorum.Predicate)
	}
	if ma.Count != 2 {
		t.Errorf("MinApprovals.Count = %d, want 2", ma.Count)
	}
	if quorum.Effect != rules.EffectDeny {
		t.Errorf("Rules[0].Effect = %q, want deny", quorum.Effect)
	}
	if quorum.Priority != 100 {
		t.Errorf("Rules[0].Priority = %d, want 100", quorum.Priority)
	}

	owner := doc.Rules[1]
	if owner.Name != "review-owner" {
		t.Errorf("Rules[1].Name = %q, want the id as fallback", owner.Name)
	}
	if owner.Reason != "a code owner must sign off" {
		t.Errorf("Rules[1].Reason = %q", owner.Reason)
	}
	if _, ok := owner.Predicate.(rules.RequiresOwnerApproval); !ok {
		t.Fatalf("Rules[1].Predicate type = %T, want RequiresOwnerApproval", owner.Predicate)
	}

	rate, ok := doc.Rules[4].Predicate.(rules.RateLimit)
	if !ok {
		t.Fatalf("Rules[4].Predicate type = %T, want RateLimit", doc.Rules[4].Predicate)
	}
	if rate.Capacity != 3 {
		t.Errorf("RateLimit.Capacity = %g, want 3", rate.Capacity)
	}
	if rate.RefillInterval != time.Hour {
		t.Errorf("RateLimit.RefillInterval = %s, want 1h", rate.RefillInterval)
	}

	spin, ok := doc.Rules[5].Predicate.(rules.SpinUpWithin)
	if !ok {
		t.Fatalf("Rules[5].Predicate type = %T, want SpinUpWithin", doc.Rules[5].Predicate)
	}
	if spin.Budget != 5*time.Minute {
		t.Errorf("SpinUpWithin.Budget = %s, want 5m", spin.Budget)
	}

	stale := doc.Rules[6]
	if stale.Subject.Value != "*" {
		t.Errorf("Rules[6].Subject.Value = %q, want *", stale.Subject.Value)
	}
	age, ok := stale.Predicate.(rules.MaxStageAge)
	if !ok {
		t.Fatalf("Rules[6].Predicate type = %T, want MaxStageAge", stale.Predicate)
	}
	if age.Limit != 24*time.Hour {
		t.Errorf("MaxStageAge.Limit = %s, want 24h", age.Limit)
	}
}

func TestParser_ParseBytes_RuleSetRoundTrip(t *testing.T) {
	doc, err := NewParser().ParseBytes([]byte(pipelineGatesDoc), "gates.yaml")
	if err != nil {
		t.Fatalf("ParseBytes() failed: %v", err)
	}

	set, err := rules.NewRuleSet(doc.Rules)
	if err != nil {
		t.Fatalf("NewRuleSet() rejected parsed rules: %v", err)
	}
	if set.Len() != len(doc.Rules) {
		t.Errorf("Len() = %d, want %d", set.Len(), len(doc.Rules))
	}
	if set.Version() == "" {
		t.Error("Version() should not be empty")
	}
}

func TestParser_ParseBytes_SyntaxError(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte("name: [unclosed"), "broken.yaml")
	if err == nil {
		t.Fatal("expected a syntax error")
	}

	parseErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if parseErr.Type != ErrorTypeSyntax {
		t.Errorf("Type = %q, want syntax", parseErr.Type)
	}
	if parseErr.Suggestion == "" {
		t.Error("syntax errors should carry a suggestion")
	}
}

func TestParser_ParseBytes_MissingFields(t *testing.T) {
	doc := `name: gates
rules:
  - predicate:
      type: all_checks_pass
`
	_, err := NewParser().ParseBytes([]byte(doc), "gates.yaml")
	if err == nil {
		t.Fatal("expected errors")
	}

	errList, ok := err.(*ErrorList)
	if !ok {
		t.Fatalf("error type = %T, want *ErrorList", err)
	}
	if !errList.HasErrorType(ErrorTypeStructural) {
		t.Error("expected structural errors")
	}
	if errList.Count() != 3 {
		t.Errorf("Count() = %d, want 3 (id, subject, effect)\n%v", errList.Count(), errList)
	}
	for _, e := range errList.Errors {
		if !strings.Contains(e.Message, "at index 0") {
			t.Errorf("message %q should name the rule by index", e.Message)
		}
	}
}

func TestParser_ParseBytes_UnknownPredicateType(t *testing.T) {
	doc := `name: gates
rules:
  - id: quorum
    subject:
      kind: stage
      value: review_pending
    predicate:
      type: min_aprovals
      count: 2
    effect: deny
`
	_, err := NewParser().ParseBytes([]byte(doc), "gates.yaml")
	if err == nil {
		t.Fatal("expected an error")
	}

	errList, ok := err.(*ErrorList)
	if !ok {
		t.Fatalf("error type = %T, want *ErrorList", err)
	}
	if errList.Count() != 1 {
		t.Fatalf("Count() = %d, want 1\n%v", errList.Count(), errList)
	}
	e := errList.Errors[0]
	if !strings.Contains(e.Message, "min_aprovals") {
		t.Errorf("message %q should quote the unknown type", e.Message)
	}
	if !strings.Contains(e.Suggestion, "min_approvals") {
		t.Errorf("suggestion %q should propose min_approvals", e.Suggestion)
	}
}

func TestParser_ParseBytes_UnknownEffect(t *testing.T) {
	doc := `name: gates
rules:
  - id: quorum
    subject:
      kind: stage
      value: review_pending
    predicate:
      type: min_approvals
      count: 2
    effect: denied
`
	_, err := NewParser().ParseBytes([]byte(doc), "gates.yaml")
	if err == nil {
		t.Fatal("expected an error")
	}

	errList := err.(*ErrorList)
	if errList.Count() != 1 {
		t.Fatalf("Count() = %d, want 1\n%v", errList.Count(), errList)
	}
	if !strings.Contains(errList.Errors[0].Suggestion, "deny") {
		t.Errorf("suggestion %q should propose deny", errList.Errors[0].Suggestion)
	}
}

func TestParser_ParseBytes_BadParameterValues(t *testing.T) {
	tests := []struct {
		name      string
		predicate string
		wantMsg   string
	}{
		{
			name:      "non-integer count",
			predicate: "type: min_approvals\n      count: two",
			wantMsg:   "must be an integer",
		},
		{
			name:      "missing count",
			predicate: "type: min_approvals",
			wantMsg:   `requires parameter "count"`,
		},
		{
			name:      "bad duration",
			predicate: "type: max_stage_age\n      limit: sixty",
			wantMsg:   "not a valid duration",
		},
		{
			name:      "unknown parameter",
			predicate: "type: min_approvals\n      cont: 2",
			wantMsg:   `unknown parameter "cont"`,
		},
		{
			name:      "parameter on bare predicate",
			predicate: "type: all_checks_pass\n      count: 2",
			wantMsg:   `unknown parameter "count"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `name: gates
rules:
  - id: quorum
    subject:
      kind: stage
      value: review_pending
    predicate:
      ` + tt.predicate + `
    effect: deny
`
			_, err := NewParser().ParseBytes([]byte(doc), "gates.yaml")
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error should contain %q:\n%v", tt.wantMsg, err)
			}
		})
	}
}

func TestParser_ParseBytes_ErrorPositions(t *testing.T) {
	doc := `name: gates
rules:
  - id: first
    subject:
      kind: stage
      value: merged
    predicate:
      type: all_checks_pass
    effect: deny
  - id: second
    subject:
      kind: nowhere
      value: merged
    predicate:
      type: all_checks_pass
    effect: deny
`
	_, err := NewParser().ParseBytes([]byte(doc), "gates.yaml")
	if err == nil {
		t.Fatal("expected an error")
	}

	errList := err.(*ErrorList)
	if errList.Count() != 1 {
		t.Fatalf("Count() = %d, want 1\n%v", errList.Count(), errList)
	}

	e := errList.Errors[0]
	if e.Location.File != "gates.yaml" {
		t.Errorf("Location.File = %q, want gates.yaml", e.Location.File)
	}
	if e.Location.Line != 12 {
		t.Errorf("Location.Line = %d, want 12 (the subject of the second rule)", e.Location.Line)
	}
	if !strings.Contains(e.Context, "nowhere") {
		t.Errorf("Context should show the offending line:\n%s", e.Context)
	}
	if !strings.Contains(e.Context, "->") {
		t.Errorf("Context should mark the error line:\n%s", e.Context)
	}
}

func TestParser_ParseBytes_EmptyDocument(t *testing.T) {
	_, err := NewParser().ParseBytes([]byte(""), "empty.yaml")
	if err == nil {
		t.Fatal("expected errors for an empty document")
	}

	errList, ok := err.(*ErrorList)
	if !ok {
		t.Fatalf("error type = %T, want *ErrorList", err)
	}
	if !strings.Contains(errList.Error(), "at least one rule") {
		t.Errorf("expected a missing-rules error:\n%v", errList)
	}
}

func TestParser_ParseBytes_SizeLimit(t *testing.T) {
	_, err := NewParser().WithMaxFileSize(16).ParseBytes([]byte(pipelineGatesDoc), "gates.yaml")
	if err == nil {
		t.Fatal("expected a size error")
	}

	parseErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if parseErr.Type != ErrorTypeIO {
		t.Errorf("Type = %q, want io", parseErr.Type)
	}
}

// ============================================================================
// File Tests
// ============================================================================

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gates.yaml")
	if err := os.WriteFile(path, []byte(pipelineGatesDoc), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	doc, err := NewParser().ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() failed: %v", err)
	}
	if doc.SourceFile != path {
		t.Errorf("SourceFile = %q, want %q", doc.SourceFile, path)
	}
	if len(doc.Rules) != 7 {
		t.Errorf("len(Rules) = %d, want 7", len(doc.Rules))
	}
}

func TestParser_ParseFile_Missing(t *testing.T) {
	_, err := NewParser().ParseFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error")
	}

	parseErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if parseErr.Type != ErrorTypeIO {
		t.Errorf("Type = %q, want io", parseErr.Type)
	}
}

func TestParser_ParseFile_NotUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "binary.yaml")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x41}, 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	_, err := NewParser().ParseFile(path)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "UTF-8") {
		t.Errorf("error should mention UTF-8: %v", err)
	}
}
