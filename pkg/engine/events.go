package engine

import (
	"fmt"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/pipeline"
)

// StageEvent reports progress of a pipeline run. A bare event asks the
// engine to advance the run out of the stage it is in; an event carrying
// CheckName and Result delivers one CI or end-to-end check verdict
// instead. The first event naming an unseen run creates it.
type StageEvent struct {
	// RunID identifies the pipeline run. Required.
	RunID string `json:"run_id"`

	// Stage is the stage the sender believes the run is in. The engine
	// tracks run position itself, so a mismatch is logged and the event
	// is judged against the run's actual stage.
	Stage pipeline.Stage `json:"stage,omitempty"`

	// CheckName names the check a verdict is being delivered for.
	CheckName string `json:"check_name,omitempty"`

	// Result is the check verdict. Required when CheckName is set.
	Result pipeline.CheckResult `json:"result,omitempty"`
}

// Validate reports whether the event is well formed.
func (ev StageEvent) Validate() error {
	if ev.RunID == "" {
		return fmt.Errorf("stage event requires a run id")
	}
	if ev.Stage != "" && !ev.Stage.Valid() {
		return fmt.Errorf("unknown pipeline stage: %q", ev.Stage)
	}
	if ev.CheckName != "" && !ev.Result.Valid() {
		return fmt.Errorf("check result for %q must be one of pass, fail, pending", ev.CheckName)
	}
	if ev.CheckName == "" && ev.Result != "" {
		return fmt.Errorf("check result %q carries no check name", ev.Result)
	}
	return nil
}

// ReviewEvent delivers one reviewer verdict for a pipeline run. The
// zero Rejected value records an approval; Rejected sends the run back
// for rework. The first event naming an unseen run creates it.
type ReviewEvent struct {
	// RunID identifies the pipeline run. Required.
	RunID string `json:"run_id"`

	// ReviewerID identifies the reviewer. Approvals are counted once
	// per reviewer no matter how often they are re-sent. Required.
	ReviewerID string `json:"reviewer_id"`

	// IsCodeOwner marks the reviewer as a designated code owner.
	IsCodeOwner bool `json:"is_code_owner,omitempty"`

	// Rejected turns the event into a rejection verdict.
	Rejected bool `json:"rejected,omitempty"`
}

// Validate reports whether the event is well formed.
func (ev ReviewEvent) Validate() error {
	if ev.RunID == "" {
		return fmt.Errorf("review event requires a run id")
	}
	if ev.ReviewerID == "" {
		return fmt.Errorf("review event requires a reviewer id")
	}
	return nil
}

// ResourceAction selects the registry operation a ResourceEvent drives.
type ResourceAction string

const (
	// ResourceProvision requests a new ephemeral resource.
	ResourceProvision ResourceAction = "provision"

	// ResourceHeartbeat refreshes a resource's idle expiry.
	ResourceHeartbeat ResourceAction = "heartbeat"

	// ResourceMarkReady reports that provisioning finished.
	ResourceMarkReady ResourceAction = "mark_ready"
)

// Valid reports whether a is one of the defined actions.
func (a ResourceAction) Valid() bool {
	switch a {
	case ResourceProvision, ResourceHeartbeat, ResourceMarkReady:
		return true
	}
	return false
}

// ResourceEvent drives the lifecycle of one ephemeral resource.
// Provisioning names a kind and receives a registry-assigned resource
// id; heartbeat and mark_ready address an existing resource by id.
type ResourceEvent struct {
	// ResourceID addresses an existing resource. Required for heartbeat
	// and mark_ready, and must be empty for provision.
	ResourceID string `json:"resource_id,omitempty"`

	// Kind is the resource kind being provisioned. Required for
	// provision; quota and spin-up rules match on it.
	Kind string `json:"kind,omitempty"`

	// Action is the lifecycle operation. Required.
	Action ResourceAction `json:"action"`

	// HardExpiryIn caps the resource lifetime regardless of heartbeats.
	// Zero falls back to the configured hard expiry. Only meaningful
	// for provision.
	HardExpiryIn time.Duration `json:"hard_expiry_in,omitempty"`
}

// Validate reports whether the event is well formed.
func (ev ResourceEvent) Validate() error {
	if !ev.Action.Valid() {
		return fmt.Errorf("unknown resource action: %q", ev.Action)
	}
	switch ev.Action {
	case ResourceProvision:
		if ev.Kind == "" {
			return fmt.Errorf("provision requires a resource kind")
		}
		if ev.ResourceID != "" {
			return fmt.Errorf("resource ids are assigned at provisioning")
		}
	default:
		if ev.ResourceID == "" {
			return fmt.Errorf("%s requires a resource id", ev.Action)
		}
	}
	return nil
}

// RequestAttempt asks whether a named action may proceed for a subject
// under the rate limit rules in force. A zero cost counts as one token.
type RequestAttempt struct {
	// ActionName identifies the limited action. Required.
	ActionName string `json:"action_name"`

	// SubjectID identifies who is attempting the action. Each subject
	// draws from its own token bucket. Required.
	SubjectID string `json:"subject_id"`

	// Cost is how many tokens the attempt consumes. Zero means one.
	Cost float64 `json:"cost,omitempty"`
}

// Validate reports whether the attempt is well formed.
func (ev RequestAttempt) Validate() error {
	if ev.ActionName == "" {
		return fmt.Errorf("request attempt requires an action name")
	}
	if ev.SubjectID == "" {
		return fmt.Errorf("request attempt requires a subject id")
	}
	if ev.Cost < 0 {
		return fmt.Errorf("request cost cannot be negative")
	}
	return nil
}

// RequestOutcome reports the verdict on one request attempt.
type RequestOutcome struct {
	// Allowed reports whether the tokens were deducted.
	Allowed bool `json:"allowed"`

	// RetryAfter is how long until the requested cost will have
	// accrued. Zero when Allowed.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Remaining is the token balance after the call.
	Remaining float64 `json:"remaining"`

	// Decision is the recorded admit or deny decision.
	Decision *audit.Decision `json:"decision"`
}
