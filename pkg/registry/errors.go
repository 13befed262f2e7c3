package registry

import "fmt"

// UnknownResourceError reports an operation against a resource id the
// registry does not track, or one whose teardown has already started.
type UnknownResourceError struct {
	ResourceID string
}

// Error returns the error message.
func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource: %s", e.ResourceID)
}

// Code returns the stable machine-readable error code.
func (e *UnknownResourceError) Code() string {
	return "UNKNOWN_RESOURCE"
}

// NewUnknownResourceError creates an UnknownResourceError for id.
func NewUnknownResourceError(id string) *UnknownResourceError {
	return &UnknownResourceError{ResourceID: id}
}

// QuotaExceededError reports a provision refused because the concurrent
// quota for the resource kind is at capacity.
type QuotaExceededError struct {
	Kind   string
	Limit  int
	Active int
	RuleID string // rule that supplied the quota, empty for the config default
}

// Error returns the error message.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for resource kind %q: %d of %d in use", e.Kind, e.Active, e.Limit)
}

// Code returns the stable machine-readable error code.
func (e *QuotaExceededError) Code() string {
	return "QUOTA_EXCEEDED"
}

// NewQuotaExceededError creates a QuotaExceededError.
func NewQuotaExceededError(kind string, limit, active int, ruleID string) *QuotaExceededError {
	return &QuotaExceededError{Kind: kind, Limit: limit, Active: active, RuleID: ruleID}
}

// InfrastructureError reports a failure in the registry's own plumbing,
// the state store or the provisioning collaborator. It is the only
// registry error that signals a fault rather than a verdict.
type InfrastructureError struct {
	Op    string // operation that failed ("provision", "sweep", "heartbeat")
	Cause error
}

// Error returns the error message.
func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("infrastructure failure in %s: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *InfrastructureError) Unwrap() error {
	return e.Cause
}

// Code returns the stable machine-readable error code.
func (e *InfrastructureError) Code() string {
	return "INFRA_FAILURE"
}

// NewInfrastructureError creates an InfrastructureError.
func NewInfrastructureError(op string, cause error) *InfrastructureError {
	return &InfrastructureError{Op: op, Cause: cause}
}
