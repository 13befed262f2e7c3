package pipeline

import "fmt"

// UnknownRunError reports an operation against a run id the evaluator
// has never seen.
type UnknownRunError struct {
	RunID string
}

// Error returns the error message.
func (e *UnknownRunError) Error() string {
	return fmt.Sprintf("unknown run: %s", e.RunID)
}

// Code returns the stable machine-readable error code.
func (e *UnknownRunError) Code() string {
	return "UNKNOWN_RUN"
}

// NewUnknownRunError creates an UnknownRunError for id.
func NewUnknownRunError(id string) *UnknownRunError {
	return &UnknownRunError{RunID: id}
}

// InfrastructureError reports a failure in the evaluator's own
// plumbing, principally the decision sink. It is the only evaluator
// error that signals a fault rather than a verdict; a denied gate is a
// Decision, never an error.
type InfrastructureError struct {
	Op    string // operation that failed ("advance", "abort", "record decision")
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
