package rules

import "fmt"

// ValidationError reports the structural problems found in a rule
// slice handed to NewRuleSet. All problems are collected before the
// error is returned.
type ValidationError struct {
	Errors []string
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("invalid ruleset: %s", e.Errors[0])
	}
	return fmt.Sprintf("invalid ruleset: %d problems: %v", len(e.Errors), e.Errors)
}
