package store

import (
	"fmt"
	"strings"
)

// LoadError describes a failure to load a rule file.
type LoadError struct {
	// FilePath is the path to the file that failed to load
	FilePath string

	// Message describes the error
	Message string

	// Cause is the underlying error, if any
	Cause error
}

// Error returns the error message.
func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load %s: %s: %v", e.FilePath, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load %s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ErrorList collects per-file errors from a directory load.
type ErrorList struct {
	Errors []error
}

// Add appends an error to the list.
func (el *ErrorList) Add(err error) {
	el.Errors = append(el.Errors, err)
}

// HasErrors returns true if the list contains any errors.
func (el *ErrorList) HasErrors() bool {
	return len(el.Errors) > 0
}

// Error returns all errors joined into one message.
func (el *ErrorList) Error() string {
	if !el.HasErrors() {
		return ""
	}

	msgs := make([]string, 0, len(el.Errors))
	for _, err := range el.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d rule file error(s):\n%s", len(el.Errors), strings.Join(msgs, "\n"))
}

// ToError returns nil if the list is empty, otherwise the list itself.
func (el *ErrorList) ToError() error {
	if !el.HasErrors() {
		return nil
	}
	return el
}
