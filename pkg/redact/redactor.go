package redact

import (
	"errors"
	"sync"
)

// Redactor converts raw errors into environment-appropriate surfaced
// errors. Production gets a PublicError whose message is the fixed
// template for the category; other known environments get a DebugError
// carrying the original message and unwrap chain.
type Redactor struct {
	mu         sync.RWMutex
	classifier Classifier
}

// NewRedactor creates a redactor using the default pattern-based
// classifier.
func NewRedactor() *Redactor {
	return &Redactor{
		classifier: DefaultClassifier(),
	}
}

// SetClassifier replaces the classifier. A nil classifier restores the
// default.
func (r *Redactor) SetClassifier(fn Classifier) {
	if fn == nil {
		fn = DefaultClassifier()
	}
	r.mu.Lock()
	r.classifier = fn
	r.mu.Unlock()
}

// Classify maps err to a category and wraps it for the environment.
// Returns nil for a nil error. The result is *PublicError in
// production and *DebugError otherwise; unrecognized environment names
// are production.
func (r *Redactor) Classify(err error, env Environment) error {
	if err == nil {
		return nil
	}

	r.mu.RLock()
	classifier := r.classifier
	r.mu.RUnlock()

	category := classifier(err)
	message := PublicMessage(category)

	if env.Production() {
		return &PublicError{
			Category: category,
			Message:  message,
		}
	}

	return &DebugError{
		Category:     category,
		Message:      message,
		DebugMessage: err.Error(),
		Trace:        unwrapTrace(err),
		cause:        err,
	}
}

// unwrapTrace collects the messages along the unwrap chain, outermost
// first.
func unwrapTrace(err error) []string {
	var trace []string
	for err != nil {
		trace = append(trace, err.Error())
		err = errors.Unwrap(err)
	}
	return trace
}
