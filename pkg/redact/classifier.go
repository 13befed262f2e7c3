package redact

import (
	"context"
	"errors"
	"regexp"
)

// Classifier maps an error to a category. Implementations must handle
// any non-nil error and always return a category.
type Classifier func(err error) Category

// categoryPattern pairs a category with the expression claiming it.
type categoryPattern struct {
	category Category
	re       *regexp.Regexp
}

// defaultPatterns are tested in order; the first match wins. Timeout
// and network run before database so a failing driver call is
// attributed to the connection, not the store.
var defaultPatterns = []categoryPattern{
	{CategoryTimeout, regexp.MustCompile(`(?i)\b(timeout|timed out|deadline exceeded)\b`)},
	{CategoryNetwork, regexp.MustCompile(`(?i)(connection (refused|reset)|no such host|network is unreachable|broken pipe|\bdial\b|unexpected EOF)`)},
	{CategoryDatabase, regexp.MustCompile(`(?i)\b(sql|sqlite|postgres|database|constraint|transaction|deadlock|duplicate key)\b`)},
	{CategoryQuota, regexp.MustCompile(`(?i)\b(quota|rate limit(ed)?|too many requests|capacity exceeded)\b`)},
	{CategoryNotFound, regexp.MustCompile(`(?i)\b(not found|no such \w+|unknown (run|resource|action))\b`)},
	{CategoryValidation, regexp.MustCompile(`(?i)\b(invalid|validation|malformed|missing required|must (be|not)|cannot be empty|out of range)\b`)},
}

// DefaultClassifier returns the pattern-based classifier the package
// ships with. Known sentinel errors are matched by identity first,
// then the error text is matched against category patterns. Errors no
// pattern claims classify as internal.
func DefaultClassifier() Classifier {
	return func(err error) Category {
		if err == nil {
			return CategoryInternal
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return CategoryTimeout
		}
		if errors.Is(err, context.Canceled) {
			return CategoryTimeout
		}

		text := err.Error()
		for _, p := range defaultPatterns {
			if p.re.MatchString(text) {
				return p.category
			}
		}
		return CategoryInternal
	}
}
