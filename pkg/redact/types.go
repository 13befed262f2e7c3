package redact

// Environment names a deployment environment. The environment decides
// how much error detail leaves the engine.
type Environment string

const (
	// EnvProduction reduces every surfaced error to a fixed generic
	// message for its category.
	EnvProduction Environment = "production"

	// EnvStaging surfaces full diagnostic detail.
	EnvStaging Environment = "staging"

	// EnvDevelopment surfaces full diagnostic detail.
	EnvDevelopment Environment = "development"
)

// Production reports whether errors in this environment must be
// reduced to public messages. Unrecognized environment names count as
// production, so a misconfigured deployment leaks nothing.
func (e Environment) Production() bool {
	switch e {
	case EnvStaging, EnvDevelopment:
		return false
	}
	return true
}

// Category classifies an error by its apparent origin.
type Category string

const (
	// CategoryInternal is the fallback for errors no pattern claims.
	CategoryInternal Category = "internal"

	// CategoryDatabase covers storage and query failures.
	CategoryDatabase Category = "database"

	// CategoryValidation covers rejected or malformed input.
	CategoryValidation Category = "validation"

	// CategoryTimeout covers deadline and timeout failures.
	CategoryTimeout Category = "timeout"

	// CategoryNetwork covers unreachable or dropped connections.
	CategoryNetwork Category = "network"

	// CategoryNotFound covers lookups of entities that do not exist.
	CategoryNotFound Category = "not_found"

	// CategoryQuota covers exhausted quotas and rate limits.
	CategoryQuota Category = "quota"
)

// publicMessages maps each category to the one message production
// callers ever see for it.
var publicMessages = map[Category]string{
	CategoryInternal:   "an internal error occurred",
	CategoryDatabase:   "a storage error occurred",
	CategoryValidation: "the request was invalid",
	CategoryTimeout:    "the operation timed out",
	CategoryNetwork:    "an upstream service was unreachable",
	CategoryNotFound:   "the requested entity was not found",
	CategoryQuota:      "a resource limit was reached",
}

// PublicMessage returns the fixed generic message for a category.
// Unknown categories fall back to the internal message.
func PublicMessage(c Category) string {
	if msg, ok := publicMessages[c]; ok {
		return msg
	}
	return publicMessages[CategoryInternal]
}

// PublicError is the production form of a classified error. It carries
// only the category and its fixed message, never text derived from the
// original error.
type PublicError struct {
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

// Error returns the public message.
func (e *PublicError) Error() string {
	return e.Message
}

// DebugError is the non-production form of a classified error. It
// keeps the public shape and adds the original message and the unwrap
// chain for diagnosis.
type DebugError struct {
	Category     Category `json:"category"`
	Message      string   `json:"message"`
	DebugMessage string   `json:"debug_message"`
	Trace        []string `json:"trace,omitempty"`

	cause error
}

// Error returns the public message with the diagnostic detail appended.
func (e *DebugError) Error() string {
	return e.Message + ": " + e.DebugMessage
}

// Unwrap returns the original error.
func (e *DebugError) Unwrap() error {
	return e.cause
}
