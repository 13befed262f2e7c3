// Package ratelimit provides token-bucket rate limiting for named
// actions, keyed by the subject performing them.
//
// # Algorithm
//
// Each (action, subject) pair owns one bucket of fractional tokens.
// Refill is continuous: every access first credits
//
//	elapsed / refillInterval × capacity
//
// tokens, capped at capacity, then attempts the deduction. A refused
// consume reports how long until the requested cost will have accrued:
//
//	retryAfter = (cost − tokens) × refillInterval / capacity
//
// Nothing blocks and nothing runs in the background; for a fixed clock
// the verdict is a pure function of the bucket state.
//
// # Parameters
//
// Bucket parameters come from the rate_limit rule scoped to the
// action in the active rule set, falling back to the configured
// default. Actions with neither are not limited.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter(registry, &cfg.Limiter)
//
//	result := limiter.TryConsume("password_reset", userID, 1)
//	if !result.Allowed {
//	    // result.RetryAfter says when to try again
//	}
//
// Buckets idle past the configured MaxIdleTime are dropped by
// EvictIdle, typically called from the shared scheduler. A dropped
// bucket is recreated full on the next consume.
package ratelimit
