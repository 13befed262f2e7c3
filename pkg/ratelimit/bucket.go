package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a continuously refilling token bucket. Tokens are
// fractional: refill credits elapsed/refillInterval of the capacity on
// every access rather than whole tokens on a timer, so the bucket state
// is an exact function of the access timestamps.
//
// The bucket never blocks and keeps no background goroutine; all
// arithmetic happens inside TryConsume under the bucket mutex.
type TokenBucket struct {
	capacity       float64
	refillInterval time.Duration

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

// NewTokenBucket creates a full bucket. The first consume may happen at
// or after the creation instant.
func NewTokenBucket(capacity float64, refillInterval time.Duration, now time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:       capacity,
		refillInterval: refillInterval,
		tokens:         capacity,
		lastRefill:     now,
		lastAccess:     now,
	}
}

// TryConsume refills the bucket for the time elapsed up to now, then
// attempts to deduct cost tokens. On success it returns true with the
// remaining balance. On refusal it returns false with the balance and
// the wait until cost tokens will have accrued:
//
//	retryAfter = (cost − tokens) × refillInterval / capacity
func (tb *TokenBucket) TryConsume(now time.Time, cost float64) (ok bool, remaining float64, retryAfter time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)
	tb.lastAccess = now

	if tb.tokens >= cost {
		tb.tokens -= cost
		return true, tb.tokens, 0
	}

	deficit := cost - tb.tokens
	retryAfter = time.Duration(deficit * float64(tb.refillInterval) / tb.capacity)
	return false, tb.tokens, retryAfter
}

// Remaining refills for the elapsed time and returns the balance
// without consuming.
func (tb *TokenBucket) Remaining(now time.Time) float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)
	return tb.tokens
}

// Capacity returns the bucket capacity.
func (tb *TokenBucket) Capacity() float64 {
	return tb.capacity
}

// LastAccess returns when the bucket was last consumed from. Used by
// idle eviction.
func (tb *TokenBucket) LastAccess() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastAccess
}

// refillLocked credits tokens for the time since the last refill,
// capped at capacity. Caller must hold the mutex.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	tb.tokens += float64(elapsed) / float64(tb.refillInterval) * tb.capacity
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}
