package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/rules"
)

// RuleSource supplies the rule set in force. The rule store's registry
// satisfies this.
type RuleSource interface {
	Active() *rules.RuleSet
}

// Result is the outcome of a TryConsume call.
type Result struct {
	// Allowed reports whether the tokens were deducted.
	Allowed bool

	// RuleID cites the rate_limit rule that supplied the bucket
	// parameters, or "" when the config default applied.
	RuleID string

	// Reason explains the outcome.
	Reason string

	// Capacity is the bucket capacity in force. Zero when the action
	// is not limited.
	Capacity float64

	// Remaining is the token balance after the call.
	Remaining float64

	// RetryAfter is how long until the requested cost will have
	// accrued. Zero when Allowed.
	RetryAfter time.Duration
}

// bucketKey identifies one bucket. Limits apply per action and
// subject; distinct subjects never share tokens.
type bucketKey struct {
	action  string
	subject string
}

// Limiter owns the per-(action, subject) token buckets. Buckets are
// created lazily on first consume with the parameters of the matching
// rate_limit rule, falling back to the configured default. An action
// with neither is not limited.
//
// Bucket parameters are fixed at creation. A newly published rule set
// applies to buckets created after the publish; existing buckets keep
// their arithmetic until idle eviction retires them.
type Limiter struct {
	source RuleSource
	config *config.LimiterConfig
	now    func() time.Time

	mu      sync.RWMutex
	buckets map[bucketKey]*TokenBucket

	admits atomic.Uint64
	denies atomic.Uint64
}

// Stats is a snapshot of limiter counters.
type Stats struct {
	Buckets int
	Admits  uint64
	Denies  uint64
}

// NewLimiter creates a limiter reading rate_limit rules from source.
// A nil config applies the package defaults (no default limit, 1h idle
// eviction).
func NewLimiter(source RuleSource, cfg *config.LimiterConfig) *Limiter {
	if cfg == nil {
		cfg = &config.LimiterConfig{
			DefaultRefillInterval: time.Minute,
			MaxIdleTime:           time.Hour,
			CleanupInterval:       10 * time.Minute,
		}
	}
	return &Limiter{
		source:  source,
		config:  cfg,
		now:     time.Now,
		buckets: make(map[bucketKey]*TokenBucket),
	}
}

// WithClock replaces the limiter's time source. Tests inject a fixed
// clock to make refill arithmetic exact.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	if now != nil {
		l.now = now
	}
	return l
}

// TryConsume attempts to deduct cost tokens from the bucket for
// (action, subject). It never blocks: the verdict and any retry hint
// are computed from the bucket state at the current instant.
func (l *Limiter) TryConsume(action, subject string, cost float64) Result {
	if cost <= 0 {
		return Result{
			Allowed: false,
			Reason:  fmt.Sprintf("cost must be positive, got %g", cost),
		}
	}

	capacity, interval, ruleID, limited := l.resolveParams(action)
	if !limited {
		return Result{
			Allowed: true,
			Reason:  "no rate limit configured",
		}
	}

	now := l.now()
	bucket := l.bucket(action, subject, capacity, interval, now)

	ok, remaining, retryAfter := bucket.TryConsume(now, cost)
	if ok {
		l.admits.Add(1)
		return Result{
			Allowed:   true,
			RuleID:    ruleID,
			Reason:    "within rate limit",
			Capacity:  capacity,
			Remaining: remaining,
		}
	}

	l.denies.Add(1)
	return Result{
		Allowed:    false,
		RuleID:     ruleID,
		Reason:     fmt.Sprintf("rate limit exceeded for action %q", action),
		Capacity:   capacity,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}
}

// EvictIdle drops buckets untouched for longer than the configured
// idle time and returns how many were dropped. A dropped bucket costs
// nothing: the next consume recreates it full.
func (l *Limiter) EvictIdle() int {
	if l.config.MaxIdleTime <= 0 {
		return 0
	}
	cutoff := l.now().Add(-l.config.MaxIdleTime)

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, bucket := range l.buckets {
		if bucket.LastAccess().Before(cutoff) {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Stats returns a snapshot of limiter counters.
func (l *Limiter) Stats() Stats {
	return Stats{
		Buckets: l.Len(),
		Admits:  l.admits.Load(),
		Denies:  l.denies.Load(),
	}
}

// resolveParams finds the bucket parameters for an action: the
// rate_limit rule scoped to it, else the config default, else the
// action is not limited. Rules with non-positive parameters are
// ignored so a bad programmatic publish cannot divide by zero.
func (l *Limiter) resolveParams(action string) (capacity float64, interval time.Duration, ruleID string, limited bool) {
	if l.source != nil {
		if rs := l.source.Active(); rs != nil {
			if p, id, ok := rs.RateLimitFor(action); ok && p.Capacity > 0 && p.RefillInterval > 0 {
				return p.Capacity, p.RefillInterval, id, true
			}
		}
	}

	if l.config.DefaultCapacity > 0 && l.config.DefaultRefillInterval > 0 {
		return l.config.DefaultCapacity, l.config.DefaultRefillInterval, "", true
	}

	return 0, 0, "", false
}

// bucket returns the bucket for key, creating it on first use.
func (l *Limiter) bucket(action, subject string, capacity float64, interval time.Duration, now time.Time) *TokenBucket {
	key := bucketKey{action: action, subject: subject}

	l.mu.RLock()
	b, ok := l.buckets[key]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[key]; ok {
		return b
	}
	b = NewTokenBucket(capacity, interval, now)
	l.buckets[key] = b
	return b
}
