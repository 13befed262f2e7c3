package store

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/rules"
)

// Registry holds the active rule set. Publishing swaps the whole set at
// once behind a single reference; evaluators that picked up the old set
// finish against it, new evaluations see the new one. No evaluation
// ever observes a half-replaced set.
type Registry struct {
	mu          sync.RWMutex
	active      *rules.RuleSet
	publishedAt time.Time
	publishes   int
}

// NewRegistry creates a registry holding an empty rule set, so Active
// never returns nil.
func NewRegistry() *Registry {
	return &Registry{
		active:      rules.Empty(),
		publishedAt: time.Now(),
	}
}

// Publish atomically replaces the active rule set.
func (r *Registry) Publish(set *rules.RuleSet) error {
	if set == nil {
		return fmt.Errorf("rule set cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = set
	r.publishedAt = time.Now()
	r.publishes++

	return nil
}

// Active returns the currently published rule set.
func (r *Registry) Active() *rules.RuleSet {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.active
}

// Version returns the version of the active rule set.
func (r *Registry) Version() string {
	return r.Active().Version()
}

// PublishedAt returns when the active rule set was published.
func (r *Registry) PublishedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.publishedAt
}

// Stats returns a snapshot of the registry state.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RegistryStats{
		Version:     r.active.Version(),
		RuleCount:   r.active.Len(),
		PublishedAt: r.publishedAt,
		Publishes:   r.publishes,
	}
}

// RegistryStats describes the registry state for health and CLI output.
type RegistryStats struct {
	Version     string
	RuleCount   int
	PublishedAt time.Time
	Publishes   int
}
