package registry

import (
	"context"
	"time"
)

// ResourceState is the lifecycle state of an ephemeral resource.
type ResourceState string

const (
	// StateProvisioning marks a resource whose provisioning request has
	// been issued but not yet confirmed ready.
	StateProvisioning ResourceState = "provisioning"

	// StateActive marks a resource that is ready and in use. Heartbeats
	// keep it alive; the sweep retires it on inactivity or hard expiry.
	StateActive ResourceState = "active"

	// StateExpiring marks a resource whose teardown has begun. The
	// transition is persisted before the teardown call, so a sweep
	// interrupted by a crash resumes here rather than destroying twice.
	StateExpiring ResourceState = "expiring"

	// StateDestroyed is absorbing. Lifecycle operations on a destroyed
	// resource fail with UnknownResourceError.
	StateDestroyed ResourceState = "destroyed"
)

// Valid reports whether s is one of the defined states.
func (s ResourceState) Valid() bool {
	switch s {
	case StateProvisioning, StateActive, StateExpiring, StateDestroyed:
		return true
	}
	return false
}

// Live reports whether a resource in this state counts against the
// concurrent quota for its kind.
func (s ResourceState) Live() bool {
	return s == StateProvisioning || s == StateActive || s == StateExpiring
}

// EphemeralResource is one provisioned resource tracked by the
// registry. The registry owns every field; callers receive copies.
type EphemeralResource struct {
	// ID is the registry-assigned identifier. It doubles as the
	// idempotency key for collaborator calls.
	ID string `json:"id"`

	// Kind names the resource class (build VM, preview environment).
	// Quota and spin-up rules are scoped per kind.
	Kind string `json:"kind"`

	// State is the current lifecycle state.
	State ResourceState `json:"state"`

	// CreatedAt is when provisioning was admitted.
	CreatedAt time.Time `json:"created_at"`

	// ReadyAt is when the resource was marked ready. Zero while
	// provisioning.
	ReadyAt time.Time `json:"ready_at,omitempty"`

	// LastActivityAt is the most recent heartbeat, or the creation or
	// ready time if no heartbeat has arrived. The inactivity clock
	// measures from here.
	LastActivityAt time.Time `json:"last_activity_at"`

	// HardExpiry is the instant after which the resource is retired
	// regardless of heartbeats. Zero means no cap.
	HardExpiry time.Time `json:"hard_expiry,omitempty"`

	// DestroyedAt is when teardown completed. Zero until then.
	DestroyedAt time.Time `json:"destroyed_at,omitempty"`

	// SpinUpLatency is the time from creation to ready. Zero while
	// provisioning.
	SpinUpLatency time.Duration `json:"spin_up_latency,omitempty"`
}

// Clone returns a copy of the resource.
func (r *EphemeralResource) Clone() *EphemeralResource {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Storage defines the interface for resource state persistence.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Create persists a new resource record. It fails if the id is
	// already present.
	Create(ctx context.Context, res *EphemeralResource) error

	// Get retrieves the resource by id. Returns nil without error when
	// no record exists.
	Get(ctx context.Context, id string) (*EphemeralResource, error)

	// Update replaces the stored record. It fails if the id is absent.
	Update(ctx context.Context, res *EphemeralResource) error

	// Delete removes the record. No-op if the id is absent.
	Delete(ctx context.Context, id string) error

	// List returns resources in any of the given states, or all
	// resources when no states are given. Order is unspecified.
	List(ctx context.Context, states ...ResourceState) ([]*EphemeralResource, error)

	// CountLive returns the number of non-destroyed resources of the
	// given kind.
	CountLive(ctx context.Context, kind string) (int, error)

	// Close releases any resources held by the backend.
	Close() error
}
