package storage

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/ganymede/pkg/registry"
)

// MemoryStorage implements registry.Storage with an in-process map.
// This is the default backend. All state is lost when the process
// exits, which also means an interrupted teardown cannot be resumed
// across a restart; deployments that need that guarantee use the
// SQLite backend.
type MemoryStorage struct {
	mu        sync.RWMutex
	resources map[string]*registry.EphemeralResource
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		resources: make(map[string]*registry.EphemeralResource),
	}
}

// Create persists a new resource record.
func (m *MemoryStorage) Create(ctx context.Context, res *registry.EphemeralResource) error {
	if res == nil {
		return fmt.Errorf("resource cannot be nil")
	}
	if res.ID == "" {
		return fmt.Errorf("resource id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.resources[res.ID]; exists {
		return fmt.Errorf("resource %s already exists", res.ID)
	}
	m.resources[res.ID] = res.Clone()
	return nil
}

// Get retrieves the resource by id, or nil when absent.
func (m *MemoryStorage) Get(ctx context.Context, id string) (*registry.EphemeralResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res, ok := m.resources[id]
	if !ok {
		return nil, nil
	}
	return res.Clone(), nil
}

// Update replaces the stored record.
func (m *MemoryStorage) Update(ctx context.Context, res *registry.EphemeralResource) error {
	if res == nil {
		return fmt.Errorf("resource cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.resources[res.ID]; !exists {
		return fmt.Errorf("resource %s does not exist", res.ID)
	}
	m.resources[res.ID] = res.Clone()
	return nil
}

// Delete removes the record. No-op if the id is absent.
func (m *MemoryStorage) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.resources, id)
	return nil
}

// List returns resources in any of the given states, or all resources
// when no states are given.
func (m *MemoryStorage) List(ctx context.Context, states ...registry.ResourceState) ([]*registry.EphemeralResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*registry.EphemeralResource, 0, len(m.resources))
	for _, res := range m.resources {
		if len(states) > 0 && !stateIn(res.State, states) {
			continue
		}
		out = append(out, res.Clone())
	}
	return out, nil
}

// CountLive returns the number of non-destroyed resources of the kind.
func (m *MemoryStorage) CountLive(ctx context.Context, kind string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, res := range m.resources {
		if res.Kind == kind && res.State.Live() {
			count++
		}
	}
	return count, nil
}

// Close releases the backend. The map is dropped so late calls fail
// visibly in tests rather than reading stale state.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resources = make(map[string]*registry.EphemeralResource)
	return nil
}

func stateIn(s registry.ResourceState, states []registry.ResourceState) bool {
	for _, candidate := range states {
		if s == candidate {
			return true
		}
	}
	return false
}
