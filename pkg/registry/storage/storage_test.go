package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/registry"
)

// openBackends returns one instance of every backend, fresh for each
// test. Backends are closed by the caller.
func openBackends(t *testing.T) map[string]registry.Storage {
	t.Helper()

	sqliteStore, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "resources.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	return map[string]registry.Storage{
		"memory": NewMemoryStorage(),
		"sqlite": sqliteStore,
	}
}

func testResource(id, kind string, state registry.ResourceState) *registry.EphemeralResource {
	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &registry.EphemeralResource{
		ID:             id,
		Kind:           kind,
		State:          state,
		CreatedAt:      created,
		LastActivityAt: created,
		HardExpiry:     created.Add(4 * time.Hour),
	}
}

func TestStorage_CreateAndGet(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			res := testResource("r-1", "build-vm", registry.StateProvisioning)
			res.SpinUpLatency = 3 * time.Minute

			if err := store.Create(ctx, res); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			loaded, err := store.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded == nil {
				t.Fatal("expected resource, got nil")
			}
			if loaded.ID != res.ID || loaded.Kind != res.Kind || loaded.State != res.State {
				t.Errorf("loaded %+v does not match stored %+v", loaded, res)
			}
			if !loaded.CreatedAt.Equal(res.CreatedAt) {
				t.Errorf("expected created_at %v, got %v", res.CreatedAt, loaded.CreatedAt)
			}
			if !loaded.HardExpiry.Equal(res.HardExpiry) {
				t.Errorf("expected hard_expiry %v, got %v", res.HardExpiry, loaded.HardExpiry)
			}
			if loaded.SpinUpLatency != res.SpinUpLatency {
				t.Errorf("expected spin-up %v, got %v", res.SpinUpLatency, loaded.SpinUpLatency)
			}
			if !loaded.ReadyAt.IsZero() || !loaded.DestroyedAt.IsZero() {
				t.Errorf("expected zero ready/destroyed times, got %v / %v", loaded.ReadyAt, loaded.DestroyedAt)
			}
		})
	}
}

func TestStorage_CreateDuplicate(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			res := testResource("r-1", "build-vm", registry.StateProvisioning)
			if err := store.Create(ctx, res); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := store.Create(ctx, res); err == nil {
				t.Error("expected error creating duplicate id")
			}
		})
	}
}

func TestStorage_GetAbsent(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			loaded, err := store.Get(context.Background(), "nope")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded != nil {
				t.Errorf("expected nil for absent id, got %+v", loaded)
			}
		})
	}
}

func TestStorage_Update(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			res := testResource("r-1", "build-vm", registry.StateProvisioning)
			if err := store.Create(ctx, res); err != nil {
				t.Fatalf("Create failed: %v", err)
			}

			res.State = registry.StateActive
			res.ReadyAt = res.CreatedAt.Add(2 * time.Minute)
			res.LastActivityAt = res.ReadyAt
			res.SpinUpLatency = 2 * time.Minute
			if err := store.Update(ctx, res); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			loaded, err := store.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded.State != registry.StateActive {
				t.Errorf("expected state active, got %s", loaded.State)
			}
			if !loaded.ReadyAt.Equal(res.ReadyAt) {
				t.Errorf("expected ready_at %v, got %v", res.ReadyAt, loaded.ReadyAt)
			}

			missing := testResource("ghost", "build-vm", registry.StateActive)
			if err := store.Update(ctx, missing); err == nil {
				t.Error("expected error updating absent id")
			}
		})
	}
}

func TestStorage_Delete(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			res := testResource("r-1", "build-vm", registry.StateProvisioning)
			if err := store.Create(ctx, res); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := store.Delete(ctx, "r-1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			loaded, err := store.Get(ctx, "r-1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if loaded != nil {
				t.Error("expected resource gone after delete")
			}

			if err := store.Delete(ctx, "r-1"); err != nil {
				t.Errorf("expected deleting absent id to be a no-op, got %v", err)
			}
		})
	}
}

func TestStorage_ListByState(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			states := []registry.ResourceState{
				registry.StateProvisioning,
				registry.StateActive,
				registry.StateExpiring,
				registry.StateDestroyed,
			}
			for i, state := range states {
				res := testResource("r-"+string(rune('a'+i)), "build-vm", state)
				if err := store.Create(ctx, res); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			all, err := store.List(ctx)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 4 {
				t.Errorf("expected 4 resources, got %d", len(all))
			}

			active, err := store.List(ctx, registry.StateActive)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(active) != 1 || active[0].State != registry.StateActive {
				t.Errorf("expected one active resource, got %+v", active)
			}

			pending, err := store.List(ctx, registry.StateProvisioning, registry.StateExpiring)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(pending) != 2 {
				t.Errorf("expected 2 resources, got %d", len(pending))
			}
		})
	}
}

func TestStorage_CountLive(t *testing.T) {
	for name, store := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			seed := []struct {
				id    string
				kind  string
				state registry.ResourceState
			}{
				{"r-1", "build-vm", registry.StateProvisioning},
				{"r-2", "build-vm", registry.StateActive},
				{"r-3", "build-vm", registry.StateExpiring},
				{"r-4", "build-vm", registry.StateDestroyed},
				{"r-5", "preview-env", registry.StateActive},
			}
			for _, s := range seed {
				if err := store.Create(ctx, testResource(s.id, s.kind, s.state)); err != nil {
					t.Fatalf("Create failed: %v", err)
				}
			}

			count, err := store.CountLive(ctx, "build-vm")
			if err != nil {
				t.Fatalf("CountLive failed: %v", err)
			}
			if count != 3 {
				t.Errorf("expected 3 live build-vm resources, got %d", count)
			}

			count, err = store.CountLive(ctx, "preview-env")
			if err != nil {
				t.Fatalf("CountLive failed: %v", err)
			}
			if count != 1 {
				t.Errorf("expected 1 live preview-env resource, got %d", count)
			}

			count, err = store.CountLive(ctx, "unknown-kind")
			if err != nil {
				t.Fatalf("CountLive failed: %v", err)
			}
			if count != 0 {
				t.Errorf("expected 0 for unknown kind, got %d", count)
			}
		})
	}
}

func TestMemoryStorage_CloneIsolation(t *testing.T) {
	store := NewMemoryStorage()
	defer store.Close()
	ctx := context.Background()

	res := testResource("r-1", "build-vm", registry.StateProvisioning)
	if err := store.Create(ctx, res); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mutating the caller's copy or a loaded copy must not leak into
	// the store.
	res.State = registry.StateDestroyed

	loaded, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.State != registry.StateProvisioning {
		t.Errorf("store state changed through caller's copy: %s", loaded.State)
	}

	loaded.State = registry.StateActive
	again, err := store.Get(ctx, "r-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.State != registry.StateProvisioning {
		t.Errorf("store state changed through loaded copy: %s", again.State)
	}
}
