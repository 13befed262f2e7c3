package retention

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/audit"
	"mercator-hq/ganymede/pkg/audit/storage"
)

// storeDecision stores a decision with the given id and timestamp.
func storeDecision(t *testing.T, store audit.Storage, id string, ts time.Time) {
	t.Helper()
	d := &audit.Decision{
		ID:        id,
		EventID:   "event-" + id,
		Outcome:   audit.OutcomeAdmit,
		Reason:    "stage gate satisfied",
		RunID:     "run-1",
		Component: audit.ComponentPipeline,
		Timestamp: ts,
	}
	if err := store.Store(context.Background(), d); err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
}

// TestPruner_PruneOldRecords tests pruning records older than retention period.
func TestPruner_PruneOldRecords(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RetentionDays = 7
	config.ArchiveBeforeDelete = false

	pruner := NewPruner(store, config)

	ctx := context.Background()
	now := time.Now()

	storeDecision(t, store, "old-1", now.AddDate(0, 0, -10))
	storeDecision(t, store, "old-2", now.AddDate(0, 0, -8))
	storeDecision(t, store, "recent-1", now.AddDate(0, 0, -5))
	storeDecision(t, store, "recent-2", now.AddDate(0, 0, -3))

	count, _ := store.Count(ctx, &audit.Query{})
	if count != 4 {
		t.Fatalf("Expected 4 records, got %d", count)
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	count, _ = store.Count(ctx, &audit.Query{})
	if count != 2 {
		t.Errorf("Expected 2 remaining records, got %d", count)
	}

	results, _ := store.Query(ctx, &audit.Query{})
	for _, d := range results {
		if d.ID == "old-1" || d.ID == "old-2" {
			t.Errorf("Old record %s should have been deleted", d.ID)
		}
	}
}

// TestPruner_RetentionDisabled tests that pruning is skipped when retention is 0.
func TestPruner_RetentionDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RetentionDays = 0

	pruner := NewPruner(store, config)

	ctx := context.Background()
	storeDecision(t, store, "old-record", time.Now().AddDate(0, 0, -100))

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	if deleted != 0 {
		t.Errorf("Expected 0 deleted records, got %d", deleted)
	}

	count, _ := store.Count(ctx, &audit.Query{})
	if count != 1 {
		t.Errorf("Expected record to survive, count = %d", count)
	}
}

// TestPruner_MaxRecords tests count-based pruning of the oldest records.
func TestPruner_MaxRecords(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RetentionDays = 0
	config.MaxRecords = 3

	pruner := NewPruner(store, config)

	ctx := context.Background()
	base := time.Now().Add(-10 * time.Hour)

	// Five records an hour apart; the two oldest should go
	for i := 0; i < 5; i++ {
		storeDecision(t, store, string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	results, _ := store.Query(ctx, &audit.Query{})
	if len(results) != 3 {
		t.Fatalf("Expected 3 remaining records, got %d", len(results))
	}
	for _, d := range results {
		if d.ID == "a" || d.ID == "b" {
			t.Errorf("Oldest record %s should have been deleted", d.ID)
		}
	}
}

// TestPruner_MaxRecordsWithinLimit tests that no pruning happens under the cap.
func TestPruner_MaxRecordsWithinLimit(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RetentionDays = 0
	config.MaxRecords = 10

	pruner := NewPruner(store, config)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		storeDecision(t, store, string(rune('a'+i)), time.Now())
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 deleted records, got %d", deleted)
	}
}

// TestPruner_ArchiveBeforeDelete tests local archiving of pruned records.
func TestPruner_ArchiveBeforeDelete(t *testing.T) {
	store := storage.NewMemoryStorage()
	archiveDir := t.TempDir()

	config := DefaultConfig()
	config.RetentionDays = 7
	config.ArchiveBeforeDelete = true
	config.ArchivePath = archiveDir

	pruner := NewPruner(store, config)

	ctx := context.Background()
	now := time.Now()

	storeDecision(t, store, "archived-1", now.AddDate(0, 0, -30))
	storeDecision(t, store, "archived-2", now.AddDate(0, 0, -20))
	storeDecision(t, store, "kept-1", now)

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("Expected 2 deleted records, got %d", deleted)
	}

	// The archive file should exist and mention the pruned ids
	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 archive file, found %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(archiveDir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	content := string(data)
	for _, id := range []string{"archived-1", "archived-2"} {
		if !strings.Contains(content, id) {
			t.Errorf("Archive should contain record %s", id)
		}
	}
	if strings.Contains(content, "kept-1") {
		t.Error("Archive should not contain retained records")
	}
}

// TestPruner_EmptyStorage tests pruning against an empty log.
func TestPruner_EmptyStorage(t *testing.T) {
	store := storage.NewMemoryStorage()
	config := DefaultConfig()
	config.RetentionDays = 7
	config.MaxRecords = 100

	pruner := NewPruner(store, config)

	deleted, err := pruner.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected 0 deleted records, got %d", deleted)
	}
}

// TestPruner_NilConfig tests that a nil config falls back to defaults.
func TestPruner_NilConfig(t *testing.T) {
	store := storage.NewMemoryStorage()
	pruner := NewPruner(store, nil)

	if pruner.config.RetentionDays != 90 {
		t.Errorf("Default RetentionDays = %d, want 90", pruner.config.RetentionDays)
	}
	if pruner.config.PruneSchedule != "0 3 * * *" {
		t.Errorf("Default PruneSchedule = %q", pruner.config.PruneSchedule)
	}
}
