package gitsource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestNewWatcher tests watcher creation.
func TestNewWatcher(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	cfg := localConfig(tempDir, tempDir)

	repo, err := NewRepository(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	reloadFn := func(path string) error {
		return nil
	}

	watcher := NewWatcher(repo, 1*time.Second, 5*time.Second, reloadFn)

	if watcher == nil {
		t.Fatal("expected non-nil watcher")
	}

	if watcher.pollInterval != 1*time.Second {
		t.Errorf("expected poll interval 1s, got %v", watcher.pollInterval)
	}

	if watcher.pollTimeout != 5*time.Second {
		t.Errorf("expected poll timeout 5s, got %v", watcher.pollTimeout)
	}

	if watcher.reloadFn == nil {
		t.Error("expected non-nil reload function")
	}

	if watcher.running {
		t.Error("expected watcher not running initially")
	}
}

// TestWatcher_StartStop tests the watcher lifecycle.
func TestWatcher_StartStop(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, tempDir))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	watcher := NewWatcher(repo, 1*time.Second, 5*time.Second, func(path string) error {
		return nil
	})

	ctx := context.Background()
	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	if !watcher.IsRunning() {
		t.Error("expected watcher to be running after Start()")
	}

	if watcher.LastCommitSHA() == "" {
		t.Error("expected lastCommitSHA to be set after Start()")
	}

	if err := watcher.Start(ctx); err == nil {
		t.Error("expected error when starting already running watcher")
	}

	if err := watcher.Stop(); err != nil {
		t.Fatalf("failed to stop watcher: %v", err)
	}

	if watcher.IsRunning() {
		t.Error("expected watcher not running after Stop()")
	}

	if err := watcher.Stop(); err == nil {
		t.Error("expected error when stopping already stopped watcher")
	}
}

// TestWatcher_StartWithoutClone tests that Start fails before Clone.
func TestWatcher_StartWithoutClone(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}

	watcher := NewWatcher(repo, 1*time.Second, 5*time.Second, func(path string) error {
		return nil
	})

	if err := watcher.Start(context.Background()); err == nil {
		t.Error("expected error when starting watcher with uncloned repository")
	}
}

// TestWatcher_LastCommitSHA tests commit SHA tracking.
func TestWatcher_LastCommitSHA(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, tempDir))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	watcher := NewWatcher(repo, 1*time.Second, 5*time.Second, func(path string) error {
		return nil
	})

	if err := watcher.Start(context.Background()); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	sha := watcher.LastCommitSHA()
	if sha == "" {
		t.Error("expected non-empty commit SHA")
	}

	if len(sha) != 40 {
		t.Errorf("expected 40-character SHA, got %d characters", len(sha))
	}
}

// TestWatcher_Metrics tests poll counting.
func TestWatcher_Metrics(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, tempDir))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	watcher := NewWatcher(repo, 100*time.Millisecond, 5*time.Second, func(path string) error {
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	time.Sleep(500 * time.Millisecond)

	metrics := watcher.Metrics()
	if metrics.PollCount == 0 {
		t.Error("expected PollCount > 0")
	}
}

// TestWatcher_ContextCancellation tests the poll loop exits on cancel.
func TestWatcher_ContextCancellation(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, tempDir))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	watcher := NewWatcher(repo, 100*time.Millisecond, 5*time.Second, func(path string) error {
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	if !watcher.IsRunning() {
		t.Error("expected watcher to be running")
	}

	cancel()

	// The poll loop exits; the running flag still tracks explicit
	// Start/Stop calls.
	time.Sleep(200 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() after cancel error = %v", err)
	}
}

// TestHasRuleFileChanges tests rule file filtering.
func TestHasRuleFileChanges(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  bool
	}{
		{
			name:  "yaml file",
			files: []string{"limits.yaml"},
			want:  true,
		},
		{
			name:  "yml file",
			files: []string{"limits.yml"},
			want:  true,
		},
		{
			name:  "mixed with yaml",
			files: []string{"README.md", "limits.yaml", "config.json"},
			want:  true,
		},
		{
			name:  "no rule files",
			files: []string{"README.md", "config.json", "script.sh"},
			want:  false,
		},
		{
			name:  "empty list",
			files: []string{},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hasRuleFileChanges(tt.files)
			if got != tt.want {
				t.Errorf("hasRuleFileChanges() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestWatcher_ForceCheckNotRunning tests ForceCheck on a stopped watcher.
func TestWatcher_ForceCheckNotRunning(t *testing.T) {
	tempDir := t.TempDir()
	createTestRepo(t, tempDir)

	repo, err := NewRepository(localConfig(tempDir, tempDir))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	watcher := NewWatcher(repo, 1*time.Second, 5*time.Second, func(path string) error {
		return nil
	})

	if err := watcher.ForceCheck(context.Background()); err == nil {
		t.Error("expected error when calling ForceCheck() on stopped watcher")
	}
}

// TestWatcher_ReloadOnRuleChange tests the full detect-and-reload path
// against a local upstream repository.
func TestWatcher_ReloadOnRuleChange(t *testing.T) {
	sourceDir := t.TempDir()
	source := createTestRepo(t, sourceDir)

	repo, err := NewRepository(localConfig(sourceDir, t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	reloaded := make(chan string, 4)
	watcher := NewWatcher(repo, 100*time.Millisecond, 5*time.Second, func(path string) error {
		reloaded <- path
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	initialSHA := watcher.LastCommitSHA()

	newSHA := commitFile(t, source, sourceDir, "limits.yaml", "name: limits\n", "add limits rule")

	var reloadPath string
	select {
	case reloadPath = <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if reloadPath != repo.RulePath() {
		t.Errorf("reload path = %v, want %v", reloadPath, repo.RulePath())
	}

	// Give performReload a moment to record the new SHA.
	deadline := time.Now().Add(2 * time.Second)
	for watcher.LastCommitSHA() != newSHA && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	if got := watcher.LastCommitSHA(); got != newSHA {
		t.Errorf("LastCommitSHA() = %v, want %v (initial %v)", got, newSHA, initialSHA)
	}

	metrics := watcher.Metrics()
	if metrics.SuccessfulReloads == 0 {
		t.Error("expected SuccessfulReloads > 0")
	}
}

// TestWatcher_RollbackOnFailedReload tests that a reload failure reverts
// the checkout to the last good commit and reloads from it.
func TestWatcher_RollbackOnFailedReload(t *testing.T) {
	sourceDir := t.TempDir()
	source := createTestRepo(t, sourceDir)

	repo, err := NewRepository(localConfig(sourceDir, t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("failed to clone repository: %v", err)
	}

	// Reject any checkout that contains the broken file. The rollback
	// removes it, so the rollback reload succeeds.
	calls := make(chan struct{}, 8)
	reloadFn := func(path string) error {
		calls <- struct{}{}
		if _, err := os.Stat(filepath.Join(path, "broken.yaml")); err == nil {
			return fmt.Errorf("rule file does not parse")
		}
		return nil
	}

	watcher := NewWatcher(repo, 100*time.Millisecond, 5*time.Second, reloadFn)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := watcher.Start(ctx); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}

	goodSHA := watcher.LastCommitSHA()

	commitFile(t, source, sourceDir, "broken.yaml", "name: [broken\n", "add broken rule")

	// Wait for the failed reload and the rollback reload.
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for reload call %d", i+1)
		}
	}

	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Let any in-flight rollback finish its checkout.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if commit, err := repo.CurrentCommit(); err == nil && commit.SHA == goodSHA {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	commit, err := repo.CurrentCommit()
	if err != nil {
		t.Fatalf("CurrentCommit() error = %v", err)
	}
	if commit.SHA != goodSHA {
		t.Errorf("HEAD after failed reload = %v, want rollback to %v", commit.SHA, goodSHA)
	}

	if got := watcher.LastCommitSHA(); got != goodSHA {
		t.Errorf("LastCommitSHA() = %v, want unchanged %v", got, goodSHA)
	}

	metrics := watcher.Metrics()
	if metrics.FailedReloads == 0 {
		t.Error("expected FailedReloads > 0")
	}
}
