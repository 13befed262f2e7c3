package store

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func fileModeConfig(path string) *config.RulesConfig {
	return &config.RulesConfig{
		Mode: "file",
		Path: path,
	}
}

func TestNewManager(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	if mgr.loader == nil {
		t.Error("manager.loader is nil")
	}
	if mgr.registry == nil {
		t.Error("manager.registry is nil")
	}
	if mgr.parser == nil {
		t.Error("manager.parser is nil")
	}
	if mgr.Active().Len() != 0 {
		t.Errorf("Active().Len() = %d before Load, want 0", mgr.Active().Len())
	}
}

func TestNewManager_NilConfig(t *testing.T) {
	_, err := NewManager(nil, testLogger())
	if err == nil {
		t.Fatal("NewManager(nil) error = nil, want error")
	}
	if !strings.Contains(err.Error(), "config cannot be nil") {
		t.Errorf("error = %q, want to contain 'config cannot be nil'", err.Error())
	}
}

func TestManager_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)
	writeRuleFile(t, dir, "limits.yml", deployLimitsDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := mgr.Active().Len(); got != 3 {
		t.Errorf("Active().Len() = %d, want 3", got)
	}
	if mgr.Version() == "" {
		t.Error("Version() = empty, want content hash")
	}
	if mgr.LastLoadTime().IsZero() {
		t.Error("LastLoadTime() = zero, want load timestamp")
	}
	if mgr.LastLoadError() != nil {
		t.Errorf("LastLoadError() = %v, want nil", mgr.LastLoadError())
	}
}

func TestManager_LoadSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(path), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := mgr.Active().Len(); got != 2 {
		t.Errorf("Active().Len() = %d, want 2", got)
	}
}

func TestManager_KeepLastGoodOnReloadFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	goodVersion := mgr.Version()
	goodLen := mgr.Active().Len()

	// Break the file. The reload must fail without touching the active
	// set.
	writeRuleFile(t, dir, "gates.yaml", brokenPredicateDoc)

	if err := mgr.Reload(); err == nil {
		t.Fatal("Reload() error = nil, want parse failure")
	}
	if mgr.Version() != goodVersion {
		t.Errorf("Version() = %q after failed reload, want %q", mgr.Version(), goodVersion)
	}
	if mgr.Active().Len() != goodLen {
		t.Errorf("Active().Len() = %d after failed reload, want %d", mgr.Active().Len(), goodLen)
	}
	if mgr.LastLoadError() == nil {
		t.Error("LastLoadError() = nil after failed reload, want error")
	}

	// Fix the file with different content and reload.
	if err := os.WriteFile(path, []byte(deployLimitsDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := mgr.Reload(); err != nil {
		t.Fatalf("Reload() after fix error = %v", err)
	}
	if mgr.Version() == goodVersion {
		t.Error("Version() unchanged after successful reload of new content")
	}
	if mgr.LastLoadError() != nil {
		t.Errorf("LastLoadError() = %v after successful reload, want nil", mgr.LastLoadError())
	}
}

func TestManager_ValidateDryRun(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.ValidateDryRun(); err != nil {
		t.Fatalf("ValidateDryRun() error = %v", err)
	}
	if got := mgr.Active().Len(); got != 0 {
		t.Errorf("Active().Len() = %d after dry run, want 0", got)
	}

	writeRuleFile(t, dir, "oops.yaml", brokenPredicateDoc)

	if err := mgr.ValidateDryRun(); err == nil {
		t.Fatal("ValidateDryRun() error = nil with broken file, want error")
	}
}

func TestManager_Publish(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	set := testRuleSet(t, 2)
	if err := mgr.Publish(set); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if mgr.Active() != set {
		t.Error("Active() did not return the published set")
	}
	if mgr.Version() != set.Version() {
		t.Errorf("Version() = %q, want %q", mgr.Version(), set.Version())
	}
}

func TestManager_WatchNotEnabled(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	cfg := fileModeConfig(dir)
	cfg.Watch = false

	mgr, err := NewManager(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	err = mgr.Watch(context.Background())
	if err == nil {
		t.Fatal("Watch() error = nil with watching disabled, want error")
	}
	if !strings.Contains(err.Error(), "not enabled") {
		t.Errorf("error = %q, want to contain 'not enabled'", err.Error())
	}

	// A failed Watch must not poison later attempts.
	if err := mgr.Watch(context.Background()); err == nil || !strings.Contains(err.Error(), "not enabled") {
		t.Errorf("second Watch() error = %v, want 'not enabled'", err)
	}
}

func TestManager_WatchAlreadyStarted(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	cfg := fileModeConfig(dir)
	cfg.Watch = true
	cfg.DebounceInterval = 50 * time.Millisecond

	mgr, err := NewManager(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- mgr.Watch(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	err = mgr.Watch(ctx)
	if err == nil {
		t.Fatal("second Watch() error = nil, want 'watch already started'")
	}
	if !strings.Contains(err.Error(), "already started") {
		t.Errorf("error = %q, want to contain 'already started'", err.Error())
	}

	cancel()
	select {
	case err := <-watchDone:
		if err != nil {
			t.Errorf("Watch() returned error = %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after context cancel")
	}
}

func TestManager_WatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	cfg := fileModeConfig(dir)
	cfg.Watch = true
	cfg.DebounceInterval = 50 * time.Millisecond

	mgr, err := NewManager(cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	if err := mgr.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	initialVersion := mgr.Version()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- mgr.Watch(ctx)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(200 * time.Millisecond)

	writeRuleFile(t, dir, "limits.yaml", deployLimitsDoc)

	deadline := time.After(5 * time.Second)
	for mgr.Version() == initialVersion {
		select {
		case <-deadline:
			t.Fatal("rule set version did not change after file change")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if got := mgr.Active().Len(); got != 3 {
		t.Errorf("Active().Len() = %d after reload, want 3", got)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after context cancel")
	}
}

func TestManager_GitAccessorsOutsideGitMode(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "gates.yaml", reviewGatesDoc)

	mgr, err := NewManager(fileModeConfig(dir), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.CurrentCommit(); err == nil || !strings.Contains(err.Error(), "not in git mode") {
		t.Errorf("CurrentCommit() error = %v, want 'not in git mode'", err)
	}
	if _, err := mgr.CommitHistory(5); err == nil || !strings.Contains(err.Error(), "not in git mode") {
		t.Errorf("CommitHistory() error = %v, want 'not in git mode'", err)
	}
	if err := mgr.RollbackToCommit(context.Background(), "abc"); err == nil || !strings.Contains(err.Error(), "not in git mode") {
		t.Errorf("RollbackToCommit() error = %v, want 'not in git mode'", err)
	}
	if err := mgr.ForceSync(context.Background()); err == nil || !strings.Contains(err.Error(), "not in git mode") {
		t.Errorf("ForceSync() error = %v, want 'not in git mode'", err)
	}

	metrics := mgr.GitMetrics()
	if metrics.SuccessfulPulls != 0 || metrics.CloneDuration != 0 {
		t.Errorf("GitMetrics() = %+v, want zero value", metrics)
	}
}
