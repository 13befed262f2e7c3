package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"
)

// ReloadFunc is called when rule files need reloading. It receives the
// full path to the rule directory and should parse, validate, and
// publish all rule files from that path. If it returns an error the
// watcher rolls the repository back to the last good commit.
type ReloadFunc func(rulePath string) error

// Watcher monitors a Git repository for changes and triggers rule
// reloads. It polls for new commits and reloads only when rule files
// (.yaml, .yml) changed.
//
// Rapid consecutive commits collapse into a single reload through
// debouncing, and a failed reload rolls the checkout back to the last
// commit that loaded cleanly, keeping that version active.
//
// Basic usage:
//
//	watcher := gitsource.NewWatcher(repo, 30*time.Second, 10*time.Second, reloadFn)
//	if err := watcher.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer watcher.Stop()
type Watcher struct {
	repo          *Repository
	pollInterval  time.Duration
	pollTimeout   time.Duration
	debounce      time.Duration
	stopCh        chan struct{}
	reloadFn      ReloadFunc
	lastCommitSHA string
	mu            sync.RWMutex
	running       bool
	debounceTimer *time.Timer
	debounceMu    sync.Mutex
	logger        *slog.Logger
	metrics       *WatcherMetrics
}

// WatcherMetrics tracks watcher operation counters.
type WatcherMetrics struct {
	PollCount         int64
	SuccessfulReloads int64
	FailedReloads     int64
	LastReloadTime    time.Time
	LastReloadDur     time.Duration
	SkippedPolls      int64 // Commits that touched no rule files
}

// NewWatcher creates a change watcher for the given repository. The
// watcher polls at the specified interval and bounds each Git operation
// with the timeout. The reloadFn callback runs when rule files change.
func NewWatcher(repo *Repository, interval, timeout time.Duration, reloadFn ReloadFunc) *Watcher {
	return &Watcher{
		repo:         repo,
		pollInterval: interval,
		pollTimeout:  timeout,
		debounce:     100 * time.Millisecond,
		reloadFn:     reloadFn,
		stopCh:       make(chan struct{}),
		logger:       slog.Default(),
		metrics:      &WatcherMetrics{},
	}
}

// SetLogger sets a custom logger for the watcher.
func (w *Watcher) SetLogger(logger *slog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
}

// SetDebounceInterval overrides the quiet period applied before a
// detected change triggers a reload.
func (w *Watcher) SetDebounceInterval(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d > 0 {
		w.debounce = d
	}
}

// Start begins watching the repository. It records the current commit
// as the last known good state and polls for changes in a background
// goroutine until the context is cancelled or Stop is called. Returns
// an error if the watcher is already running or the initial commit
// cannot be read.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}

	commit, err := w.repo.CurrentCommit()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to get initial commit: %w", err)
	}
	w.lastCommitSHA = commit.SHA
	w.running = true
	w.mu.Unlock()

	w.logger.Info("git watcher started",
		"poll_interval", w.pollInterval,
		"initial_commit", shortSHA(commit.SHA))

	go w.pollLoop(ctx)

	return nil
}

// Stop gracefully stops the watcher.
// Returns an error if the watcher is not running.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return fmt.Errorf("watcher not running")
	}

	w.logger.Info("stopping git watcher")
	close(w.stopCh)
	w.running = false

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	return nil
}

// IsRunning reports whether the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// pollLoop runs the change detection loop until stopped.
func (w *Watcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("git watcher stopped by context cancellation")
			return
		case <-w.stopCh:
			w.logger.Info("git watcher stopped by Stop()")
			return
		case <-ticker.C:
			if err := w.checkForChanges(ctx); err != nil {
				w.logger.Error("error checking for changes", "error", err)
			}
		}
	}
}

// checkForChanges pulls the remote and schedules a reload when rule
// files changed. Commits touching only non-rule files advance the
// tracked SHA without reloading.
func (w *Watcher) checkForChanges(ctx context.Context) error {
	w.mu.Lock()
	w.metrics.PollCount++
	w.mu.Unlock()

	pullCtx, cancel := context.WithTimeout(ctx, w.pollTimeout)
	defer cancel()

	result, err := w.repo.Pull(pullCtx)
	if err != nil {
		return fmt.Errorf("failed to pull: %w", err)
	}

	if !result.HadChanges {
		return nil
	}

	w.logger.Info("detected upstream changes",
		"from_sha", shortSHA(result.FromSHA),
		"to_sha", shortSHA(result.ToSHA),
		"changed_files", len(result.ChangedFiles))

	if !hasRuleFileChanges(result.ChangedFiles) {
		w.mu.Lock()
		w.metrics.SkippedPolls++
		// Advance anyway so the same commit is not re-examined on
		// every poll.
		w.lastCommitSHA = result.ToSHA
		w.mu.Unlock()
		w.logger.Info("no rule files changed, skipping reload",
			"changed_files", result.ChangedFiles)
		return nil
	}

	w.debounceReload(ctx, result.ToSHA)

	return nil
}

// hasRuleFileChanges reports whether any changed path is a rule file.
func hasRuleFileChanges(files []string) bool {
	for _, file := range files {
		ext := filepath.Ext(file)
		if ext == ".yaml" || ext == ".yml" {
			return true
		}
	}
	return false
}

// debounceReload arms the reload timer, replacing any pending one so
// that a burst of commits produces a single reload.
func (w *Watcher) debounceReload(ctx context.Context, newSHA string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		if err := w.performReload(ctx, newSHA); err != nil {
			w.logger.Error("rule reload failed", "error", err)
		}
	})
}

// performReload invokes the reload callback and rolls back to the last
// good commit when it fails.
func (w *Watcher) performReload(ctx context.Context, newSHA string) error {
	start := time.Now()
	defer func() {
		w.mu.Lock()
		w.metrics.LastReloadDur = time.Since(start)
		w.metrics.LastReloadTime = time.Now()
		w.mu.Unlock()
	}()

	w.logger.Info("reloading rules from git", "commit_sha", shortSHA(newSHA))

	rulePath := w.repo.RulePath()

	if err := w.reloadFn(rulePath); err != nil {
		w.mu.Lock()
		w.metrics.FailedReloads++
		lastGood := w.lastCommitSHA
		w.mu.Unlock()

		w.logger.Error("rule validation failed, attempting rollback",
			"error", err,
			"current_sha", shortSHA(newSHA),
			"rollback_to", shortSHA(lastGood))

		if rollbackErr := w.rollbackToPrevious(ctx, lastGood); rollbackErr != nil {
			w.logger.Error("rollback failed",
				"error", rollbackErr,
				"target_sha", shortSHA(lastGood))
			return fmt.Errorf("validation failed and rollback failed: %w (rollback: %v)", err, rollbackErr)
		}

		w.logger.Info("rolled back to previous commit", "sha", shortSHA(lastGood))
		return fmt.Errorf("rule validation failed: %w", err)
	}

	w.mu.Lock()
	oldSHA := w.lastCommitSHA
	w.lastCommitSHA = newSHA
	w.metrics.SuccessfulReloads++
	dur := w.metrics.LastReloadDur
	w.mu.Unlock()

	w.logger.Info("rules reloaded from git",
		"from_sha", shortSHA(oldSHA),
		"to_sha", shortSHA(newSHA),
		"duration", dur)

	return nil
}

// rollbackToPrevious reverts the checkout to the given commit and
// reloads rules from it.
func (w *Watcher) rollbackToPrevious(ctx context.Context, sha string) error {
	if err := w.repo.Rollback(ctx, sha); err != nil {
		return fmt.Errorf("failed to rollback repository: %w", err)
	}

	if err := w.reloadFn(w.repo.RulePath()); err != nil {
		return fmt.Errorf("failed to reload rules after rollback: %w", err)
	}

	return nil
}

// ForceCheck immediately checks for changes without waiting for the
// next poll tick. Useful for CLI commands that trigger a sync.
func (w *Watcher) ForceCheck(ctx context.Context) error {
	w.mu.RLock()
	if !w.running {
		w.mu.RUnlock()
		return fmt.Errorf("watcher not running")
	}
	w.mu.RUnlock()

	w.logger.Info("force checking for rule changes")
	return w.checkForChanges(ctx)
}

// LastCommitSHA returns the commit rules were last successfully loaded
// from.
func (w *Watcher) LastCommitSHA() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastCommitSHA
}

// Metrics returns a copy of the current watcher metrics.
func (w *Watcher) Metrics() WatcherMetrics {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return *w.metrics
}

// shortSHA abbreviates a commit SHA for log output.
func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
