package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/rules"
	"mercator-hq/ganymede/pkg/rules/gitsource"
	"mercator-hq/ganymede/pkg/rules/parse"
)

// Manager coordinates rule loading, validation, publication, and hot
// reload. It owns the registry holding the active rule set and, in git
// mode, the repository clone and its poll watcher.
//
// A load that fails at any point publishes nothing: evaluation
// continues against the previously active rule set.
type Manager struct {
	config   *config.RulesConfig
	loader   *Loader
	registry *Registry
	parser   *parse.Parser
	logger   *slog.Logger

	gitRepo    *gitsource.Repository
	gitWatcher *gitsource.Watcher

	mu            sync.RWMutex
	lastLoadTime  time.Time
	lastLoadError error

	watchMu     sync.Mutex
	watchCtx    context.Context
	watchCancel context.CancelFunc
}

// NewManager creates a rule manager for the configured source. In git
// mode the repository is cloned immediately so the first Load reads
// from a populated checkout.
func NewManager(cfg *config.RulesConfig, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	loaderConfig := DefaultLoaderConfig()
	if cfg.MaxFileSize > 0 {
		loaderConfig.MaxFileSize = cfg.MaxFileSize
	}

	parser := parse.NewParser().WithMaxFileSize(loaderConfig.MaxFileSize)
	loader := NewLoader(loaderConfig, parser)

	m := &Manager{
		config:   cfg,
		loader:   loader,
		registry: NewRegistry(),
		parser:   parser,
		logger:   logger,
	}

	if cfg.Mode == "git" {
		logger.Info("initializing git rule source",
			"repository", cfg.Git.Repository,
			"branch", cfg.Git.Branch,
		)

		gitRepo, err := gitsource.NewRepository(&cfg.Git)
		if err != nil {
			return nil, fmt.Errorf("failed to create git repository: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Git.Poll.Timeout)
		defer cancel()

		if err := gitRepo.Clone(ctx); err != nil {
			return nil, fmt.Errorf("failed to clone rule repository: %w", err)
		}

		m.gitRepo = gitRepo

		if cfg.Watch {
			gitWatcher := gitsource.NewWatcher(
				gitRepo,
				cfg.Git.Poll.Interval,
				cfg.Git.Poll.Timeout,
				m.reloadFromGit,
			)
			gitWatcher.SetLogger(logger)
			gitWatcher.SetDebounceInterval(cfg.DebounceInterval)

			m.gitWatcher = gitWatcher
		}
	}

	return m, nil
}

// Load loads all rules from the configured source and publishes them as
// the active rule set.
func (m *Manager) Load() error {
	return m.loadAndPublish("load")
}

// Reload reloads all rules from the configured source. On failure the
// previously published rule set stays active.
func (m *Manager) Reload() error {
	return m.loadAndPublish("reload")
}

// loadAndPublish parses the source, builds a rule set, and publishes it
// atomically. Nothing is published unless every step succeeds.
func (m *Manager) loadAndPublish(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	m.logger.Info("loading rules",
		"op", op,
		"mode", m.config.Mode,
		"path", m.rulePath(),
	)

	docs, err := m.loadFromSource()
	if err != nil {
		m.lastLoadError = err
		m.logger.Error("rule load failed, keeping previous version active",
			"op", op,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	set, err := buildRuleSet(docs)
	if err != nil {
		m.lastLoadError = err
		m.logger.Error("rule set construction failed, keeping previous version active",
			"op", op,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}

	if err := m.registry.Publish(set); err != nil {
		m.lastLoadError = err
		return err
	}

	m.lastLoadTime = time.Now()
	m.lastLoadError = nil

	m.logger.Info("rules loaded",
		"op", op,
		"files", len(docs),
		"rules", set.Len(),
		"version", set.Version(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// ValidateDryRun loads and validates rules from the source without
// publishing them. Used by the CLI to lint rule files before deploy.
func (m *Manager) ValidateDryRun() error {
	m.logger.Info("dry-run validation", "path", m.rulePath())

	docs, err := m.loadFromSource()
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	set, err := buildRuleSet(docs)
	if err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}

	m.logger.Info("dry-run validation passed",
		"files", len(docs),
		"rules", set.Len(),
	)

	return nil
}

// Publish replaces the active rule set with one constructed elsewhere,
// such as a set submitted through the API.
func (m *Manager) Publish(set *rules.RuleSet) error {
	if err := m.registry.Publish(set); err != nil {
		return err
	}

	m.logger.Info("rule set published",
		"rules", set.Len(),
		"version", set.Version(),
	)

	return nil
}

// Active returns the currently published rule set.
func (m *Manager) Active() *rules.RuleSet {
	return m.registry.Active()
}

// Version returns the version of the active rule set.
func (m *Manager) Version() string {
	return m.registry.Version()
}

// Registry returns the underlying registry, for components that only
// need read access to the active rule set.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// LastLoadTime returns the timestamp of the last successful load.
func (m *Manager) LastLoadTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLoadTime
}

// LastLoadError returns the error from the last load attempt, or nil.
func (m *Manager) LastLoadError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLoadError
}

// Watch blocks watching the rule source for changes until the context
// is cancelled. File mode watches the rule directory through fsnotify;
// git mode polls the remote through the repository watcher.
func (m *Manager) Watch(ctx context.Context) error {
	if m.config.Mode == "git" {
		if m.gitWatcher == nil {
			return fmt.Errorf("rule watching is not enabled in configuration")
		}
	} else if !m.config.Watch {
		return fmt.Errorf("rule watching is not enabled in configuration")
	}

	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchMu.Unlock()
		return fmt.Errorf("watch already started")
	}
	m.watchCtx, m.watchCancel = context.WithCancel(ctx)
	m.watchMu.Unlock()

	if m.config.Mode == "git" {
		m.logger.Info("starting git rule watcher",
			"repository", m.config.Git.Repository,
			"branch", m.config.Git.Branch,
			"poll_interval", m.config.Git.Poll.Interval,
		)

		if err := m.gitWatcher.Start(m.watchCtx); err != nil {
			return fmt.Errorf("failed to start git watcher: %w", err)
		}

		<-m.watchCtx.Done()

		if m.gitWatcher.IsRunning() {
			return m.gitWatcher.Stop()
		}
		return nil
	}

	watchConfig := DefaultFileWatcherConfig()
	watchConfig.Path = m.config.Path
	if m.config.DebounceInterval > 0 {
		watchConfig.DebounceInterval = m.config.DebounceInterval
	}

	watcher, err := NewFileWatcher(watchConfig, m.logger)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	go func() {
		if err := watcher.Watch(m.watchCtx, m.Reload); err != nil {
			m.logger.Error("file watcher error", "error", err)
		}
	}()

	<-m.watchCtx.Done()

	if err := watcher.Stop(); err != nil {
		m.logger.Error("failed to stop file watcher", "error", err)
		return err
	}

	return nil
}

// Close stops watching and releases resources.
func (m *Manager) Close() error {
	m.watchMu.Lock()
	if m.watchCancel != nil {
		m.watchCancel()
		m.watchCancel = nil
	}
	m.watchMu.Unlock()

	if m.gitWatcher != nil && m.gitWatcher.IsRunning() {
		if err := m.gitWatcher.Stop(); err != nil {
			m.logger.Error("failed to stop git watcher", "error", err)
		}
	}

	m.logger.Info("rule manager closed")
	return nil
}

// CurrentCommit returns the commit the git checkout is at. Errors when
// the manager is not in git mode.
func (m *Manager) CurrentCommit() (*gitsource.CommitInfo, error) {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return nil, fmt.Errorf("not in git mode")
	}
	return m.gitRepo.CurrentCommit()
}

// CommitHistory returns recent commits of the rule repository, newest
// first. Errors when the manager is not in git mode.
func (m *Manager) CommitHistory(limit int) ([]*gitsource.CommitInfo, error) {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return nil, fmt.Errorf("not in git mode")
	}
	return m.gitRepo.CommitHistory(limit)
}

// RollbackToCommit checks out a specific commit and reloads rules from
// it. The rolled-back rules must still parse and validate; otherwise
// the previously active set stays published.
func (m *Manager) RollbackToCommit(ctx context.Context, commitSHA string) error {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return fmt.Errorf("not in git mode")
	}

	m.logger.Info("rolling back rules", "commit_sha", commitSHA)

	if err := m.gitRepo.Rollback(ctx, commitSHA); err != nil {
		return fmt.Errorf("failed to rollback rule repository: %w", err)
	}

	if err := m.Reload(); err != nil {
		return fmt.Errorf("failed to load rules after rollback: %w", err)
	}

	return nil
}

// ForceSync pulls the remote immediately and reloads when rule files
// changed. A failed reload rolls the checkout back to the commit it was
// on before the pull.
func (m *Manager) ForceSync(ctx context.Context) error {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return fmt.Errorf("not in git mode")
	}

	m.logger.Info("forcing git sync")

	result, err := m.gitRepo.Pull(ctx)
	if err != nil {
		return fmt.Errorf("failed to pull changes: %w", err)
	}

	if !result.HadChanges {
		m.logger.Info("no upstream changes")
		return nil
	}

	m.logger.Info("upstream changes detected, reloading rules",
		"from_sha", result.FromSHA,
		"to_sha", result.ToSHA,
		"changed_files", len(result.ChangedFiles),
	)

	if err := m.Reload(); err != nil {
		m.logger.Error("reload after sync failed, rolling back",
			"error", err,
			"target_sha", result.FromSHA,
		)

		if rollbackErr := m.gitRepo.Rollback(ctx, result.FromSHA); rollbackErr != nil {
			return fmt.Errorf("failed to reload rules: %w (rollback also failed: %v)", err, rollbackErr)
		}

		return fmt.Errorf("failed to reload rules: %w", err)
	}

	return nil
}

// GitMetrics returns git operation metrics, or the zero value when not
// in git mode.
func (m *Manager) GitMetrics() gitsource.RepositoryMetrics {
	if m.config.Mode != "git" || m.gitRepo == nil {
		return gitsource.RepositoryMetrics{}
	}
	return m.gitRepo.Metrics()
}

// reloadFromGit is the git watcher callback. Returning an error makes
// the watcher roll the checkout back to the last good commit.
func (m *Manager) reloadFromGit(rulePath string) error {
	m.logger.Info("git watcher triggered rule reload", "path", rulePath)
	return m.Reload()
}

// rulePath resolves the directory or file rules are read from.
func (m *Manager) rulePath() string {
	if m.config.Mode == "git" && m.gitRepo != nil {
		return m.gitRepo.RulePath()
	}
	return m.config.Path
}

// loadFromSource reads all rule documents from the configured path.
func (m *Manager) loadFromSource() ([]*parse.Document, error) {
	path := m.rulePath()

	isDir, err := m.loader.IsDirectory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access rule path: %w", err)
	}

	if isDir {
		return m.loader.LoadDirectory(path)
	}

	doc, err := m.loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*parse.Document{doc}, nil
}

// buildRuleSet merges documents into a single rule set. Document order
// is the loader's lexical file order, and rules keep their in-file
// order within it, so the merged definition order is stable across
// loads.
func buildRuleSet(docs []*parse.Document) (*rules.RuleSet, error) {
	var all []rules.Rule
	for _, doc := range docs {
		all = append(all, doc.Rules...)
	}

	set, err := rules.NewRuleSet(all)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule set: %w", err)
	}

	return set, nil
}
