package gitsource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"mercator-hq/ganymede/pkg/config"
)

// Repository manages Git operations for a rule repository. It keeps a
// local clone in sync with the configured remote branch and answers
// questions about commits and changed files.
type Repository struct {
	config    *config.GitRulesConfig
	localPath string
	auth      AuthProvider
	repo      *gogit.Repository
	mu        sync.RWMutex
	metrics   *RepositoryMetrics
}

// NewRepository creates a new Git repository manager. The config must be
// non-nil and name a repository and branch. Returns an error if the
// authentication provider cannot be built.
func NewRepository(cfg *config.GitRulesConfig) (*Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}

	auth, err := NewAuthProvider(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	localPath := cfg.Clone.LocalPath
	if localPath == "" {
		localPath = filepath.Join(os.TempDir(), "ganymede-rules")
	}

	return &Repository{
		config:    cfg,
		localPath: localPath,
		auth:      auth,
		metrics:   &RepositoryMetrics{},
	}, nil
}

// Clone initializes the repository by cloning it locally. If a clone
// already exists and CleanOnStart is false, the existing repository is
// opened instead. Returns an error if cloning fails.
func (r *Repository) Clone(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.CloneDuration = time.Since(start)
	}()

	if r.config.Clone.CleanOnStart {
		if err := os.RemoveAll(r.localPath); err != nil {
			return fmt.Errorf("failed to clean existing repository: %w", err)
		}
	}

	// Reuse an existing clone when present.
	gitDir := filepath.Join(r.localPath, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		repo, err := gogit.PlainOpen(r.localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repository: %w", err)
		}
		r.repo = repo
		return nil
	}

	if err := os.MkdirAll(r.localPath, 0755); err != nil {
		return fmt.Errorf("failed to create repository directory: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return fmt.Errorf("failed to get auth: %w", err)
	}

	cloneOpts := &gogit.CloneOptions{
		URL:           r.config.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(r.config.Branch),
		SingleBranch:  r.config.Clone.Depth > 0,
		Depth:         r.config.Clone.Depth,
		Auth:          auth,
	}

	cloneCtx, cancel := context.WithTimeout(ctx, r.config.Poll.Timeout)
	defer cancel()

	repo, err := gogit.PlainCloneContext(cloneCtx, r.localPath, false, cloneOpts)
	if err != nil {
		return fmt.Errorf("failed to clone repository: %w", err)
	}

	r.repo = repo
	return nil
}

// Pull fetches the latest changes from the remote repository. It returns
// a PullResult indicating whether new commits arrived and which files
// changed. Safe for concurrent use.
func (r *Repository) Pull(ctx context.Context) (*PullResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	defer func() {
		r.metrics.PullDuration = time.Since(start)
		r.metrics.LastPullTime = time.Now()
	}()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	fromSHA := ref.Hash().String()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	auth, err := r.auth.GetAuth()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth: %w", err)
	}

	pullOpts := &gogit.PullOptions{
		RemoteName: "origin",
		Auth:       auth,
		Force:      false,
	}

	pullCtx, cancel := context.WithTimeout(ctx, r.config.Poll.Timeout)
	defer cancel()

	err = worktree.PullContext(pullCtx, pullOpts)
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		r.metrics.FailedPulls++
		return nil, fmt.Errorf("failed to pull: %w", err)
	}

	r.metrics.SuccessfulPulls++

	newRef, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get new HEAD: %w", err)
	}
	toSHA := newRef.Hash().String()

	result := &PullResult{
		FromSHA:    fromSHA,
		ToSHA:      toSHA,
		HadChanges: fromSHA != toSHA,
	}

	if result.HadChanges {
		changedFiles, err := r.changedFilesLocked(fromSHA, toSHA)
		if err != nil {
			return nil, fmt.Errorf("failed to get changed files: %w", err)
		}
		result.ChangedFiles = changedFiles
		r.metrics.LastCommitSHA = toSHA
	}

	return result, nil
}

// CurrentCommit returns metadata about the current HEAD commit.
func (r *Repository) CurrentCommit() (*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized, call Clone() first")
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to get commit: %w", err)
	}

	return r.commitInfo(commit), nil
}

// commitInfo converts a go-git commit into a CommitInfo.
func (r *Repository) commitInfo(c *object.Commit) *CommitInfo {
	return &CommitInfo{
		SHA:        c.Hash.String(),
		Author:     c.Author.Name,
		Email:      c.Author.Email,
		Timestamp:  c.Author.When,
		Message:    c.Message,
		Branch:     r.config.Branch,
		Repository: r.config.Repository,
	}
}

// ListRuleFiles returns the full paths of all rule files (.yaml, .yml)
// under the configured path. Hidden files are excluded.
func (r *Repository) ListRuleFiles() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rulePath := filepath.Join(r.localPath, r.config.Path)
	if _, err := os.Stat(rulePath); err != nil {
		return nil, fmt.Errorf("rule path does not exist: %w", err)
	}

	var files []string
	err := filepath.WalkDir(rulePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// The clone's own metadata is never rule content.
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk rule directory: %w", err)
	}

	return files, nil
}

// ChangedFiles returns the files changed between two commits, as paths
// relative to the repository root.
func (r *Repository) ChangedFiles(fromSHA, toSHA string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.changedFilesLocked(fromSHA, toSHA)
}

// changedFilesLocked diffs the trees of two commits. Callers must hold
// the repository lock.
func (r *Repository) changedFilesLocked(fromSHA, toSHA string) ([]string, error) {
	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized")
	}

	fromCommit, err := r.repo.CommitObject(plumbing.NewHash(fromSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get from commit: %w", err)
	}
	toCommit, err := r.repo.CommitObject(plumbing.NewHash(toSHA))
	if err != nil {
		return nil, fmt.Errorf("failed to get to commit: %w", err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get from tree: %w", err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get to tree: %w", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		// Deletions carry only the "from" path.
		if change.To.Name != "" {
			files = append(files, change.To.Name)
		} else if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
	}

	return files, nil
}

// Rollback reverts the working tree to a specific commit SHA. The commit
// must exist in the repository history.
func (r *Repository) Rollback(ctx context.Context, targetSHA string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo == nil {
		return fmt.Errorf("repository not initialized")
	}

	targetHash := plumbing.NewHash(targetSHA)
	if _, err := r.repo.CommitObject(targetHash); err != nil {
		return fmt.Errorf("target commit not found: %w", err)
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := worktree.Checkout(&gogit.CheckoutOptions{Hash: targetHash}); err != nil {
		return fmt.Errorf("failed to checkout commit %s: %w", targetSHA, err)
	}

	return nil
}

// CommitHistory returns up to limit recent commits, newest first.
func (r *Repository) CommitHistory(limit int) ([]*CommitInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("repository not initialized")
	}

	ref, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	iter, err := r.repo.Log(&gogit.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}

	var history []*CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if len(history) >= limit {
			return storer.ErrStop
		}
		history = append(history, r.commitInfo(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}

	return history, nil
}

// Metrics returns a copy of the current repository metrics.
func (r *Repository) Metrics() RepositoryMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.metrics
}

// LocalPath returns the local filesystem path of the clone.
func (r *Repository) LocalPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localPath
}

// RulePath returns the full path to the rule directory within the clone.
func (r *Repository) RulePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filepath.Join(r.localPath, r.config.Path)
}
