// Package gitsource provides Git repository integration for rule
// management.
//
// This package enables GitOps workflows by cloning rule repositories,
// watching for changes, and reloading rule sets when commits are
// pushed. It supports HTTPS and SSH authentication and rolls back to
// the last good commit when a pushed rule set fails validation.
//
// # Basic Usage
//
//	cfg := &config.GitRulesConfig{
//		Repository: "https://github.com/company/rules.git",
//		Branch:     "main",
//		Path:       "rules/",
//	}
//
//	repo, err := gitsource.NewRepository(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := repo.Clone(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// # Change Detection
//
// The watcher polls the repository and triggers reloads when rule
// files change:
//
//	watcher := gitsource.NewWatcher(repo, 30*time.Second, 10*time.Second, reloadFn)
//	watcher.Start(context.Background())
//
// # Authentication
//
// Supported authentication methods:
//   - Token (HTTPS): GitHub, GitLab, Bitbucket tokens
//   - Basic (HTTPS): Username and password
//   - SSH: Public key authentication
//   - None: Public repositories
//
// # Rollback
//
// A rule set that fails to parse or validate never becomes active.
// The watcher reverts the checkout to the previous commit and reloads
// from it, so the engine keeps evaluating against the last good
// version. Manual rollback is also available:
//
//	if err := repo.Rollback(ctx, "a1b2c3d4"); err != nil {
//		log.Fatal(err)
//	}
package gitsource
