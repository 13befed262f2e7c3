// Package store provides rule set management: loading rule files,
// publishing them atomically, and hot-reloading on change.
//
// The package supports single-file and directory layouts, validation on
// load, and two change sources: a file system watcher for local rule
// directories and a polling Git watcher for GitOps deployments.
//
// # Core Components
//
// Manager orchestrates loading, validation, publication, and watching.
// It is the one component the rest of the engine talks to.
//
// Loader handles file system discovery and parsing. Directory loads are
// all or nothing: one broken file fails the whole load, because the
// files merge into a single rule set and a partial merge would change
// decision outcomes.
//
// Registry holds the active rule set behind a single atomic reference.
// Evaluations that picked up the old set finish against it; new
// evaluations see the new one.
//
// FileWatcher monitors the rule directory through fsnotify and debounces
// rapid event bursts into one reload.
//
// # Basic Usage
//
//	cfg := &config.RulesConfig{
//	    Mode: "file",
//	    Path: "rules/",
//	}
//
//	mgr, err := store.NewManager(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := mgr.Load(); err != nil {
//	    log.Fatal(err)
//	}
//
//	active := mgr.Active()
//	fmt.Printf("loaded %d rules, version %s\n", active.Len(), active.Version())
//
// # Hot Reload
//
//	go func() {
//	    if err := mgr.Watch(ctx); err != nil {
//	        log.Printf("watcher error: %v", err)
//	    }
//	}()
//
// A reload that fails to parse or validate publishes nothing. The
// manager records the error, the watcher logs it, and in git mode the
// checkout rolls back to the last good commit. Decisions keep flowing
// from the previous rule set throughout.
//
// # Rule Organization
//
// Rules can live in one file or be split across a directory:
//
//	rules/
//	├── pipeline.yaml
//	├── quotas.yaml
//	└── rate-limits.yaml
//
// Files are visited in lexical order and rules keep their in-file
// order, so the definition order of the merged set, which breaks
// priority ties, is stable across loads.
package store
