package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/engine"
	"mercator-hq/ganymede/pkg/rules/store"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/health"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the decision engine",
	Long: `Start the decision engine and its admin API server.

The engine loads the configured rule set, opens the decision log and
resource registry backends, starts the background schedules (resource
sweeps, stale-run scans, retention pruning), and serves the admin API
on the configured address.

Examples:
  # Start with default config
  ganymede run

  # Start with a custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override the listen address
  ganymede run --listen 0.0.0.0:8085

  # Validate config and rules without starting
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and rules without starting")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(&cfg.Telemetry.Logging, os.Stdout)
	if err != nil {
		return cli.NewConfigError("", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		return dryRun(cfg)
	}

	printBanner(cfg)

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	ctx := cli.SetupSignalHandler()

	opts := &engine.Options{Logger: logger}
	if collector != nil {
		opts.DecisionObserver = collector.ObserveDecision
		opts.JobObserver = collector.ObserveJob
	}

	eng, err := engine.New(ctx, cfg, opts)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Error("engine close failed", "error", err)
		}
	}()

	if err := eng.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	set := eng.ActiveRuleSet()
	fmt.Printf("rule set %s active (%d rules)\n", set.Version(), set.Len())

	srv := server.NewServer(cfg, eng, &server.Options{
		Logger:    logger,
		Collector: collector,
		BuildInfo: health.BuildInfo{
			Version:   Version,
			Commit:    GitCommit,
			BuildTime: BuildDate,
		},
	})

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("server stopped")
	return nil
}

// dryRun validates the configuration and, when one is configured, the
// rules directory, then exits without starting anything.
func dryRun(cfg *config.Config) error {
	fmt.Println("configuration valid")

	if cfg.Rules.Mode == "file" && cfg.Rules.Path != "" {
		loader := store.NewLoader(&store.LoaderConfig{
			MaxFileSize:       cfg.Rules.MaxFileSize,
			AllowedExtensions: []string{".yaml", ".yml"},
			SkipHidden:        true,
			FollowSymlinks:    true,
		}, nil)
		docs, err := loader.LoadDirectory(cfg.Rules.Path)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("rules directory %s: %w", cfg.Rules.Path, err))
		}
		total := 0
		for _, doc := range docs {
			total += len(doc.Rules)
		}
		fmt.Printf("rules valid (%d rules in %d files)\n", total, len(docs))
	}

	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Ganymede %s\n", Version)
	if cfgFile != "" {
		fmt.Printf("configuration: %s\n", cfgFile)
	} else {
		fmt.Println("configuration: defaults")
	}

	switch cfg.Rules.Mode {
	case "git":
		fmt.Printf("rules: git %s (branch %s)\n", cfg.Rules.Git.Repository, cfg.Rules.Git.Branch)
	default:
		if cfg.Rules.Path != "" {
			fmt.Printf("rules: %s (watch %v)\n", cfg.Rules.Path, cfg.Rules.Watch)
		} else {
			fmt.Println("rules: none configured, starting with an empty set")
		}
	}

	fmt.Printf("decision log: %s\n", backendName(cfg.Audit.Backend))
	fmt.Printf("registry: %s\n", backendName(cfg.Registry.Storage.Backend))
}

func backendName(name string) string {
	if name == "" {
		return "memory"
	}
	return name
}
