package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
)

// defaultConfigPath is consulted when --config is not given. A missing
// default file is not an error; the engine runs on built-in defaults.
const defaultConfigPath = "ganymede.yaml"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - policy decision engine for delivery pipelines",
	Long: `Ganymede is a policy decision engine that governs delivery pipelines.

It evaluates every pipeline event against a declarative rule set and
answers with an admit or deny decision:
  - Stage transitions gated on checks, review quorum, and owner approval
  - Ephemeral environments with TTL, heartbeat, and concurrency quotas
  - Token-bucket rate limits on gated actions
  - A hash-chained decision log for audit queries and export`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ganymede.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// initConfig resolves and loads the configuration. An explicit --config
// must load; the default path is optional and its absence falls back to
// the built-in defaults.
func initConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			cfg := config.DefaultConfig()
			config.SetConfig(cfg)
			return cfg, nil
		}
		path = defaultConfigPath
	}

	if err := config.Initialize(path); err != nil {
		return nil, cli.NewConfigError(path, err)
	}
	return config.GetConfig(), nil
}
