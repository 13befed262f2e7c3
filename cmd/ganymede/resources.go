package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/registry"
)

var resourcesFlags struct {
	states []string
	format string
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Inspect the resource registry",
	Long: `Inspect the resource registry.

The registry tracks every ephemeral resource the engine has admitted:
build VMs, preview environments, and whatever else the rules govern.
These commands read the configured storage backend directly.

Examples:
  # Everything the registry knows about
  ganymede resources list

  # Only live resources
  ganymede resources list --state provisioning --state active`,
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered resources",
	RunE:  listResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.AddCommand(resourcesListCmd)

	resourcesListCmd.Flags().StringArrayVar(&resourcesFlags.states, "state", nil, "filter by state, repeatable (provisioning, active, expiring, destroyed)")
	resourcesListCmd.Flags().StringVar(&resourcesFlags.format, "format", "text", "output format (text, json)")
}

func listResources(cmd *cobra.Command, args []string) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}

	states := make([]registry.ResourceState, 0, len(resourcesFlags.states))
	for _, s := range resourcesFlags.states {
		state := registry.ResourceState(s)
		if !state.Valid() {
			return fmt.Errorf("invalid state %q (expected: provisioning, active, expiring, destroyed)", s)
		}
		states = append(states, state)
	}

	store, err := openRegistryStorage(&cfg.Registry.Storage)
	if err != nil {
		return cli.NewConfigError("", err)
	}
	defer store.Close()

	resources, err := store.List(cmd.Context(), states...)
	if err != nil {
		return cli.NewCommandError("resources list", err)
	}

	if resourcesFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		return formatter.FormatTo(os.Stdout, resources)
	}

	fmt.Printf("Total resources: %d\n", len(resources))
	if len(resources) == 0 {
		return nil
	}
	fmt.Println()

	table := cli.NewTable(os.Stdout)
	table.Header("ID", "KIND", "STATE", "CREATED", "LAST ACTIVITY")
	for _, res := range resources {
		table.Row(
			res.ID,
			res.Kind,
			string(res.State),
			res.CreatedAt.Format(time.RFC3339),
			res.LastActivityAt.Format(time.RFC3339),
		)
	}
	return table.Flush()
}
