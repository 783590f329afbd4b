package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for harvester.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Resumable listing and detail page crawler",
		Long: `harvester crawls a single site in two phases.

"harvester list" walks the listing pages and queues every new detail URL.
"harvester detail" fetches queued detail pages in small batches and stores
their content. Both phases persist their progress in a local SQLite database,
so they can be stopped and restarted at any time.

Settings are read from .env, the environment and the .harvester.yaml site file.
Run "harvester init" to create a commented site file.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Site file path (default: ./.harvester.yaml, $XDG_CONFIG_HOME/harvester/site.yaml, ~/.harvester.yaml)")

	// Add subcommands
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewDetailCmd())
	cmd.AddCommand(NewRequeueCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
