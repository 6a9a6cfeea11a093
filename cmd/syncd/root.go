package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pocketledger/syncengine/internal/handlers"
)

// rootOptions holds global flags for all commands
type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "syncd",
		Short: "pocketledger offline-first sync engine",
		Long: `Runs the pocketledger sync engine next to a local SQLite store.

Without a subcommand syncd serves the local control API and keeps the
store in sync with the backend until interrupted.`,
		Version:       handlers.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				return os.Setenv("CONFIG_PATH", opts.configPath)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default config.json, or $CONFIG_PATH)")

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newClaimCommand())
	cmd.AddCommand(newResetCommand())
	cmd.AddCommand(newStatusCommand())

	return cmd
}
