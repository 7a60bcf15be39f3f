// Package cli wires configuration, storage and the HTTP server into the
// distribution-admin command.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"distribution-admin/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "distribution-admin",
		Short:         "Administration service for report packages and mail distributions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().String("config", "", "config file (default app.yaml in . or ./config)")

	root.AddCommand(newServeCmd(), newMigrateCmd())
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
