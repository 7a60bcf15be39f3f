package cli

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"distribution-admin/internal/config"
	"distribution-admin/internal/logging"
	"distribution-admin/internal/repository"
	"distribution-admin/internal/store"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE:  runMigrate,
	}
	cmd.Flags().Bool("status", false, "list applied and pending migrations without applying them")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log, os.Stderr)
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	if cfg.Database.Driver == config.DriverFile {
		if _, err := repository.OpenDocument(cfg.Database.DSN()); err != nil {
			return err
		}
		fmt.Fprintf(out, "document store ready at %s (no migrations)\n", cfg.Database.DSN())
		return nil
	}

	s, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	var src fs.FS
	if cfg.Database.MigrationsDir != "" {
		src = os.DirFS(cfg.Database.MigrationsDir)
	}
	m := store.NewMigrator(s, src, log)

	if status, _ := cmd.Flags().GetBool("status"); status {
		applied, pending, err := m.Status(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintf(out, "applied  %s\n", name)
		}
		for _, name := range pending {
			fmt.Fprintf(out, "pending  %s\n", name)
		}
		return nil
	}

	applied, err := m.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "schema is up to date")
		return nil
	}
	for _, name := range applied {
		fmt.Fprintf(out, "applied  %s\n", name)
	}
	return nil
}
