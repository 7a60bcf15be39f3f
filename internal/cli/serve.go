package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"distribution-admin/internal/catalog"
	"distribution-admin/internal/engine"
	"distribution-admin/internal/instrument"
	"distribution-admin/internal/logging"
	"distribution-admin/internal/repository"
	"distribution-admin/internal/validate"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate the store and serve the HTTP API (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log, os.Stderr)
	log.Info("config loaded",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"import_policy", cfg.Import.Policy,
	)

	validator, err := validate.New(cfg.Rules)
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer repo.Close()
	log.Info("store ready", "driver", cfg.Database.Driver)

	svc := catalog.New(repo, validator, cfg.Import.Policy, log)
	app := engine.NewApp(engine.NewHandler(svc), engine.Options{
		BodyLimit:    cfg.Server.BodyLimit,
		Logger:       log,
		AccessLog:    os.Stdout,
		Instrumenter: instrument.NewLogInstrumenter(log),
	})

	errc := make(chan error, 1)
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		log.Info("starting server", "addr", addr)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
