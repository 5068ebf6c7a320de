package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PratikDhanave/product-importer/internal/app"
	"github.com/PratikDhanave/product-importer/internal/config"
	"github.com/PratikDhanave/product-importer/internal/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "importer",
		Short:         "Product catalog service with bulk CSV import",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd(), newImportCmd())
	return cmd
}

func execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logging.New("error", false).WithError(err).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the application graph.
func bootstrap(ctx context.Context, workers int) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.LogLevel, cfg.Production())
	return app.New(ctx, cfg, log, workers)
}
