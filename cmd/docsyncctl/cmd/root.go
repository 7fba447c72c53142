package cmd

import (
	"context"
	"fmt"
	"os"

	"docsync/internal/app"
	"docsync/internal/config"
	"docsync/internal/features/reconcile"
	"docsync/internal/features/source"
	"docsync/internal/features/task"
	"docsync/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var verbose bool

// services holds what the commands need from the container.
type services struct {
	Config    *config.Config
	Logger    *zap.Logger
	Reconcile reconcile.ReconcileService
	Tracker   *task.Tracker
	Sources   source.SourceService
}

var rootCmd = &cobra.Command{
	Use:   "docsyncctl",
	Short: "Operate the document sync engine from the command line",
	Long: `docsyncctl runs the same reconcile, verify, task and pull operations
the server exposes, against the store and remotes configured in the
environment (or a .env file).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// withServices starts the container, runs fn and stops the container again.
func withServices(ctx context.Context, fn func(context.Context, *services) error) error {
	var s services
	fxApp := fx.New(
		app.Core,
		fx.Provide(
			config.LoadConfig,
			func() (*zap.Logger, error) { return logger.NewConsoleLogger(verbose) },
			func() task.Notifier { return nil },
		),
		fx.NopLogger,
		fx.Populate(&s.Config, &s.Logger, &s.Reconcile, &s.Tracker, &s.Sources),
	)
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
		defer cancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			s.Logger.Warn("Shutdown failed", zap.Error(err))
		}
		s.Logger.Sync()
	}()

	return fn(ctx, &s)
}
