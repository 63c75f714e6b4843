package main

import (
	"fmt"

	"github.com/brizzai/session-broker/internal/auth"
	"github.com/brizzai/session-broker/internal/auth/handlers"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/brizzai/session-broker/internal/entropy"
	"github.com/brizzai/session-broker/internal/kvstore"
	"github.com/brizzai/session-broker/internal/logger"
	"github.com/brizzai/session-broker/internal/metrics"
	"github.com/brizzai/session-broker/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the session broker HTTP server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// runServe loads configuration and runs the application until it receives
// SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitLogger(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting session broker",
		zap.String("version", config.GetVersionInfo()),
		zap.String("environment", cfg.Environment),
	)

	app := fx.New(appOptions(cfg)...)
	app.Run()
	return app.Err()
}

func appOptions(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.Supply(cfg),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.GetLogger().Named("fx")}
		}),
		kvstore.Module,
		entropy.Module,
		metrics.Module,
		auth.Module,
		handlers.Module,
		server.Module,
	}
}
