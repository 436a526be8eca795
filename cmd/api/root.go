package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arklim/social-platform-login/internal/infra/app"
	"github.com/arklim/social-platform-login/internal/infra/config"
	"github.com/arklim/social-platform-login/internal/infra/database"
	"github.com/arklim/social-platform-login/internal/infra/logger"
)

// NewRootCmd creates the root command. Without a subcommand it serves the login API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "login-gateway",
		Short:        "Login, registration and password reset endpoint",
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log, err := logger.New(cfg.App.Env, logger.WithLevel(cfg.App.LogLevel), logger.WithService(cfg.App.Name))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			pool, err := database.NewPostgresPool(cmd.Context(), cfg.Postgres, log)
			if err != nil {
				return fmt.Errorf("init postgres: %w", err)
			}
			defer pool.Close()

			return database.Migrate(cmd.Context(), pool, log)
		},
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	return application.Run(ctx)
}
