// Package main is the entry point for the jokes API.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (internal/config)
//  2. Create dependencies (logger, tracing, database)
//  3. Hand control to internal/server, or run a one-off maintenance command
//
// COMMANDS:
//
//	jokes-api serve          run the HTTP API (default)
//	jokes-api migrate        apply pending schema migrations and exit
//	jokes-api create-admin   create an admin account, or promote and reset an existing one
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/jokes-api/internal/auth"
	"github.com/sakif/jokes-api/internal/config"
	sqliteRepo "github.com/sakif/jokes-api/internal/repository/sqlite"
	"github.com/sakif/jokes-api/internal/server"
	"github.com/sakif/jokes-api/internal/service"
	"github.com/sakif/jokes-api/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	cmd := &cobra.Command{
		Use:           "jokes-api",
		Short:         "HTTP API for sharing jokes",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newCreateAdminCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(ctx)
			if err != nil {
				return err
			}

			if cfg.UsingDefaultSecret() {
				logger.Warn("JWT_SECRET not set, using the built-in secret for this environment",
					slog.String("env", cfg.Env))
			}
			if !cfg.GoogleEnabled() {
				logger.Info("Google sign-in disabled: GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set")
			}

			shutdownTracing, err := telemetry.Init(ctx, server.AppName, version, cfg.OTLPEndpoint)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					logger.Error("tracing shutdown failed", slog.String("error", err.Error()))
				}
			}()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}

			// Start blocks until ctx is cancelled by SIGINT/SIGTERM.
			return srv.Start(ctx)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(ctx)
			if err != nil {
				return err
			}

			db, err := sqliteRepo.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := db.Migrate(ctx)
			if err != nil {
				return err
			}
			logger.Info("database migrated", slog.String("database", cfg.DBPath), slog.Int64("version", v))
			return nil
		},
	}
}

func newCreateAdminCommand() *cobra.Command {
	var (
		email       string
		password    string
		displayName string
	)

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote an existing one and reset its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := setup(ctx)
			if err != nil {
				return err
			}

			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if password == "" {
				return errors.New("a password is required: pass --password or set ADMIN_PASSWORD")
			}

			db, err := sqliteRepo.New(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
			if err != nil {
				return err
			}
			users := service.NewUserService(db, tokens, auth.NewPasswordService(), logger)

			user, created, err := users.EnsureAdmin(ctx, email, password, displayName)
			if err != nil {
				return err
			}

			action := "updated"
			if created {
				action = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Admin user %s: %s (%s)\n", action, user.Email, user.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "admin@example.com", "Admin email address")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (defaults to $ADMIN_PASSWORD)")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name for a new account (default \"Admin\")")
	return cmd
}

// setup loads the configuration, builds the process logger and makes sure
// the database directory exists.
func setup(ctx context.Context) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.Config{}, nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	return cfg, logger, nil
}

// newLogger builds the slog logger: human-readable text by default, JSON
// when LOG_FORMAT=json (for log shippers).
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With(slog.String("app", server.AppName)), nil
}
