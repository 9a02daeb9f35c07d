package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/credauth/internal/api"
	"github.com/mcoot/credauth/internal/config"
	"github.com/mcoot/credauth/internal/factory"
	"github.com/mcoot/credauth/internal/storage/sqldb"
)

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "credauth-server",
		Short:        "Credential authentication server",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: search for credauth.yaml)")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newConfigCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}

	flags := cmd.Flags()
	flags.String("env", "", "Environment (dev or prod)")
	flags.String("host", "", "Listen host")
	flags.Int("port", 0, "Listen port")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("log-format", "", "Log format (json or text)")
	flags.String("accounts", "", "Account storage (memory, redis, sql)")
	flags.String("sessions", "", "Session storage (memory, redis)")
	flags.String("database", "", "SQL driver (sqlite, postgres, mysql)")
	flags.String("database-dsn", "", "SQL connection string")
	flags.String("redis-url", "", "Redis URL")
	return cmd
}

func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd, configFile)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := cfg.Logger(os.Stdout)
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := factory.New(ctx, cfg.FactoryConfig(logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		Controller:     app.AuthController,
		Sessions:       app.SessionManager,
		Cookies:        cfg.Cookies(),
		Gatherer:       app.Registry,
		HealthCheck:    app.HealthCheck,
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	server := api.NewServer(router, cfg.APIServerConfig(), logger)
	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		return err
	}

	go app.SessionManager.RunSweeper(ctx, cfg.Session.SweepInterval)

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("env", cfg.Env),
		slog.String("accounts", cfg.Storage.Accounts),
		slog.String("sessions", cfg.Storage.Sessions),
	)

	// Returns after SIGINT/SIGTERM once in-flight requests have drained
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Only the database settings matter here
			cfg, err := config.Load(cmd, configFile)
			if err != nil {
				return err
			}
			logger, err := cfg.Logger(os.Stdout)
			if err != nil {
				return err
			}

			dbCfg := cfg.Database
			dbCfg.AutoMigrate = false
			db, err := sqldb.Open(cmd.Context(), dbCfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := sqldb.Migrate(cmd.Context(), db.DB, dbCfg.Driver); err != nil {
				return err
			}
			logger.Info("migrations applied", slog.String("driver", dbCfg.Driver))
			return nil
		},
	}
	cmd.Flags().String("database", "", "SQL driver (sqlite, postgres, mysql)")
	cmd.Flags().String("database-dsn", "", "SQL connection string")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			} else if dir, err := os.UserConfigDir(); err == nil {
				path = filepath.Join(dir, "credauth", path)
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefaultFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
