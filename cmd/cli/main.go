package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/overlap/cmd/cli/commands"
	"github.com/jakechorley/overlap/internal/config"
	"github.com/jakechorley/overlap/pkg/core/syncer"
	"github.com/jakechorley/overlap/pkg/localdb"
	"github.com/jakechorley/overlap/pkg/localstate"
	"github.com/jakechorley/overlap/pkg/notify"
	"github.com/jakechorley/overlap/pkg/postgres"
	"github.com/jakechorley/overlap/pkg/store"
	"github.com/jakechorley/overlap/pkg/store/jsonbin"
	"github.com/jakechorley/overlap/pkg/store/redisstore"
	"github.com/jakechorley/overlap/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{}
	closers []func()
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "overlap",
		Short: "Overlap - find the dates everyone can make",
		Long:  `A CLI for creating events, collecting who can make which dates and picking the best ones together.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			shutdown()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (selects overlap_config.<env>.yaml and its token)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs on the console")

	// Add all commands
	rootCmd.AddCommand(commands.LoginCmd(app))
	rootCmd.AddCommand(commands.LogoutCmd(app))
	rootCmd.AddCommand(commands.AccountsCmd(app))
	rootCmd.AddCommand(commands.CreateCmd(app))
	rootCmd.AddCommand(commands.OpenCmd(app))
	rootCmd.AddCommand(commands.ShowCmd(app))
	rootCmd.AddCommand(commands.CloseCmd(app))
	rootCmd.AddCommand(commands.DeleteCmd(app))
	rootCmd.AddCommand(commands.JoinCmd(app))
	rootCmd.AddCommand(commands.LeaveCmd(app))
	rootCmd.AddCommand(commands.HistoryCmd(app))
	rootCmd.AddCommand(commands.ToggleCmd(app))
	rootCmd.AddCommand(commands.MonthCmd(app))
	rootCmd.AddCommand(commands.RecurCmd(app))
	rootCmd.AddCommand(commands.ViewMonthCmd(app))
	rootCmd.AddCommand(commands.BestCmd(app))
	rootCmd.AddCommand(commands.WatchCmd(app))
	rootCmd.AddCommand(commands.AskCmd(app))
	rootCmd.AddCommand(commands.ExportICSCmd(app))
	rootCmd.AddCommand(commands.PublishCmd(app))
	rootCmd.AddCommand(commands.InviteCmd(app))
	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		shutdown()
		os.Exit(1)
	}
}

// initApp sets up logger, config, local state, the document store and the
// synchronizer, then reopens the event that was active last time
func initApp() error {
	var err error
	app.Env = env
	app.Ctx = context.Background()

	// Initialize logger
	app.Logger, err = logging.InitLogger(env, logging.Options{Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.Logger.Info("Starting application", zap.String("environment", env))

	// Load configuration
	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.LoadWithEnv(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	// Open device state
	app.Logger.Info("Opening local database", zap.String("path", app.Cfg.LocalDBPath))
	if err := os.MkdirAll(filepath.Dir(app.Cfg.LocalDBPath), 0755); err != nil {
		return fmt.Errorf("failed to create local database directory: %w", err)
	}
	local, err := localdb.Open(app.Cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("failed to open local database: %w", err)
	}
	closers = append(closers, func() { local.Close() })
	app.State = localstate.New(local)

	// Connect the document store
	app.Store, err = openStore(app.Cfg, local)
	if err != nil {
		return err
	}

	app.Session = syncer.New(app.Store, app.Logger,
		syncer.WithNotifier(notify.NewConsole(os.Stdout, app.Logger)),
		syncer.WithForgetter(app.State),
		syncer.WithCoolDown(app.Cfg.WriteCoolDown),
		syncer.WithOnUpdate(app.HandleUpdate),
	)
	closers = append(closers, app.Session.Close)

	app.Logger.Debug("Application initialized successfully")
	app.ResumeActiveEvent()
	return nil
}

// openStore connects the backend chosen by the config
func openStore(cfg *config.Config, local *localdb.DB) (store.DocumentStore, error) {
	backend := cfg.ResolveBackend()
	app.Logger.Info("Connecting to document store", zap.String("backend", backend))

	switch backend {
	case config.BackendJSONBin:
		if cfg.Secrets.JSONBinToken == "" {
			return nil, fmt.Errorf("JSONBIN_TOKEN is required for the jsonbin backend")
		}
		var opts []jsonbin.Option
		if cfg.RequestsPerSecond > 0 {
			opts = append(opts, jsonbin.WithRateLimit(cfg.RequestsPerSecond, 1))
		}
		return jsonbin.NewClient(cfg.JSONBinURL, cfg.Secrets.JSONBinToken, app.Logger, opts...), nil

	case config.BackendPostgres:
		if cfg.Secrets.PostgresURL == "" {
			return nil, fmt.Errorf("POSTGRES_URL is required for the postgres backend")
		}
		db, err := postgres.NewDB(app.Ctx, cfg.Secrets.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		closers = append(closers, db.Close)
		if err := db.RunMigrations(app.Ctx); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return db, nil

	case config.BackendRedis:
		if cfg.Secrets.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
		rs, err := redisstore.New(app.Ctx, cfg.Secrets.RedisAddr, cfg.Secrets.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() { rs.Close() })
		return rs, nil

	default:
		app.Logger.Warn("Using the local store: events are only visible on this device")
		return local.Documents(), nil
	}
}

// shutdown releases resources in reverse order of acquisition
func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	closers = nil
	if app.Logger != nil {
		app.Logger.Sync()
	}
}
