package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sakif/cards/internal/config"
	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/docstore/mongo"
	"github.com/sakif/cards/internal/docstore/sqlite"
	"github.com/sakif/cards/internal/logger"
	"github.com/sakif/cards/internal/server"
)

// connectTimeout bounds the initial store connection and ping.
const connectTimeout = 10 * time.Second

// options holds the flags shared by serve and migrate.
type options struct {
	configPath  string
	envFile     string
	port        int
	storeDriver string
	storeURI    string
}

func newRootCmd(version, date string) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "cards",
		Short:         "Per-user to-do cards API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	bindFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newVersionCmd(version, date))
	return cmd
}

func bindFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "path to a .env file (ignored if missing)")
	flags.IntVar(&opts.port, "port", 0, "listen port (overrides config)")
	flags.StringVar(&opts.storeDriver, "store-driver", "", "store backend: mongo|sqlite (overrides config)")
	flags.StringVar(&opts.storeURI, "store-uri", "", "store connection string or sqlite path (overrides config)")
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, closeLog, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer closeLog.Close()

			store, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close(context.Background())
				return err
			}

			srv, err := server.New(*cfg, store, log)
			if err != nil {
				_ = store.Close(context.Background())
				return err
			}
			// Run closes the store.
			return srv.Run(ctx)
		},
	}
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply store migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, closeLog, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			defer closeLog.Close()

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			log.Info("migrations applied", slog.String("store", cfg.Store.Driver))
			return nil
		},
	}
}

func newVersionCmd(version, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "version=%s\nbuild_date=%s\n", version, date)
		},
	}
}

// setup loads and validates the configuration and builds the logger.
func setup(cmd *cobra.Command, opts *options) (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, nil, nil, err
	}

	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(log)
	return cfg, log, closer, nil
}

// loadConfig applies only the flags the user actually set, so an unset flag
// never clobbers a value from the file or the environment.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("store-driver") {
		cfg.Store.Driver = opts.storeDriver
	}
	if flags.Changed("store-uri") {
		cfg.Store.URI = opts.storeURI
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (docstore.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.URI != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.URI), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqlite.New(cfg.URI)
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return mongo.New(ctx, cfg.URI, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
