package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/api"
	"github.com/good-yellow-bee/alertcast/internal/hub"
	"github.com/good-yellow-bee/alertcast/internal/logging"
	"github.com/good-yellow-bee/alertcast/internal/metrics"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/storage"
	"github.com/good-yellow-bee/alertcast/internal/watcher"
	"github.com/good-yellow-bee/alertcast/pkg/config"
)

var (
	configFile  string
	httpAddr    string
	metricsAddr string
	dataDir     string
	logLevel    string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "alertcast-server",
	Short: "alertcast server - live alert overlays over websockets",
	Long: `alertcast-server keeps alert documents in memory, persists every edit,
and pushes rendered markdown and styles to connected overlay viewers.`,
	RunE:          runServer,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("alertcast-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-address", "", "Prometheus listen address")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "alert data directory (file backend)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	var cfg *Config
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	if metricsAddr != "" {
		cfg.Server.MetricsAddress = metricsAddr
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.Verbose = verbose

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Initialize storage
	stor, err := storage.New(cfg.Storage.Backend, cfg.Storage.DataDir, cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	if err := stor.Open(); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer stor.Close()
	if err := stor.Migrate(); err != nil {
		return fmt.Errorf("migrate storage: %w", err)
	}

	events := hub.New[models.Event](cfg.Hub.Capacity)
	defer events.Close()

	store := alerts.New(stor.Alerts(), events, logger)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.Load(loadCtx)
	cancelLoad()
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	srv, err := api.New(&api.Config{
		Address:            cfg.Server.HTTPAddress,
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		PingInterval:       mustDuration(cfg.Server.PingInterval),
		WriteTimeout:       mustDuration(cfg.Server.WriteTimeout),
		RateLimitPerSecond: cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:     cfg.RateLimit.Burst,
		Users:              cfg.Auth.Users,
		LockoutThreshold:   cfg.Auth.LockoutThreshold,
		LockoutDuration:    mustDuration(cfg.Auth.LockoutDuration),
		Verbose:            cfg.Verbose,
	}, store, events, stor, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if len(cfg.Auth.Users) == 0 {
		logger.Warn().Msg("no auth users configured, the mutating API is open")
	}

	// Setup signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", config.Version).Msg("starting alertcast-server")
	if err := run(ctx, cfg, srv, store, logger); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// run starts every long-running component and returns when ctx is done or
// any of them fails.
func run(ctx context.Context, cfg *Config, srv *api.Server, store *alerts.Store, logger zerolog.Logger) error {
	var w *watcher.Watcher
	if cfg.WatchEnabled() {
		var err error
		w, err = watcher.New(cfg.Storage.DataDir, store, logger, nil)
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfg.Storage.DataDir, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if w != nil {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	g.Go(func() error {
		return srv.Run(ctx)
	})

	if cfg.Server.MetricsAddress != "" {
		ms := metrics.NewServer(cfg.Server.MetricsAddress, logger)
		g.Go(ms.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
