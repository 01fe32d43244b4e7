// Package cmd contains the CLI commands for alertctl.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/logging"
	"github.com/good-yellow-bee/alertcast/internal/models"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

var (
	// Used for flags
	verbose    bool
	output     string
	backend    string
	dataDir    string
	sqlitePath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "alertctl",
	Short: "alertctl - manage alertcast alert documents",
	Long: `alertctl reads and edits alert documents directly in the storage
backend used by alertcast-server.

With the file backend a running server picks up edits through its
directory watcher. SQLite edits are seen after the server restarts.

Examples:
  # List alerts in the default data directory
  alertctl list

  # Create an alert and give it a counter
  alertctl create donation --name Donation --text 'Thanks **$who**, $amt bits!'
  alertctl add-field donation amt counter 0

  # Bump the counter
  alertctl set-field donation amt --incr 100`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", storage.BackendFile, "storage backend (file, sqlite)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", defaultDataDir(), "alert data directory (file backend)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "./data/alertcast.db", "database path (sqlite backend)")
}

func defaultDataDir() string {
	if dir := os.Getenv("ALERTCAST_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data/alerts"
}

// discard drops store events; nobody is subscribed in a CLI process.
type discard struct{}

func (discard) Publish(models.Event) int { return 0 }

// openStore opens the configured backend and loads every alert.
func openStore(ctx context.Context) (*alerts.Store, func(), error) {
	stor, err := storage.New(backend, dataDir, sqlitePath)
	if err != nil {
		return nil, nil, err
	}
	if err := stor.Open(); err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	if err := stor.Migrate(); err != nil {
		stor.Close()
		return nil, nil, fmt.Errorf("migrate storage: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger := logging.New(level, logging.FormatConsole, os.Stderr)

	store := alerts.New(stor.Alerts(), discard{}, logger)
	if err := store.Load(ctx); err != nil {
		stor.Close()
		return nil, nil, fmt.Errorf("load alerts: %w", err)
	}
	return store, func() { stor.Close() }, nil
}
