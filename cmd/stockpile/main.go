// Command stockpile is an offline-first catalogue manager. All writes
// commit to a local SQLite store and queue their remote mutation; the sync
// engine drains the queue whenever the hosted backend is reachable.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stockpile-dev/stockpile/internal/config"
	"github.com/stockpile-dev/stockpile/internal/store"
)

var (
	flagConfig  string
	flagDataDir string
	flagRemote  string
)

var rootCmd = &cobra.Command{
	Use:   "stockpile",
	Short: "Offline-first catalogue manager",
	Long: `Stockpile manages a product catalogue against a hosted backend while
staying fully usable offline.

Every create, update, and delete commits to the local store immediately
and queues the matching remote mutation. A sync drain pushes queued
mutations in order once the backend is reachable, reconciling locally
generated ids with server-assigned ones.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default .stockpile/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default .stockpile)")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "", "remote backend base URL")

	rootCmd.AddCommand(productCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(notificationsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(janitorCmd)
	rootCmd.AddCommand(daemonCmd)
}

// loadConfig reads configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagRemote != "" {
		cfg.RemoteURL = flagRemote
	}
	return cfg, nil
}

// openStore opens the local database for the configured data directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	return st, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
