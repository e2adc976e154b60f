// Package config loads stockpile configuration from an optional YAML file
// and STOCKPILE_* environment variables, with sensible defaults for every
// knob.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// DataDir is the directory holding the local database and logs.
	DataDir string

	// RemoteURL is the base URL of the hosted catalogue backend.
	RemoteURL string

	Sync      SyncConfig
	Janitor   JanitorConfig
	Importer  ImporterConfig
	Dashboard DashboardConfig
	Log       LogConfig
}

// SyncConfig holds connectivity/orchestrator settings.
type SyncConfig struct {
	// ProbeInterval is how often the connectivity monitor checks
	// reachability.
	ProbeInterval time.Duration

	// Debounce is the reconnect-to-drain delay.
	Debounce time.Duration
}

// JanitorConfig holds stale-entry sweep settings.
type JanitorConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// ImporterConfig holds drop-directory ingestion settings.
type ImporterConfig struct {
	Enabled  bool
	DropDir  string
	Debounce time.Duration
}

// DashboardConfig holds WebSocket dashboard settings.
type DashboardConfig struct {
	Enabled bool
	Port    int
}

// LogConfig holds daemon log rotation settings.
type LogConfig struct {
	// File is the daemon log path; empty means DataDir/daemon.log.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DatabasePath returns the SQLite file path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "stockpile.db")
}

// LogFile returns the daemon log path, applying the default.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.DataDir, "daemon.log")
}

// Load reads configuration. configFile may be empty, in which case only
// defaults and environment variables apply; a missing explicit file is an
// error, a missing default file is not.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", ".stockpile")
	v.SetDefault("remote_url", "http://localhost:8080")
	v.SetDefault("sync.probe_interval", 10*time.Second)
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("janitor.interval", 30*time.Minute)
	v.SetDefault("janitor.max_age", 3*time.Hour)
	v.SetDefault("importer.enabled", false)
	v.SetDefault("importer.drop_dir", "")
	v.SetDefault("importer.debounce", 500*time.Millisecond)
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 7070)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetEnvPrefix("STOCKPILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".stockpile")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		DataDir:   v.GetString("data_dir"),
		RemoteURL: v.GetString("remote_url"),
		Sync: SyncConfig{
			ProbeInterval: v.GetDuration("sync.probe_interval"),
			Debounce:      v.GetDuration("sync.debounce"),
		},
		Janitor: JanitorConfig{
			Interval: v.GetDuration("janitor.interval"),
			MaxAge:   v.GetDuration("janitor.max_age"),
		},
		Importer: ImporterConfig{
			Enabled:  v.GetBool("importer.enabled"),
			DropDir:  v.GetString("importer.drop_dir"),
			Debounce: v.GetDuration("importer.debounce"),
		},
		Dashboard: DashboardConfig{
			Enabled: v.GetBool("dashboard.enabled"),
			Port:    v.GetInt("dashboard.port"),
		},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
	}

	if cfg.Importer.Enabled && cfg.Importer.DropDir == "" {
		cfg.Importer.DropDir = filepath.Join(cfg.DataDir, "import")
	}

	return cfg, nil
}
