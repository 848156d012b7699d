// Package config loads tutorsync settings from .tutorsync/config.yaml,
// overridable through TUTORSYNC_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the configuration directory under the user's home.
const DirName = ".tutorsync"

// Config is the resolved application configuration.
type Config struct {
	// RemoteURL is the base URL of the sync server.
	RemoteURL string
	// RemoteToken is the bearer token presented to the server.
	RemoteToken string
	// TenantID identifies the signed-in tutor account.
	TenantID string
	// DBPath is where the local SQLite database lives.
	DBPath string
	// SyncInterval is the periodic background sync interval.
	SyncInterval time.Duration
	// SyncDebounce is the immediate-sync debounce window.
	SyncDebounce time.Duration
	// LogFile receives daemon logs; empty means stderr.
	LogFile string
}

// Dir returns the configuration directory, honoring TUTORSYNC_HOME.
func Dir() (string, error) {
	if custom := os.Getenv("TUTORSYNC_HOME"); custom != "" {
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Load reads config.yaml from dir (missing file is fine, defaults apply)
// and layers TUTORSYNC_* environment variables on top.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	configPath := filepath.Join(dir, "config.yaml")
	v.SetConfigFile(configPath)

	v.SetDefault("db.path", filepath.Join(dir, "tutorsync.db"))
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.debounce", "2s")

	v.SetEnvPrefix("TUTORSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	interval, err := time.ParseDuration(v.GetString("sync.interval"))
	if err != nil {
		return nil, fmt.Errorf("sync.interval: %w", err)
	}
	debounce, err := time.ParseDuration(v.GetString("sync.debounce"))
	if err != nil {
		return nil, fmt.Errorf("sync.debounce: %w", err)
	}

	return &Config{
		RemoteURL:    v.GetString("remote.url"),
		RemoteToken:  v.GetString("remote.token"),
		TenantID:     v.GetString("tenant.id"),
		DBPath:       v.GetString("db.path"),
		SyncInterval: interval,
		SyncDebounce: debounce,
		LogFile:      v.GetString("log.file"),
	}, nil
}

// ValidateForSync checks the settings sync commands require.
func (c *Config) ValidateForSync() error {
	if c.RemoteURL == "" {
		return fmt.Errorf("remote.url is not configured")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant.id is not configured")
	}
	return nil
}
