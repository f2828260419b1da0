package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are loaded by Viper from a .env file and/or environment variables.
type Config struct {
	CacheDir       string        `mapstructure:"MCM_CACHE_DIR"`
	UserAgent      string        `mapstructure:"MCM_USER_AGENT"`
	ModrinthAPIKey string        `mapstructure:"MODRINTH_API_KEY"`
	RecheckMin     time.Duration `mapstructure:"MCM_RECHECK_MIN"`
	RecheckMax     time.Duration `mapstructure:"MCM_RECHECK_MAX"`
	Concurrency    int           `mapstructure:"MCM_CONCURRENCY"`
	DatabasePath   string        `mapstructure:"MCM_DATABASE_PATH"`
	Manifest       string        `mapstructure:"MCM_MANIFEST"`
}

const (
	DefaultUserAgent   = "mcm/dev (unknown-user)"
	DefaultManifest    = "modpak.yml"
	DefaultConcurrency = 8
	DefaultRecheckMin  = 6 * time.Hour
	DefaultRecheckMax  = 10 * time.Hour
)

var envKeys = []string{
	"MCM_CACHE_DIR",
	"MCM_USER_AGENT",
	"MODRINTH_API_KEY",
	"MCM_RECHECK_MIN",
	"MCM_RECHECK_MAX",
	"MCM_CONCURRENCY",
	"MCM_DATABASE_PATH",
	"MCM_MANIFEST",
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)   // Path to look for the config file in
	viper.SetConfigName(".env") // Name of config file (without extension)
	viper.SetConfigType("env")  // REQUIRED if the config file does not have the extension in the name

	vipErr := viper.ReadInConfig()
	if _, ok := vipErr.(viper.ConfigFileNotFoundError); ok {
		slog.Debug("Config file (.env) not found, relying on environment variables.")
	} else if vipErr != nil {
		return Config{}, fmt.Errorf("fatal error config file: %w", vipErr)
	}

	viper.AutomaticEnv()
	for _, key := range envKeys {
		if err := viper.BindEnv(key, key); err != nil {
			slog.Warn("Unable to bind env var", "key", key, "error", err)
		}
	}

	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %w", err)
	}

	processConfigDefaults(&config)
	if err := validateAndEnsureDirectories(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// processConfigDefaults fills every unset value.
func processConfigDefaults(config *Config) {
	if config.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		config.CacheDir = filepath.Join(base, "mcm")
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
		slog.Debug("MCM_USER_AGENT not set, using default.")
	}
	if config.RecheckMin <= 0 {
		config.RecheckMin = DefaultRecheckMin
	}
	if config.RecheckMax <= 0 {
		config.RecheckMax = DefaultRecheckMax
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.DatabasePath == "" {
		config.DatabasePath = filepath.Join(config.CacheDir, "history.db")
	}
	if config.Manifest == "" {
		config.Manifest = DefaultManifest
	}
}

// validateAndEnsureDirectories checks the loaded values and creates the
// cache root.
func validateAndEnsureDirectories(config *Config) error {
	if config.CacheDir == "" {
		return fmt.Errorf("MCM_CACHE_DIR is required")
	}
	if config.RecheckMax < config.RecheckMin {
		return fmt.Errorf("MCM_RECHECK_MAX (%s) is below MCM_RECHECK_MIN (%s)", config.RecheckMax, config.RecheckMin)
	}

	for _, dir := range []string{config.CacheDir, filepath.Dir(config.DatabasePath)} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			slog.Info("Directory does not exist, creating it", "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				slog.Error("Failed to create directory", "path", dir, "error", err)
				return err
			}
		} else if err != nil {
			slog.Error("Failed to check directory", "path", dir, "error", err)
			return err
		}
	}
	return nil
}
