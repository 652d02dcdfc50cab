package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults matching DefaultConfig
	def := DefaultConfig()
	v.SetDefault("store.url", def.StoreURL)
	v.SetDefault("scan.progress_interval", def.ProgressInterval.String())
	v.SetDefault("apply.max_rows", def.MaxRows)
	v.SetDefault("apply.lock_file", def.LockFile)
	v.SetDefault("log.level", def.LogLevel)
	v.SetDefault("log.format", def.LogFormat)

	// Bind environment variables with DM_ prefix
	v.SetEnvPrefix("DM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoCredentialsInConfig(configPath); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		StoreURL:         v.GetString("store.url"),
		ProgressInterval: v.GetDuration("scan.progress_interval"),
		MaxRows:          v.GetInt("apply.max_rows"),
		LockFile:         v.GetString("apply.lock_file"),
		LogLevel:         v.GetString("log.level"),
		LogFormat:        v.GetString("log.format"),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the store URL, positive interval and batch size, and the
// log settings.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.StoreURL) == "" {
		return fmt.Errorf("store.url must be set")
	}
	if cfg.ProgressInterval <= 0 {
		return fmt.Errorf("scan.progress_interval must be positive, got %v", cfg.ProgressInterval)
	}
	if cfg.MaxRows <= 0 {
		return fmt.Errorf("apply.max_rows must be positive, got %d", cfg.MaxRows)
	}
	if strings.TrimSpace(cfg.LockFile) == "" {
		return fmt.Errorf("apply.lock_file must be set")
	}
	if !validLevel(cfg.LogLevel) {
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	if !validFormat(cfg.LogFormat) {
		return fmt.Errorf("log.format must be text or json, got %q", cfg.LogFormat)
	}
	return nil
}

// validateNoCredentialsInConfig keeps database passwords out of config files.
// The file is read on its own so an environment override does not hide it.
func validateNoCredentialsInConfig(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if hasPassword(v.GetString("store.url")) {
		return fmt.Errorf("store passwords not allowed in config files (use DM_STORE_URL environment variable)")
	}
	return nil
}
