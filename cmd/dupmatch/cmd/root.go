package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/dupmatch/internal/core/config"
	"github.com/solatis/dupmatch/internal/core/logging"
	"github.com/solatis/dupmatch/internal/store"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:          "dupmatch",
	Short:        "dupmatch duplicate record finder",
	Long:         `dupmatch compares records across groups and reports the combinations that match a condition.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "store URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.StoreURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration, builds the logger and opens the store.
func setup(ctx context.Context) (*config.Config, *slog.Logger, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}

	st, err := store.Open(ctx, cfg.StoreURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store %s: %w", config.RedactURL(cfg.StoreURL), err)
	}
	logger.Debug("store opened", "url", config.RedactURL(cfg.StoreURL))
	return cfg, logger, st, nil
}
