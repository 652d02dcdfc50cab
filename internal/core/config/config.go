// Package config provides configuration management for dupmatch.
package config

import (
	"net/url"
	"strings"
	"time"
)

// Config holds dupmatch settings shared by every command.
type Config struct {
	StoreURL         string        // sqlite://path or postgres://...
	ProgressInterval time.Duration // minimum time between progress updates
	MaxRows          int           // match rows applied per batch
	LockFile         string        // single-writer lock for applying actions
	LogLevel         string
	LogFormat        string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		StoreURL:         "sqlite://./data/dupmatch.db",
		ProgressInterval: 3 * time.Second,
		MaxRows:          1000,
		LockFile:         "./data/dupmatch.lock",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// RedactURL hides the password of a store URL for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	return u.Redacted()
}

// hasPassword reports whether a store URL embeds a password.
func hasPassword(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.User == nil {
		return false
	}
	_, ok := u.User.Password()
	return ok
}

func validLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func validFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	}
	return false
}
