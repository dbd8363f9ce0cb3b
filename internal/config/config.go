// Package config handles convocli configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (CONVOCLI_*)
//  2. Config file (~/.config/convocli/config.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultFlushIntervalMS is the output flush cadence in
	// milliseconds, one update per 60 Hz frame.
	DefaultFlushIntervalMS = 16

	// DefaultQuietTimeoutMS is the silence window for the prompt
	// timeout fallback.
	DefaultQuietTimeoutMS = 2000

	// DefaultCancelGraceMS is how long a canceled command gets to exit
	// gracefully before forceful termination.
	DefaultCancelGraceMS = 2000

	// DefaultHistoryLimit caps how many blocks `convocli history` shows.
	DefaultHistoryLimit = 50
)

// Config holds the convocli configuration.
type Config struct {
	v *viper.Viper
}

// Load reads configuration from all sources.
func Load() *Config {
	v := viper.New()

	v.SetDefault("session.shell", defaultShell())
	v.SetDefault("session.flush_interval_ms", DefaultFlushIntervalMS)
	v.SetDefault("session.quiet_timeout_ms", DefaultQuietTimeoutMS)
	v.SetDefault("session.cancel_grace_ms", DefaultCancelGraceMS)
	v.SetDefault("history.limit", DefaultHistoryLimit)
	v.SetDefault("history.dir", "")

	home, err := os.UserHomeDir()
	if err == nil {
		configDir := filepath.Join(home, ".config", "convocli")
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CONVOCLI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, but warn on other errors)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: error reading config file: %v\n", err)
		}
	}

	return &Config{v: v}
}

// Get returns a configuration value.
func (c *Config) Get(key string) interface{} {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// Set sets a configuration value and persists it.
func (c *Config) Set(key string, value interface{}) error {
	c.v.Set(key, value)

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".config", "convocli")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	configFile := filepath.Join(configDir, "config.yaml")
	return c.v.WriteConfigAs(configFile)
}

// All returns all configuration as a map.
func (c *Config) All() map[string]interface{} {
	return c.v.AllSettings()
}

// Shell returns the shell binary the session spawns.
func (c *Config) Shell() string {
	return c.GetString("session.shell")
}

// FlushInterval returns the output flush cadence.
func (c *Config) FlushInterval() time.Duration {
	return positiveMS(c.GetInt("session.flush_interval_ms"), DefaultFlushIntervalMS)
}

// QuietTimeout returns the prompt-detection silence window.
func (c *Config) QuietTimeout() time.Duration {
	return positiveMS(c.GetInt("session.quiet_timeout_ms"), DefaultQuietTimeoutMS)
}

// CancelGrace returns the graceful-termination window for cancel.
func (c *Config) CancelGrace() time.Duration {
	return positiveMS(c.GetInt("session.cancel_grace_ms"), DefaultCancelGraceMS)
}

// HistoryDir returns the history root, empty meaning the default.
func (c *Config) HistoryDir() string {
	return c.GetString("history.dir")
}

// HistoryLimit returns how many blocks history listings show.
func (c *Config) HistoryLimit() int {
	if n := c.GetInt("history.limit"); n > 0 {
		return n
	}

	return DefaultHistoryLimit
}

// PromptPatternFile returns the path of the extra prompt patterns file.
func (c *Config) PromptPatternFile() string {
	if p := c.GetString("session.prompt_patterns"); p != "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "convocli", "prompts.yaml")
}

func positiveMS(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}

	return time.Duration(n) * time.Millisecond
}

func defaultShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}

	return "/bin/sh"
}
