// Package config assembles the billingctl runtime configuration from
// flags, environment variables and an optional config file.
package config

import (
	"fmt"
	"os"
	"time"

	"membership-billing-service/internal/matcher"
	"membership-billing-service/pkg/logger"

	"github.com/spf13/viper"
)

// Config is the resolved CLI configuration.
type Config struct {
	// DatabasePath locates the SQLite database file.
	DatabasePath string

	// LogLevel and LogFormat configure the global logger.
	LogLevel  string
	LogFormat string

	// Timezone is the civil calendar for period arithmetic.
	Timezone string

	// CategoriesFile optionally replaces the built-in expense categories.
	CategoriesFile string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath: "billing.db",
		LogLevel:     "info",
		LogFormat:    "text",
		Timezone:     "Europe/Brussels",
	}
}

// Load resolves the configuration from viper, applying defaults for
// everything left unset.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if s := v.GetString("db"); s != "" {
		cfg.DatabasePath = s
	}
	if s := v.GetString("log_level"); s != "" {
		cfg.LogLevel = s
	}
	if v.GetBool("verbose") {
		cfg.LogLevel = "debug"
	}
	if s := v.GetString("log_format"); s != "" {
		cfg.LogFormat = s
	}
	if s := v.GetString("timezone"); s != "" {
		cfg.Timezone = s
	}
	if s := v.GetString("categories_file"); s != "" {
		cfg.CategoriesFile = s
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured civil calendar.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Categories loads the configured category set, falling back to the
// built-in buckets when no file is configured.
func (c *Config) Categories() (*matcher.CategorySet, error) {
	if c.CategoriesFile == "" {
		return matcher.DefaultCategories(), nil
	}
	f, err := os.Open(c.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("opening categories file: %w", err)
	}
	defer f.Close()
	return matcher.LoadCategories(f)
}
