// Package config assembles runtime settings for the credkeeper CLI from
// three layers: built-in defaults, an optional JSON file, and command-line
// flags. Later layers override earlier ones.
package config

import "time"

// Config holds runtime settings for the credential subsystem.
//
// Durations follow the session defaults: access tokens live TokenTTL,
// refresh tokens live RefreshTokenTTL, and the auto-refresh timer fires
// RefreshThreshold before access expiry.
type Config struct {
	StorePath        string
	TokenTTL         time.Duration
	RefreshTokenTTL  time.Duration
	RefreshThreshold time.Duration
	AutoRefresh      bool
	LogLevel         string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.StorePath = "credkeeper.db"
	c.TokenTTL = 15 * time.Minute
	c.RefreshTokenTTL = 7 * 24 * time.Hour
	c.RefreshThreshold = 5 * time.Minute
	c.AutoRefresh = true
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if a config file was given) and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
