// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for habistat-go. It supports a
// four-layer override chain (defaults -> config file -> environment ->
// CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Keys are flat within named sections; unknown keys are fatal at load time.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Auth    AuthConfig    `toml:"auth"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// ServiceConfig points the engine at the sync service.
type ServiceConfig struct {
	BaseURL   string `toml:"base_url"`
	PageSize  int    `toml:"page_size"`
	Websocket bool   `toml:"websocket"`
}

// AuthConfig holds the OAuth2 device-flow endpoints. The defaults point at
// the hosted service; self-hosters override all five together.
type AuthConfig struct {
	ClientID    string `toml:"client_id"`
	DeviceURL   string `toml:"device_url"`
	TokenURL    string `toml:"token_url"`
	IdentityURL string `toml:"identity_url"`
	TokenFile   string `toml:"token_file"`
}

// SyncConfig controls engine behavior: polling cadence, cycle timeout, and
// where the local database lives.
type SyncConfig struct {
	PollInterval string `toml:"poll_interval"`
	SyncTimeout  string `toml:"sync_timeout"`
	DatabasePath string `toml:"database_path"`
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	ProbeInterval  string `toml:"probe_interval"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	BaseURL    *string // --server flag
	LogLevel   *string // --log-level flag
}

// Duration accessors. The raw fields stay strings so the TOML round-trips
// exactly; Validate guarantees these parse, so the accessors swallow the
// error path.

// PollIntervalDuration returns the parsed poll interval.
func (c *SyncConfig) PollIntervalDuration() time.Duration {
	return mustDuration(c.PollInterval, defaultPollIntervalFallback)
}

// SyncTimeoutDuration returns the parsed full-cycle timeout.
func (c *SyncConfig) SyncTimeoutDuration() time.Duration {
	return mustDuration(c.SyncTimeout, defaultSyncTimeoutFallback)
}

// ConnectTimeoutDuration returns the parsed HTTP connect timeout.
func (c *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return mustDuration(c.ConnectTimeout, defaultConnectTimeoutFallback)
}

// ProbeIntervalDuration returns the parsed connectivity probe interval.
func (c *NetworkConfig) ProbeIntervalDuration() time.Duration {
	return mustDuration(c.ProbeInterval, defaultProbeIntervalFallback)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}
