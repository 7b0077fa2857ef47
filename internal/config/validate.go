package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minPageSize     = 1
	maxPageSize     = 1000
	minPollInterval = 10 * time.Second
	minSyncTimeout  = 10 * time.Second
	minLogRetention = 1
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"auto": true, "text": true, "json": true,
}

// Validate checks all configuration values and returns all errors found.
// Every error is accumulated rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateService(&cfg.Service)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateService(s *ServiceConfig) []error {
	var errs []error

	if err := validateURL("base_url", s.BaseURL); err != nil {
		errs = append(errs, err)
	}

	if s.PageSize < minPageSize || s.PageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, s.PageSize))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.ClientID == "" {
		errs = append(errs, errors.New("client_id: must not be empty"))
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"device_url", a.DeviceURL},
		{"token_url", a.TokenURL},
		{"identity_url", a.IdentityURL},
	} {
		if err := validateURL(field.name, field.value); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if err := validateDuration("poll_interval", s.PollInterval, minPollInterval); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("sync_timeout", s.SyncTimeout, minSyncTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be debug, info, warn, or error, got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be auto, text, or json, got %q", l.LogFormat))
	}

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be at least %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if err := validateDuration("connect_timeout", n.ConnectTimeout, time.Second); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("probe_interval", n.ProbeInterval, time.Second); err != nil {
		errs = append(errs, err)
	}

	if n.UserAgent == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	return errs
}

func validateURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s: must not be empty", field)
	}

	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: must be an absolute URL, got %q", field, value)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: scheme must be http or https, got %q", field, u.Scheme)
	}

	return nil
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", field, minimum, d)
	}

	return nil
}
