package config

import "time"

// Default values for configuration options. Layer 0 of the override chain;
// chosen so the engine works against the hosted service with no config file
// at all.
const (
	defaultBaseURL        = "https://sync.habistat.app"
	defaultPageSize       = 500
	defaultClientID       = "habistat-cli"
	defaultDeviceURL      = "https://auth.habistat.app/oauth/device"
	defaultTokenURL       = "https://auth.habistat.app/oauth/token"
	defaultIdentityURL    = "https://sync.habistat.app/whoami"
	defaultPollInterval   = "5m"
	defaultSyncTimeout    = "5m"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultLogRetention   = 30
	defaultConnectTimeout = "10s"
	defaultProbeInterval  = "30s"
	defaultUserAgent      = "habistat-go"
)

// Fallbacks for the duration accessors when a field somehow bypassed
// validation.
const (
	defaultPollIntervalFallback   = 5 * time.Minute
	defaultSyncTimeoutFallback    = 5 * time.Minute
	defaultConnectTimeoutFallback = 10 * time.Second
	defaultProbeIntervalFallback  = 30 * time.Second
)

// DefaultConfig returns a Config populated with all default values. Used
// both as the starting point for TOML decoding (so unset fields retain
// defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:   defaultBaseURL,
			PageSize:  defaultPageSize,
			Websocket: true,
		},
		Auth: AuthConfig{
			ClientID:    defaultClientID,
			DeviceURL:   defaultDeviceURL,
			TokenURL:    defaultTokenURL,
			IdentityURL: defaultIdentityURL,
		},
		Sync: SyncConfig{
			PollInterval: defaultPollInterval,
			SyncTimeout:  defaultSyncTimeout,
		},
		Logging: LoggingConfig{
			LogLevel:         defaultLogLevel,
			LogFormat:        defaultLogFormat,
			LogRetentionDays: defaultLogRetention,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			ProbeInterval:  defaultProbeInterval,
			UserAgent:      defaultUserAgent,
		},
	}
}
