package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "HABISTAT_CONFIG"
	EnvBaseURL  = "HABISTAT_BASE_URL"
	EnvLogLevel = "HABISTAT_LOG_LEVEL"
	EnvDataDir  = "HABISTAT_DATA_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // HABISTAT_CONFIG: override config file path
	BaseURL    string // HABISTAT_BASE_URL: sync service base URL
	LogLevel   string // HABISTAT_LOG_LEVEL: log verbosity
	DataDir    string // HABISTAT_DATA_DIR: database and token directory
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		BaseURL:    os.Getenv(EnvBaseURL),
		LogLevel:   os.Getenv(EnvLogLevel),
		DataDir:    os.Getenv(EnvDataDir),
	}
}
