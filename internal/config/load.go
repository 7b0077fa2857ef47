package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal with "did you mean?" suggestions;
// silently ignoring a typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. CLI flags
// always win, matching user expectations for one-off overrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.BaseURL != "" {
		cfg.Service.BaseURL = env.BaseURL
	}

	if env.LogLevel != "" {
		cfg.Logging.LogLevel = env.LogLevel
	}

	if cli.BaseURL != nil {
		cfg.Service.BaseURL = *cli.BaseURL
	}

	if cli.LogLevel != nil {
		cfg.Logging.LogLevel = *cli.LogLevel
	}

	applyPathDefaults(cfg, env)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyPathDefaults fills in database and token paths left empty by the
// file. HABISTAT_DATA_DIR relocates both together, which is what tests and
// self-contained installs want.
func applyPathDefaults(cfg *Config, env EnvOverrides) {
	dataDir := env.DataDir

	if cfg.Sync.DatabasePath == "" {
		if dataDir != "" {
			cfg.Sync.DatabasePath = filepath.Join(dataDir, databaseFileName)
		} else {
			cfg.Sync.DatabasePath = DefaultDatabasePath()
		}
	}

	if cfg.Auth.TokenFile == "" {
		if dataDir != "" {
			cfg.Auth.TokenFile = filepath.Join(dataDir, tokenFileName)
		} else {
			cfg.Auth.TokenFile = DefaultTokenPath()
		}
	}
}
