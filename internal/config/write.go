package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config
// directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written by
// "habistat config init". All settings are present as commented-out
// defaults so users can discover every option without reading docs.
const configTemplate = `# habistat-go configuration

[service]
# Sync service base URL.
# base_url = "https://sync.habistat.app"

# Pull page size (1-1000).
# page_size = 500

# Subscribe to live change notifications over a websocket.
# websocket = true

[auth]
# OAuth2 device-flow client id and endpoints. Self-hosters override all of
# these together.
# client_id = "habistat-cli"
# device_url = "https://auth.habistat.app/oauth/device"
# token_url = "https://auth.habistat.app/oauth/token"
# identity_url = "https://sync.habistat.app/whoami"

# Token file location (default: platform data directory).
# token_file = ""

[sync]
# How often the watch daemon checks for pending local changes.
# poll_interval = "5m"

# Upper bound on one full sync cycle.
# sync_timeout = "5m"

# Database location (default: platform data directory).
# database_path = ""

[logging]
# Verbosity: debug, info, warn, error
# log_level = "info"

# Output format: auto, text, json
# log_format = "auto"

# Log file path, used by the watch daemon (default: platform data directory).
# log_file = ""

# Days of rotated logs to keep.
# log_retention_days = 30

[network]
# connect_timeout = "10s"
# probe_interval = "30s"
`

// WriteDefault creates a config file from the default template. The write
// is atomic (temp file + rename) and parent directories are created as
// needed. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(configTemplate); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("writing config template: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp config file: %w", err)
	}

	if err := os.Chmod(tmpName, configFilePermissions); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting config file permissions: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("moving config file into place: %w", err)
	}

	return nil
}
