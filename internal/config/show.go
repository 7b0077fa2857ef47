package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all override layers
// have been applied.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	ew.printf("[service]\n")
	ew.printf("  base_url  = %q\n", cfg.Service.BaseURL)
	ew.printf("  page_size = %d\n", cfg.Service.PageSize)
	ew.printf("  websocket = %t\n\n", cfg.Service.Websocket)

	ew.printf("[auth]\n")
	ew.printf("  client_id    = %q\n", cfg.Auth.ClientID)
	ew.printf("  device_url   = %q\n", cfg.Auth.DeviceURL)
	ew.printf("  token_url    = %q\n", cfg.Auth.TokenURL)
	ew.printf("  identity_url = %q\n", cfg.Auth.IdentityURL)
	ew.printf("  token_file   = %q\n\n", cfg.Auth.TokenFile)

	ew.printf("[sync]\n")
	ew.printf("  poll_interval = %q\n", cfg.Sync.PollInterval)
	ew.printf("  sync_timeout  = %q\n", cfg.Sync.SyncTimeout)
	ew.printf("  database_path = %q\n\n", cfg.Sync.DatabasePath)

	ew.printf("[logging]\n")
	ew.printf("  log_level          = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format         = %q\n", cfg.Logging.LogFormat)
	ew.printf("  log_file           = %q\n", cfg.Logging.LogFile)
	ew.printf("  log_retention_days = %d\n\n", cfg.Logging.LogRetentionDays)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", cfg.Network.ConnectTimeout)
	ew.printf("  probe_interval  = %q\n", cfg.Network.ProbeInterval)
	ew.printf("  user_agent      = %q\n", cfg.Network.UserAgent)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain printf
// calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
