package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/habistat/habistat-go/internal/config"
)

// Log rotation bounds for the watch daemon's log file.
const (
	logMaxSizeMB  = 20
	logMaxBackups = 5
)

// buildLogger creates an slog.Logger for interactive commands, writing to
// stderr. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win. The "auto" format
// picks text on a terminal and JSON otherwise, so piped output stays
// machine-readable.
func buildLogger(cfg *config.Config) *slog.Logger {
	return slog.New(newHandler(os.Stderr, cfg, isatty.IsTerminal(os.Stderr.Fd()), logLevel(cfg)))
}

// daemonLevel is the watch daemon's live log level. Config reloads adjust
// it without recreating the logger.
var daemonLevel = new(slog.LevelVar)

// updateDaemonLogLevel applies a reloaded config's log level to the
// running daemon logger.
func updateDaemonLogLevel(cfg *config.Config) {
	daemonLevel.Set(logLevel(cfg))
}

// buildDaemonLogger creates the watch daemon's logger. When a log file is
// configured (or defaulted), output goes through lumberjack rotation;
// otherwise it falls back to stderr like interactive commands.
func buildDaemonLogger(cfg *config.Config) *slog.Logger {
	daemonLevel.Set(logLevel(cfg))

	path := cfg.Logging.LogFile
	if path == "" {
		path = config.DefaultLogPath()
	}

	if path == "" {
		return slog.New(newHandler(os.Stderr, cfg, isatty.IsTerminal(os.Stderr.Fd()), daemonLevel))
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     cfg.Logging.LogRetentionDays,
		Compress:   true,
	}

	return slog.New(newHandler(rotator, cfg, false, daemonLevel))
}

func newHandler(w io.Writer, cfg *config.Config, tty bool, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	format := cfg.Logging.LogFormat
	if format == "auto" {
		if tty {
			format = "text"
		} else {
			format = "json"
		}
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func logLevel(cfg *config.Config) slog.Level {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// CLI flags override config.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return level
}
