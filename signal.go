package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first
// SIGINT/SIGTERM and force-exits on the second, so a hung cycle can still
// be killed by hand. When reload is non-nil, SIGHUP invokes it instead of
// shutting down; the watch daemon uses that to re-read its config.
func shutdownContext(parent context.Context, logger *slog.Logger, reload func()) context.Context {
	ctx, cancel := context.WithCancel(parent)

	watched := []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	if reload != nil {
		watched = append(watched, syscall.SIGHUP)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, watched...)

	go func() {
		defer signal.Stop(sigCh)

		stopping := false

		for {
			select {
			case <-parent.Done():
				return
			case sig := <-sigCh:
				switch {
				case sig == syscall.SIGHUP:
					logger.Info("reloading config on SIGHUP")
					reload()
				case stopping:
					logger.Warn("received second signal, forcing exit",
						slog.String("signal", sig.String()),
					)
					os.Exit(1)
				default:
					logger.Info("received signal, shutting down",
						slog.String("signal", sig.String()),
					)
					cancel()

					stopping = true
				}
			}
		}
	}()

	return ctx
}
