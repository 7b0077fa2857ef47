package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/habistat/habistat-go/internal/config"
	"github.com/habistat/habistat-go/internal/sync"
)

// watchPIDFileName is the daemon's PID file inside the data directory.
const watchPIDFileName = "watch.pid"

// subscribeRetryDelay is the pause before redialing a dropped change
// subscription.
const subscribeRetryDelay = 30 * time.Second

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync daemon",
		Long: `Continuously synchronize local data with the service.

The daemon syncs on a timer whenever local changes are pending, reacts to
live change notifications from the service, and handles sign-in and
sign-out without a restart. Edits to the config file are picked up on the
fly.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg
	logger := buildDaemonLogger(cfg)

	cleanup, err := writePIDFile(filepath.Join(filepath.Dir(cfg.Sync.DatabasePath), watchPIDFileName))
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	holder := config.NewHolder(cfg, configPathInUse())

	ctx := shutdownContext(cmd.Context(), logger, func() {
		reloadConfig(a, holder, logger)
	})

	// The poll interval is read through the holder so a reload changes the
	// cadence without a restart.
	scheduler := sync.NewScheduler(a.orchestrator, a.provider, a.network, a.store,
		func() time.Duration { return holder.Config().Sync.PollIntervalDuration() },
		logger)

	bridge := sync.NewBridge(a.provider, a.client, a.store, a.migrator, a.orchestrator, logger)

	go a.network.Run(ctx)
	go bridge.Run(ctx)
	go scheduler.Run(ctx)
	go watchNetworkEvents(ctx, a, logger)
	go watchConfigFile(ctx, a, holder, logger)

	if cfg.Service.Websocket {
		go subscribeChanges(ctx, a, logger)
	}

	logger.Info("watch daemon started", slog.String("server", cfg.Service.BaseURL))

	// One cycle up front so a freshly-started daemon converges immediately
	// instead of waiting out the first poll interval.
	if err := a.orchestrator.FullSync(ctx); err != nil {
		logger.Info("startup sync not run", slog.String("reason", err.Error()))
	}

	<-ctx.Done()

	logger.Info("watch daemon stopping")

	return nil
}

// watchNetworkEvents triggers a sync when connectivity returns, so offline
// edits converge as soon as the service is reachable again.
func watchNetworkEvents(ctx context.Context, a *app, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-a.network.Events():
			if !ok {
				return
			}

			if online {
				logger.Info("back online, triggering sync")
				a.orchestrator.TriggerSync(ctx)
			}
		}
	}
}

// subscribeChanges keeps a change-notification subscription open and
// triggers a sync for every notice. The subscription is an optimization
// over polling, so failures only ever degrade to the scheduler's cadence.
func subscribeChanges(ctx context.Context, a *app, logger *slog.Logger) {
	for ctx.Err() == nil {
		notices, err := a.client.Subscribe(ctx)
		if err != nil {
			logger.Warn("change subscription failed, will retry",
				slog.String("error", err.Error()),
			)

			if !sleepCtx(ctx, subscribeRetryDelay) {
				return
			}

			continue
		}

		logger.Info("subscribed to change notifications")

		for notice := range notices {
			logger.Debug("change notice received", slog.String("entity_type", notice.EntityType))
			a.orchestrator.TriggerSync(ctx)
		}

		// Channel closed: connection dropped. Redial after a pause.
		if !sleepCtx(ctx, subscribeRetryDelay) {
			return
		}
	}
}

// watchConfigFile reloads the config when the file changes. Editors often
// replace rather than write in place, so the parent directory is watched
// and re-armed after rename events. A reload that fails validation keeps
// the previous config.
func watchConfigFile(ctx context.Context, a *app, holder *config.Holder, logger *slog.Logger) {
	path := holder.Path()
	if path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			reloadConfig(a, holder, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func reloadConfig(a *app, holder *config.Holder, logger *slog.Logger) {
	if holder.Path() == "" {
		return
	}

	cfg, err := config.Load(holder.Path())
	if err != nil {
		logger.Warn("config reload rejected, keeping previous config",
			slog.String("error", err.Error()),
		)

		return
	}

	holder.Update(cfg)
	updateDaemonLogLevel(cfg)
	a.network.SetInterval(cfg.Network.ProbeIntervalDuration())

	logger.Info("config reloaded", slog.String("path", holder.Path()))
}

// configPathInUse returns the config file path the current invocation
// resolved against, mirroring the precedence in config.Resolve.
func configPathInUse() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	if env := config.ReadEnvOverrides(); env.ConfigPath != "" {
		return env.ConfigPath
	}

	return config.DefaultConfigPath()
}

// sleepCtx sleeps for d unless ctx is cancelled first. Reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
