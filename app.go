package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/auth"
	"github.com/habistat/habistat-go/internal/config"
	"github.com/habistat/habistat-go/internal/store"
	"github.com/habistat/habistat-go/internal/sync"
)

// dataDirPermissions is the mode for the data directory holding the
// database and token file.
const dataDirPermissions = 0o700

// app bundles the wired engine for one command invocation. Build it with
// newApp and release it with Close.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.SQLiteStore
	provider     *auth.Provider
	client       *api.Client
	correlator   *sync.Correlator
	migrator     *sync.Migrator
	network      *sync.ProbeMonitor
	orchestrator *sync.Orchestrator
}

// newApp wires the full engine from the resolved config: store, auth,
// API client, per-entity syncers in dependency order, and the
// orchestrator over them.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Sync.DatabasePath), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	st, err := store.Open(cfg.Sync.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	provider, err := auth.NewProvider(auth.Config{
		TokenPath:   cfg.Auth.TokenFile,
		ClientID:    cfg.Auth.ClientID,
		TokenURL:    cfg.Auth.TokenURL,
		DeviceURL:   cfg.Auth.DeviceURL,
		IdentityURL: cfg.Auth.IdentityURL,
		HTTPClient:  defaultHTTPClient(),
		Logger:      logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	client := api.NewClient(cfg.Service.BaseURL, defaultHTTPClient(), provider, logger)
	clock := sync.SystemClock{}
	correlator := sync.NewCorrelator(store.EntityHabits, st, client, logger)
	pageSize := cfg.Service.PageSize

	syncers := []sync.EntitySyncer{
		sync.NewCalendarSyncer(st, client, provider, clock, pageSize, logger),
		sync.NewHabitSyncer(st, client, correlator, provider, clock, pageSize, logger),
		sync.NewActivitySyncer(st, client, provider, clock, pageSize, logger),
		sync.NewCompletionSyncer(st, client, correlator, provider, clock, pageSize, logger),
	}

	network := sync.NewProbeMonitor(cfg.Service.BaseURL+"/health",
		cfg.Network.ProbeIntervalDuration(), defaultHTTPClient(), logger)

	orchestrator := sync.NewOrchestrator(syncers, provider, network, clock,
		cfg.Sync.SyncTimeoutDuration(), logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		provider:     provider,
		client:       client,
		correlator:   correlator,
		migrator:     sync.NewMigrator(st, clock, logger),
		network:      network,
		orchestrator: orchestrator,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}
