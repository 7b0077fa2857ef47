package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultSyncTimeout bounds how long FullSync waits for the cycle. The
// cycle itself keeps running after the caller stops waiting.
const defaultSyncTimeout = 5 * time.Minute

// Status is a snapshot of the orchestrator's externally visible state.
type Status struct {
	State      State
	LastSync   time.Time
	LastError  string
	LastCycle  map[string]Result // per entity type, from the latest cycle
	InProgress bool
}

// Orchestrator runs full sync cycles across all entity types in dependency
// order: calendars before habits, habits before completions. Cycles are
// single-flight; a trigger that lands mid-cycle is coalesced into one
// follow-up cycle rather than queued.
type Orchestrator struct {
	syncers  []EntitySyncer
	provider IdentityProvider
	network  NetworkMonitor
	clock    Clock
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	state     State
	lastSync  time.Time
	lastError string
	lastCycle map[string]Result
	running   bool
	rerun     bool
}

// NewOrchestrator creates an Orchestrator over the given syncers, which run
// in slice order. A timeout <= 0 selects the default.
func NewOrchestrator(syncers []EntitySyncer, provider IdentityProvider, network NetworkMonitor, clock Clock, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}

	return &Orchestrator{
		syncers:  syncers,
		provider: provider,
		network:  network,
		clock:    clock,
		timeout:  timeout,
		logger:   logger,
		state:    StateIdle,
	}
}

// Status returns a snapshot of the current sync state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	cycle := make(map[string]Result, len(o.lastCycle))
	for k, v := range o.lastCycle {
		cycle[k] = v
	}

	return Status{
		State:      o.state,
		LastSync:   o.lastSync,
		LastError:  o.lastError,
		LastCycle:  cycle,
		InProgress: o.running,
	}
}

// FullSync runs one complete cycle. Returns ErrAlreadySyncing when a cycle
// is in flight, ErrAuthNotReady before sign-in, and ErrNetworkUnavailable
// when offline; none of these start a cycle. When the cycle outlasts the
// configured timeout, FullSync returns ErrSyncWaitTimeout and the cycle
// continues in the background; Status exposes its outcome once it lands.
func (o *Orchestrator) FullSync(ctx context.Context) error {
	if err := o.begin(); err != nil {
		return err
	}

	done := make(chan error, 1)

	go func() {
		err := o.runCycle(ctx)
		o.finish()
		done <- err
	}()

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		o.logger.Warn("sync cycle still running, caller stopped waiting",
			slog.Duration("waited", o.timeout),
		)

		return ErrSyncWaitTimeout
	}
}

// TriggerSync requests a cycle without waiting for it. A trigger during an
// active cycle marks it for one re-run when the cycle ends, so a burst of
// change notifications costs at most one extra cycle.
func (o *Orchestrator) TriggerSync(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.rerun = true
		o.mu.Unlock()

		return
	}
	o.mu.Unlock()

	go func() {
		for {
			if err := o.FullSync(ctx); err != nil {
				o.logger.Debug("triggered sync not started", slog.String("reason", err.Error()))
				return
			}

			o.mu.Lock()
			again := o.rerun
			o.rerun = false
			o.mu.Unlock()

			if !again {
				return
			}
		}
	}()
}

// begin checks preconditions and transitions to Syncing, or reports why the
// cycle cannot start.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadySyncing
	}

	if !o.provider.Ready() {
		o.state = StateIdle
		return ErrAuthNotReady
	}

	if !o.network.Online() {
		o.state = StateOffline
		return ErrNetworkUnavailable
	}

	o.running = true
	o.state = StateSyncing

	return nil
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

// runCycle executes the syncers in order. Entity types are isolated: one
// type's partial failure does not stop the types after it, but the cycle as
// a whole ends in Error so the caller knows a retry is needed.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	identity, ok := o.provider.CurrentUser()
	if !ok {
		o.conclude(StateError, ErrAuthNotReady.Error(), nil)
		return ErrAuthNotReady
	}

	ownerID := identity.UserID
	start := time.Now()

	o.logger.Info("full sync starting", slog.String("owner_id", ownerID))

	results := make(map[string]Result, len(o.syncers))
	clean := true

	for _, syncer := range o.syncers {
		res := syncer.Sync(ctx, ownerID)
		results[syncer.EntityType()] = res

		if res.Status != ResultSuccess {
			clean = false
		}

		if res.Status == ResultFatal {
			o.logger.Error("entity sync failed",
				slog.String("entity_type", syncer.EntityType()),
				slog.Any("reasons", res.Reasons),
			)
		}
	}

	if clean {
		o.conclude(StateSynced, "", results)
	} else {
		o.conclude(StateError, firstReason(results), results)
	}

	o.logger.Info("full sync finished",
		slog.Bool("clean", clean),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

func (o *Orchestrator) conclude(state State, lastError string, results map[string]Result) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.state = state
	o.lastError = lastError
	o.lastCycle = results

	if state == StateSynced {
		o.lastSync = time.UnixMilli(o.clock.NowMillis())
	}
}

func firstReason(results map[string]Result) string {
	for _, res := range results {
		if len(res.Reasons) > 0 {
			return res.Reasons[0]
		}
	}

	return "sync incomplete"
}
