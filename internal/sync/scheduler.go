package sync

import (
	"context"
	"log/slog"
	"time"
)

// pendingCounter is the slice of the local store the scheduler needs.
type pendingCounter interface {
	CountPendingChanges(ctx context.Context) (map[string]int, error)
}

// Scheduler triggers periodic sync cycles while there is something to
// push. The first tick fires one full interval after Run starts; cycles
// with nothing pending are skipped entirely, so an idle device stays
// quiet between remote change notifications.
type Scheduler struct {
	orchestrator *Orchestrator
	provider     IdentityProvider
	network      NetworkMonitor
	pending      pendingCounter
	interval     func() time.Duration
	logger       *slog.Logger
}

// NewScheduler creates a Scheduler. The interval is read through the
// callback on every tick, so a config reload changes the cadence without
// a restart.
func NewScheduler(orchestrator *Orchestrator, provider IdentityProvider, network NetworkMonitor, pending pendingCounter, interval func() time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		provider:     provider,
		network:      network,
		pending:      pending,
		interval:     interval,
		logger:       logger,
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	current := s.interval()

	ticker := time.NewTicker(current)
	defer ticker.Stop()

	s.logger.Info("scheduler started", slog.Duration("interval", current))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)

			if next := s.interval(); next > 0 && next != current {
				current = next
				ticker.Reset(current)
				s.logger.Info("poll interval updated", slog.Duration("interval", current))
			}
		}
	}
}

// tick runs the gate checks and triggers a cycle when they all pass.
// Failed checks are quiet at Info level; a tick that finds nothing to do
// is normal operation, not an event.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.provider.Ready() {
		s.logger.Debug("tick skipped: not signed in")
		return
	}

	if !s.network.Online() {
		s.logger.Debug("tick skipped: offline")
		return
	}

	if s.orchestrator.Status().InProgress {
		s.logger.Debug("tick skipped: sync in flight")
		return
	}

	counts, err := s.pending.CountPendingChanges(ctx)
	if err != nil {
		s.logger.Warn("pending-change count failed", slog.String("error", err.Error()))
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	if total == 0 {
		s.logger.Debug("tick skipped: nothing pending")
		return
	}

	s.logger.Debug("tick triggering sync", slog.Int("pending", total))

	s.orchestrator.TriggerSync(ctx)
}
