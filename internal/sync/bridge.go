package sync

import (
	"context"
	"log/slog"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/auth"
)

// userEnsurer is the slice of the API client the bridge needs to register
// the signed-in user with the service before first push.
type userEnsurer interface {
	EnsureUser(ctx context.Context, user api.User) error
}

// clearStore is the slice of the local store the bridge needs on sign-out.
type clearStore interface {
	ClearOwnedRecords(ctx context.Context, ownerID string) error
}

// authSource is the slice of the auth provider the bridge consumes.
type authSource interface {
	CurrentUser() (*auth.Identity, bool)
	Events() <-chan auth.Event
}

// bridgePhase tracks whether the bridge has observed the auth state at
// least once. The first observation primes the bridge without triggering
// any action: an already-signed-in session at process start is not a fresh
// sign-in, and reacting to it would re-run migration on every launch.
type bridgePhase int

const (
	phaseUnprimed bridgePhase = iota
	phasePrimed
)

// Bridge connects auth lifecycle transitions to the sync engine. A fresh
// sign-in registers the user, migrates anonymous local data to the new
// owner, and starts a full sync; a sign-out removes the signed-out user's
// local data and sync state.
type Bridge struct {
	source       authSource
	users        userEnsurer
	store        clearStore
	migrator     *Migrator
	orchestrator *Orchestrator
	logger       *slog.Logger

	phase     bridgePhase
	lastOwner string // "" while signed out
}

// NewBridge creates a Bridge. Run must be called for it to do anything.
func NewBridge(source authSource, users userEnsurer, st clearStore, migrator *Migrator, orchestrator *Orchestrator, logger *slog.Logger) *Bridge {
	return &Bridge{
		source:       source,
		users:        users,
		store:        st,
		migrator:     migrator,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Run primes the bridge from the current auth state, then reacts to
// transitions until ctx is cancelled or the event channel closes.
func (b *Bridge) Run(ctx context.Context) {
	b.prime()

	events := b.source.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}

			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) prime() {
	if b.phase == phasePrimed {
		return
	}

	if identity, ok := b.source.CurrentUser(); ok {
		b.lastOwner = identity.UserID
	}

	b.phase = phasePrimed

	b.logger.Debug("auth bridge primed", slog.Bool("signed_in", b.lastOwner != ""))
}

// handle processes one auth transition. Duplicate events for the current
// owner are ignored; only genuine transitions act.
func (b *Bridge) handle(ctx context.Context, ev auth.Event) {
	switch ev.Type {
	case auth.SignedIn:
		if ev.Identity == nil || ev.Identity.UserID == "" {
			b.logger.Warn("sign-in event without identity, ignoring")
			return
		}

		if ev.Identity.UserID == b.lastOwner {
			return
		}

		b.onSignIn(ctx, ev.Identity)

	case auth.SignedOut:
		if b.lastOwner == "" {
			return
		}

		b.onSignOut(ctx, b.lastOwner)
	}
}

// onSignIn runs the sign-in sequence: ensure the user exists remotely,
// migrate anonymous data to the new owner, then sync. Migration runs before
// the sync so the migrated records are part of the first push; the initial
// pull still lands first because the per-type syncers sequence pull before
// push on a fresh cursor.
func (b *Bridge) onSignIn(ctx context.Context, identity *auth.Identity) {
	b.logger.Info("user signed in", slog.String("user_id", identity.UserID))

	b.lastOwner = identity.UserID

	if err := b.users.EnsureUser(ctx, api.User{
		ID:          identity.UserID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	}); err != nil {
		// The service upserts users idempotently, so the next cycle can
		// retry; sync is not started against an unregistered user.
		b.logger.Error("user registration failed", slog.String("error", err.Error()))
		return
	}

	report, err := b.migrator.Migrate(ctx, identity.UserID)
	if err != nil {
		b.logger.Error("migration failed", slog.String("error", err.Error()))
		return
	}

	if report.Total() > 0 {
		b.logger.Info("local data claimed by new owner",
			slog.Int("records", report.Total()),
			slog.Int("merged", report.Merged),
		)
	}

	if err := b.orchestrator.FullSync(ctx); err != nil {
		b.logger.Warn("post-sign-in sync not started", slog.String("reason", err.Error()))
	}
}

// onSignOut removes the departing owner's records, id mappings, and sync
// cursors. The next sign-in starts from a clean slate with initial-sync
// semantics.
func (b *Bridge) onSignOut(ctx context.Context, ownerID string) {
	b.logger.Info("user signed out", slog.String("user_id", ownerID))

	b.lastOwner = ""

	if err := b.store.ClearOwnedRecords(ctx, ownerID); err != nil {
		b.logger.Error("clearing local data failed", slog.String("error", err.Error()))
	}
}
