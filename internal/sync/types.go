// Package sync implements the local-first synchronization engine for
// habistat-go: conflict resolution, id correlation, per-entity-type
// syncers, anonymous-to-authenticated migration, and the orchestrator
// that sequences a full sync across entity types.
package sync

import (
	"context"
	"errors"

	"github.com/habistat/habistat-go/internal/auth"
)

// Error taxonomy. Per-record errors are swallowed and logged at the batch
// level; per-entity-type errors are swallowed at the orchestrator level.
// Only precondition failures short-circuit before any work begins.
var (
	ErrAuthNotReady       = errors.New("sync: auth not ready")
	ErrNetworkUnavailable = errors.New("sync: network unavailable")
	ErrAlreadySyncing     = errors.New("sync: already syncing")
	ErrSyncWaitTimeout    = errors.New("sync: cycle still running, wait timed out")
	ErrUnresolvedParent   = errors.New("sync: parent not yet synced")
)

// ResultStatus classifies the outcome of one entity type's sync cycle.
type ResultStatus int

const (
	ResultSuccess ResultStatus = iota
	ResultPartial
	ResultFatal
)

func (s ResultStatus) String() string {
	switch s {
	case ResultSuccess:
		return "success"
	case ResultPartial:
		return "partial"
	default:
		return "fatal"
	}
}

// Result reports one entity type's sync cycle. Reasons holds collected
// non-fatal failure descriptions for ResultPartial, or the single fatal
// reason for ResultFatal.
type Result struct {
	Status  ResultStatus
	Reasons []string

	Pulled  int // remote records applied locally
	Pushed  int // local records accepted by the service
	Skipped int // records deferred to a later cycle (unresolved parents)
}

// State is the orchestrator's user-visible status.
type State int

const (
	StateIdle State = iota
	StateSyncing
	StateSynced
	StateError
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSyncing:
		return "syncing"
	case StateSynced:
		return "synced"
	case StateError:
		return "error"
	default:
		return "offline"
	}
}

// IdentityProvider is the slice of the auth provider the engine needs.
// Implemented by *auth.Provider.
type IdentityProvider interface {
	CurrentUser() (*auth.Identity, bool)
	Ready() bool
}

// NetworkMonitor signals online/offline transitions. Implemented by
// *ProbeMonitor; tests use a stub.
type NetworkMonitor interface {
	Online() bool
	Events() <-chan bool
}

// EntitySyncer is the orchestrator's view of one entity type's syncer.
type EntitySyncer interface {
	EntityType() string
	Sync(ctx context.Context, ownerID string) Result
}
