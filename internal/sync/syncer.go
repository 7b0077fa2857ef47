package sync

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/habistat/habistat-go/internal/api"
)

// cursorStore is the slice of the local store the syncer needs for cursor
// persistence. Implemented by *store.SQLiteStore.
type cursorStore interface {
	GetSyncCursor(ctx context.Context, entityType string) (int64, error)
	SaveSyncCursor(ctx context.Context, entityType string, ms int64) error
}

// PageOutcome reports the application of one pulled page.
type PageOutcome struct {
	Applied int
	Skipped int      // deferred: unresolved parent, retried next cycle
	Seen    []string // local UUIDs present in the page, for absence reconciliation
}

// EntityOps is the per-entity-type adapter a Syncer drives. Each entity
// type (calendars, habits, completions, activity days) provides one,
// wiring the local store, the remote API, and, where the type has a
// sync-correlated foreign key, the id correlator.
type EntityOps[T api.Record] interface {
	// FetchPage fetches one page of remote changes after sinceMs.
	FetchPage(ctx context.Context, sinceMs int64, cursor string) (*api.Page[T], error)

	// ApplyPage conflict-resolves pulled records and applies the winners to
	// the local store. Unresolvable records (missing parents) are skipped,
	// not failed. Parent id resolution is batched per page.
	ApplyPage(ctx context.Context, records []T, initial bool) (PageOutcome, error)

	// ListPending returns local changes after sinceMs as wire records ready
	// to push, foreign keys mapped. Records whose parent has never been
	// pushed are dropped from the result and counted in skipped.
	ListPending(ctx context.Context, ownerID string, sinceMs int64) (pending []T, skipped int, err error)

	// Push submits one bounded batch to the service.
	Push(ctx context.Context, records []T) (*api.BatchResult, error)

	// ListOwnedIDs returns the local UUIDs of all records owned by ownerID.
	// Used only during initial sync to reconcile deletions by absence.
	ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error)

	// DeleteLocal removes a local record by UUID.
	DeleteLocal(ctx context.Context, localID string) error
}

// Syncer reconciles one entity type between the local store and the remote
// service. The first sync for a type (cursor == 0) pulls to completion
// before pushing and treats the remote as authoritative; steady-state
// cycles pull and push concurrently and merge by Last-Write-Wins.
type Syncer[T api.Record] struct {
	entityType string
	cursors    cursorStore
	provider   IdentityProvider
	clock      Clock
	ops        EntityOps[T]
	logger     *slog.Logger
}

// NewSyncer creates a Syncer for one entity type.
func NewSyncer[T api.Record](
	entityType string,
	cursors cursorStore,
	provider IdentityProvider,
	clock Clock,
	ops EntityOps[T],
	logger *slog.Logger,
) *Syncer[T] {
	return &Syncer[T]{
		entityType: entityType,
		cursors:    cursors,
		provider:   provider,
		clock:      clock,
		ops:        ops,
		logger:     logger,
	}
}

// EntityType returns the entity type name this syncer handles.
func (s *Syncer[T]) EntityType() string { return s.entityType }

// Sync runs one pull+push cycle. The cursor only advances when both
// directions complete without failure and nothing was deferred; a partial
// or deferring cycle retries the same window next time. Application is
// idempotent (upsert by local UUID), so at-least-once delivery is safe.
func (s *Syncer[T]) Sync(ctx context.Context, ownerID string) Result {
	if ownerID == "" || !s.provider.Ready() {
		return Result{Status: ResultFatal, Reasons: []string{ErrAuthNotReady.Error()}}
	}

	cursor, err := s.cursors.GetSyncCursor(ctx, s.entityType)
	if err != nil {
		return Result{Status: ResultFatal, Reasons: []string{err.Error()}}
	}

	initial := cursor == 0
	// The new cursor is stamped from cycle start, not completion, so
	// changes landing mid-cycle fall inside the next window.
	started := s.clock.NowMillis()

	s.logger.Info("entity sync starting",
		slog.String("entity_type", s.entityType),
		slog.Bool("initial", initial),
		slog.Int64("cursor", cursor),
	)

	var result Result
	if initial {
		result = s.syncInitial(ctx, ownerID, cursor)
	} else {
		result = s.syncSteadyState(ctx, ownerID, cursor)
	}

	if result.Status == ResultSuccess {
		if result.Skipped > 0 {
			// Deferred records are only re-delivered by a pull, and only
			// re-listed by a push, from the old window. Holding the cursor
			// keeps them inside it until their parents resolve.
			s.logger.Info("holding cursor for deferred records",
				slog.String("entity_type", s.entityType),
				slog.Int("skipped", result.Skipped),
			)
		} else if err := s.cursors.SaveSyncCursor(ctx, s.entityType, started); err != nil {
			result.Status = ResultPartial
			result.Reasons = append(result.Reasons, err.Error())
		}
	}

	s.logger.Info("entity sync finished",
		slog.String("entity_type", s.entityType),
		slog.String("status", result.Status.String()),
		slog.Int("pulled", result.Pulled),
		slog.Int("pushed", result.Pushed),
		slog.Int("skipped", result.Skipped),
	)

	return result
}

// syncInitial pulls fully to completion, reconciles local deletions by
// absence, then pushes. Sequencing guarantees the device's local view is
// seeded from the server before any local-only data is uploaded.
func (s *Syncer[T]) syncInitial(ctx context.Context, ownerID string, cursor int64) Result {
	var result Result

	pull := s.pull(ctx, cursor, true)
	result.Pulled = pull.applied
	result.Skipped += pull.skipped

	if pull.err != nil {
		// Without a complete pull the absence reconciliation and the push
		// would race server truth; retry the whole window next cycle.
		result.Status = ResultPartial
		result.Reasons = append(result.Reasons, pull.err.Error())

		return result
	}

	pending, pendingSkipped, err := s.ops.ListPending(ctx, ownerID, cursor)
	if err != nil {
		result.Status = ResultPartial
		result.Reasons = append(result.Reasons, err.Error())

		return result
	}

	result.Skipped += pendingSkipped

	baseline, err := s.cursors.GetSyncCursor(ctx, fullSyncBaseline(s.entityType))
	if err != nil {
		result.Status = ResultPartial
		result.Reasons = append(result.Reasons, err.Error())

		return result
	}

	// Records changed after the baseline may exist only on this device, so
	// they are uploaded, not dropped. Anything older was covered by a push
	// before the cursor was reset; for those, server absence means the
	// record was deleted remotely.
	deleted, err := s.reconcileAbsent(ctx, ownerID, pull.seen, pending, baseline)
	if err != nil {
		result.Status = ResultPartial
		result.Reasons = append(result.Reasons, err.Error())

		return result
	}

	if len(deleted) > 0 {
		s.logger.Info("initial sync removed records absent from server",
			slog.String("entity_type", s.entityType),
			slog.Int("deleted", len(deleted)),
		)

		kept := pending[:0]

		for _, rec := range pending {
			if _, gone := deleted[rec.Key()]; !gone {
				kept = append(kept, rec)
			}
		}

		pending = kept
	}

	pushed, pushReasons := s.pushBatches(ctx, pending)
	result.Pushed = pushed
	result.Reasons = append(result.Reasons, pushReasons...)

	if len(result.Reasons) > 0 {
		result.Status = ResultPartial
	}

	return result
}

// syncSteadyState runs pull and push concurrently. A failure in one
// direction does not block the other; failures are collected, not thrown.
func (s *Syncer[T]) syncSteadyState(ctx context.Context, ownerID string, cursor int64) Result {
	var (
		pullOut             pullOutcome
		pushed, pushSkipped int
		pushReasons         []string
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pullOut = s.pull(gctx, cursor, false)
		return nil
	})

	g.Go(func() error {
		pushed, pushSkipped, pushReasons = s.push(gctx, ownerID, cursor)
		return nil
	})

	// Both goroutines collect failures instead of returning them.
	_ = g.Wait()

	result := Result{
		Pulled:  pullOut.applied,
		Pushed:  pushed,
		Skipped: pullOut.skipped + pushSkipped,
		Reasons: pushReasons,
	}

	if pullOut.err != nil {
		result.Reasons = append(result.Reasons, pullOut.err.Error())
	}

	if len(result.Reasons) > 0 {
		result.Status = ResultPartial
	}

	return result
}

type pullOutcome struct {
	applied int
	skipped int
	seen    []string
	err     error
}

// pull pages through remote changes sequentially until exhausted. Pages are
// never processed concurrently; cursor-advance correctness depends on
// in-order application.
func (s *Syncer[T]) pull(ctx context.Context, sinceMs int64, initial bool) pullOutcome {
	var out pullOutcome

	pageCursor := ""

	for {
		page, err := s.ops.FetchPage(ctx, sinceMs, pageCursor)
		if err != nil {
			out.err = fmt.Errorf("pull %s: %w", s.entityType, err)
			return out
		}

		outcome, err := s.ops.ApplyPage(ctx, page.Records, initial)
		if err != nil {
			out.err = fmt.Errorf("apply %s page: %w", s.entityType, err)
			return out
		}

		out.applied += outcome.Applied
		out.skipped += outcome.Skipped
		out.seen = append(out.seen, outcome.Seen...)

		if page.Done {
			return out
		}

		pageCursor = page.NextCursor
	}
}

// push submits pending local changes in bounded batches. A failed batch is
// recorded and the remaining batches still go out; rejected records are
// logged and dropped (the service refused them, retrying the same payload
// cannot succeed).
func (s *Syncer[T]) push(ctx context.Context, ownerID string, sinceMs int64) (pushed, skipped int, reasons []string) {
	pending, skipped, err := s.ops.ListPending(ctx, ownerID, sinceMs)
	if err != nil {
		return 0, skipped, []string{fmt.Sprintf("push %s: %v", s.entityType, err)}
	}

	pushed, reasons = s.pushBatches(ctx, pending)

	return pushed, skipped, reasons
}

func (s *Syncer[T]) pushBatches(ctx context.Context, pending []T) (pushed int, reasons []string) {
	for start := 0; start < len(pending); start += api.MaxBatchSize {
		end := min(start+api.MaxBatchSize, len(pending))

		res, err := s.ops.Push(ctx, pending[start:end])
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("push %s batch: %v", s.entityType, err))
			continue
		}

		pushed += res.Upserted

		for _, rej := range res.Rejected {
			s.logger.Warn("service rejected record",
				slog.String("entity_type", s.entityType),
				slog.String("local_uuid", rej.LocalUUID),
				slog.String("reason", rej.Reason),
			)
		}
	}

	return pushed, reasons
}

// reconcileAbsent deletes owned local records missing from the full remote
// enumeration and returns their ids. Only runs during initial sync: the
// server is authoritative on first contact. Pending records with a stamp
// newer than the baseline are protected; they have never been covered by a
// push, so the server cannot know them. Steady-state cycles never delete
// by absence, a known limitation carried over deliberately; cross-device
// deletions propagate on the next from-zero sync.
func (s *Syncer[T]) reconcileAbsent(ctx context.Context, ownerID string, seen []string, pending []T, baseline int64) (map[string]struct{}, error) {
	owned, err := s.ops.ListOwnedIDs(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", s.entityType, err)
	}

	keep := make(map[string]struct{}, len(seen)+len(pending))
	for _, id := range seen {
		keep[id] = struct{}{}
	}

	for _, rec := range pending {
		if rec.Stamp() > baseline {
			keep[rec.Key()] = struct{}{}
		}
	}

	deleted := make(map[string]struct{})

	for _, id := range owned {
		if _, ok := keep[id]; ok {
			continue
		}

		if err := s.ops.DeleteLocal(ctx, id); err != nil {
			return deleted, fmt.Errorf("reconcile %s: %w", s.entityType, err)
		}

		deleted[id] = struct{}{}
	}

	return deleted, nil
}

// fullSyncBaseline names the auxiliary cursor row recording where the
// cursor stood before a forced from-zero sync.
func fullSyncBaseline(entityType string) string {
	return entityType + ".baseline"
}

// ResetForFullSync zeroes the given entity types' cursors so the next
// cycle runs with initial-sync semantics and reconciles remote deletions
// by absence. The outgoing cursor is kept as the baseline separating
// previously-synced records from local-only ones; repeated resets before
// a cycle completes keep the first baseline.
func ResetForFullSync(ctx context.Context, cursors cursorStore, entityTypes []string) error {
	for _, entityType := range entityTypes {
		cursor, err := cursors.GetSyncCursor(ctx, entityType)
		if err != nil {
			return fmt.Errorf("reset %s cursor: %w", entityType, err)
		}

		if cursor == 0 {
			continue
		}

		if err := cursors.SaveSyncCursor(ctx, fullSyncBaseline(entityType), cursor); err != nil {
			return fmt.Errorf("reset %s cursor: %w", entityType, err)
		}

		if err := cursors.SaveSyncCursor(ctx, entityType, 0); err != nil {
			return fmt.Errorf("reset %s cursor: %w", entityType, err)
		}
	}

	return nil
}
