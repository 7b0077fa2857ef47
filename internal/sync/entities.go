package sync

import (
	"context"
	"log/slog"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/store"
)

// defaultPageSize is the pull page size used when the config leaves it unset.
const defaultPageSize = 500

// calendarOps adapts calendars to the generic syncer. Calendars have no
// foreign keys, so pull application is plain conflict resolution.
type calendarOps struct {
	store    *store.SQLiteStore
	client   *api.Client
	clock    Clock
	pageSize int
	logger   *slog.Logger
}

// NewCalendarSyncer builds the syncer for calendars.
func NewCalendarSyncer(st *store.SQLiteStore, client *api.Client, provider IdentityProvider, clock Clock, pageSize int, logger *slog.Logger) *Syncer[api.Calendar] {
	ops := &calendarOps{store: st, client: client, clock: clock, pageSize: normalizePageSize(pageSize), logger: logger}
	return NewSyncer(store.EntityCalendars, st, provider, clock, ops, logger)
}

func (o *calendarOps) FetchPage(ctx context.Context, sinceMs int64, cursor string) (*api.Page[api.Calendar], error) {
	return api.ChangesSince[api.Calendar](ctx, o.client, store.EntityCalendars, sinceMs, o.pageSize, cursor)
}

func (o *calendarOps) ApplyPage(ctx context.Context, records []api.Calendar, initial bool) (PageOutcome, error) {
	var out PageOutcome

	now := o.clock.NowMillis()

	for _, rec := range records {
		out.Seen = append(out.Seen, rec.LocalUUID)

		local, err := o.store.GetCalendar(ctx, rec.LocalUUID)
		if err != nil {
			return out, err
		}

		if Resolve(stampOf(local), rec.ClientUpdatedAt, initial) == ActionIgnore {
			continue
		}

		row := &store.Calendar{
			ID:              rec.LocalUUID,
			OwnerID:         rec.OwnerID,
			Name:            rec.Name,
			ColorTheme:      rec.ColorTheme,
			Position:        rec.Position,
			IsEnabled:       rec.IsEnabled,
			ClientUpdatedAt: rec.ClientUpdatedAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := o.store.UpsertCalendar(ctx, row); err != nil {
			return out, err
		}

		out.Applied++
	}

	return out, nil
}

func (o *calendarOps) ListPending(ctx context.Context, ownerID string, sinceMs int64) ([]api.Calendar, int, error) {
	rows, err := o.store.ListCalendarsChangedSince(ctx, sinceMs)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]api.Calendar, 0, len(rows))

	for _, row := range rows {
		if !ownedBy(row.OwnerID, ownerID) {
			continue
		}

		pending = append(pending, api.Calendar{
			LocalUUID:       row.ID,
			OwnerID:         row.OwnerID,
			Name:            api.NormalizeName(row.Name),
			ColorTheme:      row.ColorTheme,
			Position:        row.Position,
			IsEnabled:       row.IsEnabled,
			ClientUpdatedAt: row.ClientUpdatedAt,
		})
	}

	return pending, 0, nil
}

func (o *calendarOps) Push(ctx context.Context, records []api.Calendar) (*api.BatchResult, error) {
	return api.BatchUpsert(ctx, o.client, store.EntityCalendars, records)
}

func (o *calendarOps) ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := o.store.ListCalendarsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids, nil
}

func (o *calendarOps) DeleteLocal(ctx context.Context, localID string) error {
	return o.store.DeleteCalendar(ctx, localID)
}

// habitOps adapts habits. The calendar reference travels as the calendar's
// local UUID, so no id correlation is needed; a pulled habit whose calendar
// has not arrived locally yet is deferred to the next cycle. Pulled habits
// carry the server-assigned id alongside the local UUID, which is where the
// correlator learns mappings for free.
type habitOps struct {
	store      *store.SQLiteStore
	client     *api.Client
	correlator *Correlator
	clock      Clock
	pageSize   int
	logger     *slog.Logger
}

// NewHabitSyncer builds the syncer for habits. The correlator is shared
// with the completion syncer.
func NewHabitSyncer(st *store.SQLiteStore, client *api.Client, correlator *Correlator, provider IdentityProvider, clock Clock, pageSize int, logger *slog.Logger) *Syncer[api.Habit] {
	ops := &habitOps{store: st, client: client, correlator: correlator, clock: clock, pageSize: normalizePageSize(pageSize), logger: logger}
	return NewSyncer(store.EntityHabits, st, provider, clock, ops, logger)
}

func (o *habitOps) FetchPage(ctx context.Context, sinceMs int64, cursor string) (*api.Page[api.Habit], error) {
	return api.ChangesSince[api.Habit](ctx, o.client, store.EntityHabits, sinceMs, o.pageSize, cursor)
}

func (o *habitOps) ApplyPage(ctx context.Context, records []api.Habit, initial bool) (PageOutcome, error) {
	var out PageOutcome

	now := o.clock.NowMillis()

	// One existence probe per distinct calendar in the page.
	calendarKnown := make(map[string]bool)

	for _, rec := range records {
		out.Seen = append(out.Seen, rec.LocalUUID)

		if rec.ID != "" {
			if err := o.correlator.Record(ctx, rec.LocalUUID, rec.ID); err != nil {
				return out, err
			}
		}

		known, probed := calendarKnown[rec.CalendarLocalUUID]
		if !probed {
			cal, err := o.store.GetCalendar(ctx, rec.CalendarLocalUUID)
			if err != nil {
				return out, err
			}

			known = cal != nil
			calendarKnown[rec.CalendarLocalUUID] = known
		}

		if !known {
			o.logger.Debug("deferring habit with unknown calendar",
				slog.String("habit", rec.LocalUUID),
				slog.String("calendar", rec.CalendarLocalUUID),
			)

			out.Skipped++

			continue
		}

		local, err := o.store.GetHabit(ctx, rec.LocalUUID)
		if err != nil {
			return out, err
		}

		if Resolve(stampOf(local), rec.ClientUpdatedAt, initial) == ActionIgnore {
			continue
		}

		row := &store.Habit{
			ID:              rec.LocalUUID,
			OwnerID:         rec.OwnerID,
			CalendarID:      rec.CalendarLocalUUID,
			Name:            rec.Name,
			Description:     rec.Description,
			HabitType:       rec.HabitType,
			TimerEnabled:    rec.TimerEnabled,
			TargetDuration:  rec.TargetDuration,
			PointsValue:     rec.PointsValue,
			Position:        rec.Position,
			IsEnabled:       rec.IsEnabled,
			ClientUpdatedAt: rec.ClientUpdatedAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := o.store.UpsertHabit(ctx, row); err != nil {
			return out, err
		}

		out.Applied++
	}

	return out, nil
}

func (o *habitOps) ListPending(ctx context.Context, ownerID string, sinceMs int64) ([]api.Habit, int, error) {
	rows, err := o.store.ListHabitsChangedSince(ctx, sinceMs)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]api.Habit, 0, len(rows))

	for _, row := range rows {
		if !ownedBy(row.OwnerID, ownerID) {
			continue
		}

		pending = append(pending, api.Habit{
			LocalUUID:         row.ID,
			OwnerID:           row.OwnerID,
			CalendarLocalUUID: row.CalendarID,
			Name:              api.NormalizeName(row.Name),
			Description:       row.Description,
			HabitType:         row.HabitType,
			TimerEnabled:      row.TimerEnabled,
			TargetDuration:    row.TargetDuration,
			PointsValue:       row.PointsValue,
			Position:          row.Position,
			IsEnabled:         row.IsEnabled,
			ClientUpdatedAt:   row.ClientUpdatedAt,
		})
	}

	return pending, 0, nil
}

func (o *habitOps) Push(ctx context.Context, records []api.Habit) (*api.BatchResult, error) {
	return api.BatchUpsert(ctx, o.client, store.EntityHabits, records)
}

func (o *habitOps) ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := o.store.ListHabitsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids, nil
}

func (o *habitOps) DeleteLocal(ctx context.Context, localID string) error {
	return o.store.DeleteHabit(ctx, localID)
}

// completionOps adapts completions, the high-volume type. The remote
// representation references habits by server-assigned id; the correlator
// translates in both directions, batched per page so a page referencing M
// distinct habits costs at most one lookup call.
type completionOps struct {
	store      *store.SQLiteStore
	client     *api.Client
	correlator *Correlator
	clock      Clock
	pageSize   int
	logger     *slog.Logger
}

// NewCompletionSyncer builds the syncer for completions.
func NewCompletionSyncer(st *store.SQLiteStore, client *api.Client, correlator *Correlator, provider IdentityProvider, clock Clock, pageSize int, logger *slog.Logger) *Syncer[api.Completion] {
	ops := &completionOps{store: st, client: client, correlator: correlator, clock: clock, pageSize: normalizePageSize(pageSize), logger: logger}
	return NewSyncer(store.EntityCompletions, st, provider, clock, ops, logger)
}

func (o *completionOps) FetchPage(ctx context.Context, sinceMs int64, cursor string) (*api.Page[api.Completion], error) {
	return api.ChangesSince[api.Completion](ctx, o.client, store.EntityCompletions, sinceMs, o.pageSize, cursor)
}

func (o *completionOps) ApplyPage(ctx context.Context, records []api.Completion, initial bool) (PageOutcome, error) {
	var out PageOutcome

	habitIDs := make([]string, 0, len(records))
	seenHabit := make(map[string]struct{}, len(records))

	for _, rec := range records {
		if _, ok := seenHabit[rec.HabitID]; !ok {
			seenHabit[rec.HabitID] = struct{}{}
			habitIDs = append(habitIDs, rec.HabitID)
		}
	}

	localHabits, err := o.correlator.LocalIDs(ctx, habitIDs)
	if err != nil {
		return out, err
	}

	now := o.clock.NowMillis()

	for _, rec := range records {
		out.Seen = append(out.Seen, rec.LocalUUID)

		habitUUID, ok := localHabits[rec.HabitID]
		if !ok {
			// The habit has not landed locally yet. Deferred, not failed;
			// the unchanged cursor brings the record back next cycle.
			o.logger.Debug("deferring completion with unresolved habit",
				slog.String("completion", rec.LocalUUID),
				slog.String("habit_server_id", rec.HabitID),
			)

			out.Skipped++

			continue
		}

		local, err := o.store.GetCompletion(ctx, rec.LocalUUID)
		if err != nil {
			return out, err
		}

		if Resolve(stampOf(local), rec.ClientUpdatedAt, initial) == ActionIgnore {
			continue
		}

		row := &store.Completion{
			ID:              rec.LocalUUID,
			OwnerID:         rec.OwnerID,
			HabitID:         habitUUID,
			CompletedAt:     rec.CompletedAt,
			ClientUpdatedAt: rec.ClientUpdatedAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := o.store.UpsertCompletion(ctx, row); err != nil {
			return out, err
		}

		out.Applied++
	}

	return out, nil
}

func (o *completionOps) ListPending(ctx context.Context, ownerID string, sinceMs int64) ([]api.Completion, int, error) {
	rows, err := o.store.ListCompletionsChangedSince(ctx, sinceMs)
	if err != nil {
		return nil, 0, err
	}

	owned := rows[:0]
	habitUUIDs := make([]string, 0, len(rows))
	seenHabit := make(map[string]struct{}, len(rows))

	for _, row := range rows {
		if !ownedBy(row.OwnerID, ownerID) {
			continue
		}

		owned = append(owned, row)

		if _, ok := seenHabit[row.HabitID]; !ok {
			seenHabit[row.HabitID] = struct{}{}
			habitUUIDs = append(habitUUIDs, row.HabitID)
		}
	}

	remoteHabits, err := o.correlator.RemoteIDs(ctx, habitUUIDs)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]api.Completion, 0, len(owned))
	skipped := 0

	for _, row := range owned {
		serverID, ok := remoteHabits[row.HabitID]
		if !ok {
			// Parent habit has never been pushed. Held back until it has.
			o.logger.Debug("holding back completion until habit is pushed",
				slog.String("completion", row.ID),
				slog.String("habit", row.HabitID),
			)

			skipped++

			continue
		}

		pending = append(pending, api.Completion{
			LocalUUID:       row.ID,
			OwnerID:         row.OwnerID,
			HabitID:         serverID,
			CompletedAt:     row.CompletedAt,
			ClientUpdatedAt: row.ClientUpdatedAt,
		})
	}

	return pending, skipped, nil
}

func (o *completionOps) Push(ctx context.Context, records []api.Completion) (*api.BatchResult, error) {
	return api.BatchUpsert(ctx, o.client, store.EntityCompletions, records)
}

func (o *completionOps) ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := o.store.ListCompletionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids, nil
}

func (o *completionOps) DeleteLocal(ctx context.Context, localID string) error {
	return o.store.DeleteCompletion(ctx, localID)
}

// activityOps adapts activity days. The type is unique per (owner, day), so
// applying a pulled record may collide with an existing local row created
// under a different UUID; the collision resolves like any other conflict,
// with the loser's row removed before the winner is written.
type activityOps struct {
	store    *store.SQLiteStore
	client   *api.Client
	clock    Clock
	pageSize int
	logger   *slog.Logger
}

// NewActivitySyncer builds the syncer for activity days.
func NewActivitySyncer(st *store.SQLiteStore, client *api.Client, provider IdentityProvider, clock Clock, pageSize int, logger *slog.Logger) *Syncer[api.ActivityDay] {
	ops := &activityOps{store: st, client: client, clock: clock, pageSize: normalizePageSize(pageSize), logger: logger}
	return NewSyncer(store.EntityActivity, st, provider, clock, ops, logger)
}

func (o *activityOps) FetchPage(ctx context.Context, sinceMs int64, cursor string) (*api.Page[api.ActivityDay], error) {
	return api.ChangesSince[api.ActivityDay](ctx, o.client, store.EntityActivity, sinceMs, o.pageSize, cursor)
}

func (o *activityOps) ApplyPage(ctx context.Context, records []api.ActivityDay, initial bool) (PageOutcome, error) {
	var out PageOutcome

	now := o.clock.NowMillis()

	for _, rec := range records {
		out.Seen = append(out.Seen, rec.LocalUUID)

		local, err := o.store.GetActivityDay(ctx, rec.LocalUUID)
		if err != nil {
			return out, err
		}

		// A different UUID may already hold this (owner, day) slot.
		if local == nil {
			existing, err := o.store.GetActivityDayForOwner(ctx, rec.OwnerID, rec.Day)
			if err != nil {
				return out, err
			}

			if existing != nil {
				if Resolve(&existing.ClientUpdatedAt, rec.ClientUpdatedAt, initial) == ActionIgnore {
					continue
				}

				if err := o.store.DeleteActivityDay(ctx, existing.ID); err != nil {
					return out, err
				}
			}
		} else if Resolve(&local.ClientUpdatedAt, rec.ClientUpdatedAt, initial) == ActionIgnore {
			continue
		}

		row := &store.ActivityDay{
			ID:              rec.LocalUUID,
			OwnerID:         rec.OwnerID,
			Day:             rec.Day,
			ClientUpdatedAt: rec.ClientUpdatedAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if err := o.store.UpsertActivityDay(ctx, row); err != nil {
			return out, err
		}

		out.Applied++
	}

	return out, nil
}

func (o *activityOps) ListPending(ctx context.Context, ownerID string, sinceMs int64) ([]api.ActivityDay, int, error) {
	rows, err := o.store.ListActivityDaysChangedSince(ctx, sinceMs)
	if err != nil {
		return nil, 0, err
	}

	pending := make([]api.ActivityDay, 0, len(rows))

	for _, row := range rows {
		if !ownedBy(row.OwnerID, ownerID) {
			continue
		}

		pending = append(pending, api.ActivityDay{
			LocalUUID:       row.ID,
			OwnerID:         row.OwnerID,
			Day:             row.Day,
			ClientUpdatedAt: row.ClientUpdatedAt,
		})
	}

	return pending, 0, nil
}

func (o *activityOps) Push(ctx context.Context, records []api.ActivityDay) (*api.BatchResult, error) {
	return api.BatchUpsert(ctx, o.client, store.EntityActivity, records)
}

func (o *activityOps) ListOwnedIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := o.store.ListActivityDaysByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	return ids, nil
}

func (o *activityOps) DeleteLocal(ctx context.Context, localID string) error {
	return o.store.DeleteActivityDay(ctx, localID)
}

// stampOf extracts a conflict timestamp pointer from any local row type, or
// nil when the row does not exist.
func stampOf[T interface{ ConflictStamp() int64 }](row *T) *int64 {
	if row == nil {
		return nil
	}

	stamp := (*row).ConflictStamp()

	return &stamp
}

// ownedBy reports whether a row belongs to ownerID.
func ownedBy(rowOwner *string, ownerID string) bool {
	return rowOwner != nil && *rowOwner == ownerID
}

func normalizePageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}

	return n
}
