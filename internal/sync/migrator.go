package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/habistat/habistat-go/internal/store"
)

// Migrator reassigns anonymous local records to a freshly-signed-in user so
// the next sync cycle pushes them. Conflict timestamps are bumped during
// reassignment, which is what marks the records as pending.
//
// Activity days are unique per (owner, day): when the signed-in user
// already has a row for a day an anonymous row also covers, the two merge
// by dropping the anonymous duplicate.
type Migrator struct {
	store  *store.SQLiteStore
	clock  Clock
	logger *slog.Logger
}

// MigrationReport counts the outcome of one migration pass.
type MigrationReport struct {
	Calendars    int
	Habits       int
	Completions  int
	ActivityDays int
	Merged       int // anonymous activity days dropped in favor of an owned row
	Failed       int
}

// Total returns the number of records reassigned.
func (r MigrationReport) Total() int {
	return r.Calendars + r.Habits + r.Completions + r.ActivityDays
}

// NewMigrator creates a Migrator.
func NewMigrator(st *store.SQLiteStore, clock Clock, logger *slog.Logger) *Migrator {
	return &Migrator{store: st, clock: clock, logger: logger}
}

// Migrate reassigns every anonymous record to ownerID. Individual record
// failures are logged and counted, never fatal: a partially-migrated store
// is better than an aborted sign-in, and the remainder migrates on a retry.
func (m *Migrator) Migrate(ctx context.Context, ownerID string) (MigrationReport, error) {
	if ownerID == "" {
		return MigrationReport{}, fmt.Errorf("migrate: %w", ErrAuthNotReady)
	}

	var report MigrationReport

	now := m.clock.NowMillis()

	m.migrateCalendars(ctx, ownerID, now, &report)
	m.migrateHabits(ctx, ownerID, now, &report)
	m.migrateCompletions(ctx, ownerID, now, &report)
	m.migrateActivityDays(ctx, ownerID, now, &report)

	m.logger.Info("anonymous data migrated",
		slog.String("owner_id", ownerID),
		slog.Int("migrated", report.Total()),
		slog.Int("merged", report.Merged),
		slog.Int("failed", report.Failed),
	)

	return report, nil
}

func (m *Migrator) migrateCalendars(ctx context.Context, ownerID string, now int64, report *MigrationReport) {
	rows, err := m.store.ListAnonymousCalendars(ctx)
	if err != nil {
		m.recordFailure(report, "calendars", "", err)
		return
	}

	for _, row := range rows {
		row.OwnerID = &ownerID
		row.ClientUpdatedAt = now
		row.UpdatedAt = now

		if err := m.store.UpsertCalendar(ctx, row); err != nil {
			m.recordFailure(report, "calendars", row.ID, err)
			continue
		}

		report.Calendars++
	}
}

func (m *Migrator) migrateHabits(ctx context.Context, ownerID string, now int64, report *MigrationReport) {
	rows, err := m.store.ListAnonymousHabits(ctx)
	if err != nil {
		m.recordFailure(report, "habits", "", err)
		return
	}

	for _, row := range rows {
		row.OwnerID = &ownerID
		row.ClientUpdatedAt = now
		row.UpdatedAt = now

		if err := m.store.UpsertHabit(ctx, row); err != nil {
			m.recordFailure(report, "habits", row.ID, err)
			continue
		}

		report.Habits++
	}
}

func (m *Migrator) migrateCompletions(ctx context.Context, ownerID string, now int64, report *MigrationReport) {
	rows, err := m.store.ListAnonymousCompletions(ctx)
	if err != nil {
		m.recordFailure(report, "completions", "", err)
		return
	}

	for _, row := range rows {
		row.OwnerID = &ownerID
		row.ClientUpdatedAt = now
		row.UpdatedAt = now

		if err := m.store.UpsertCompletion(ctx, row); err != nil {
			m.recordFailure(report, "completions", row.ID, err)
			continue
		}

		report.Completions++
	}
}

func (m *Migrator) migrateActivityDays(ctx context.Context, ownerID string, now int64, report *MigrationReport) {
	rows, err := m.store.ListAnonymousActivityDays(ctx)
	if err != nil {
		m.recordFailure(report, "activity_days", "", err)
		return
	}

	for _, row := range rows {
		existing, err := m.store.GetActivityDayForOwner(ctx, &ownerID, row.Day)
		if err != nil {
			m.recordFailure(report, "activity_days", row.ID, err)
			continue
		}

		if existing != nil {
			// The owner already has this day. Both rows say the same thing
			// ("active on this day"), so the anonymous one is redundant.
			if err := m.store.DeleteActivityDay(ctx, row.ID); err != nil {
				m.recordFailure(report, "activity_days", row.ID, err)
				continue
			}

			report.Merged++

			continue
		}

		row.OwnerID = &ownerID
		row.ClientUpdatedAt = now
		row.UpdatedAt = now

		if err := m.store.UpsertActivityDay(ctx, row); err != nil {
			m.recordFailure(report, "activity_days", row.ID, err)
			continue
		}

		report.ActivityDays++
	}
}

func (m *Migrator) recordFailure(report *MigrationReport, entityType, id string, err error) {
	report.Failed++
	m.logger.Warn("migration step failed",
		slog.String("entity_type", entityType),
		slog.String("id", id),
		slog.String("error", err.Error()),
	)
}
