package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) prepareHabitStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.habitStmts.get, sqlGetHabit, "getHabit"},
		{&s.habitStmts.upsert, sqlUpsertHabit, "upsertHabit"},
		{&s.habitStmts.delete, sqlDeleteHabit, "deleteHabit"},
		{&s.habitStmts.listByOwner, sqlListHabitsByOwner, "listHabitsByOwner"},
		{&s.habitStmts.listAnonymous, sqlListAnonymousHabits, "listAnonymousHabits"},
		{&s.habitStmts.listChangedSince, sqlListHabitsChangedSince, "listHabitsChangedSince"},
		{&s.habitStmts.listByCalendar, sqlListHabitsByCalendar, "listHabitsByCalendar"},
	})
}

func scanHabit(row interface{ Scan(...any) error }) (*Habit, error) {
	h := &Habit{}

	err := row.Scan(
		&h.ID, &h.OwnerID, &h.CalendarID, &h.Name, &h.Description,
		&h.HabitType, &h.TimerEnabled, &h.TargetDuration, &h.PointsValue,
		&h.Position, &h.IsEnabled, &h.ClientUpdatedAt, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return h, nil
}

func scanHabitRows(rows *sql.Rows) ([]*Habit, error) {
	var habits []*Habit

	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan habit row: %w", err)
		}

		habits = append(habits, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit rows: %w", err)
	}

	return habits, nil
}

func upsertHabitArgs(h *Habit) []any {
	return []any{
		h.ID, h.OwnerID, h.CalendarID, h.Name, h.Description,
		h.HabitType, h.TimerEnabled, h.TargetDuration, h.PointsValue,
		h.Position, h.IsEnabled, h.ClientUpdatedAt, h.CreatedAt, h.UpdatedAt,
	}
}

// GetHabit retrieves a single habit by local UUID. Returns (nil, nil) if no
// habit exists.
func (s *SQLiteStore) GetHabit(ctx context.Context, id string) (*Habit, error) {
	h, err := scanHabit(s.habitStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get habit %s: %w", id, err)
	}

	return h, nil
}

// UpsertHabit inserts or updates a habit keyed by local UUID.
func (s *SQLiteStore) UpsertHabit(ctx context.Context, h *Habit) error {
	s.logger.Debug("upserting habit", "id", h.ID, "name", h.Name)

	_, err := s.habitStmts.upsert.ExecContext(ctx, upsertHabitArgs(h)...)
	if err != nil {
		return fmt.Errorf("upsert habit %s: %w", h.ID, err)
	}

	return nil
}

// DeleteHabit physically removes a habit row.
func (s *SQLiteStore) DeleteHabit(ctx context.Context, id string) error {
	s.logger.Debug("deleting habit", "id", id)

	_, err := s.habitStmts.delete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete habit %s: %w", id, err)
	}

	return nil
}

// ListHabitsByOwner returns all habits owned by the given user, ordered by
// position.
func (s *SQLiteStore) ListHabitsByOwner(ctx context.Context, ownerID string) ([]*Habit, error) {
	rows, err := s.habitStmts.listByOwner.QueryContext(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list habits by owner: %w", err)
	}
	defer rows.Close()

	return scanHabitRows(rows)
}

// ListAnonymousHabits returns all habits with a NULL owner.
func (s *SQLiteStore) ListAnonymousHabits(ctx context.Context) ([]*Habit, error) {
	rows, err := s.habitStmts.listAnonymous.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list anonymous habits: %w", err)
	}
	defer rows.Close()

	return scanHabitRows(rows)
}

// ListHabitsChangedSince returns habits mutated after the given
// epoch-millisecond timestamp.
func (s *SQLiteStore) ListHabitsChangedSince(ctx context.Context, sinceMs int64) ([]*Habit, error) {
	rows, err := s.habitStmts.listChangedSince.QueryContext(ctx, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list habits changed since %d: %w", sinceMs, err)
	}
	defer rows.Close()

	return scanHabitRows(rows)
}

// ListHabitsByCalendar returns all habits in the given calendar, ordered by
// position.
func (s *SQLiteStore) ListHabitsByCalendar(ctx context.Context, calendarID string) ([]*Habit, error) {
	rows, err := s.habitStmts.listByCalendar.QueryContext(ctx, calendarID)
	if err != nil {
		return nil, fmt.Errorf("list habits by calendar %s: %w", calendarID, err)
	}
	defer rows.Close()

	return scanHabitRows(rows)
}
