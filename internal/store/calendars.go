package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) prepareCalendarStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.calendarStmts.get, sqlGetCalendar, "getCalendar"},
		{&s.calendarStmts.upsert, sqlUpsertCalendar, "upsertCalendar"},
		{&s.calendarStmts.delete, sqlDeleteCalendar, "deleteCalendar"},
		{&s.calendarStmts.listByOwner, sqlListCalendarsByOwner, "listCalendarsByOwner"},
		{&s.calendarStmts.listAnonymous, sqlListAnonymousCalendars, "listAnonymousCalendars"},
		{&s.calendarStmts.listChangedSince, sqlListCalendarsChangedSince, "listCalendarsChangedSince"},
	})
}

// scanCalendar scans a full calendar row into a Calendar struct.
func scanCalendar(row interface{ Scan(...any) error }) (*Calendar, error) {
	c := &Calendar{}

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.ColorTheme, &c.Position,
		&c.IsEnabled, &c.ClientUpdatedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func scanCalendarRows(rows *sql.Rows) ([]*Calendar, error) {
	var calendars []*Calendar

	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar row: %w", err)
		}

		calendars = append(calendars, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calendar rows: %w", err)
	}

	return calendars, nil
}

func upsertCalendarArgs(c *Calendar) []any {
	return []any{
		c.ID, c.OwnerID, c.Name, c.ColorTheme, c.Position,
		c.IsEnabled, c.ClientUpdatedAt, c.CreatedAt, c.UpdatedAt,
	}
}

// GetCalendar retrieves a single calendar by local UUID.
// Returns (nil, nil) if no calendar exists; callers use the nil record to
// distinguish "new from remote" from "known record".
func (s *SQLiteStore) GetCalendar(ctx context.Context, id string) (*Calendar, error) {
	c, err := scanCalendar(s.calendarStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", id, err)
	}

	return c, nil
}

// UpsertCalendar inserts or updates a calendar keyed by local UUID.
func (s *SQLiteStore) UpsertCalendar(ctx context.Context, c *Calendar) error {
	s.logger.Debug("upserting calendar", "id", c.ID, "name", c.Name)

	_, err := s.calendarStmts.upsert.ExecContext(ctx, upsertCalendarArgs(c)...)
	if err != nil {
		return fmt.Errorf("upsert calendar %s: %w", c.ID, err)
	}

	return nil
}

// DeleteCalendar physically removes a calendar row.
func (s *SQLiteStore) DeleteCalendar(ctx context.Context, id string) error {
	s.logger.Debug("deleting calendar", "id", id)

	_, err := s.calendarStmts.delete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete calendar %s: %w", id, err)
	}

	return nil
}

// ListCalendarsByOwner returns all calendars owned by the given user,
// ordered by position.
func (s *SQLiteStore) ListCalendarsByOwner(ctx context.Context, ownerID string) ([]*Calendar, error) {
	rows, err := s.calendarStmts.listByOwner.QueryContext(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list calendars by owner: %w", err)
	}
	defer rows.Close()

	return scanCalendarRows(rows)
}

// ListAnonymousCalendars returns all calendars with a NULL owner.
func (s *SQLiteStore) ListAnonymousCalendars(ctx context.Context) ([]*Calendar, error) {
	rows, err := s.calendarStmts.listAnonymous.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list anonymous calendars: %w", err)
	}
	defer rows.Close()

	return scanCalendarRows(rows)
}

// ListCalendarsChangedSince returns calendars mutated after the given
// epoch-millisecond timestamp.
func (s *SQLiteStore) ListCalendarsChangedSince(ctx context.Context, sinceMs int64) ([]*Calendar, error) {
	rows, err := s.calendarStmts.listChangedSince.QueryContext(ctx, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list calendars changed since %d: %w", sinceMs, err)
	}
	defer rows.Close()

	return scanCalendarRows(rows)
}
