package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *SQLiteStore) prepareActivityStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.activityStmts.get, sqlGetActivityDay, "getActivityDay"},
		{&s.activityStmts.upsert, sqlUpsertActivityDay, "upsertActivityDay"},
		{&s.activityStmts.delete, sqlDeleteActivityDay, "deleteActivityDay"},
		{&s.activityStmts.listByOwner, sqlListActivityByOwner, "listActivityByOwner"},
		{&s.activityStmts.listAnonymous, sqlListAnonymousActivity, "listAnonymousActivity"},
		{&s.activityStmts.listChangedSince, sqlListActivityChangedSince, "listActivityChangedSince"},
		{&s.activityStmts.getByOwnerDay, sqlGetActivityByOwnerDay, "getActivityByOwnerDay"},
		{&s.activityStmts.getAnonymousDay, sqlGetAnonymousActivityDay, "getAnonymousActivityDay"},
	})
}

func scanActivityDay(row interface{ Scan(...any) error }) (*ActivityDay, error) {
	a := &ActivityDay{}

	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Day, &a.ClientUpdatedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func scanActivityRows(rows *sql.Rows) ([]*ActivityDay, error) {
	var days []*ActivityDay

	for rows.Next() {
		a, err := scanActivityDay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity day row: %w", err)
		}

		days = append(days, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity day rows: %w", err)
	}

	return days, nil
}

// GetActivityDay retrieves a single activity day by local UUID. Returns
// (nil, nil) if no row exists.
func (s *SQLiteStore) GetActivityDay(ctx context.Context, id string) (*ActivityDay, error) {
	a, err := scanActivityDay(s.activityStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get activity day %s: %w", id, err)
	}

	return a, nil
}

// UpsertActivityDay inserts or updates an activity day keyed by local UUID.
// Callers inserting anonymous rows must check GetActivityDayForOwner first:
// the schema's (owner_id, day) unique index does not constrain NULL owners.
func (s *SQLiteStore) UpsertActivityDay(ctx context.Context, a *ActivityDay) error {
	s.logger.Debug("upserting activity day", "id", a.ID, "day", a.Day)

	_, err := s.activityStmts.upsert.ExecContext(ctx,
		a.ID, a.OwnerID, a.Day, a.ClientUpdatedAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert activity day %s: %w", a.ID, err)
	}

	return nil
}

// DeleteActivityDay physically removes an activity day row.
func (s *SQLiteStore) DeleteActivityDay(ctx context.Context, id string) error {
	s.logger.Debug("deleting activity day", "id", id)

	_, err := s.activityStmts.delete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete activity day %s: %w", id, err)
	}

	return nil
}

// ListActivityDaysByOwner returns all activity days owned by the given user,
// in day order.
func (s *SQLiteStore) ListActivityDaysByOwner(ctx context.Context, ownerID string) ([]*ActivityDay, error) {
	rows, err := s.activityStmts.listByOwner.QueryContext(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list activity days by owner: %w", err)
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// ListAnonymousActivityDays returns all activity days with a NULL owner.
func (s *SQLiteStore) ListAnonymousActivityDays(ctx context.Context) ([]*ActivityDay, error) {
	rows, err := s.activityStmts.listAnonymous.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list anonymous activity days: %w", err)
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// ListActivityDaysChangedSince returns activity days mutated after the given
// epoch-millisecond timestamp.
func (s *SQLiteStore) ListActivityDaysChangedSince(ctx context.Context, sinceMs int64) ([]*ActivityDay, error) {
	rows, err := s.activityStmts.listChangedSince.QueryContext(ctx, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list activity days changed since %d: %w", sinceMs, err)
	}
	defer rows.Close()

	return scanActivityRows(rows)
}

// GetActivityDayForOwner returns the activity day for (owner, day), where a
// nil owner selects the anonymous row. Returns (nil, nil) when absent. This
// is the existence check behind the at-most-one-row-per-(owner, day)
// invariant.
func (s *SQLiteStore) GetActivityDayForOwner(ctx context.Context, ownerID *string, day string) (*ActivityDay, error) {
	var row *sql.Row
	if ownerID == nil {
		row = s.activityStmts.getAnonymousDay.QueryRowContext(ctx, day)
	} else {
		row = s.activityStmts.getByOwnerDay.QueryRowContext(ctx, *ownerID, day)
	}

	a, err := scanActivityDay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get activity day for day %s: %w", day, err)
	}

	return a, nil
}
