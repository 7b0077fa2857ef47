package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *SQLiteStore) prepareCompletionStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.completionStmts.get, sqlGetCompletion, "getCompletion"},
		{&s.completionStmts.upsert, sqlUpsertCompletion, "upsertCompletion"},
		{&s.completionStmts.delete, sqlDeleteCompletion, "deleteCompletion"},
		{&s.completionStmts.listByOwner, sqlListCompletionsByOwner, "listCompletionsByOwner"},
		{&s.completionStmts.listAnonymous, sqlListAnonymousCompletions, "listAnonymousCompletions"},
		{&s.completionStmts.listChangedSince, sqlListCompletionsChangedSince, "listCompletionsChangedSince"},
		{&s.completionStmts.listByHabit, sqlListCompletionsByHabit, "listCompletionsByHabit"},
		{&s.completionStmts.latestForDay, sqlLatestCompletionForDay, "latestCompletionForDay"},
	})
}

func scanCompletion(row interface{ Scan(...any) error }) (*Completion, error) {
	c := &Completion{}

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.HabitID, &c.CompletedAt,
		&c.ClientUpdatedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func scanCompletionRows(rows *sql.Rows) ([]*Completion, error) {
	var completions []*Completion

	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion row: %w", err)
		}

		completions = append(completions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completion rows: %w", err)
	}

	return completions, nil
}

// GetCompletion retrieves a single completion by local UUID. Returns
// (nil, nil) if no completion exists.
func (s *SQLiteStore) GetCompletion(ctx context.Context, id string) (*Completion, error) {
	c, err := scanCompletion(s.completionStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("get completion %s: %w", id, err)
	}

	return c, nil
}

// UpsertCompletion inserts or updates a completion keyed by local UUID.
// Completions are immutable once created; updates only occur when a newer
// remote shadow supersedes an older local row.
func (s *SQLiteStore) UpsertCompletion(ctx context.Context, c *Completion) error {
	s.logger.Debug("upserting completion", "id", c.ID, "habit_id", c.HabitID)

	_, err := s.completionStmts.upsert.ExecContext(ctx,
		c.ID, c.OwnerID, c.HabitID, c.CompletedAt,
		c.ClientUpdatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert completion %s: %w", c.ID, err)
	}

	return nil
}

// DeleteCompletion physically removes a completion row.
func (s *SQLiteStore) DeleteCompletion(ctx context.Context, id string) error {
	s.logger.Debug("deleting completion", "id", id)

	_, err := s.completionStmts.delete.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("delete completion %s: %w", id, err)
	}

	return nil
}

// ListCompletionsByOwner returns all completions owned by the given user.
func (s *SQLiteStore) ListCompletionsByOwner(ctx context.Context, ownerID string) ([]*Completion, error) {
	rows, err := s.completionStmts.listByOwner.QueryContext(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list completions by owner: %w", err)
	}
	defer rows.Close()

	return scanCompletionRows(rows)
}

// ListAnonymousCompletions returns all completions with a NULL owner.
func (s *SQLiteStore) ListAnonymousCompletions(ctx context.Context) ([]*Completion, error) {
	rows, err := s.completionStmts.listAnonymous.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list anonymous completions: %w", err)
	}
	defer rows.Close()

	return scanCompletionRows(rows)
}

// ListCompletionsChangedSince returns completions mutated after the given
// epoch-millisecond timestamp.
func (s *SQLiteStore) ListCompletionsChangedSince(ctx context.Context, sinceMs int64) ([]*Completion, error) {
	rows, err := s.completionStmts.listChangedSince.QueryContext(ctx, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("list completions changed since %d: %w", sinceMs, err)
	}
	defer rows.Close()

	return scanCompletionRows(rows)
}

// ListCompletionsByHabit returns all completions for the given habit in
// event order.
func (s *SQLiteStore) ListCompletionsByHabit(ctx context.Context, habitID string) ([]*Completion, error) {
	rows, err := s.completionStmts.listByHabit.QueryContext(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("list completions by habit %s: %w", habitID, err)
	}
	defer rows.Close()

	return scanCompletionRows(rows)
}

// LatestCompletionForDay returns the most recent completion for a habit on
// the given UTC calendar day. Returns (nil, nil) if the day has none.
// Backs the "delete most recent item for a given day" affordance.
func (s *SQLiteStore) LatestCompletionForDay(ctx context.Context, habitID, day string) (*Completion, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse day %q: %w", day, err)
	}

	startMs := dayStart.UnixMilli()
	endMs := dayStart.AddDate(0, 0, 1).UnixMilli()

	c, err := scanCompletion(s.completionStmts.latestForDay.QueryRowContext(ctx, habitID, startMs, endMs))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("latest completion for %s on %s: %w", habitID, day, err)
	}

	return c, nil
}
