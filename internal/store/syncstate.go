package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// --- Sync cursor methods ---

// GetSyncCursor returns the last successful sync timestamp for an entity
// type. Returns 0 when the type has never synced, which selects initial-sync
// semantics.
func (s *SQLiteStore) GetSyncCursor(ctx context.Context, entityType string) (int64, error) {
	var ms int64

	err := s.cursorStmts.get.QueryRowContext(ctx, entityType).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get sync cursor %s: %w", entityType, err)
	}

	return ms, nil
}

// SaveSyncCursor persists the last successful sync timestamp for an entity
// type. Only called after a pull+push cycle completes without fatal error.
func (s *SQLiteStore) SaveSyncCursor(ctx context.Context, entityType string, ms int64) error {
	s.logger.Debug("saving sync cursor", "entity_type", entityType, "last_sync_ms", ms)

	_, err := s.cursorStmts.save.ExecContext(ctx, entityType, ms, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save sync cursor %s: %w", entityType, err)
	}

	return nil
}

// --- ID mapping methods ---

// GetRemoteID returns the server-assigned id previously mapped to a local
// UUID, or "" when no mapping exists yet.
func (s *SQLiteStore) GetRemoteID(ctx context.Context, entityType, localID string) (string, error) {
	var remoteID string

	err := s.idMapStmts.getRemote.QueryRowContext(ctx, entityType, localID).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("get remote id %s/%s: %w", entityType, localID, err)
	}

	return remoteID, nil
}

// GetLocalID returns the local UUID previously mapped to a server-assigned
// id, or "" when no mapping exists yet.
func (s *SQLiteStore) GetLocalID(ctx context.Context, entityType, remoteID string) (string, error) {
	var localID string

	err := s.idMapStmts.getLocal.QueryRowContext(ctx, entityType, remoteID).Scan(&localID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("get local id %s/%s: %w", entityType, remoteID, err)
	}

	return localID, nil
}

// GetLocalIDs resolves a batch of server-assigned ids to local UUIDs in one
// query. The result map only contains ids that have a mapping.
func (s *SQLiteStore) GetLocalIDs(ctx context.Context, entityType string, remoteIDs []string) (map[string]string, error) {
	if len(remoteIDs) == 0 {
		return map[string]string{}, nil
	}

	placeholders := strings.Repeat("?,", len(remoteIDs)-1) + "?"
	query := `SELECT remote_id, local_id FROM id_map
		WHERE entity_type = ? AND remote_id IN (` + placeholders + `)`

	args := make([]any, 0, len(remoteIDs)+1)
	args = append(args, entityType)

	for _, id := range remoteIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get local ids %s: %w", entityType, err)
	}
	defer rows.Close()

	result := make(map[string]string, len(remoteIDs))

	for rows.Next() {
		var remoteID, localID string
		if err := rows.Scan(&remoteID, &localID); err != nil {
			return nil, fmt.Errorf("scan id mapping row: %w", err)
		}

		result[remoteID] = localID
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate id mapping rows: %w", err)
	}

	return result, nil
}

// SaveIDMapping persists a local-to-remote id correlation.
func (s *SQLiteStore) SaveIDMapping(ctx context.Context, entityType, localID, remoteID string) error {
	s.logger.Debug("saving id mapping",
		"entity_type", entityType, "local_id", localID, "remote_id", remoteID)

	_, err := s.idMapStmts.save.ExecContext(ctx, entityType, localID, remoteID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save id mapping %s/%s: %w", entityType, localID, err)
	}

	return nil
}

// --- Pending change detection ---

// pendingCountQueries counts local changes newer than each entity type's
// cursor, plus anonymous rows that have never been attributable to a push.
var pendingCountQueries = map[string]string{
	EntityCalendars: `SELECT COUNT(*) FROM calendars
		WHERE client_updated_at > ? OR owner_id IS NULL`,
	EntityHabits: `SELECT COUNT(*) FROM habits
		WHERE client_updated_at > ? OR owner_id IS NULL`,
	EntityCompletions: `SELECT COUNT(*) FROM completions
		WHERE client_updated_at > ? OR owner_id IS NULL`,
	EntityActivity: `SELECT COUNT(*) FROM activity_days
		WHERE client_updated_at > ? OR owner_id IS NULL`,
}

// CountPendingChanges returns per-entity-type counts of local records that
// have changed since that type's sync cursor. The scheduler uses this to
// skip needless network use when nothing changed.
func (s *SQLiteStore) CountPendingChanges(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(pendingCountQueries))

	for entityType, query := range pendingCountQueries {
		cursor, err := s.GetSyncCursor(ctx, entityType)
		if err != nil {
			return nil, err
		}

		var n int
		if err := s.db.QueryRowContext(ctx, query, cursor).Scan(&n); err != nil {
			return nil, fmt.Errorf("count pending %s: %w", entityType, err)
		}

		counts[entityType] = n
	}

	return counts, nil
}

// --- Sign-out cleanup ---

// ClearOwnedRecords removes all records owned by the given user, all id
// mappings, and all sync cursors in one transaction. Called on sign-out;
// anonymous rows are left untouched. Resetting cursors means the next
// sign-in starts from initial-sync semantics.
func (s *SQLiteStore) ClearOwnedRecords(ctx context.Context, ownerID string) error {
	s.logger.Info("clearing owned records", "owner_id", ownerID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}

	statements := []string{
		`DELETE FROM completions WHERE owner_id = ?`,
		`DELETE FROM activity_days WHERE owner_id = ?`,
		`DELETE FROM habits WHERE owner_id = ?`,
		`DELETE FROM calendars WHERE owner_id = ?`,
	}

	for _, stmt := range statements {
		if _, execErr := tx.ExecContext(ctx, stmt, ownerID); execErr != nil {
			rollbackErr := tx.Rollback()
			return fmt.Errorf("clear owned records: %w (rollback: %v)", execErr, rollbackErr)
		}
	}

	for _, stmt := range []string{`DELETE FROM id_map`, `DELETE FROM sync_cursors`} {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			rollbackErr := tx.Rollback()
			return fmt.Errorf("clear sync state: %w (rollback: %v)", execErr, rollbackErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear tx: %w", err)
	}

	return nil
}
