package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL file at 64 MiB.
const walJournalSizeLimit = 67108864

// SQLiteStore is the embedded local datastore. All engine state (entity
// collections, sync cursors, id mappings) is persisted here.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	calendarStmts   calendarStatements
	habitStmts      habitStatements
	completionStmts completionStatements
	activityStmts   activityStatements
	cursorStmts     cursorStatements
	idMapStmts      idMapStatements
}

type calendarStatements struct {
	get, upsert, delete, listByOwner, listAnonymous, listChangedSince *sql.Stmt
}

type habitStatements struct {
	get, upsert, delete, listByOwner, listAnonymous, listChangedSince, listByCalendar *sql.Stmt
}

type completionStatements struct {
	get, upsert, delete, listByOwner, listAnonymous, listChangedSince, listByHabit, latestForDay *sql.Stmt
}

type activityStatements struct {
	get, upsert, delete, listByOwner, listAnonymous, listChangedSince, getByOwnerDay, getAnonymousDay *sql.Stmt
}

type cursorStatements struct {
	get, save *sql.Stmt
}

type idMapStatements struct {
	getRemote, getLocal, save *sql.Stmt
}

// Open creates a SQLiteStore at dbPath, applying migrations and preparing
// all repeated statements. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening local database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logger.Info("local database ready", "path", dbPath)

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// stmtDef maps a SQL string to the prepared statement pointer it should
// populate. Used by the generic prepare helper to eliminate repetitive
// error handling.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	if err := s.prepareCalendarStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareHabitStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareCompletionStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareActivityStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareCursorStmts(ctx); err != nil {
		return err
	}

	return s.prepareIDMapStmts(ctx)
}

func (s *SQLiteStore) prepareCursorStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.cursorStmts.get, sqlGetCursor, "getCursor"},
		{&s.cursorStmts.save, sqlSaveCursor, "saveCursor"},
	})
}

func (s *SQLiteStore) prepareIDMapStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.idMapStmts.getRemote, sqlGetRemoteID, "getRemoteID"},
		{&s.idMapStmts.getLocal, sqlGetLocalID, "getLocalID"},
		{&s.idMapStmts.save, sqlSaveIDMapping, "saveIDMapping"},
	})
}

// Checkpoint forces a WAL checkpoint to consolidate the WAL file into the
// main database.
func (s *SQLiteStore) Checkpoint() error {
	s.logger.Debug("running WAL checkpoint")

	_, err := s.db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}

	return nil
}

// Close closes all prepared statements and the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing local database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}

	return nil
}

func (s *SQLiteStore) closeStatements() error {
	stmts := []*sql.Stmt{
		s.calendarStmts.get, s.calendarStmts.upsert, s.calendarStmts.delete,
		s.calendarStmts.listByOwner, s.calendarStmts.listAnonymous,
		s.calendarStmts.listChangedSince,
		s.habitStmts.get, s.habitStmts.upsert, s.habitStmts.delete,
		s.habitStmts.listByOwner, s.habitStmts.listAnonymous,
		s.habitStmts.listChangedSince, s.habitStmts.listByCalendar,
		s.completionStmts.get, s.completionStmts.upsert, s.completionStmts.delete,
		s.completionStmts.listByOwner, s.completionStmts.listAnonymous,
		s.completionStmts.listChangedSince, s.completionStmts.listByHabit,
		s.completionStmts.latestForDay,
		s.activityStmts.get, s.activityStmts.upsert, s.activityStmts.delete,
		s.activityStmts.listByOwner, s.activityStmts.listAnonymous,
		s.activityStmts.listChangedSince, s.activityStmts.getByOwnerDay,
		s.activityStmts.getAnonymousDay,
		s.cursorStmts.get, s.cursorStmts.save,
		s.idMapStmts.getRemote, s.idMapStmts.getLocal, s.idMapStmts.save,
	}

	var errs []string

	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close statements: %s", strings.Join(errs, "; "))
	}

	return nil
}
