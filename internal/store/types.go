// Package store implements the embedded local datastore for habistat-go.
// All user data (calendars, habits, completions, activity days) plus the
// engine's sync state (cursors, id mappings) lives in a single SQLite
// database with WAL mode. Every record carries a client-generated UUID that
// is stable for its lifetime and serves as the correlation key with the
// remote service.
package store

import "time"

// Entity type names as stored in the sync_cursors and id_map tables.
// These are wire-stable: they also appear in API paths.
const (
	EntityCalendars   = "calendars"
	EntityHabits      = "habits"
	EntityCompletions = "completions"
	EntityActivity    = "activity_days"
)

// Calendar is a mutable parent container for habits. Position and color are
// part of the synced payload; ordering conflicts resolve by Last-Write-Wins
// like everything else.
type Calendar struct {
	ID              string  // client-generated UUID
	OwnerID         *string // nil = anonymous/local-only
	Name            string
	ColorTheme      string
	Position        int64
	IsEnabled       bool
	ClientUpdatedAt int64 // epoch ms, bumped on every local mutation
	CreatedAt       int64 // row creation (epoch ms)
	UpdatedAt       int64 // row last update (epoch ms)
}

// ConflictStamp returns the Last-Write-Wins comparison timestamp.
func (c Calendar) ConflictStamp() int64 { return c.ClientUpdatedAt }

// Habit is a mutable child record referencing its Calendar by the calendar's
// local UUID. The remote service stores the same reference, so no id
// correlation is needed for the calendar foreign key.
type Habit struct {
	ID              string
	OwnerID         *string
	CalendarID      string // parent calendar local UUID
	Name            string
	Description     string
	HabitType       string // "positive" or "negative"
	TimerEnabled    bool
	TargetDuration  *int64 // seconds, nil when timer disabled
	PointsValue     int64
	Position        int64
	IsEnabled       bool
	ClientUpdatedAt int64
	CreatedAt       int64
	UpdatedAt       int64
}

// ConflictStamp returns the Last-Write-Wins comparison timestamp.
func (h Habit) ConflictStamp() int64 { return h.ClientUpdatedAt }

// Completion is a high-volume, immutable-once-created event log entry.
// HabitID holds the habit's local UUID; the remote representation references
// the server-assigned habit id instead, which is why completions go through
// the id correlator in both sync directions.
type Completion struct {
	ID              string
	OwnerID         *string
	HabitID         string // habit local UUID
	CompletedAt     int64  // event timestamp (epoch ms)
	ClientUpdatedAt int64
	CreatedAt       int64
	UpdatedAt       int64
}

// ConflictStamp returns the Last-Write-Wins comparison timestamp.
func (c Completion) ConflictStamp() int64 { return c.ClientUpdatedAt }

// ActivityDay marks that the user was active on a given calendar day.
// Invariant: at most one row per (owner, day). The schema enforces this for
// non-nil owners via a unique index; SQLite treats NULLs as distinct in
// unique indexes, so the engine checks existence before inserting anonymous
// rows.
type ActivityDay struct {
	ID              string
	OwnerID         *string
	Day             string // "2006-01-02"
	ClientUpdatedAt int64
	CreatedAt       int64
	UpdatedAt       int64
}

// ConflictStamp returns the Last-Write-Wins comparison timestamp.
func (a ActivityDay) ConflictStamp() int64 { return a.ClientUpdatedAt }

// SyncCursor records the last successful sync timestamp for one entity type.
// A zero LastSyncMs means the type has never synced on this device, which
// selects initial-sync semantics (remote authoritative).
type SyncCursor struct {
	EntityType string
	LastSyncMs int64
	UpdatedAt  int64
}

// IDMapping correlates a local UUID with a server-assigned id for entity
// types where the server keeps its own primary key (habits).
type IDMapping struct {
	EntityType string
	LocalID    string
	RemoteID   string
	CreatedAt  int64
}

// DayOf formats an epoch-millisecond timestamp as a calendar day in UTC.
func DayOf(epochMs int64) string {
	return time.UnixMilli(epochMs).UTC().Format("2006-01-02")
}
