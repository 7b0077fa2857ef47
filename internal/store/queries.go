package store

// SQL query constants, grouped by domain. Multi-line for readability.

// Calendar queries.
const (
	sqlCalendarColumns = `id, owner_id, name, color_theme, position,
		is_enabled, client_updated_at, created_at, updated_at`

	sqlGetCalendar = `SELECT ` + sqlCalendarColumns +
		` FROM calendars WHERE id = ?`

	sqlUpsertCalendar = `INSERT INTO calendars (` + sqlCalendarColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id          = excluded.owner_id,
			name              = excluded.name,
			color_theme       = excluded.color_theme,
			position          = excluded.position,
			is_enabled        = excluded.is_enabled,
			client_updated_at = excluded.client_updated_at,
			updated_at        = excluded.updated_at`

	sqlDeleteCalendar = `DELETE FROM calendars WHERE id = ?`

	sqlListCalendarsByOwner = `SELECT ` + sqlCalendarColumns +
		` FROM calendars WHERE owner_id = ? ORDER BY position`

	sqlListAnonymousCalendars = `SELECT ` + sqlCalendarColumns +
		` FROM calendars WHERE owner_id IS NULL ORDER BY position`

	sqlListCalendarsChangedSince = `SELECT ` + sqlCalendarColumns +
		` FROM calendars WHERE client_updated_at > ?`
)

// Habit queries.
const (
	sqlHabitColumns = `id, owner_id, calendar_id, name, description,
		habit_type, timer_enabled, target_duration_seconds, points_value,
		position, is_enabled, client_updated_at, created_at, updated_at`

	sqlGetHabit = `SELECT ` + sqlHabitColumns +
		` FROM habits WHERE id = ?`

	sqlUpsertHabit = `INSERT INTO habits (` + sqlHabitColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id                = excluded.owner_id,
			calendar_id             = excluded.calendar_id,
			name                    = excluded.name,
			description             = excluded.description,
			habit_type              = excluded.habit_type,
			timer_enabled           = excluded.timer_enabled,
			target_duration_seconds = excluded.target_duration_seconds,
			points_value            = excluded.points_value,
			position                = excluded.position,
			is_enabled              = excluded.is_enabled,
			client_updated_at       = excluded.client_updated_at,
			updated_at              = excluded.updated_at`

	sqlDeleteHabit = `DELETE FROM habits WHERE id = ?`

	sqlListHabitsByOwner = `SELECT ` + sqlHabitColumns +
		` FROM habits WHERE owner_id = ? ORDER BY position`

	sqlListAnonymousHabits = `SELECT ` + sqlHabitColumns +
		` FROM habits WHERE owner_id IS NULL ORDER BY position`

	sqlListHabitsChangedSince = `SELECT ` + sqlHabitColumns +
		` FROM habits WHERE client_updated_at > ?`

	sqlListHabitsByCalendar = `SELECT ` + sqlHabitColumns +
		` FROM habits WHERE calendar_id = ? ORDER BY position`
)

// Completion queries.
const (
	sqlCompletionColumns = `id, owner_id, habit_id, completed_at,
		client_updated_at, created_at, updated_at`

	sqlGetCompletion = `SELECT ` + sqlCompletionColumns +
		` FROM completions WHERE id = ?`

	sqlUpsertCompletion = `INSERT INTO completions (` + sqlCompletionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id          = excluded.owner_id,
			habit_id          = excluded.habit_id,
			completed_at      = excluded.completed_at,
			client_updated_at = excluded.client_updated_at,
			updated_at        = excluded.updated_at`

	sqlDeleteCompletion = `DELETE FROM completions WHERE id = ?`

	sqlListCompletionsByOwner = `SELECT ` + sqlCompletionColumns +
		` FROM completions WHERE owner_id = ?`

	sqlListAnonymousCompletions = `SELECT ` + sqlCompletionColumns +
		` FROM completions WHERE owner_id IS NULL`

	sqlListCompletionsChangedSince = `SELECT ` + sqlCompletionColumns +
		` FROM completions WHERE client_updated_at > ?`

	sqlListCompletionsByHabit = `SELECT ` + sqlCompletionColumns +
		` FROM completions WHERE habit_id = ? ORDER BY completed_at`

	sqlLatestCompletionForDay = `SELECT ` + sqlCompletionColumns +
		` FROM completions
		WHERE habit_id = ? AND completed_at >= ? AND completed_at < ?
		ORDER BY completed_at DESC LIMIT 1`
)

// Activity day queries.
const (
	sqlActivityColumns = `id, owner_id, day, client_updated_at,
		created_at, updated_at`

	sqlGetActivityDay = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE id = ?`

	sqlUpsertActivityDay = `INSERT INTO activity_days (` + sqlActivityColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id          = excluded.owner_id,
			day               = excluded.day,
			client_updated_at = excluded.client_updated_at,
			updated_at        = excluded.updated_at`

	sqlDeleteActivityDay = `DELETE FROM activity_days WHERE id = ?`

	sqlListActivityByOwner = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE owner_id = ? ORDER BY day`

	sqlListAnonymousActivity = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE owner_id IS NULL ORDER BY day`

	sqlListActivityChangedSince = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE client_updated_at > ?`

	sqlGetActivityByOwnerDay = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE owner_id = ? AND day = ?`

	sqlGetAnonymousActivityDay = `SELECT ` + sqlActivityColumns +
		` FROM activity_days WHERE owner_id IS NULL AND day = ?`
)

// Sync cursor queries.
const (
	sqlGetCursor = `SELECT last_sync_ms FROM sync_cursors WHERE entity_type = ?`

	sqlSaveCursor = `INSERT INTO sync_cursors (entity_type, last_sync_ms, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE
		SET last_sync_ms = excluded.last_sync_ms, updated_at = excluded.updated_at`
)

// ID mapping queries.
const (
	sqlGetRemoteID = `SELECT remote_id FROM id_map
		WHERE entity_type = ? AND local_id = ?`

	sqlGetLocalID = `SELECT local_id FROM id_map
		WHERE entity_type = ? AND remote_id = ?`

	sqlSaveIDMapping = `INSERT INTO id_map (entity_type, local_id, remote_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, local_id) DO UPDATE
		SET remote_id = excluded.remote_id`
)
