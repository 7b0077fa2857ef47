package api

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// SchemaVersion is the wire schema version stamped on every batch payload.
// The service rejects batches with an unknown version.
const SchemaVersion = 1

// Record is the common surface of all wire record types. The sync engine
// uses Key for idempotent upsert correlation and Stamp for Last-Write-Wins
// comparison.
type Record interface {
	// Key returns the client-generated local UUID, the upsert key.
	Key() string
	// Stamp returns the record's conflict timestamp (epoch ms).
	Stamp() int64
	// Validate checks required fields. Called on every record crossing the
	// API boundary, in both directions.
	Validate() error
}

// Calendar is the wire representation of a calendar.
type Calendar struct {
	LocalUUID       string  `json:"localUuid"`
	OwnerID         *string `json:"ownerId"`
	Name            string  `json:"name"`
	ColorTheme      string  `json:"colorTheme,omitempty"`
	Position        int64   `json:"position"`
	IsEnabled       bool    `json:"isEnabled"`
	ClientUpdatedAt int64   `json:"clientUpdatedAt"`
}

func (c Calendar) Key() string  { return c.LocalUUID }
func (c Calendar) Stamp() int64 { return c.ClientUpdatedAt }

func (c Calendar) Validate() error {
	if c.LocalUUID == "" {
		return errors.New("api: calendar missing localUuid")
	}

	if c.Name == "" {
		return fmt.Errorf("api: calendar %s missing name", c.LocalUUID)
	}

	if c.ClientUpdatedAt <= 0 {
		return fmt.Errorf("api: calendar %s missing clientUpdatedAt", c.LocalUUID)
	}

	return nil
}

// Habit is the wire representation of a habit. ID is the server-assigned
// primary key, present on pulled records and empty on first push. The
// calendar reference uses the calendar's local UUID, so it needs no id
// correlation.
type Habit struct {
	ID                string  `json:"id,omitempty"`
	LocalUUID         string  `json:"localUuid"`
	OwnerID           *string `json:"ownerId"`
	CalendarLocalUUID string  `json:"calendarLocalUuid"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	HabitType         string  `json:"habitType"`
	TimerEnabled      bool    `json:"timerEnabled"`
	TargetDuration    *int64  `json:"targetDurationSeconds,omitempty"`
	PointsValue       int64   `json:"pointsValue"`
	Position          int64   `json:"position"`
	IsEnabled         bool    `json:"isEnabled"`
	ClientUpdatedAt   int64   `json:"clientUpdatedAt"`
}

func (h Habit) Key() string  { return h.LocalUUID }
func (h Habit) Stamp() int64 { return h.ClientUpdatedAt }

func (h Habit) Validate() error {
	if h.LocalUUID == "" {
		return errors.New("api: habit missing localUuid")
	}

	if h.CalendarLocalUUID == "" {
		return fmt.Errorf("api: habit %s missing calendarLocalUuid", h.LocalUUID)
	}

	if h.Name == "" {
		return fmt.Errorf("api: habit %s missing name", h.LocalUUID)
	}

	if h.ClientUpdatedAt <= 0 {
		return fmt.Errorf("api: habit %s missing clientUpdatedAt", h.LocalUUID)
	}

	return nil
}

// Completion is the wire representation of a completion event. HabitID is
// the server-assigned habit id; the engine maps it to and from the habit's
// local UUID through the id correlator.
type Completion struct {
	LocalUUID       string  `json:"localUuid"`
	OwnerID         *string `json:"ownerId"`
	HabitID         string  `json:"habitId"`
	CompletedAt     int64   `json:"clientCompletedAt"`
	ClientUpdatedAt int64   `json:"clientUpdatedAt"`
}

func (c Completion) Key() string  { return c.LocalUUID }
func (c Completion) Stamp() int64 { return c.ClientUpdatedAt }

func (c Completion) Validate() error {
	if c.LocalUUID == "" {
		return errors.New("api: completion missing localUuid")
	}

	if c.HabitID == "" {
		return fmt.Errorf("api: completion %s missing habitId", c.LocalUUID)
	}

	if c.CompletedAt <= 0 {
		return fmt.Errorf("api: completion %s missing clientCompletedAt", c.LocalUUID)
	}

	if c.ClientUpdatedAt <= 0 {
		return fmt.Errorf("api: completion %s missing clientUpdatedAt", c.LocalUUID)
	}

	return nil
}

// ActivityDay is the wire representation of a daily activity marker.
type ActivityDay struct {
	LocalUUID       string  `json:"localUuid"`
	OwnerID         *string `json:"ownerId"`
	Day             string  `json:"day"`
	ClientUpdatedAt int64   `json:"clientUpdatedAt"`
}

func (a ActivityDay) Key() string  { return a.LocalUUID }
func (a ActivityDay) Stamp() int64 { return a.ClientUpdatedAt }

func (a ActivityDay) Validate() error {
	if a.LocalUUID == "" {
		return errors.New("api: activity day missing localUuid")
	}

	if _, err := time.Parse("2006-01-02", a.Day); err != nil {
		return fmt.Errorf("api: activity day %s has invalid day %q", a.LocalUUID, a.Day)
	}

	if a.ClientUpdatedAt <= 0 {
		return fmt.Errorf("api: activity day %s missing clientUpdatedAt", a.LocalUUID)
	}

	return nil
}

// User is the wire representation of the remote user record.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// NormalizeName applies NFC normalization to a user-entered name. macOS
// tends to produce NFD strings; the service expects NFC, so all names are
// normalized at the boundary before push.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}
