package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habistat/habistat-go/internal/api"
	"github.com/habistat/habistat-go/internal/store"
)

type fixedToken string

func (t fixedToken) Token() (string, error) { return string(t), nil }

// fakeService is an in-memory sync service good enough to drive the entity
// syncers end to end: scripted change pages, captured batch submissions,
// and habit id lookups answered from a fixed map.
type fakeService struct {
	mu      sync.Mutex
	pages   map[string][]string // entityType -> JSON page bodies, served in order
	served  map[string]int
	batches map[string][][]byte
	refs    map[string]string // habit localUuid -> server id
}

func newFakeService() *fakeService {
	return &fakeService{
		pages:   make(map[string][]string),
		served:  make(map[string]int),
		batches: make(map[string][][]byte),
		refs:    make(map[string]string),
	}
}

func (s *fakeService) addPage(entityType, body string) {
	s.pages[entityType] = append(s.pages[entityType], body)
}

func (s *fakeService) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

		switch {
		case len(parts) == 2 && parts[1] == "changes":
			entityType := parts[0]

			idx := s.served[entityType]
			if idx >= len(s.pages[entityType]) {
				fmt.Fprint(w, `{"records":[],"isDone":true}`)
				return
			}

			s.served[entityType]++
			fmt.Fprint(w, s.pages[entityType][idx])

		case len(parts) == 2 && parts[1] == "batch":
			var req struct {
				Records []json.RawMessage `json:"records"`
			}

			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			for _, rec := range req.Records {
				s.batches[parts[0]] = append(s.batches[parts[0]], rec)
			}

			fmt.Fprintf(w, `{"upserted":%d}`, len(req.Records))

		case len(parts) == 2 && parts[0] == "habits" && parts[1] == "lookup":
			var req struct {
				ServerIDs  []string `json:"serverIds"`
				LocalUUIDs []string `json:"localUuids"`
			}

			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}

			var refs []api.HabitRef

			for _, id := range req.ServerIDs {
				for local, remote := range s.refs {
					if remote == id {
						refs = append(refs, api.HabitRef{ID: remote, LocalUUID: local})
					}
				}
			}

			for _, local := range req.LocalUUIDs {
				if remote, ok := s.refs[local]; ok {
					refs = append(refs, api.HabitRef{ID: remote, LocalUUID: local})
				}
			}

			data, _ := json.Marshal(map[string]any{"habits": refs})
			w.Write(data)

		default:
			http.NotFound(w, r)
		}
	})
}

func (s *fakeService) pushedTo(entityType string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.batches[entityType]))
	copy(out, s.batches[entityType])

	return out
}

type syncHarness struct {
	store      *store.SQLiteStore
	client     *api.Client
	correlator *Correlator
	service    *fakeService
}

func newSyncHarness(t *testing.T) *syncHarness {
	t.Helper()

	service := newFakeService()

	srv := httptest.NewServer(service.handler())
	t.Cleanup(srv.Close)

	st := openTestStore(t)
	client := api.NewClient(srv.URL, srv.Client(), fixedToken("tok"), testLogger())

	return &syncHarness{
		store:      st,
		client:     client,
		correlator: NewCorrelator(store.EntityHabits, st, client, testLogger()),
		service:    service,
	}
}

func TestCalendarSyncer_InitialPullAppliesRemoteRecords(t *testing.T) {
	h := newSyncHarness(t)
	h.service.addPage("calendars", `{
		"records": [
			{"localUuid":"cal-1","ownerId":"user-1","name":"Health","clientUpdatedAt":1000},
			{"localUuid":"cal-2","ownerId":"user-1","name":"Work","clientUpdatedAt":2000}
		],
		"isDone": true
	}`)

	s := NewCalendarSyncer(h.store, h.client, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(context.Background(), "user-1")

	assert.Equal(t, ResultSuccess, result.Status)
	assert.Equal(t, 2, result.Pulled)

	ctx := context.Background()

	cal, err := h.store.GetCalendar(ctx, "cal-1")
	require.NoError(t, err)
	require.NotNil(t, cal)
	assert.Equal(t, "Health", cal.Name)
	assert.Equal(t, int64(1000), cal.ClientUpdatedAt)

	cursor, err := h.store.GetSyncCursor(ctx, store.EntityCalendars)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), cursor)
}

func TestHabitSyncer_DefersHabitWithUnknownCalendar(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, h.store.UpsertCalendar(ctx, &store.Calendar{
		ID: "cal-1", OwnerID: &owner, Name: "Health", IsEnabled: true,
		ClientUpdatedAt: 100, CreatedAt: 100, UpdatedAt: 100,
	}))

	h.service.addPage("habits", `{
		"records": [
			{"id":"srv-1","localUuid":"hab-1","ownerId":"user-1","calendarLocalUuid":"cal-1","name":"Run","habitType":"positive","clientUpdatedAt":1000},
			{"id":"srv-2","localUuid":"hab-2","ownerId":"user-1","calendarLocalUuid":"cal-missing","name":"Swim","habitType":"positive","clientUpdatedAt":1000}
		],
		"isDone": true
	}`)

	s := NewHabitSyncer(h.store, h.client, h.correlator, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(ctx, owner)

	assert.Equal(t, ResultSuccess, result.Status)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, 1, result.Skipped, "a habit with no local calendar waits for the next cycle")

	applied, err := h.store.GetHabit(ctx, "hab-1")
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, "cal-1", applied.CalendarID)

	deferred, err := h.store.GetHabit(ctx, "hab-2")
	require.NoError(t, err)
	assert.Nil(t, deferred)

	// Pulled habits teach the correlator their server-assigned ids.
	remote, err := h.store.GetRemoteID(ctx, store.EntityHabits, "hab-1")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", remote)

	cursor, err := h.store.GetSyncCursor(ctx, store.EntityHabits)
	require.NoError(t, err)
	assert.Zero(t, cursor, "a deferral keeps the window open for the retry")
}

func TestHabitSyncer_DeferredHabitAppliedOnceCalendarArrives(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	owner := "user-1"

	page := `{
		"records": [
			{"id":"srv-2","localUuid":"hab-2","ownerId":"user-1","calendarLocalUuid":"cal-late","name":"Swim","habitType":"positive","clientUpdatedAt":1000}
		],
		"isDone": true
	}`
	h.service.addPage("habits", page)
	h.service.addPage("habits", page)

	s := NewHabitSyncer(h.store, h.client, h.correlator, signedInProvider(), fixedClock(5000), 10, testLogger())

	first := s.Sync(ctx, owner)
	require.Equal(t, ResultSuccess, first.Status)
	require.Equal(t, 1, first.Skipped)

	// The calendar lands between cycles; the held window re-delivers the
	// habit and this time it applies.
	require.NoError(t, h.store.UpsertCalendar(ctx, &store.Calendar{
		ID: "cal-late", OwnerID: &owner, Name: "Pool", IsEnabled: true,
		ClientUpdatedAt: 100, CreatedAt: 100, UpdatedAt: 100,
	}))

	second := s.Sync(ctx, owner)

	assert.Equal(t, ResultSuccess, second.Status)
	assert.Zero(t, second.Skipped)

	applied, err := h.store.GetHabit(ctx, "hab-2")
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, "cal-late", applied.CalendarID)

	cursor, err := h.store.GetSyncCursor(ctx, store.EntityHabits)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), cursor)
}

func TestCompletionSyncer_PullTranslatesServerHabitIDs(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveIDMapping(ctx, store.EntityHabits, "hab-local", "srv-9"))

	h.service.addPage("completions", `{
		"records": [
			{"localUuid":"comp-1","ownerId":"user-1","habitId":"srv-9","clientCompletedAt":1000,"clientUpdatedAt":1000},
			{"localUuid":"comp-2","ownerId":"user-1","habitId":"srv-unknown","clientCompletedAt":1000,"clientUpdatedAt":1000}
		],
		"isDone": true
	}`)

	s := NewCompletionSyncer(h.store, h.client, h.correlator, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(ctx, "user-1")

	assert.Equal(t, ResultSuccess, result.Status)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, 1, result.Skipped, "a completion of an unseen habit is deferred")

	applied, err := h.store.GetCompletion(ctx, "comp-1")
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, "hab-local", applied.HabitID, "stored under the habit's local UUID")

	deferred, err := h.store.GetCompletion(ctx, "comp-2")
	require.NoError(t, err)
	assert.Nil(t, deferred)
}

func TestCompletionSyncer_PushTranslatesLocalHabitIDs(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, h.store.SaveIDMapping(ctx, store.EntityHabits, "hab-pushed", "srv-9"))
	require.NoError(t, h.store.SaveSyncCursor(ctx, store.EntityCompletions, 1000))

	require.NoError(t, h.store.UpsertCompletion(ctx, &store.Completion{
		ID: "comp-ready", OwnerID: &owner, HabitID: "hab-pushed", CompletedAt: 2000,
		ClientUpdatedAt: 2000, CreatedAt: 2000, UpdatedAt: 2000,
	}))
	require.NoError(t, h.store.UpsertCompletion(ctx, &store.Completion{
		ID: "comp-waiting", OwnerID: &owner, HabitID: "hab-unpushed", CompletedAt: 2000,
		ClientUpdatedAt: 2000, CreatedAt: 2000, UpdatedAt: 2000,
	}))

	s := NewCompletionSyncer(h.store, h.client, h.correlator, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(ctx, owner)

	assert.Equal(t, ResultSuccess, result.Status)
	assert.Equal(t, 1, result.Pushed)
	assert.Equal(t, 1, result.Skipped, "completions of never-pushed habits are held back")

	pushed := h.service.pushedTo("completions")
	require.Len(t, pushed, 1)

	var rec api.Completion
	require.NoError(t, json.Unmarshal(pushed[0], &rec))
	assert.Equal(t, "comp-ready", rec.LocalUUID)
	assert.Equal(t, "srv-9", rec.HabitID, "the wire record carries the server-assigned habit id")
}

func TestActivitySyncer_ResolvesDayCollisionByStamp(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, h.store.SaveSyncCursor(ctx, store.EntityActivity, 1000))

	require.NoError(t, h.store.UpsertActivityDay(ctx, &store.ActivityDay{
		ID: "act-local", OwnerID: &owner, Day: "2026-08-29",
		ClientUpdatedAt: 1500, CreatedAt: 1500, UpdatedAt: 1500,
	}))

	// The remote row covers the same (owner, day) under a different UUID
	// with a newer stamp, so it wins and the local row goes.
	h.service.addPage("activity_days", `{
		"records": [
			{"localUuid":"act-remote","ownerId":"user-1","day":"2026-08-29","clientUpdatedAt":2000}
		],
		"isDone": true
	}`)

	s := NewActivitySyncer(h.store, h.client, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(ctx, owner)

	assert.Equal(t, ResultSuccess, result.Status)

	gone, err := h.store.GetActivityDay(ctx, "act-local")
	require.NoError(t, err)
	assert.Nil(t, gone)

	winner, err := h.store.GetActivityDayForOwner(ctx, &owner, "2026-08-29")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "act-remote", winner.ID)
}

func TestActivitySyncer_OlderRemoteDayLoses(t *testing.T) {
	h := newSyncHarness(t)
	ctx := context.Background()
	owner := "user-1"

	require.NoError(t, h.store.SaveSyncCursor(ctx, store.EntityActivity, 1000))

	require.NoError(t, h.store.UpsertActivityDay(ctx, &store.ActivityDay{
		ID: "act-local", OwnerID: &owner, Day: "2026-08-29",
		ClientUpdatedAt: 3000, CreatedAt: 3000, UpdatedAt: 3000,
	}))

	h.service.addPage("activity_days", `{
		"records": [
			{"localUuid":"act-remote","ownerId":"user-1","day":"2026-08-29","clientUpdatedAt":2000}
		],
		"isDone": true
	}`)

	s := NewActivitySyncer(h.store, h.client, signedInProvider(), fixedClock(5000), 10, testLogger())

	result := s.Sync(ctx, owner)

	assert.Equal(t, ResultSuccess, result.Status)

	kept, err := h.store.GetActivityDayForOwner(ctx, &owner, "2026-08-29")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "act-local", kept.ID, "the newer local row keeps its slot")
}
