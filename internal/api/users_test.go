package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureUser_RequiresID(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("a user without an id must not be submitted")
	}))

	err := c.EnsureUser(context.Background(), User{Email: "u@example.com"})
	require.Error(t, err)
}

func TestEnsureUser_PostsUser(t *testing.T) {
	var (
		gotPath string
		gotUser User
	)

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotUser))
		w.WriteHeader(http.StatusOK)
	}))

	err := c.EnsureUser(context.Background(), User{ID: "user-1", Email: "u@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "/users/ensure", gotPath)
	assert.Equal(t, "user-1", gotUser.ID)
}

func TestLookupHabits_EmptyRequestSkipsNetwork(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("an empty lookup must not hit the network")
	}))

	refs, err := c.LookupHabitsByServerID(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLookupHabits_ResolvesBothDirections(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req habitLookupRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Echo back one ref per requested id, regardless of direction.
		var refs []HabitRef
		for _, id := range req.ServerIDs {
			refs = append(refs, HabitRef{ID: id, LocalUUID: "local-" + id})
		}
		for _, id := range req.LocalUUIDs {
			refs = append(refs, HabitRef{ID: "srv-" + id, LocalUUID: id})
		}

		require.NoError(t, json.NewEncoder(w).Encode(habitLookupResponse{Habits: refs}))
	}))

	byServer, err := c.LookupHabitsByServerID(context.Background(), []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, byServer, 2)
	assert.Equal(t, "local-1", byServer[0].LocalUUID)

	byLocal, err := c.LookupHabitsByLocalUUID(context.Background(), []string{"abc"})
	require.NoError(t, err)
	require.Len(t, byLocal, 1)
	assert.Equal(t, "srv-abc", byLocal[0].ID)
}

func TestDeleteLatestCompletion(t *testing.T) {
	var gotPath, gotDay, gotMethod string

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotDay = r.URL.Query().Get("day")
		w.WriteHeader(http.StatusOK)
	}))

	err := c.DeleteLatestCompletion(context.Background(), "srv-7", "2026-08-29")
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/habits/srv-7/completions/latest", gotPath)
	assert.Equal(t, "2026-08-29", gotDay)
}

func TestNormalizeName(t *testing.T) {
	// NFD "é" (e + combining acute) normalizes to the single NFC code point.
	nfd := "Café"
	assert.Equal(t, "Café", NormalizeName(nfd))
	assert.Equal(t, "plain", NormalizeName("plain"))
}

func TestRecordValidation(t *testing.T) {
	assert.NoError(t, validCalendar("cal-1").Validate())
	assert.Error(t, Calendar{Name: "no uuid", ClientUpdatedAt: 1}.Validate())
	assert.Error(t, Calendar{LocalUUID: "cal-1", Name: "no stamp"}.Validate())

	habit := Habit{LocalUUID: "hab-1", CalendarLocalUUID: "cal-1", Name: "Run", ClientUpdatedAt: 1}
	assert.NoError(t, habit.Validate())

	habit.CalendarLocalUUID = ""
	assert.Error(t, habit.Validate(), "a habit must reference its calendar")

	completion := Completion{LocalUUID: "comp-1", HabitID: "srv-1", CompletedAt: 1, ClientUpdatedAt: 1}
	assert.NoError(t, completion.Validate())

	completion.HabitID = ""
	assert.Error(t, completion.Validate())

	day := ActivityDay{LocalUUID: "act-1", Day: "2026-08-29", ClientUpdatedAt: 1}
	assert.NoError(t, day.Validate())

	day.Day = "29/08/2026"
	assert.Error(t, day.Validate(), "days are ISO dates")
}
