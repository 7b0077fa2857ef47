package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// EnsureUser creates the remote user record if it does not exist yet.
// Idempotent; called on every sign-in before migration and sync.
func (c *Client) EnsureUser(ctx context.Context, user User) error {
	if user.ID == "" {
		return fmt.Errorf("api: ensure user: missing id")
	}

	body, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("api: encoding user: %w", err)
	}

	if err := c.doJSON(ctx, http.MethodPost, "/users/ensure", bytes.NewReader(body), nil); err != nil {
		return err
	}

	c.logger.Info("remote user ensured", slog.String("user_id", user.ID))

	return nil
}

// HabitRef pairs a habit's server-assigned id with its local UUID.
type HabitRef struct {
	ID        string `json:"id"`
	LocalUUID string `json:"localUuid"`
}

// habitLookupRequest asks the service to resolve habit ids in either
// direction. Exactly one of the two lists is populated per call.
type habitLookupRequest struct {
	ServerIDs  []string `json:"serverIds,omitempty"`
	LocalUUIDs []string `json:"localUuids,omitempty"`
}

type habitLookupResponse struct {
	Habits []HabitRef `json:"habits"`
}

// LookupHabitsByServerID resolves a batch of server-assigned habit ids to
// their local UUIDs in a single round trip. Unknown ids are simply absent
// from the result.
func (c *Client) LookupHabitsByServerID(ctx context.Context, serverIDs []string) ([]HabitRef, error) {
	return c.lookupHabits(ctx, habitLookupRequest{ServerIDs: serverIDs})
}

// LookupHabitsByLocalUUID resolves a batch of habit local UUIDs to their
// server-assigned ids. Habits never pushed are absent from the result.
func (c *Client) LookupHabitsByLocalUUID(ctx context.Context, localUUIDs []string) ([]HabitRef, error) {
	return c.lookupHabits(ctx, habitLookupRequest{LocalUUIDs: localUUIDs})
}

func (c *Client) lookupHabits(ctx context.Context, req habitLookupRequest) ([]HabitRef, error) {
	if len(req.ServerIDs) == 0 && len(req.LocalUUIDs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("api: encoding habit lookup: %w", err)
	}

	var resp habitLookupResponse
	if err := c.doJSON(ctx, http.MethodPost, "/habits/lookup", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	c.logger.Debug("habit lookup complete",
		slog.Int("requested", len(req.ServerIDs)+len(req.LocalUUIDs)),
		slog.Int("resolved", len(resp.Habits)),
	)

	return resp.Habits, nil
}

// DeleteLatestCompletion removes the most recent completion for a habit on
// the given day. This is a domain-specific deletion affordance passed
// through to the service unchanged; habitID is the server-assigned id.
func (c *Client) DeleteLatestCompletion(ctx context.Context, habitID, day string) error {
	q := url.Values{}
	q.Set("day", day)

	path := fmt.Sprintf("/habits/%s/completions/latest?%s", url.PathEscape(habitID), q.Encode())

	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return err
	}

	c.logger.Info("deleted latest completion",
		slog.String("habit_id", habitID), slog.String("day", day))

	return nil
}
