package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageSize is the number of records requested per changes page.
const DefaultPageSize = 200

// Page holds one page of remote changes plus the pagination state needed to
// fetch the next one. Done is true when NextCursor is absent.
type Page[T Record] struct {
	Records    []T
	NextCursor string
	Done       bool
}

// changesEnvelope mirrors the service's changes response JSON.
type changesEnvelope struct {
	Records    json.RawMessage `json:"records"`
	NextCursor string          `json:"nextCursor"`
	Done       bool            `json:"isDone"`
}

// ChangesSince fetches one page of records of the given entity type changed
// after sinceMs. Pass an empty cursor for the first page; subsequent pages
// use the NextCursor from the previous Page. Records that fail boundary
// validation are dropped with a warning rather than failing the page.
func ChangesSince[T Record](
	ctx context.Context,
	c *Client,
	entityType string,
	sinceMs int64,
	pageSize int,
	cursor string,
) (*Page[T], error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	q := url.Values{}
	q.Set("since", strconv.FormatInt(sinceMs, 10))
	q.Set("pageSize", strconv.Itoa(pageSize))

	if cursor != "" {
		q.Set("cursor", cursor)
	}

	path := fmt.Sprintf("/%s/changes?%s", entityType, q.Encode())

	var env changesEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}

	var raw []T
	if len(env.Records) > 0 {
		if err := json.Unmarshal(env.Records, &raw); err != nil {
			return nil, fmt.Errorf("api: decoding %s changes records: %w", entityType, err)
		}
	}

	records := make([]T, 0, len(raw))

	for _, r := range raw {
		if err := r.Validate(); err != nil {
			c.logger.Warn("dropping invalid pulled record",
				slog.String("entity_type", entityType),
				slog.String("error", err.Error()),
			)

			continue
		}

		records = append(records, r)
	}

	c.logger.Debug("fetched changes page",
		slog.String("entity_type", entityType),
		slog.Int("raw_count", len(raw)),
		slog.Int("valid_count", len(records)),
		slog.Bool("has_next_cursor", env.NextCursor != ""),
	)

	return &Page[T]{
		Records:    records,
		NextCursor: env.NextCursor,
		Done:       env.Done || env.NextCursor == "",
	}, nil
}
