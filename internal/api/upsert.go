package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// MaxBatchSize bounds the number of records submitted per batch upsert call.
const MaxBatchSize = 100

// batchRequest is the versioned batch upsert payload.
type batchRequest[T Record] struct {
	SchemaVersion int `json:"schemaVersion"`
	Records       []T `json:"records"`
}

// RejectedRecord identifies a record the service refused, with the reason.
type RejectedRecord struct {
	LocalUUID string `json:"localUuid"`
	Reason    string `json:"reason"`
}

// BatchResult reports the outcome of a batch upsert.
type BatchResult struct {
	Upserted int              `json:"upserted"`
	Rejected []RejectedRecord `json:"rejected,omitempty"`
}

// BatchUpsert submits up to MaxBatchSize records of the given entity type.
// The localUuid is the idempotent upsert key on the server: submitting the
// same payload twice leaves remote state unchanged. Records failing local
// validation are dropped before submission and reported in the result's
// Rejected list so callers can log them without aborting the batch.
func BatchUpsert[T Record](ctx context.Context, c *Client, entityType string, records []T) (*BatchResult, error) {
	if len(records) == 0 {
		return &BatchResult{}, nil
	}

	if len(records) > MaxBatchSize {
		return nil, fmt.Errorf("api: batch of %d exceeds max %d", len(records), MaxBatchSize)
	}

	valid := make([]T, 0, len(records))

	var rejected []RejectedRecord

	for _, r := range records {
		if err := r.Validate(); err != nil {
			c.logger.Warn("dropping invalid record from batch",
				slog.String("entity_type", entityType),
				slog.String("local_uuid", r.Key()),
				slog.String("error", err.Error()),
			)

			rejected = append(rejected, RejectedRecord{LocalUUID: r.Key(), Reason: err.Error()})

			continue
		}

		valid = append(valid, r)
	}

	if len(valid) == 0 {
		return &BatchResult{Rejected: rejected}, nil
	}

	body, err := json.Marshal(batchRequest[T]{SchemaVersion: SchemaVersion, Records: valid})
	if err != nil {
		return nil, fmt.Errorf("api: encoding %s batch: %w", entityType, err)
	}

	var result BatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/"+entityType+"/batch", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}

	result.Rejected = append(result.Rejected, rejected...)

	c.logger.Debug("batch upsert complete",
		slog.String("entity_type", entityType),
		slog.Int("submitted", len(valid)),
		slog.Int("upserted", result.Upserted),
		slog.Int("rejected", len(result.Rejected)),
	)

	return &result, nil
}
