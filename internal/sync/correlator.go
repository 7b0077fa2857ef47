package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/habistat/habistat-go/internal/api"
)

// mappingStore is the slice of the local store the correlator needs.
// Implemented by *store.SQLiteStore.
type mappingStore interface {
	GetRemoteID(ctx context.Context, entityType, localID string) (string, error)
	GetLocalIDs(ctx context.Context, entityType string, remoteIDs []string) (map[string]string, error)
	SaveIDMapping(ctx context.Context, entityType, localID, remoteID string) error
}

// habitLookup is the slice of the remote API the correlator needs.
// Implemented by *api.Client.
type habitLookup interface {
	LookupHabitsByServerID(ctx context.Context, serverIDs []string) ([]api.HabitRef, error)
	LookupHabitsByLocalUUID(ctx context.Context, localUUIDs []string) ([]api.HabitRef, error)
}

// Correlator maps habit local UUIDs to and from server-assigned ids.
// Mappings are persisted in the id_map table and cached in memory for the
// process lifetime. Unknown ids are resolved through the service in batches,
// never one at a time: a page of completions referencing M distinct habits
// costs one lookup call, not one per record.
type Correlator struct {
	entityType string
	store      mappingStore
	remote     habitLookup
	logger     *slog.Logger

	mu            sync.Mutex
	localByRemote map[string]string
	remoteByLocal map[string]string
}

// NewCorrelator creates a Correlator for the given entity type.
func NewCorrelator(entityType string, st mappingStore, remote habitLookup, logger *slog.Logger) *Correlator {
	return &Correlator{
		entityType:    entityType,
		store:         st,
		remote:        remote,
		logger:        logger,
		localByRemote: make(map[string]string),
		remoteByLocal: make(map[string]string),
	}
}

// LocalIDs resolves a batch of server-assigned ids to local UUIDs. Ids with
// no resolution (parent not yet seen anywhere) are absent from the result;
// callers skip those records and retry on a later cycle.
//
// Resolution order: in-memory cache, then the id_map table in one query,
// then a single batched remote lookup for whatever is still unknown.
func (c *Correlator) LocalIDs(ctx context.Context, remoteIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(remoteIDs))

	unresolved := c.fromCache(remoteIDs, result)
	if len(unresolved) == 0 {
		return result, nil
	}

	stored, err := c.store.GetLocalIDs(ctx, c.entityType, unresolved)
	if err != nil {
		return nil, fmt.Errorf("correlator: %w", err)
	}

	remaining := make([]string, 0, len(unresolved))

	for _, remoteID := range unresolved {
		if localID, ok := stored[remoteID]; ok {
			result[remoteID] = localID
			c.remember(localID, remoteID)
		} else {
			remaining = append(remaining, remoteID)
		}
	}

	if len(remaining) == 0 {
		return result, nil
	}

	refs, err := c.remote.LookupHabitsByServerID(ctx, remaining)
	if err != nil {
		return nil, fmt.Errorf("correlator: remote lookup: %w", err)
	}

	for _, ref := range refs {
		if ref.ID == "" || ref.LocalUUID == "" {
			continue
		}

		result[ref.ID] = ref.LocalUUID

		if err := c.Record(ctx, ref.LocalUUID, ref.ID); err != nil {
			return nil, err
		}
	}

	if len(refs) < len(remaining) {
		c.logger.Debug("some parent ids remain unresolved",
			slog.String("entity_type", c.entityType),
			slog.Int("requested", len(remaining)),
			slog.Int("resolved", len(refs)),
		)
	}

	return result, nil
}

// RemoteID resolves a local UUID to its server-assigned id, or "" when the
// parent has never been pushed. Callers skip the dependent record, not an
// error, and retry once the parent exists remotely.
func (c *Correlator) RemoteID(ctx context.Context, localID string) (string, error) {
	c.mu.Lock()
	remoteID, ok := c.remoteByLocal[localID]
	c.mu.Unlock()

	if ok {
		return remoteID, nil
	}

	remoteID, err := c.store.GetRemoteID(ctx, c.entityType, localID)
	if err != nil {
		return "", fmt.Errorf("correlator: %w", err)
	}

	if remoteID != "" {
		c.remember(localID, remoteID)
		return remoteID, nil
	}

	// Not in the store either. Ask the service in case another device
	// pushed the parent.
	refs, err := c.remote.LookupHabitsByLocalUUID(ctx, []string{localID})
	if err != nil {
		return "", fmt.Errorf("correlator: remote lookup: %w", err)
	}

	for _, ref := range refs {
		if ref.LocalUUID == localID && ref.ID != "" {
			if err := c.Record(ctx, ref.LocalUUID, ref.ID); err != nil {
				return "", err
			}

			return ref.ID, nil
		}
	}

	return "", nil
}

// RemoteIDs resolves a batch of local UUIDs, batching the remote lookup for
// any not yet known. UUIDs with no remote counterpart are absent from the
// result.
func (c *Correlator) RemoteIDs(ctx context.Context, localIDs []string) (map[string]string, error) {
	result := make(map[string]string, len(localIDs))

	var unresolved []string

	c.mu.Lock()
	for _, localID := range localIDs {
		if remoteID, ok := c.remoteByLocal[localID]; ok {
			result[localID] = remoteID
		} else {
			unresolved = append(unresolved, localID)
		}
	}
	c.mu.Unlock()

	var stillUnknown []string

	for _, localID := range unresolved {
		remoteID, err := c.store.GetRemoteID(ctx, c.entityType, localID)
		if err != nil {
			return nil, fmt.Errorf("correlator: %w", err)
		}

		if remoteID != "" {
			result[localID] = remoteID
			c.remember(localID, remoteID)
		} else {
			stillUnknown = append(stillUnknown, localID)
		}
	}

	if len(stillUnknown) == 0 {
		return result, nil
	}

	refs, err := c.remote.LookupHabitsByLocalUUID(ctx, stillUnknown)
	if err != nil {
		return nil, fmt.Errorf("correlator: remote lookup: %w", err)
	}

	for _, ref := range refs {
		if ref.ID == "" || ref.LocalUUID == "" {
			continue
		}

		result[ref.LocalUUID] = ref.ID

		if err := c.Record(ctx, ref.LocalUUID, ref.ID); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// Record persists a freshly-learned correlation (e.g., from a pulled habit
// record that carries both ids).
func (c *Correlator) Record(ctx context.Context, localID, remoteID string) error {
	if err := c.store.SaveIDMapping(ctx, c.entityType, localID, remoteID); err != nil {
		return fmt.Errorf("correlator: %w", err)
	}

	c.remember(localID, remoteID)

	return nil
}

// fromCache fills result with cached resolutions and returns the remote ids
// still unresolved.
func (c *Correlator) fromCache(remoteIDs []string, result map[string]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var unresolved []string

	for _, remoteID := range remoteIDs {
		if localID, ok := c.localByRemote[remoteID]; ok {
			result[remoteID] = localID
		} else {
			unresolved = append(unresolved, remoteID)
		}
	}

	return unresolved
}

func (c *Correlator) remember(localID, remoteID string) {
	c.mu.Lock()
	c.localByRemote[remoteID] = localID
	c.remoteByLocal[localID] = remoteID
	c.mu.Unlock()
}
