package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/medsync/internal/client/store"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/logging"
	"github.com/dmitrijs2005/medsync/internal/wire"
)

// Merger combines the local and server versions of a conflicted record.
// server is nil when the authority deleted the record.
type Merger interface {
	Merge(t models.EntityType, local, server json.RawMessage) (json.RawMessage, error)
}

// MergerFunc adapts a function to Merger.
type MergerFunc func(t models.EntityType, local, server json.RawMessage) (json.RawMessage, error)

func (f MergerFunc) Merge(t models.EntityType, local, server json.RawMessage) (json.RawMessage, error) {
	return f(t, local, server)
}

// ShallowMerger merges top-level JSON fields: a local field wins unless it
// is null, server fields missing locally are kept.
type ShallowMerger struct{}

func (ShallowMerger) Merge(_ models.EntityType, local, server json.RawMessage) (json.RawMessage, error) {
	var l, s map[string]json.RawMessage
	if err := json.Unmarshal(local, &l); err != nil {
		return nil, fmt.Errorf("failed to decode local version: %w", err)
	}
	if len(server) > 0 && string(server) != "null" {
		if err := json.Unmarshal(server, &s); err != nil {
			return nil, fmt.Errorf("failed to decode server version: %w", err)
		}
	}
	merged := make(map[string]json.RawMessage, len(l)+len(s))
	for k, v := range s {
		merged[k] = v
	}
	for k, v := range l {
		if string(v) == "null" {
			if _, ok := merged[k]; ok {
				continue
			}
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

type ConflictService interface {
	ListUnresolved(ctx context.Context) ([]models.Conflict, error)
	Get(ctx context.Context, id string) (*models.Conflict, error)
	Resolve(ctx context.Context, id string, resolution models.Resolution) error
}

type conflictService struct {
	store  *store.Store
	merger Merger
	logger logging.Logger
}

// NewConflictService returns a service that merges with m, or with
// ShallowMerger when m is nil.
func NewConflictService(s *store.Store, m Merger, l logging.Logger) ConflictService {
	if m == nil {
		m = ShallowMerger{}
	}
	if l == nil {
		l = logging.Discard()
	}
	return &conflictService{store: s, merger: m, logger: l.With("module", "conflicts")}
}

func (s *conflictService) ListUnresolved(ctx context.Context) ([]models.Conflict, error) {
	list, err := s.store.Repos().Conflicts.ListUnresolved(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return list, nil
}

// Get returns ErrNotFound for an unknown id.
func (s *conflictService) Get(ctx context.Context, id string) (*models.Conflict, error) {
	c, err := s.store.Repos().Conflicts.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if c == nil {
		return nil, fmt.Errorf("conflict[%s]: %w", id, common.ErrNotFound)
	}
	return c, nil
}

// Resolve applies the chosen side to the entity and closes the ledger row
// in one transaction.
//
//   - local keeps the local data and queues it against the server version.
//   - server overwrites the entity with the server copy, or purges it when
//     the server deleted it.
//   - merged stores the Merger's output and queues it like local.
func (s *conflictService) Resolve(ctx context.Context, id string, resolution models.Resolution) error {
	if !resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %q", common.ErrValidation, resolution)
	}
	now := s.store.Now()

	err := s.store.Tx(ctx, func(ctx context.Context, r store.Repositories) error {
		c, err := r.Conflicts.Get(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("conflict[%s]: %w", id, common.ErrNotFound)
		}
		if c.Resolved() {
			return fmt.Errorf("conflict[%s]: %w", id, common.ErrAlreadyResolved)
		}

		row, err := r.Entities.Get(ctx, c.EntityType, c.EntityID)
		if err != nil {
			return err
		}

		switch resolution {
		case models.ResolutionServer:
			err = s.takeServer(ctx, r, c, now)
		case models.ResolutionLocal:
			err = s.requeue(ctx, r, c, row, c.LocalData, now)
		case models.ResolutionMerged:
			var merged json.RawMessage
			merged, err = s.merger.Merge(c.EntityType, c.LocalData, c.ServerData)
			if err != nil {
				return fmt.Errorf("%w: merge failed: %w", common.ErrValidation, err)
			}
			err = s.requeue(ctx, r, c, row, merged, now)
		}
		if err != nil {
			return err
		}
		return r.Conflicts.Resolve(ctx, id, resolution, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "conflict resolved", "conflict", id, "resolution", resolution)
	return nil
}

func (s *conflictService) takeServer(ctx context.Context, r store.Repositories, c *models.Conflict, now time.Time) error {
	if _, err := r.Queue.RemoveForEntity(ctx, c.EntityType, c.EntityID); err != nil {
		return err
	}
	if c.ServerDeleted() {
		return r.Entities.Purge(ctx, c.EntityType, c.EntityID)
	}
	return r.Entities.Put(ctx, c.EntityType, &entities.Row{
		ID:   c.EntityID,
		Data: c.ServerData,
		Meta: models.SyncMeta{SyncStatus: models.StatusSynced, LocalUpdatedAt: now, ServerUpdatedAt: c.ServerUpdatedAt},
	})
}

// requeue stores data as a pending local change based on the server
// version recorded in the conflict. A local tombstone stays a delete; a
// record the server no longer has is created again.
func (s *conflictService) requeue(ctx context.Context, r store.Repositories, c *models.Conflict, row *entities.Row, data json.RawMessage, now time.Time) error {
	action := wire.ActionUpdate
	deleted := row != nil && row.Deleted
	switch {
	case deleted:
		action = wire.ActionDelete
	case c.ServerDeleted():
		action = wire.ActionCreate
	}

	var meta models.SyncMeta
	meta.MarkPending(now)
	if !c.ServerDeleted() {
		meta.ServerUpdatedAt = c.ServerUpdatedAt
	}
	if err := r.Entities.Put(ctx, c.EntityType, &entities.Row{ID: c.EntityID, Data: data, Meta: meta, Deleted: deleted}); err != nil {
		return err
	}
	return r.Queue.Enqueue(ctx, &models.QueueItem{
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Action:     action,
		Data:       data,
		CreatedAt:  now,
	})
}
