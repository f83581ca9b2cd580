package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/client/repositories/entities"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"github.com/google/uuid"
)

// Collection is the typed view of one entity table. Every write goes
// through a transaction that also appends the matching queue item.
type Collection[E models.Entity] struct {
	s    *Store
	kind models.Kind
	newE func() E
}

func newCollection[E models.Entity](s *Store, t models.EntityType, newE func() E) *Collection[E] {
	k, ok := models.KindOf(t)
	if !ok {
		panic(fmt.Sprintf("store: unknown entity type %q", t))
	}
	return &Collection[E]{s: s, kind: k, newE: newE}
}

func (c *Collection[E]) Type() models.EntityType { return c.kind.Type }

func (c *Collection[E]) decode(row *entities.Row) (E, error) {
	e := c.newE()
	if err := json.Unmarshal(row.Data, e); err != nil {
		var zero E
		return zero, fmt.Errorf("failed to decode %s[%s]: %w", c.kind.Type, row.ID, err)
	}
	e.SetID(row.ID)
	*e.Meta() = row.Meta
	return e, nil
}

func (c *Collection[E]) decodeAll(rows []entities.Row) ([]E, error) {
	result := make([]E, 0, len(rows))
	for i := range rows {
		e, err := c.decode(&rows[i])
		if err != nil {
			return nil, wrapStorage(err)
		}
		result = append(result, e)
	}
	return result, nil
}

func (c *Collection[E]) one(row *entities.Row, err error) (E, bool, error) {
	var zero E
	if err != nil {
		return zero, false, wrapStorage(err)
	}
	if row == nil || row.Deleted {
		return zero, false, nil
	}
	e, err := c.decode(row)
	if err != nil {
		return zero, false, wrapStorage(err)
	}
	return e, true, nil
}

// Get returns the record with id. ok is false when there is no such record
// or it is awaiting a delete confirmation.
func (c *Collection[E]) Get(ctx context.Context, id string) (E, bool, error) {
	return c.one(c.s.repos.Entities.Get(ctx, c.kind.Type, id))
}

// FindByUniqueField looks value up in the kind's unique fields in declared
// order and returns the first match. Comparison ignores case.
func (c *Collection[E]) FindByUniqueField(ctx context.Context, value string) (E, bool, error) {
	var zero E
	if value == "" {
		return zero, false, nil
	}
	for _, f := range c.kind.UniqueFields {
		e, ok, err := c.FindBy(ctx, f, value)
		if err != nil || ok {
			return e, ok, err
		}
	}
	return zero, false, nil
}

// FindBy matches a single unique or searchable field.
func (c *Collection[E]) FindBy(ctx context.Context, field, value string) (E, bool, error) {
	return c.one(c.s.repos.Entities.FindByField(ctx, c.kind.Type, field, value))
}

// Search returns records whose searchable fields contain query, ignoring
// case, in storage order. limit <= 0 means entities.DefaultSearchLimit.
func (c *Collection[E]) Search(ctx context.Context, query string, limit int) ([]E, error) {
	rows, err := c.s.repos.Entities.Search(ctx, c.kind.Type, query, limit)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return c.decodeAll(rows)
}

// ListPending returns live records waiting for confirmation.
func (c *Collection[E]) ListPending(ctx context.Context) ([]E, error) {
	rows, err := c.s.repos.Entities.ListByStatus(ctx, c.kind.Type, models.StatusPending)
	if err != nil {
		return nil, wrapStorage(err)
	}
	return c.decodeAll(rows)
}

// checkConflict refuses writes to a record that is flagged as conflicted
// or still has an open ledger entry.
func (c *Collection[E]) checkConflict(ctx context.Context, r Repositories, id string, row *entities.Row) error {
	conflicted := row != nil && row.Meta.SyncStatus == models.StatusConflict
	if !conflicted {
		has, err := r.Conflicts.HasUnresolved(ctx, c.kind.Type, id)
		if err != nil {
			return err
		}
		conflicted = has
	}
	if conflicted {
		return fmt.Errorf("%w: %s[%s] has an unresolved conflict", common.ErrConflict, c.kind.Type, id)
	}
	return nil
}

// Save writes e and enqueues its snapshot in one transaction. A new record
// gets a uuid and a create item; an existing one gets an update item. On
// success e carries the stored id and sync attributes.
func (c *Collection[E]) Save(ctx context.Context, e E) (string, error) {
	if err := models.Validate(e); err != nil {
		return "", err
	}
	if e.GetID() == "" {
		e.SetID(uuid.NewString())
	}
	id := e.GetID()
	now := c.s.Now()

	var meta models.SyncMeta
	err := c.s.Tx(ctx, func(ctx context.Context, r Repositories) error {
		existing, err := r.Entities.Get(ctx, c.kind.Type, id)
		if err != nil {
			return err
		}

		if existing != nil && existing.Deleted {
			return fmt.Errorf("%w: %s[%s] is deleted", common.ErrNotFound, c.kind.Type, id)
		}
		if err := c.checkConflict(ctx, r, id, existing); err != nil {
			return err
		}

		action := wire.ActionCreate
		if existing != nil {
			action = wire.ActionUpdate
			meta.ServerUpdatedAt = existing.Meta.ServerUpdatedAt
		}
		meta.MarkPending(now)

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode %s[%s]: %w", c.kind.Type, id, err)
		}
		if err := r.Entities.Put(ctx, c.kind.Type, &entities.Row{ID: id, Data: data, Meta: meta}); err != nil {
			return err
		}
		return r.Queue.Enqueue(ctx, &models.QueueItem{
			EntityType: c.kind.Type,
			EntityID:   id,
			Action:     action,
			Data:       data,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return "", err
	}

	*e.Meta() = meta
	c.s.logger.Debug(ctx, "entity saved", "type", c.kind.Type, "id", id)
	return id, nil
}

// Delete tombstones the record and enqueues a delete. The row is purged
// once the authority confirms.
func (c *Collection[E]) Delete(ctx context.Context, id string) error {
	now := c.s.Now()
	err := c.s.Tx(ctx, func(ctx context.Context, r Repositories) error {
		existing, err := r.Entities.Get(ctx, c.kind.Type, id)
		if err != nil {
			return err
		}
		if existing == nil || existing.Deleted {
			return fmt.Errorf("%w: %s[%s]", common.ErrNotFound, c.kind.Type, id)
		}
		if err := c.checkConflict(ctx, r, id, existing); err != nil {
			return err
		}

		existing.Deleted = true
		existing.Meta.MarkPending(now)
		if err := r.Entities.Put(ctx, c.kind.Type, existing); err != nil {
			return err
		}
		return r.Queue.Enqueue(ctx, &models.QueueItem{
			EntityType: c.kind.Type,
			EntityID:   id,
			Action:     wire.ActionDelete,
			Data:       existing.Data,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return err
	}
	c.s.logger.Debug(ctx, "entity deleted", "type", c.kind.Type, "id", id)
	return nil
}
