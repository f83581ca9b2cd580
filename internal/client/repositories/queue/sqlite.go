package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/timex"
	"github.com/dmitrijs2005/medsync/internal/wire"
	"github.com/google/uuid"
)

const selectItems = `SELECT seq, id, entity_type, entity_id, action, data, created_at,
	attempts, last_attempt_at, next_attempt_at, status, last_error FROM sync_queue`

const replayOrder = ` ORDER BY created_at, seq`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*models.QueueItem, error) {
	var (
		it                 models.QueueItem
		entityType, action string
		status             string
		data               sql.NullString
		created            string
		last, next         sql.NullString
		lastErr            sql.NullString
	)
	err := s.Scan(&it.Seq, &it.ID, &entityType, &it.EntityID, &action, &data, &created,
		&it.Attempts, &last, &next, &status, &lastErr)
	if err != nil {
		return nil, err
	}
	if it.CreatedAt, err = timex.Parse(created); err != nil {
		return nil, err
	}
	if it.LastAttemptAt, err = timex.FromNullString(last); err != nil {
		return nil, err
	}
	if it.NextAttemptAt, err = timex.FromNullString(next); err != nil {
		return nil, err
	}
	it.EntityType = models.EntityType(entityType)
	it.Action = wire.Action(action)
	it.Status = models.QueueStatus(status)
	it.LastError = lastErr.String
	if data.Valid {
		it.Data = []byte(data.String)
	}
	return &it, nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]models.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// Enqueue appends item. ID and CreatedAt are filled in when empty; attempts
// always start at zero.
func (r *SQLiteRepository) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if !item.Action.Valid() {
		return fmt.Errorf("%w: unknown queue action %q", common.ErrValidation, item.Action)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.Attempts = 0
	item.Status = models.QueueQueued
	item.LastAttemptAt, item.NextAttemptAt, item.LastError = nil, nil, ""

	var data sql.NullString
	if len(item.Data) > 0 {
		data = sql.NullString{String: string(item.Data), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sync_queue (id, entity_type, entity_id, action, data, created_at, attempts, status)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		RETURNING seq
	`, item.ID, string(item.EntityType), item.EntityID, string(item.Action), data,
		timex.Format(item.CreatedAt), string(models.QueueQueued)).Scan(&item.Seq)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s %s[%s]: %w", item.Action, item.EntityType, item.EntityID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.QueueItem, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, selectItems+` WHERE id = ?`, id))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item[%s]: %w", id, err)
	}
	return it, nil
}

// List returns every outstanding item in replay order, dead ones included.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.QueueItem, error) {
	items, err := r.list(ctx, selectItems+replayOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) ListDead(ctx context.Context) ([]models.QueueItem, error) {
	items, err := r.list(ctx, selectItems+` WHERE status = ?`+replayOrder, string(models.QueueDead))
	if err != nil {
		return nil, fmt.Errorf("failed to list dead queue items: %w", err)
	}
	return items, nil
}

// Remove deletes the item. Removing a missing id is a no-op.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue item[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveForEntity(ctx context.Context, t models.EntityType, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, string(t), entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove queue items of %s[%s]: %w", t, entityID, err)
	}
	return res.RowsAffected()
}

// RecordAttemptFailure increments attempts in a single statement so
// concurrent failures cannot lose an increment.
func (r *SQLiteRepository) RecordAttemptFailure(ctx context.Context, id string, now time.Time, cause string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx, `
		UPDATE sync_queue
		SET attempts = attempts + 1, last_attempt_at = ?, last_error = ?
		WHERE id = ?
		RETURNING attempts
	`, timex.Format(now), cause, id).Scan(&attempts)
	if dbx.IsNoRows(err) {
		return 0, fmt.Errorf("queue item[%s]: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record attempt of queue item[%s]: %w", id, err)
	}
	return attempts, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, what, id, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s queue item[%s]: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("queue item[%s]: %w", id, common.ErrNotFound)
	}
	return nil
}

// Defer holds the item, and the rest of its entity's run, back until the
// given time.
func (r *SQLiteRepository) Defer(ctx context.Context, id string, until time.Time) error {
	return r.exec(ctx, "defer", id, `UPDATE sync_queue SET next_attempt_at = ? WHERE id = ?`, timex.Format(until), id)
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id string) error {
	return r.exec(ctx, "dead-letter", id,
		`UPDATE sync_queue SET status = ?, next_attempt_at = NULL WHERE id = ?`, string(models.QueueDead), id)
}

// Requeue makes the item ready again. Attempts are kept for the record.
func (r *SQLiteRepository) Requeue(ctx context.Context, id string) error {
	return r.exec(ctx, "requeue", id,
		`UPDATE sync_queue SET status = ?, next_attempt_at = NULL WHERE id = ?`, string(models.QueueQueued), id)
}

// RequeueAll makes every dead-lettered item ready again.
func (r *SQLiteRepository) RequeueAll(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = ?, next_attempt_at = NULL WHERE status = ?`,
		string(models.QueueQueued), string(models.QueueDead))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue dead items: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue items: %w", err)
	}
	return n, nil
}

// Count is the number of outstanding items, dead-lettered ones included.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sync_queue`)
}

func (r *SQLiteRepository) CountDead(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = ?`, string(models.QueueDead))
}

func (r *SQLiteRepository) CountForEntity(ctx context.Context, t models.EntityType, entityID string) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM sync_queue WHERE entity_type = ? AND entity_id = ?`, string(t), entityID)
}
