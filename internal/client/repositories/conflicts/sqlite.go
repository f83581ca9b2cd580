package conflicts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/timex"
	"github.com/google/uuid"
)

const selectConflicts = `SELECT id, entity_type, entity_id, local_data, server_data,
	server_updated_at, created_at, resolved_at, resolution FROM sync_conflicts`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConflict(s scanner) (*models.Conflict, error) {
	var (
		c                  models.Conflict
		entityType, local  string
		server             sql.NullString
		serverAt, resolved sql.NullString
		created            string
		resolution         sql.NullString
	)
	err := s.Scan(&c.ID, &entityType, &c.EntityID, &local, &server, &serverAt, &created, &resolved, &resolution)
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = timex.Parse(created); err != nil {
		return nil, err
	}
	if c.ServerUpdatedAt, err = timex.FromNullString(serverAt); err != nil {
		return nil, err
	}
	if c.ResolvedAt, err = timex.FromNullString(resolved); err != nil {
		return nil, err
	}
	c.EntityType = models.EntityType(entityType)
	c.LocalData = []byte(local)
	if server.Valid {
		c.ServerData = []byte(server.String)
	}
	c.Resolution = models.Resolution(resolution.String)
	return &c, nil
}

// Record stores a new unresolved conflict. ID and CreatedAt are filled in
// when empty.
func (r *SQLiteRepository) Record(ctx context.Context, c *models.Conflict) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.ResolvedAt, c.Resolution = nil, ""

	var server sql.NullString
	if !c.ServerDeleted() {
		server = sql.NullString{String: string(c.ServerData), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_conflicts (id, entity_type, entity_id, local_data, server_data, server_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, string(c.EntityType), c.EntityID, string(c.LocalData), server,
		timex.NullString(c.ServerUpdatedAt), timex.Format(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record conflict for %s[%s]: %w", c.EntityType, c.EntityID, err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Conflict, error) {
	c, err := scanConflict(r.db.QueryRowContext(ctx, selectConflicts+` WHERE id = ?`, id))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict[%s]: %w", id, err)
	}
	return c, nil
}

// ListUnresolved returns open conflicts, oldest first.
func (r *SQLiteRepository) ListUnresolved(ctx context.Context) ([]models.Conflict, error) {
	rows, err := r.db.QueryContext(ctx, selectConflicts+` WHERE resolved_at IS NULL ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict row: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflict rows: %w", err)
	}
	return result, nil
}

// Resolve closes an open conflict. It does not touch the entity.
func (r *SQLiteRepository) Resolve(ctx context.Context, id string, resolution models.Resolution, now time.Time) error {
	if !resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %q", common.ErrValidation, resolution)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_conflicts SET resolved_at = ?, resolution = ?
		WHERE id = ? AND resolved_at IS NULL
	`, timex.Format(now), string(resolution), id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict[%s]: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	existing, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("conflict[%s]: %w", id, common.ErrNotFound)
	}
	return fmt.Errorf("conflict[%s]: %w", id, common.ErrAlreadyResolved)
}

func (r *SQLiteRepository) CountUnresolved(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_conflicts WHERE resolved_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) HasUnresolved(ctx context.Context, t models.EntityType, entityID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_conflicts
		WHERE entity_type = ? AND entity_id = ? AND resolved_at IS NULL
	`, string(t), entityID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check conflicts of %s[%s]: %w", t, entityID, err)
	}
	return n > 0, nil
}
