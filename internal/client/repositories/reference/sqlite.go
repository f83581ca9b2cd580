// Package reference stores read-only reference data (staff, hospital,
// branches, roles) copied from the authority. Tables are replaced wholesale.
package reference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
)

type Repository interface {
	ReplaceAll(ctx context.Context, t models.EntityType, items []json.RawMessage) error
	List(ctx context.Context, t models.EntityType) ([]json.RawMessage, error)
	Get(ctx context.Context, t models.EntityType, id string) (json.RawMessage, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func table(t models.EntityType) (string, error) {
	k, ok := models.KindOf(t)
	if !ok || !k.Reference {
		return "", fmt.Errorf("%w: unknown reference type %q", common.ErrValidation, t)
	}
	return k.Table, nil
}

// ReplaceAll swaps the table contents for items. Every item must be a JSON
// object with a non-empty "id". Run it inside a transaction so readers never
// see a half-replaced table.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, t models.EntityType, items []json.RawMessage) error {
	tbl, err := table(t)
	if err != nil {
		return err
	}

	type idOnly struct {
		ID string `json:"id"`
	}
	ids := make([]string, len(items))
	for i, raw := range items {
		var v idOnly
		if err := json.Unmarshal(raw, &v); err != nil || v.ID == "" {
			return fmt.Errorf("%w: %s item %d has no id", common.ErrValidation, t, i)
		}
		ids[i] = v.ID
	}

	if _, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tbl)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", tbl, err)
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`, tbl)
	for i, raw := range items {
		if _, err := r.db.ExecContext(ctx, q, ids[i], string(raw)); err != nil {
			return fmt.Errorf("failed to insert %s[%s]: %w", t, ids[i], err)
		}
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, t models.EntityType) ([]json.RawMessage, error) {
	tbl, err := table(t)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT data FROM %s ORDER BY rowid`, tbl))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", tbl, err)
	}
	defer rows.Close()

	var result []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", tbl, err)
		}
		result = append(result, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", tbl, err)
	}
	return result, nil
}

// Get returns (nil, nil) when id is absent.
func (r *SQLiteRepository) Get(ctx context.Context, t models.EntityType, id string) (json.RawMessage, error) {
	tbl, err := table(t)
	if err != nil {
		return nil, err
	}
	var data string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT data FROM %s WHERE id = ?`, tbl), id).Scan(&data)
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", t, id, err)
	}
	return json.RawMessage(data), nil
}
