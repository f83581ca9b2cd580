package reference

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ReplaceAll should run inside a transaction, otherwise a failed insert
// leaves the kind partially filled.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, kind string, items []models.ReferenceItem) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reference_data WHERE kind = $1`, kind); err != nil {
		return fmt.Errorf("failed to clear reference kind %s: %w", kind, err)
	}
	for _, it := range items {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO reference_data (kind, id, data) VALUES ($1, $2, $3)`, kind, it.ID, string(it.Data))
		if err != nil {
			return fmt.Errorf("failed to insert reference %s[%s]: %w", kind, it.ID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) (map[string][]json.RawMessage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT kind, data FROM reference_data ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select reference data: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]json.RawMessage)
	for rows.Next() {
		var (
			kind string
			data []byte
		)
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, fmt.Errorf("failed to scan reference data: %w", err)
		}
		result[kind] = append(result[kind], json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
