package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectRecords = `SELECT entity_type, entity_id, data, updated_at, deleted FROM records`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.Record, error) {
	var (
		r    models.Record
		data []byte
	)
	if err := s.Scan(&r.EntityType, &r.EntityID, &data, &r.UpdatedAt, &r.Deleted); err != nil {
		return nil, err
	}
	if data != nil {
		r.Data = json.RawMessage(data)
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

// Get locks the row for the rest of the surrounding transaction.
func (r *PostgresRepository) Get(ctx context.Context, entityType, entityID string) (*models.Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		selectRecords+` WHERE entity_type = $1 AND entity_id = $2 FOR UPDATE`, entityType, entityID))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s[%s]: %w", entityType, entityID, err)
	}
	return rec, nil
}

func nullJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return string(data)
}

func (r *PostgresRepository) Put(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO records (entity_type, entity_id, data, updated_at, deleted)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, entity_id)
		DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at,
			deleted = EXCLUDED.deleted`
	_, err := r.db.ExecContext(ctx, query, rec.EntityType, rec.EntityID, nullJSON(rec.Data), rec.UpdatedAt, rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to put record %s[%s]: %w", rec.EntityType, rec.EntityID, err)
	}
	return nil
}

func (r *PostgresRepository) ChangedSince(ctx context.Context, since *time.Time) ([]models.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	const order = ` ORDER BY updated_at, entity_type, entity_id`
	if since == nil {
		rows, err = r.db.QueryContext(ctx, selectRecords+order)
	} else {
		rows, err = r.db.QueryContext(ctx, selectRecords+` WHERE updated_at > $1`+order, *since)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
