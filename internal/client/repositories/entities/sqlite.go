package entities

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/dmitrijs2005/medsync/internal/common"
	"github.com/dmitrijs2005/medsync/internal/dbx"
	"github.com/dmitrijs2005/medsync/internal/timex"
)

const columns = `id, data, sync_status, local_updated_at, server_updated_at, deleted`

// DefaultSearchLimit applies when Search gets a non-positive limit.
const DefaultSearchLimit = 50

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func table(t models.EntityType) (models.Kind, error) {
	k, ok := models.KindOf(t)
	if !ok || k.Reference {
		return models.Kind{}, fmt.Errorf("%w: unknown entity type %q", common.ErrValidation, t)
	}
	return k, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var (
		r          Row
		data       string
		status     string
		local      string
		server     sql.NullString
		deletedInt int
	)
	if err := s.Scan(&r.ID, &data, &status, &local, &server, &deletedInt); err != nil {
		return nil, err
	}
	lt, err := timex.Parse(local)
	if err != nil {
		return nil, err
	}
	st, err := timex.FromNullString(server)
	if err != nil {
		return nil, err
	}
	r.Data = []byte(data)
	r.Meta = models.SyncMeta{SyncStatus: models.SyncStatus(status), LocalUpdatedAt: lt, ServerUpdatedAt: st}
	r.Deleted = deletedInt != 0
	return &r, nil
}

func (r *SQLiteRepository) queryRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the row with id, tombstones included.
func (r *SQLiteRepository) Get(ctx context.Context, t models.EntityType, id string) (*Row, error) {
	k, err := table(t)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, columns, k.Table)
	row, err := scanRow(r.db.QueryRowContext(ctx, q, id))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", t, id, err)
	}
	return row, nil
}

// Put inserts or fully overwrites a row. Upserts keep the rowid, so storage
// order is the order of first insertion.
func (r *SQLiteRepository) Put(ctx context.Context, t models.EntityType, row *Row) error {
	k, err := table(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			sync_status = excluded.sync_status,
			local_updated_at = excluded.local_updated_at,
			server_updated_at = excluded.server_updated_at,
			deleted = excluded.deleted
	`, k.Table, columns)
	deleted := 0
	if row.Deleted {
		deleted = 1
	}
	_, err = r.db.ExecContext(ctx, q,
		row.ID, string(row.Data), string(row.Meta.SyncStatus),
		timex.Format(row.Meta.LocalUpdatedAt), timex.NullString(row.Meta.ServerUpdatedAt), deleted)
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", t, row.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) SetStatus(ctx context.Context, t models.EntityType, id string, status models.SyncStatus) error {
	k, err := table(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ? WHERE id = ?`, k.Table)
	if _, err := r.db.ExecContext(ctx, q, string(status), id); err != nil {
		return fmt.Errorf("failed to set status of %s[%s]: %w", t, id, err)
	}
	return nil
}

// MarkSynced records a confirmed server version and clears the pending state.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, t models.EntityType, id string, serverUpdatedAt time.Time) error {
	k, err := table(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET sync_status = ?, server_updated_at = ? WHERE id = ?`, k.Table)
	if _, err := r.db.ExecContext(ctx, q, string(models.StatusSynced), timex.Format(serverUpdatedAt), id); err != nil {
		return fmt.Errorf("failed to mark %s[%s] synced: %w", t, id, err)
	}
	return nil
}

func (r *SQLiteRepository) SetServerUpdatedAt(ctx context.Context, t models.EntityType, id string, at time.Time) error {
	k, err := table(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET server_updated_at = ? WHERE id = ?`, k.Table)
	if _, err := r.db.ExecContext(ctx, q, timex.Format(at), id); err != nil {
		return fmt.Errorf("failed to set server version of %s[%s]: %w", t, id, err)
	}
	return nil
}

// Purge physically removes the row. Missing rows are not an error.
func (r *SQLiteRepository) Purge(ctx context.Context, t models.EntityType, id string) error {
	k, err := table(t)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, k.Table)
	if _, err := r.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("failed to purge %s[%s]: %w", t, id, err)
	}
	return nil
}

// FindByField returns the first live row whose field equals value, ignoring
// case. Only declared unique or searchable fields may be queried.
func (r *SQLiteRepository) FindByField(ctx context.Context, t models.EntityType, field, value string) (*Row, error) {
	k, err := table(t)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(k.UniqueFields, field) && !slices.Contains(k.SearchFields, field) {
		return nil, fmt.Errorf("%w: field %q is not indexed for %s", common.ErrValidation, field, t)
	}
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE deleted = 0 AND lower(json_extract(data, '$.%s')) = lower(?)
		ORDER BY rowid LIMIT 1`, columns, k.Table, field)
	row, err := scanRow(r.db.QueryRowContext(ctx, q, value))
	if dbx.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s by %s: %w", t, field, err)
	}
	return row, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search matches query as a case-insensitive substring of any searchable
// field. Results are the first limit matches in rowid order. An empty query
// matches every live row.
func (r *SQLiteRepository) Search(ctx context.Context, t models.EntityType, query string, limit int) ([]Row, error) {
	k, err := table(t)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	conds := make([]string, 0, len(k.SearchFields))
	args := make([]any, 0, len(k.SearchFields)+1)
	for _, f := range k.SearchFields {
		conds = append(conds, fmt.Sprintf(`lower(coalesce(json_extract(data, '$.%s'), '')) LIKE ? ESCAPE '\'`, f))
		args = append(args, pattern)
	}
	where := "deleted = 0"
	if len(conds) > 0 {
		where += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	args = append(args, limit)

	q := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY rowid LIMIT ?`, columns, k.Table, where)
	rows, err := r.queryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", t, err)
	}
	return rows, nil
}

// ListByStatus returns live rows in the given status in rowid order.
func (r *SQLiteRepository) ListByStatus(ctx context.Context, t models.EntityType, status models.SyncStatus) ([]Row, error) {
	k, err := table(t)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE deleted = 0 AND sync_status = ? ORDER BY rowid`, columns, k.Table)
	rows, err := r.queryRows(ctx, q, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s by status: %w", t, err)
	}
	return rows, nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context, t models.EntityType, status models.SyncStatus) (int, error) {
	k, err := table(t)
	if err != nil {
		return 0, err
	}
	var n int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE deleted = 0 AND sync_status = ?`, k.Table)
	if err := r.db.QueryRowContext(ctx, q, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s by status: %w", t, err)
	}
	return n, nil
}
