package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func openFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUp_CreatesSchema(t *testing.T) {
	db := openFileDB(t)
	require.NoError(t, Up(context.Background(), db))

	for _, name := range []string{
		"patients", "appointments", "visits", "prescriptions", "lab_orders", "bills",
		"staff", "hospitals", "branches", "roles",
		"metadata", "sync_queue", "sync_conflicts", "goose_db_version",
	} {
		assert.True(t, tableExists(t, db, name), "missing table %s", name)
	}
}

func TestUp_IsIdempotent(t *testing.T) {
	db := openFileDB(t)
	ctx := context.Background()

	require.NoError(t, Up(ctx, db))
	require.NoError(t, Up(ctx, db))
}

func TestUp_QueueRejectsUnknownAction(t *testing.T) {
	db := openFileDB(t)
	require.NoError(t, Up(context.Background(), db))

	_, err := db.Exec(`INSERT INTO sync_queue (id, entity_type, entity_id, action, created_at) VALUES ('q', 'patient', 'p', 'upsert', 'now')`)
	assert.Error(t, err)
}

func TestUp_PropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	err := Up(context.Background(), openFileDB(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
