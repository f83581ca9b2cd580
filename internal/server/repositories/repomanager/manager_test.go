package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ RepositoryManager = (*PostgresRepositoryManager)(nil)
	_ RepositoryManager = (*MemoryRepositoryManager)(nil)
)

func stubMigrate(t *testing.T, err error) *bool {
	t.Helper()
	called := false
	orig := migrate
	migrate = func(context.Context, *sql.DB) error {
		called = true
		return err
	}
	t.Cleanup(func() { migrate = orig })
	return &called
}

func newMockManager(t *testing.T) (*PostgresRepositoryManager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true), sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	called := stubMigrate(t, nil)
	mock.ExpectPing()
	m, err := newPostgresRepositoryManager(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, *called)
	return m, mock
}

func TestPostgres_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	called := stubMigrate(t, nil)
	mock.ExpectPing().WillReturnError(errors.New("refused"))
	_, err = newPostgresRepositoryManager(context.Background(), db)
	assert.ErrorContains(t, err, "failed to connect")
	assert.False(t, *called)
}

func TestPostgres_MigrationFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	stubMigrate(t, errors.New("boom"))
	mock.ExpectPing()
	_, err = newPostgresRepositoryManager(context.Background(), db)
	assert.EqualError(t, err, "boom")
}

func TestPostgres_InTxCommits(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := m.InTx(context.Background(), func(ctx context.Context, r Repositories) error {
		return r.Records.Put(ctx, &models.Record{EntityType: "patient", EntityID: "p1", Deleted: true})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InTxRollsBack(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := m.InTx(context.Background(), func(context.Context, Repositories) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReposUseConnection(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectQuery(`SELECT kind, data FROM reference_data`).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "data"}))

	got, err := m.Repos().Reference.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)

	mock.ExpectClose()
	assert.NoError(t, m.Close())
}

func TestMemory_InTx(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepositoryManager()

	err := m.InTx(ctx, func(ctx context.Context, r Repositories) error {
		return r.Records.Put(ctx, &models.Record{EntityType: "patient", EntityID: "p1"})
	})
	require.NoError(t, err)

	rec, err := m.Repos().Records.Get(ctx, "patient", "p1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
	assert.NoError(t, m.Close())
}
