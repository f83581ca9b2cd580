package reference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var branches = []models.ReferenceItem{
	{Kind: "branch", ID: "b2", Data: json.RawMessage(`{"id":"b2","name":"Ikeja"}`)},
	{Kind: "branch", ID: "b1", Data: json.RawMessage(`{"id":"b1","name":"Lekki"}`)},
}

func TestPostgres_ReplaceAll(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM reference_data WHERE kind = \$1`).WithArgs("branch").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO reference_data`).WithArgs("branch", "b2", `{"id":"b2","name":"Ikeja"}`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO reference_data`).WithArgs("branch", "b1", `{"id":"b1","name":"Lekki"}`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresRepository(db).ReplaceAll(context.Background(), "branch", branches))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceAllErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectExec(`DELETE FROM reference_data`).WillReturnError(errors.New("locked"))
	assert.Error(t, repo.ReplaceAll(context.Background(), "branch", branches))

	mock.ExpectExec(`DELETE FROM reference_data`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO reference_data`).WillReturnError(errors.New("duplicate"))
	assert.ErrorContains(t, repo.ReplaceAll(context.Background(), "branch", branches), "branch[b2]")
}

func TestPostgres_ListAll(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT kind, data FROM reference_data ORDER BY kind, id`).
		WillReturnRows(sqlmock.NewRows([]string{"kind", "data"}).
			AddRow("branch", `{"id":"b1"}`).
			AddRow("branch", `{"id":"b2"}`).
			AddRow("staff", `{"id":"s1"}`))

	got, err := NewPostgresRepository(db).ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got["branch"], 2)
	assert.JSONEq(t, `{"id":"s1"}`, string(got["staff"][0]))
}

func TestPostgres_ListAllQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT kind, data`).WillReturnError(errors.New("boom"))
	_, err = NewPostgresRepository(db).ListAll(context.Background())
	assert.Error(t, err)
}

func TestMemory_ReplaceAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	require.NoError(t, m.ReplaceAll(ctx, "branch", branches))

	got, err := m.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got["branch"], 2)
	assert.JSONEq(t, `{"id":"b1","name":"Lekki"}`, string(got["branch"][0]))

	require.NoError(t, m.ReplaceAll(ctx, "branch", nil))
	got, err = m.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got["branch"])
}
