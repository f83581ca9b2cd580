package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/migrations"
	"github.com/dmitrijs2005/medsync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func patientRow(id, first, last, phone string) *Row {
	data, _ := json.Marshal(map[string]string{"id": id, "firstName": first, "lastName": last, "phone": phone})
	return &Row{ID: id, Data: data, Meta: models.SyncMeta{SyncStatus: models.StatusPending, LocalUpdatedAt: t0}}
}

func TestPutAndGet_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	server := t0.Add(time.Minute)
	row := patientRow("p1", "Chioma", "Okafor", "0803")
	row.Meta.ServerUpdatedAt = &server
	require.NoError(t, r.Put(ctx, models.TypePatient, row))

	got, err := r.Get(ctx, models.TypePatient, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(row.Data), string(got.Data))
	assert.Equal(t, models.StatusPending, got.Meta.SyncStatus)
	assert.True(t, t0.Equal(got.Meta.LocalUpdatedAt))
	require.NotNil(t, got.Meta.ServerUpdatedAt)
	assert.True(t, server.Equal(*got.Meta.ServerUpdatedAt))
	assert.False(t, got.Deleted)
}

func TestGet_Missing_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	got, err := r.Get(context.Background(), models.TypeVisit, "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUnknownType_IsRejected(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	_, err := r.Get(ctx, "ward", "x")
	assert.Error(t, err)
	_, err = r.Get(ctx, models.TypeStaff, "x")
	assert.Error(t, err, "reference kinds are not mutable entities")
}

func TestPut_UpsertKeepsStorageOrder(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("a", "Ada", "One", "")))
	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("b", "Ada", "Two", "")))
	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("a", "Ada", "One-edited", "")))

	rows, err := r.Search(ctx, models.TypePatient, "ada", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].ID)
	assert.Contains(t, string(rows[0].Data), "One-edited")
	assert.Equal(t, "b", rows[1].ID)
}

func TestSearch_CaseInsensitiveSubstring(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p1", "Chioma", "Okafor", "08031112222")))
	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p2", "Emeka", "Obi", "08039998888")))

	rows, err := r.Search(ctx, models.TypePatient, "chioma", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].ID)

	rows, err = r.Search(ctx, models.TypePatient, "OKA", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = r.Search(ctx, models.TypePatient, "9998", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p2", rows[0].ID)
}

func TestSearch_LimitAndEmptyQuery(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Put(ctx, models.TypePatient, patientRow(fmt.Sprintf("p%d", i), "Ngozi", "X", "")))
	}

	rows, err := r.Search(ctx, models.TypePatient, "ngozi", 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"p0", "p1", "p2"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})

	rows, err = r.Search(ctx, models.TypePatient, "", 0)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestSearch_WildcardsAreLiteral(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p1", "Ada", "Eze", "")))

	rows, err := r.Search(ctx, models.TypePatient, "%", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = r.Search(ctx, models.TypePatient, "_", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSearch_SkipsTombstones(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	row := patientRow("p1", "Chioma", "Okafor", "")
	row.Deleted = true
	require.NoError(t, r.Put(ctx, models.TypePatient, row))

	rows, err := r.Search(ctx, models.TypePatient, "chioma", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	got, err := r.Get(ctx, models.TypePatient, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Deleted)
}

func TestFindByField(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p1", "Chioma", "Okafor", "08031112222")))

	got, err := r.FindByField(ctx, models.TypePatient, "phone", "08031112222")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID)

	got, err = r.FindByField(ctx, models.TypePatient, "phone", "0000")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = r.FindByField(ctx, models.TypePatient, "phone", "  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.FindByField(ctx, models.TypePatient, "notes') OR 1=1 --", "x")
	assert.Error(t, err)
}

func TestStatusTransitions(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p1", "A", "B", "")))
	require.NoError(t, r.Put(ctx, models.TypePatient, patientRow("p2", "C", "D", "")))

	n, err := r.CountByStatus(ctx, models.TypePatient, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	server := t0.Add(time.Hour)
	require.NoError(t, r.MarkSynced(ctx, models.TypePatient, "p1", server))
	require.NoError(t, r.SetStatus(ctx, models.TypePatient, "p2", models.StatusConflict))

	pending, err := r.ListByStatus(ctx, models.TypePatient, models.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := r.Get(ctx, models.TypePatient, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Meta.SyncStatus)
	assert.True(t, server.Equal(*got.Meta.ServerUpdatedAt))

	later := server.Add(time.Second)
	require.NoError(t, r.SetServerUpdatedAt(ctx, models.TypePatient, "p2", later))
	got, err = r.Get(ctx, models.TypePatient, "p2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConflict, got.Meta.SyncStatus)
	assert.True(t, later.Equal(*got.Meta.ServerUpdatedAt))
}

func TestPurge_IsIdempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, models.TypeBill, &Row{ID: "b1", Data: []byte(`{"id":"b1"}`), Meta: models.SyncMeta{SyncStatus: models.StatusSynced, LocalUpdatedAt: t0}}))
	require.NoError(t, r.Purge(ctx, models.TypeBill, "b1"))
	require.NoError(t, r.Purge(ctx, models.TypeBill, "b1"))

	got, err := r.Get(ctx, models.TypeBill, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
