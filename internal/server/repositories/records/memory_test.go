package records

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/medsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryRepository()
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	got, err := m.Get(ctx, "patient", "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.Put(ctx, &models.Record{EntityType: "visit", EntityID: "v1", Data: json.RawMessage(`{}`), UpdatedAt: t0.Add(time.Second)}))
	require.NoError(t, m.Put(ctx, &models.Record{EntityType: "patient", EntityID: "p1", Data: json.RawMessage(`{}`), UpdatedAt: t0.Add(time.Second)}))
	require.NoError(t, m.Put(ctx, &models.Record{EntityType: "patient", EntityID: "p2", UpdatedAt: t0, Deleted: true}))

	got, err = m.Get(ctx, "patient", "p2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Deleted)

	all, err := m.ChangedSince(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p2", all[0].EntityID)
	assert.Equal(t, "patient", all[1].EntityType)
	assert.Equal(t, "visit", all[2].EntityType)

	newer, err := m.ChangedSince(ctx, &t0)
	require.NoError(t, err)
	assert.Len(t, newer, 2)
}
