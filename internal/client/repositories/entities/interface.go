package entities

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

// Row is one stored entity. Data holds the domain JSON.
type Row struct {
	ID      string
	Data    json.RawMessage
	Meta    models.SyncMeta
	Deleted bool
}

// Repository describes the row-level operations on entity tables. Get and
// the finders return (nil, nil) when nothing matches.
type Repository interface {
	Get(ctx context.Context, t models.EntityType, id string) (*Row, error)
	Put(ctx context.Context, t models.EntityType, row *Row) error
	SetStatus(ctx context.Context, t models.EntityType, id string, status models.SyncStatus) error
	MarkSynced(ctx context.Context, t models.EntityType, id string, serverUpdatedAt time.Time) error
	SetServerUpdatedAt(ctx context.Context, t models.EntityType, id string, at time.Time) error
	Purge(ctx context.Context, t models.EntityType, id string) error

	FindByField(ctx context.Context, t models.EntityType, field, value string) (*Row, error)
	Search(ctx context.Context, t models.EntityType, query string, limit int) ([]Row, error)
	ListByStatus(ctx context.Context, t models.EntityType, status models.SyncStatus) ([]Row, error)
	CountByStatus(ctx context.Context, t models.EntityType, status models.SyncStatus) (int, error)
}
