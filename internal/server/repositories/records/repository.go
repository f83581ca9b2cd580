// Package records stores the authority's canonical entity versions, in
// PostgreSQL or in memory.
package records

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medsync/internal/server/models"
)

type Repository interface {
	// Get returns (nil, nil) when the record was never written.
	Get(ctx context.Context, entityType, entityID string) (*models.Record, error)
	Put(ctx context.Context, r *models.Record) error
	// ChangedSince lists records, tombstones included, updated strictly
	// after since in updatedAt order. A nil since lists everything.
	ChangedSince(ctx context.Context, since *time.Time) ([]models.Record, error)
}
