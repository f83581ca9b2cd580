// Package conflicts persists the conflict ledger. Rows are never deleted;
// a conflict is closed by setting resolvedAt together with a resolution.
package conflicts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

type Repository interface {
	Record(ctx context.Context, c *models.Conflict) error
	Get(ctx context.Context, id string) (*models.Conflict, error)
	ListUnresolved(ctx context.Context) ([]models.Conflict, error)
	Resolve(ctx context.Context, id string, resolution models.Resolution, now time.Time) error
	CountUnresolved(ctx context.Context) (int, error)
	HasUnresolved(ctx context.Context, t models.EntityType, entityID string) (bool, error)
}
