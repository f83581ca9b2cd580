// Package queue persists the sync queue: the ordered log of local mutations
// waiting for confirmation from the authority. Replay order is createdAt
// ascending with the autoincrement seq as tie-breaker.
package queue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medsync/internal/client/models"
)

type Repository interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	Get(ctx context.Context, id string) (*models.QueueItem, error)
	List(ctx context.Context) ([]models.QueueItem, error)
	ListDead(ctx context.Context) ([]models.QueueItem, error)
	Remove(ctx context.Context, id string) error
	RemoveForEntity(ctx context.Context, t models.EntityType, entityID string) (int64, error)

	// RecordAttemptFailure bumps attempts atomically and returns the new value.
	RecordAttemptFailure(ctx context.Context, id string, now time.Time, cause string) (int, error)
	Defer(ctx context.Context, id string, until time.Time) error
	MarkDead(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	RequeueAll(ctx context.Context) (int64, error)

	Count(ctx context.Context) (int, error)
	CountDead(ctx context.Context) (int, error)
	CountForEntity(ctx context.Context, t models.EntityType, entityID string) (int, error)
}
