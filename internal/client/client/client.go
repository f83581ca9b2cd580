package client

import (
	"context"
	"time"

	"github.com/dmitrijs2005/medsync/internal/wire"
)

// Remote is the authority as seen by the client.
type Remote interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, m wire.Mutation) (*wire.PushResult, error)
	Pull(ctx context.Context, since *time.Time) (*wire.Changes, error)
	PresignBackup(ctx context.Context, name string) (*wire.PresignResponse, error)
	Close() error
}
