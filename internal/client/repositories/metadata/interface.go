// Package metadata stores scalar client state (last sync time, pull cursor,
// device id) in a key/value table.
package metadata

import (
	"context"
)

// Well-known keys.
const (
	KeyLastSyncAt = "last_sync_at"
	KeyPullCursor = "pull_cursor"
	KeyDeviceID   = "device_id"
)

type Repository interface {
	// Get reports ok=false when key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
