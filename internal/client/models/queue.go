package models

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/medsync/internal/wire"
)

type QueueStatus string

const (
	QueueQueued QueueStatus = "queued"
	// QueueDead items exhausted the retry policy and wait for a manual requeue.
	QueueDead QueueStatus = "dead"
)

// QueueItem is a pending mutation awaiting confirmation from the authority.
// Seq breaks ties between items created in the same instant.
type QueueItem struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"`
	EntityType    EntityType      `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Action        wire.Action     `json:"action"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"lastAttemptAt,omitempty"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
	Status        QueueStatus     `json:"status"`
	LastError     string          `json:"lastError,omitempty"`
}
