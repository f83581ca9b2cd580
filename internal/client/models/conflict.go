package models

import (
	"encoding/json"
	"time"
)

type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionServer Resolution = "server"
	ResolutionMerged Resolution = "merged"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionLocal, ResolutionServer, ResolutionMerged:
		return true
	}
	return false
}

// Conflict is a ledger row. ServerData is nil when the authority deleted
// the record. Resolution is set only together with ResolvedAt.
type Conflict struct {
	ID              string          `json:"id"`
	EntityType      EntityType      `json:"entityType"`
	EntityID        string          `json:"entityId"`
	LocalData       json.RawMessage `json:"localData"`
	ServerData      json.RawMessage `json:"serverData,omitempty"`
	ServerUpdatedAt *time.Time      `json:"serverUpdatedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ResolvedAt      *time.Time      `json:"resolvedAt,omitempty"`
	Resolution      Resolution      `json:"resolution,omitempty"`
}

func (c *Conflict) Resolved() bool {
	return c.ResolvedAt != nil
}

// ServerDeleted reports whether the authority no longer has the record.
func (c *Conflict) ServerDeleted() bool {
	return len(c.ServerData) == 0 || string(c.ServerData) == "null"
}
