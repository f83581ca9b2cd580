package models

import "time"

// StatusSnapshot is what status indicators render.
type StatusSnapshot struct {
	PendingCount        int          `json:"pendingCount"`
	DeadCount           int          `json:"deadCount"`
	UnresolvedConflicts int          `json:"unresolvedConflicts"`
	LastSyncAt          *time.Time   `json:"lastSyncAt,omitempty"`
	Online              bool         `json:"online"`
	GeneratedAt         time.Time    `json:"generatedAt"`
	Entities            []KindStatus `json:"entities,omitempty"`
}

// KindStatus counts the live records of one entity type that are not yet
// synced.
type KindStatus struct {
	Type     EntityType `json:"type"`
	Pending  int        `json:"pending"`
	Conflict int        `json:"conflict"`
	Error    int        `json:"error"`
}
