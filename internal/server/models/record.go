// Package models holds the authority's canonical records.
package models

import (
	"encoding/json"
	"time"
)

// Record is the canonical version of one entity. A deleted record keeps its
// row as a tombstone so Pull can report the deletion.
type Record struct {
	EntityType string
	EntityID   string
	Data       json.RawMessage
	UpdatedAt  time.Time
	Deleted    bool
}

// Live reports whether r exists and is not a tombstone.
func (r *Record) Live() bool {
	return r != nil && !r.Deleted
}

// ReferenceItem is one read-only reference record, such as a staff member
// or a branch. ID is taken from the item's "id" field.
type ReferenceItem struct {
	Kind string
	ID   string
	Data json.RawMessage
}
