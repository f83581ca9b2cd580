// Package models defines the client-side records cached by the local store:
// domain entities with their sync-control attributes, reference data, queue
// items and conflict ledger rows.
package models

import "time"

// EntityType discriminates entity kinds in queue items, conflicts and on
// the wire.
type EntityType string

const (
	TypePatient      EntityType = "patient"
	TypeAppointment  EntityType = "appointment"
	TypeVisit        EntityType = "visit"
	TypePrescription EntityType = "prescription"
	TypeLabOrder     EntityType = "lab_order"
	TypeBill         EntityType = "bill"

	TypeStaff    EntityType = "staff"
	TypeHospital EntityType = "hospital"
	TypeBranch   EntityType = "branch"
	TypeRole     EntityType = "role"
)

// SyncStatus is the reconciliation state of a local record.
type SyncStatus string

const (
	StatusSynced   SyncStatus = "synced"
	StatusPending  SyncStatus = "pending"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
)

// SyncMeta holds the sync-control attributes the store maintains for every
// mutable entity. They live in dedicated columns and never in the domain
// JSON sent to the authority.
type SyncMeta struct {
	SyncStatus      SyncStatus `json:"-"`
	LocalUpdatedAt  time.Time  `json:"-"`
	ServerUpdatedAt *time.Time `json:"-"`
}

func (m *SyncMeta) Meta() *SyncMeta { return m }

// MarkPending tags a local write made at now.
func (m *SyncMeta) MarkPending(now time.Time) {
	m.SyncStatus = StatusPending
	m.LocalUpdatedAt = now.UTC()
}

// Record is embedded by every mutable entity.
type Record struct {
	ID string `json:"id"`
	SyncMeta
}

func (r *Record) GetID() string   { return r.ID }
func (r *Record) SetID(id string) { r.ID = id }

// Entity is implemented by pointers to the domain structs in this package.
type Entity interface {
	GetID() string
	SetID(id string)
	Meta() *SyncMeta
}
