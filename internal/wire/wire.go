// Package wire defines the messages exchanged between a workstation and the
// authority over the medsync.v1.Authority gRPC service. Messages travel as
// google.protobuf.Struct values holding the JSON form of these types, so the
// service needs no generated code.
package wire

import (
	"encoding/json"
	"time"
)

const (
	ServiceName = "medsync.v1.Authority"

	MethodLogin         = "/" + ServiceName + "/Login"
	MethodPing          = "/" + ServiceName + "/Ping"
	MethodPush          = "/" + ServiceName + "/Push"
	MethodPull          = "/" + ServiceName + "/Pull"
	MethodPresignBackup = "/" + ServiceName + "/PresignBackup"
)

// Action is the kind of mutation carried by a queue item.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Outcome is the authority's verdict on a pushed mutation.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeConflict Outcome = "conflict"
)

type LoginRequest struct {
	DeviceID string `json:"deviceId"`
	Secret   string `json:"secret"`
}

type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type PingResponse struct {
	Status string `json:"status"`
}

// Mutation is one replayed queue item. BaseUpdatedAt is the server version
// the local change was made against; nil means the record was never synced.
type Mutation struct {
	EntityType    string          `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Action        Action          `json:"action"`
	Data          json.RawMessage `json:"data,omitempty"`
	BaseUpdatedAt *time.Time      `json:"baseUpdatedAt,omitempty"`
}

// PushResult carries the canonical server version after an applied
// mutation, or the server's current record on conflict. ServerData is nil on
// conflict when the server copy was deleted.
type PushResult struct {
	Outcome         Outcome         `json:"outcome"`
	ServerUpdatedAt *time.Time      `json:"serverUpdatedAt,omitempty"`
	ServerData      json.RawMessage `json:"serverData,omitempty"`
}

type PullRequest struct {
	Since *time.Time `json:"since,omitempty"`
}

// Record is a server-side entity version returned by Pull.
type Record struct {
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Data       json.RawMessage `json:"data,omitempty"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Deleted    bool            `json:"deleted"`
}

// Changes is the Pull response. Reference holds full snapshots of read-only
// reference kinds keyed by entity type.
type Changes struct {
	Records    []Record                     `json:"records"`
	Reference  map[string][]json.RawMessage `json:"reference,omitempty"`
	ServerTime time.Time                    `json:"serverTime"`
}

type PresignRequest struct {
	Name string `json:"name"`
}

type PresignResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
