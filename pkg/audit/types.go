// Package audit records authorization-relevant events: write attempts,
// denials and grants. Entries are persisted to the database and queried
// through the admin API.
package audit

import "time"

// Action identifies what was attempted
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionExport Action = "export"
)

// Status is the outcome of the attempt
type Status string

const (
	StatusAllowed  Status = "allowed"
	StatusDenied   Status = "denied"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Entry is one audit record
type Entry struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id,omitempty"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id,omitempty"`
	Status       Status    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query narrows audit listings
type Query struct {
	UserID       int64
	ResourceType string
	Status       Status
	Limit        int
}
