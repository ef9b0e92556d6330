// Package event defines the append-only records written to the event log for
// every task state change and deployment mutation.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeTaskQueued    Type = "task.queued"
	TypeTaskStarted   Type = "task.started"
	TypeTaskStep      Type = "task.step"
	TypeTaskSuspended Type = "task.suspended"
	TypeTaskSucceeded Type = "task.succeeded"
	TypeTaskFailed    Type = "task.failed"

	TypeDeployApplied    Type = "deployment.applied"
	TypeDeployUnchanged  Type = "deployment.unchanged"
	TypeDeployScaled     Type = "deployment.scaled"
	TypeDeployRolledBack Type = "deployment.rolled_back"

	TypeIntentRouted Type = "intent.routed"
)

// Level is the severity attached to an event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single immutable log record.
type Event struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id,omitempty"`
	Subject   string          `json:"subject,omitempty"` // e.g. "prod/web"
	Type      Type            `json:"type"`
	Level     Level           `json:"level"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter narrows List queries. Zero fields match everything.
type Filter struct {
	TaskID  string
	Subject string
	Types   []Type
	After   *time.Time
	Limit   int
}
