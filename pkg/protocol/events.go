package protocol

import (
	"encoding/json"
	"time"
)

// Event is one Server-Sent Event record. Type defaults to "message" when the
// record carries no event field.
type Event struct {
	Type  string
	Data  string
	ID    string
	Retry time.Duration
}

// DefaultEventType is assigned to records without an explicit event name
const DefaultEventType = "message"

// Background task event names
const (
	EventTaskUpdated   = "bgtask_updated"
	EventTaskDone      = "bgtask_done"
	EventTaskFailed    = "bgtask_failed"
	EventTaskCancelled = "bgtask_cancelled"
)

// IsTerminalTaskEvent reports whether no further events follow for the task
func IsTerminalTaskEvent(eventType string) bool {
	switch eventType {
	case EventTaskDone, EventTaskFailed, EventTaskCancelled:
		return true
	}
	return false
}

// TaskProgress is the JSON payload of a background task event
type TaskProgress struct {
	TaskID          string  `json:"task_id"`
	Message         string  `json:"message,omitempty"`
	CurrentProgress float64 `json:"current_progress,omitempty"`
	TotalProgress   float64 `json:"total_progress,omitempty"`
}

// DecodeData unmarshals the event's data field as JSON into v
func (e Event) DecodeData(v interface{}) error {
	return json.Unmarshal([]byte(e.Data), v)
}
