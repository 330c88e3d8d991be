package events

import "time"

// EventType represents the type of an engine event.
type EventType string

// Standard engine event types.
const (
	PassStart          EventType = "PassStart"
	PassEnd            EventType = "PassEnd"
	TaskStatusChanged  EventType = "TaskStatusChanged"  // Terminal status set
	TaskStart          EventType = "TaskStart"          // Task body about to run
	TaskEnd            EventType = "TaskEnd"            // Task body returned or panicked
	FailureHookFired   EventType = "FailureHookFired"   // A failure hook ran for a failed task
	FatalErrorOccurred EventType = "FatalErrorOccurred" // Configuration error aborting the pass
)

// Event represents a significant occurrence within the engine.
type Event struct {
	// Type categorizes the event.
	Type EventType `json:"type"`
	// Timestamp marks when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// RunID identifies the scheduling pass.
	RunID string `json:"run_id,omitempty"`
	// TaskID identifies the task context by its canonical identity key.
	TaskID string `json:"task_id,omitempty"`
	// Family is the task type name, if applicable.
	Family string `json:"family,omitempty"`
	// Payload contains event-specific data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Bus defines the interface for publishing engine events.
type Bus interface {
	// Emit publishes an event to the bus. Implementations should not block
	// the scheduler.
	Emit(event Event)
}
