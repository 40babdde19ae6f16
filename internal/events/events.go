package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the lifecycle transition an event describes.
type Kind string

// Lifecycle event kinds published by the engine
const (
	KindEnqueued   Kind = "task:enqueued"
	KindProcessing Kind = "task:processing"
	KindCompleted  Kind = "task:completed"
	KindFailed     Kind = "task:failed"
	KindRetry      Kind = "task:retry"
	KindCanceled   Kind = "task:canceled"
)

// Event is a single task lifecycle notification. It carries identifying
// fields rather than the full task record so subscribers cannot mutate
// engine-owned state; the Reason field is set on failures (including the
// engine's "task timed out") and RetryCount on retry and failure events.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind indicates which lifecycle transition occurred
	Kind Kind `json:"kind"`

	// TaskID identifies the task the event refers to
	TaskID uuid.UUID `json:"task_id"`

	// UserID is the task owner
	UserID string `json:"user_id"`

	// TaskType is the task's handler type key
	TaskType string `json:"task_type"`

	// RetryCount is the task's retry count at emission time
	RetryCount int `json:"retry_count,omitempty"`

	// Reason describes the failure on KindFailed events
	Reason string `json:"reason,omitempty"`

	// OccurredAt is the timestamp of the transition
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an Event of the given kind for the given task with a
// fresh event id and the current time.
func NewEvent(kind Kind, taskID uuid.UUID, userID, taskType string) *Event {
	return &Event{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     taskID,
		UserID:     userID,
		TaskType:   taskType,
		OccurredAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
// Handlers are responsible for processing events and taking appropriate actions.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the engine to publish events without direct knowledge of
// subscribers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all subscribers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *Event) error
}
