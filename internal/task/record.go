package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task record
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Record represents a unit of background work tracked by the engine.
// A record lives in exactly one logical queue at a time; the engine moves
// it between queues as it transitions status.
type Record struct {
	// ID is the record's unique identifier, generated on submission
	// if the caller does not supply one
	ID uuid.UUID `json:"id"`

	// UserID identifies the owner, used for rate limiting and lookup
	UserID string `json:"user_id" validate:"required"`

	// Type selects which registered handler processes this task
	Type string `json:"type" validate:"required"`

	// Status is the record's current lifecycle state
	Status Status `json:"status"`

	// Payload contains opaque handler-specific data
	Payload json.RawMessage `json:"payload,omitempty"`

	// RetryCount is the number of retry attempts already consumed
	RetryCount int `json:"retry_count"`

	// CreatedAt is set once on submission
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is refreshed on every status transition
	UpdatedAt time.Time `json:"updated_at"`

	// CompletedAt is set when the record reaches a terminal state
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Result holds the handler's output on successful completion
	Result json.RawMessage `json:"result,omitempty"`

	// Error holds the failure reason on terminal failure
	Error string `json:"error,omitempty"`
}

// Clone returns a copy of the record. Query methods return clones so
// callers cannot mutate engine-owned state.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// Handler performs the actual work for a task type. A nil error indicates
// success and the returned payload is recorded as the task result; a
// non-nil error (or a panic, which the engine recovers) is routed through
// the retry policy. The context carries the configured task timeout;
// handlers are not preempted if they ignore it.
type Handler func(ctx context.Context, rec *Record) (json.RawMessage, error)
