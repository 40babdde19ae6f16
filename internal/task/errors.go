package task

import "errors"

// Common errors returned by the engine and record store
var (
	// ErrInvalidTask indicates a submission is missing required fields
	// (user ID or task type).
	ErrInvalidTask = errors.New("invalid task")

	// ErrNoHandlerRegistered indicates a task was submitted for a type
	// that has no registered handler.
	ErrNoHandlerRegistered = errors.New("no handler registered for task type")

	// ErrRateLimitExceeded indicates a submission was rejected by the
	// per-user rate limiter.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCapacityExceeded indicates a record store is at its configured
	// capacity limit.
	ErrCapacityExceeded = errors.New("store capacity exceeded")

	// ErrEngineStopped indicates the engine has been disposed and no
	// longer accepts submissions.
	ErrEngineStopped = errors.New("engine is stopped")
)
