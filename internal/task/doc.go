// Package task implements the in-memory task lifecycle engine: a keyed,
// capacity-bounded record store per logical queue and an orchestrator that
// drives tasks through the pending -> processing -> (completed|failed)
// state machine with per-user rate limits, retries, timeouts, and
// retention-based cleanup.
package task
