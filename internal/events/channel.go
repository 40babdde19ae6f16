package events

import (
	"context"
	"log/slog"
	"sync"
)

// ChannelEmitter is an EventEmitter that delivers events over a buffered
// channel, for subscribers that prefer ranging over a channel to
// registering a callback. Emission never blocks: if the buffer is full
// the event is dropped and counted.
type ChannelEmitter struct {
	events  chan *Event
	logger  *slog.Logger
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewChannelEmitter creates a ChannelEmitter with the given buffer size.
func NewChannelEmitter(size int, logger *slog.Logger) *ChannelEmitter {
	return &ChannelEmitter{
		events: make(chan *Event, size),
		logger: logger.With("component", "channel_emitter"),
	}
}

// Events returns the read side of the event channel.
func (e *ChannelEmitter) Events() <-chan *Event {
	return e.events
}

// EmitEvent places the event on the channel without blocking. A full
// buffer drops the event; lifecycle notifications are advisory and the
// engine must never stall on a slow subscriber.
func (e *ChannelEmitter) EmitEvent(ctx context.Context, event *Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	select {
	case e.events <- event:
	default:
		e.dropped++
		e.logger.Warn("event buffer full, dropping event",
			"event_kind", event.Kind,
			"task_id", event.TaskID,
			"dropped_total", e.dropped)
	}
	return nil
}

// Dropped returns the number of events discarded because the buffer was full.
func (e *ChannelEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close closes the event channel. Subsequent EmitEvent calls are no-ops.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
		e.logger.Info("event channel closed")
	}
}
