package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artforge/taskengine/internal/events"
)

// fakeClock is a controllable Clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventRecorder captures every lifecycle event the engine emits.
type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *eventRecorder) HandleEvent(_ context.Context, event *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// kinds returns the kinds of all captured events in emission order.
func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// countKind returns how many captured events have the given kind.
func (r *eventRecorder) countKind(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// lastOfKind returns the most recent captured event of the given kind.
func (r *eventRecorder) lastOfKind(kind events.Kind) *events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i]
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newTestEngine builds an engine with a discarding logger, a fake clock,
// and an event recorder subscribed to its emitter. The caller is
// responsible for Start/Dispose.
func newTestEngine(t *testing.T, cfg Config) (*Engine, *eventRecorder, *fakeClock) {
	t.Helper()

	logger := discardLogger()
	recorder := &eventRecorder{}
	emitter := events.NewInMemoryEventEmitter(logger)
	emitter.RegisterHandler(recorder)

	engine, err := NewEngine(cfg, emitter, logger)
	require.NoError(t, err)

	clock := newFakeClock()
	engine.SetClock(clock)
	return engine, recorder, clock
}

// fastConfig returns a config with tight scheduler timing for tests.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.SchedulerInterval = 5 * time.Millisecond
	cfg.CleanupInterval = time.Hour // cleanup only runs when tests invoke it
	return cfg
}

// newRecord builds a minimal valid record for submission.
func newRecord(userID, taskType string, payload string) *Record {
	return &Record{
		UserID:  userID,
		Type:    taskType,
		Payload: json.RawMessage(payload),
	}
}

// echoHandler returns the task payload as its result.
func echoHandler(_ context.Context, rec *Record) (json.RawMessage, error) {
	return rec.Payload, nil
}
