package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/artforge/taskengine/internal/events"
)

// Common errors for engine construction
var (
	ErrNilEmitter = errors.New("event emitter cannot be nil")
	ErrNilLogger  = errors.New("logger cannot be nil")
)

// timeoutReason is recorded on tasks forcibly failed by the cleanup pass.
const timeoutReason = "task timed out"

// Config holds configuration for the engine
type Config struct {
	// MaxConcurrentTasks bounds how many tasks execute simultaneously
	MaxConcurrentTasks int

	// MaxRetries is the number of retry attempts a failing task is
	// granted before it is terminally failed
	MaxRetries int

	// SchedulerInterval is the period of the scheduling tick
	SchedulerInterval time.Duration

	// CleanupInterval is the period of the timeout/retention pass
	CleanupInterval time.Duration

	// TaskTimeout is how long a task may sit in processing before the
	// cleanup pass forcibly fails it
	TaskTimeout time.Duration

	// CompletedTaskRetention is how long completed records are kept
	// in memory before being purged
	CompletedTaskRetention time.Duration

	// FailedTaskRetention is how long failed records are kept in
	// memory before being purged
	FailedTaskRetention time.Duration

	// QueueCapacity is the record limit of each logical queue
	QueueCapacity int

	// UserTaskLimit caps how many tasks a single user may have
	// simultaneously pending or processing
	UserTaskLimit int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrentTasks:     5,
		MaxRetries:             3,
		SchedulerInterval:      time.Second,
		CleanupInterval:        time.Minute,
		TaskTimeout:            10 * time.Minute,
		CompletedTaskRetention: time.Minute,
		FailedTaskRetention:    time.Hour,
		QueueCapacity:          1000,
		UserTaskLimit:          3,
	}
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func (c Config) applyDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = def.MaxConcurrentTasks
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = def.SchedulerInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	if c.CompletedTaskRetention <= 0 {
		c.CompletedTaskRetention = def.CompletedTaskRetention
	}
	if c.FailedTaskRetention <= 0 {
		c.FailedTaskRetention = def.FailedTaskRetention
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	if c.UserTaskLimit <= 0 {
		c.UserTaskLimit = def.UserTaskLimit
	}
	return c
}

// EnqueueOptions modifies the behavior of a single Enqueue call
type EnqueueOptions struct {
	// SkipRateLimit bypasses both the ambient per-user cap and any
	// explicit sliding-window rules for this submission
	SkipRateLimit bool
}

// Metrics is a point-in-time snapshot of queue depths and activity
type Metrics struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Executing  int `json:"executing"`
}

// Engine owns the four logical queues and drives tasks through the
// lifecycle state machine. All mutable state is guarded by a single
// mutex; handler execution runs on its own goroutines and reports back
// through finish, which re-acquires the lock to apply the transition.
//
// Timeout policy: if the cleanup pass fails a task as timed out while
// its handler is still running, the timeout wins. The late handler
// result is discarded when the handler finally returns.
type Engine struct {
	cfg      Config
	emitter  events.EventEmitter
	logger   *slog.Logger
	clock    Clock
	validate *validator.Validate

	mu         sync.Mutex
	pending    *RecordStore
	processing *RecordStore
	completed  *RecordStore
	failed     *RecordStore
	handlers   map[string]Handler
	limiter    *rateLimiter
	executing  int
	started    bool
	stopped    bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	loopWG sync.WaitGroup
	execWG sync.WaitGroup
}

// NewEngine creates an engine with the given configuration, notification
// sink, and logger. Zero-valued config fields take their defaults.
func NewEngine(cfg Config, emitter events.EventEmitter, logger *slog.Logger) (*Engine, error) {
	if emitter == nil {
		return nil, ErrNilEmitter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	cfg = cfg.applyDefaults()
	clock := Clock(systemClock{})
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:        cfg,
		emitter:    emitter,
		logger:     logger.With("component", "task_engine"),
		clock:      clock,
		validate:   validator.New(),
		pending:    NewRecordStore(cfg.QueueCapacity),
		processing: NewRecordStore(cfg.QueueCapacity),
		completed:  NewRecordStore(cfg.QueueCapacity),
		failed:     NewRecordStore(cfg.QueueCapacity),
		handlers:   make(map[string]Handler),
		limiter:    newRateLimiter(cfg.UserTaskLimit, clock),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SetClock replaces the engine's time source. Must be called before Start.
func (e *Engine) SetClock(clock Clock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = clock
	e.limiter.clock = clock
}

// RegisterHandler installs the handler for a task type. Registering a
// type again overwrites the previous handler; the last registration wins.
func (e *Engine) RegisterHandler(taskType string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.handlers[taskType]; ok {
		e.logger.Warn("overwriting registered handler", "task_type", taskType)
	}
	e.handlers[taskType] = handler
}

// SetRateLimit installs an explicit sliding-window submission limit for
// the given user and task type. Pass RateLimitAllTypes to count
// submissions of every type against the rule.
func (e *Engine) SetRateLimit(userID, taskType string, limit int, window time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.limiter.setRule(userID, taskType, limit, window)
}

// Enqueue validates and submits a task, returning its id. The task is
// placed in the pending queue; Enqueue never waits for execution.
// Post-submission outcomes are observable only through events and the
// query methods.
func (e *Engine) Enqueue(rec *Record, opts EnqueueOptions) (uuid.UUID, error) {
	if rec == nil {
		return uuid.Nil, fmt.Errorf("%w: nil record", ErrInvalidTask)
	}
	if err := e.validate.Struct(rec); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	// The engine owns the record from here on; never share the
	// caller's copy with the scheduler.
	rec = rec.Clone()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return uuid.Nil, ErrEngineStopped
	}
	if _, ok := e.handlers[rec.Type]; !ok {
		e.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %q", ErrNoHandlerRegistered, rec.Type)
	}
	if !opts.SkipRateLimit {
		active := len(e.pending.FindByUser(rec.UserID)) + len(e.processing.FindByUser(rec.UserID))
		if err := e.limiter.allow(rec.UserID, rec.Type, active); err != nil {
			e.mu.Unlock()
			return uuid.Nil, err
		}
	}

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := e.clock.Now()
	rec.Status = StatusPending
	rec.RetryCount = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if err := e.pending.Add(rec); err != nil {
		e.mu.Unlock()
		return uuid.Nil, err
	}
	ev := e.newEventLocked(events.KindEnqueued, rec, "")
	e.mu.Unlock()

	e.send(ev)
	e.wakeScheduler()

	e.logger.Debug("task enqueued",
		"task_id", rec.ID,
		"task_type", rec.Type,
		"user_id", rec.UserID)
	return rec.ID, nil
}

// Start launches the scheduling and cleanup loops. Calling Start on a
// running engine is a no-op; a stopped engine cannot be restarted.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	e.loopWG.Add(2)
	go e.schedulerLoop()
	go e.cleanupLoop()

	e.logger.Info("engine started",
		"max_concurrent_tasks", e.cfg.MaxConcurrentTasks,
		"scheduler_interval", e.cfg.SchedulerInterval,
		"cleanup_interval", e.cfg.CleanupInterval)
	return nil
}

// Stop halts the scheduling and cleanup loops and rejects further
// submissions. In-flight handler executions keep running; use Dispose
// to wait for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.loopWG.Wait()
	e.logger.Info("engine stopped")
}

// Dispose stops the engine and waits until no task is mid-execution, so
// in-flight work is not abandoned on shutdown. The context bounds the
// wait; pending and processing records are not persisted.
func (e *Engine) Dispose(ctx context.Context) error {
	e.Stop()

	done := make(chan struct{})
	go func() {
		e.execWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine disposed, in-flight tasks drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispose interrupted with tasks still executing: %w", ctx.Err())
	}
}

// Cancel removes a still-pending task and marks it canceled. Tasks
// already processing or in a terminal state cannot be canceled; Cancel
// returns false for those (and for unknown ids) with no side effects.
func (e *Engine) Cancel(id uuid.UUID) bool {
	e.mu.Lock()
	rec, ok := e.pending.Remove(id)
	if !ok {
		e.mu.Unlock()
		return false
	}
	now := e.clock.Now()
	rec.Status = StatusCanceled
	rec.UpdatedAt = now
	rec.CompletedAt = now
	ev := e.newEventLocked(events.KindCanceled, rec, "")
	e.mu.Unlock()

	e.send(ev)
	e.logger.Info("task canceled", "task_id", id, "user_id", rec.UserID)
	return true
}

// FindTaskByID scans the four queues in pending, processing, completed,
// failed order and returns a snapshot of the first hit.
func (e *Engine) FindTaskByID(id uuid.UUID) (*Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, store := range e.storesInOrder() {
		if rec, ok := store.Get(id); ok {
			return rec.Clone(), true
		}
	}
	return nil, false
}

// GetTaskStatus returns the current status of the task with the given id.
func (e *Engine) GetTaskStatus(id uuid.UUID) (Status, bool) {
	rec, ok := e.FindTaskByID(id)
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// TasksByUser returns snapshots of all of a user's tasks across the four
// queues, in pending, processing, completed, failed order.
func (e *Engine) TasksByUser(userID string) []*Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Record
	for _, store := range e.storesInOrder() {
		for _, rec := range store.FindByUser(userID) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// TasksByStatus returns snapshots of every task in the queue matching
// the given status. Canceled tasks are not retained, so StatusCanceled
// always yields an empty result.
func (e *Engine) TasksByStatus(status Status) []*Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	var store *RecordStore
	switch status {
	case StatusPending:
		store = e.pending
	case StatusProcessing:
		store = e.processing
	case StatusCompleted:
		store = e.completed
	case StatusFailed:
		store = e.failed
	default:
		return nil
	}
	var out []*Record
	for _, rec := range store.Find(func(*Record) bool { return true }) {
		out = append(out, rec.Clone())
	}
	return out
}

// GetMetrics returns current queue depths and the number of handler
// executions in flight.
func (e *Engine) GetMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Metrics{
		Pending:    e.pending.Len(),
		Processing: e.processing.Len(),
		Completed:  e.completed.Len(),
		Failed:     e.failed.Len(),
		Executing:  e.executing,
	}
}

func (e *Engine) storesInOrder() [4]*RecordStore {
	return [4]*RecordStore{e.pending, e.processing, e.completed, e.failed}
}

// wakeScheduler nudges the scheduling loop without blocking; a signal is
// dropped if one is already queued.
func (e *Engine) wakeScheduler() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// schedulerLoop promotes pending tasks on a fixed interval plus
// on-demand wake signals. A single goroutine runs all ticks, so ticks
// never overlap.
func (e *Engine) schedulerLoop() {
	defer e.loopWG.Done()

	ticker := time.NewTicker(e.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		case <-e.wake:
		}
		e.dispatchNext()
	}
}

// dispatchNext takes the oldest pending task, moves it to processing,
// and launches its handler. Dispatch is fire-and-forget: the scheduler
// does not wait for the handler before the next tick.
func (e *Engine) dispatchNext() {
	e.mu.Lock()
	if e.pending.Len() == 0 ||
		e.executing >= e.cfg.MaxConcurrentTasks ||
		e.processing.Len() >= e.cfg.MaxConcurrentTasks {
		e.mu.Unlock()
		return
	}

	rec, ok := e.pending.TakeFirst(func(*Record) bool { return true })
	if !ok {
		e.mu.Unlock()
		return
	}
	rec.Status = StatusProcessing
	rec.UpdatedAt = e.clock.Now()
	if err := e.processing.Add(rec); err != nil {
		// Should not happen while processing is bounded by
		// MaxConcurrentTasks < QueueCapacity; put the task back.
		rec.Status = StatusPending
		_ = e.pending.Add(rec)
		e.mu.Unlock()
		e.logger.Error("processing store rejected task", "task_id", rec.ID, "error", err)
		return
	}
	e.executing++
	more := e.pending.Len() > 0
	ev := e.newEventLocked(events.KindProcessing, rec, "")
	e.execWG.Add(1)
	e.mu.Unlock()

	e.send(ev)
	go e.execute(rec.ID, rec.Clone())

	// Keep draining without waiting for the next tick while there is
	// both work and capacity.
	if more {
		e.wakeScheduler()
	}
}

// execute runs the handler for a dispatched task and reports the outcome
// back to the state machine. snapshot is the handler's private copy of
// the record; the engine-owned record is re-fetched under lock in finish.
func (e *Engine) execute(id uuid.UUID, snapshot *Record) {
	defer e.execWG.Done()

	// The deadline lets cooperative handlers observe the timeout, but
	// the record-level timeout marking in runCleanup does not depend
	// on the handler honoring it.
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.TaskTimeout)
	defer cancel()

	result, err := e.invokeHandler(ctx, snapshot)
	e.finish(id, result, err)
	e.wakeScheduler()
}

// invokeHandler calls the registered handler, converting a panic into an
// ordinary execution failure.
func (e *Engine) invokeHandler(ctx context.Context, snapshot *Record) (result json.RawMessage, err error) {
	e.mu.Lock()
	handler := e.handlers[snapshot.Type]
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, snapshot)
}

// finish applies the outcome of a handler execution: completion, retry,
// or terminal failure. If the record is no longer in processing the
// cleanup pass already timed it out, and the late result is discarded.
func (e *Engine) finish(id uuid.UUID, result json.RawMessage, execErr error) {
	e.mu.Lock()
	e.executing--
	rec, ok := e.processing.Remove(id)
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("task no longer processing, discarding late result",
			"task_id", id, "error", execErr)
		return
	}

	now := e.clock.Now()
	var ev *events.Event
	switch {
	case execErr == nil:
		rec.Status = StatusCompleted
		rec.Result = result
		rec.UpdatedAt = now
		rec.CompletedAt = now
		if err := e.completed.Add(rec); err != nil {
			e.logger.Error("completed store rejected task", "task_id", id, "error", err)
		}
		ev = e.newEventLocked(events.KindCompleted, rec, "")

	case rec.RetryCount < e.cfg.MaxRetries:
		rec.RetryCount++
		rec.Status = StatusPending
		rec.UpdatedAt = now
		if err := e.pending.Add(rec); err != nil {
			// No room to requeue; fail terminally instead of
			// dropping the record.
			ev = e.failLocked(rec, execErr.Error(), now)
			break
		}
		ev = e.newEventLocked(events.KindRetry, rec, execErr.Error())

	default:
		ev = e.failLocked(rec, execErr.Error(), now)
	}
	e.mu.Unlock()

	e.send(ev)
	switch ev.Kind {
	case events.KindCompleted:
		e.logger.Info("task completed", "task_id", id, "task_type", ev.TaskType)
	case events.KindRetry:
		e.logger.Warn("task failed, retrying",
			"task_id", id,
			"task_type", ev.TaskType,
			"retry_count", ev.RetryCount,
			"error", execErr)
	case events.KindFailed:
		e.logger.Error("task failed permanently",
			"task_id", id,
			"task_type", ev.TaskType,
			"retry_count", ev.RetryCount,
			"error", execErr)
	}
}

// failLocked moves a record to the failed queue. Caller must hold e.mu.
func (e *Engine) failLocked(rec *Record, reason string, now time.Time) *events.Event {
	rec.Status = StatusFailed
	rec.Error = reason
	rec.UpdatedAt = now
	rec.CompletedAt = now
	if err := e.failed.Add(rec); err != nil {
		e.logger.Error("failed store rejected task", "task_id", rec.ID, "error", err)
	}
	return e.newEventLocked(events.KindFailed, rec, reason)
}

// cleanupLoop runs the timeout and retention pass on a fixed interval.
func (e *Engine) cleanupLoop() {
	defer e.loopWG.Done()

	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.runCleanup()
		}
	}
}

// runCleanup fails processing tasks that exceeded the task timeout and
// purges terminal records past their retention windows. Purging is
// silent memory reclamation; only timeouts emit events.
func (e *Engine) runCleanup() {
	now := e.clock.Now()

	e.mu.Lock()
	var evs []*events.Event
	stuck := e.processing.Find(func(r *Record) bool {
		return now.Sub(r.UpdatedAt) > e.cfg.TaskTimeout
	})
	for _, rec := range stuck {
		e.processing.Remove(rec.ID)
		evs = append(evs, e.failLocked(rec, timeoutReason, now))
	}

	purged := 0
	for _, rec := range e.completed.Find(func(r *Record) bool {
		return now.Sub(r.CompletedAt) > e.cfg.CompletedTaskRetention
	}) {
		e.completed.Remove(rec.ID)
		purged++
	}
	for _, rec := range e.failed.Find(func(r *Record) bool {
		return now.Sub(r.CompletedAt) > e.cfg.FailedTaskRetention
	}) {
		e.failed.Remove(rec.ID)
		purged++
	}
	e.mu.Unlock()

	for _, ev := range evs {
		e.send(ev)
	}
	if len(stuck) > 0 || purged > 0 {
		e.logger.Info("cleanup pass finished",
			"timed_out", len(stuck),
			"purged", purged)
	}
}

// newEventLocked builds a lifecycle event from engine-owned record state.
// Caller must hold e.mu so the snapshot is consistent.
func (e *Engine) newEventLocked(kind events.Kind, rec *Record, reason string) *events.Event {
	return &events.Event{
		ID:         uuid.New(),
		Kind:       kind,
		TaskID:     rec.ID,
		UserID:     rec.UserID,
		TaskType:   rec.Type,
		RetryCount: rec.RetryCount,
		Reason:     reason,
		OccurredAt: e.clock.Now(),
	}
}

// send delivers an event to the notification sink outside the engine
// lock, so subscribers may call back into the engine.
func (e *Engine) send(ev *events.Event) {
	if err := e.emitter.EmitEvent(context.Background(), ev); err != nil {
		e.logger.Error("failed to emit lifecycle event",
			"event_kind", ev.Kind,
			"task_id", ev.TaskID,
			"error", err)
	}
}
