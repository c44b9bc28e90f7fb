// Package scheduler runs periodic background tasks with explicit start and stop.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running task.
	ErrAlreadyStarted = errors.New("scheduler: task already started")
	// ErrStopped is returned when Start is called on a task that was stopped.
	ErrStopped = errors.New("scheduler: task stopped")

	errInvalidInterval = errors.New("scheduler: interval must be positive")
	errNilFunc         = errors.New("scheduler: task func is required")
)

const meterName = "github.com/cardapio-field/api/internal/platform/scheduler"

// Func is executed on every tick. Returned errors are logged and never stop the task.
type Func func(ctx context.Context) error

// Option customises a Task.
type Option func(*Task)

// WithLogger sets the logger used for failed runs.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Task) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithRunTimeout bounds a single run. Zero disables the bound.
func WithRunTimeout(timeout time.Duration) Option {
	return func(t *Task) {
		t.timeout = timeout
	}
}

// WithImmediateRun executes the func once as soon as the task starts.
func WithImmediateRun() Option {
	return func(t *Task) {
		t.immediate = true
	}
}

// WithMeter overrides the meter used for run counters.
func WithMeter(meter metric.Meter) Option {
	return func(t *Task) {
		if meter != nil {
			t.meter = meter
		}
	}
}

// Task calls a Func on a fixed interval until stopped.
type Task struct {
	name      string
	interval  time.Duration
	fn        Func
	timeout   time.Duration
	immediate bool
	logger    *zap.Logger
	meter     metric.Meter
	runs      metric.Int64Counter

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTask validates the arguments and returns an unstarted task.
func NewTask(name string, interval time.Duration, fn Func, opts ...Option) (*Task, error) {
	if interval <= 0 {
		return nil, errInvalidInterval
	}
	if fn == nil {
		return nil, errNilFunc
	}
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   zap.NewNop(),
		meter:    otel.Meter(meterName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	runs, err := t.meter.Int64Counter("scheduler.task.runs",
		metric.WithDescription("Scheduled task executions by outcome."))
	if err != nil {
		return nil, err
	}
	t.runs = runs
	return t, nil
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Start launches the ticker goroutine. Cancelling ctx stops the task like Stop does.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return ErrStopped
	}
	if t.started {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.started = true

	go t.loop(runCtx, t.done)
	return nil
}

// Stop cancels the task and waits for an in-flight run to return. Safe to call more
// than once and on a task that never started.
func (t *Task) Stop() {
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the task has been started and not stopped.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.stopped
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if t.immediate {
		t.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.run(ctx)
		}
	}
}

func (t *Task) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	outcome := "ok"
	if err := t.fn(runCtx); err != nil {
		outcome = "error"
		if ctx.Err() == nil {
			t.logger.Warn("scheduled task failed", zap.String("task", t.name), zap.Error(err))
		}
	}
	t.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", t.name),
		attribute.String("outcome", outcome),
	))
}

// Registry keeps at most one running task per key.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Replace stops any task registered under key, then starts and registers task.
func (r *Registry) Replace(ctx context.Context, key string, task *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous := r.tasks[key]; previous != nil {
		delete(r.tasks, key)
		previous.Stop()
	}
	if err := task.Start(ctx); err != nil {
		return err
	}
	r.tasks[key] = task
	return nil
}

// Stop stops and forgets the task under key. It reports whether one was registered.
func (r *Registry) Stop(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.tasks[key]
	if task == nil {
		return false
	}
	delete(r.tasks, key)
	task.Stop()
	return true
}

// Remove stops and forgets key only while task is still the one registered under it.
// A task may retire itself with `go registry.Remove(key, task)` from inside its Func.
func (r *Registry) Remove(key string, task *Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if task == nil || r.tasks[key] != task {
		return false
	}
	delete(r.tasks, key)
	task.Stop()
	return true
}

// Running reports whether a task is registered under key.
func (r *Registry) Running(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[key]
	return ok && task.Running()
}

// Keys lists registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.tasks))
	for key := range r.tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// StopAll stops every registered task and waits for them.
func (r *Registry) StopAll() {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[string]*Task)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			task.Stop()
		}(task)
	}
	wg.Wait()
}
