package scheduler

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newIdleTask(t *testing.T, name string) *Task {
	t.Helper()
	task, err := NewTask(name, time.Hour, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("NewTask(%s): %v", name, err)
	}
	return task
}

func TestTaskRunsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	task, err := NewTask("tick", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "three runs", func() bool { return calls.Load() >= 3 })

	task.Stop()
	stoppedAt := calls.Load()
	time.Sleep(20 * time.Millisecond)

	if got := calls.Load(); got != stoppedAt {
		t.Fatalf("expected no runs after stop, went from %d to %d", stoppedAt, got)
	}
	if task.Running() {
		t.Fatalf("expected task to be stopped")
	}
}

func TestTaskStopIsIdempotent(t *testing.T) {
	task := newIdleTask(t, "tick")

	task.Stop()
	task.Stop()
	if err := task.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestTaskStartTwice(t *testing.T) {
	task := newIdleTask(t, "tick")
	defer task.Stop()

	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestTaskErrorsDoNotStopTicking(t *testing.T) {
	var calls atomic.Int32
	task, err := NewTask("failing", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	defer task.Stop()

	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a second run after a failure", func() bool { return calls.Load() >= 2 })
}

func TestTaskImmediateRun(t *testing.T) {
	ran := make(chan struct{}, 1)
	task, err := NewTask("now", time.Hour, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}, WithImmediateRun())
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	defer task.Stop()

	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("expected immediate run")
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	task, err := NewTask("slow", time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	<-started
	task.Stop()
	if !finished.Load() {
		t.Fatalf("expected Stop to wait for the in-flight run")
	}
}

func TestNewTaskValidation(t *testing.T) {
	if _, err := NewTask("bad", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected an error for a zero interval")
	}
	if _, err := NewTask("bad", time.Second, nil); err == nil {
		t.Fatalf("expected an error for a nil run func")
	}
}

func TestRegistryReplaceStopsPrevious(t *testing.T) {
	registry := NewRegistry()
	first := newIdleTask(t, "first")
	second := newIdleTask(t, "second")

	if err := registry.Replace(context.Background(), "restaurant-1", first); err != nil {
		t.Fatalf("Replace first: %v", err)
	}
	if err := registry.Replace(context.Background(), "restaurant-1", second); err != nil {
		t.Fatalf("Replace second: %v", err)
	}

	if first.Running() || !second.Running() {
		t.Fatalf("expected only the replacement running")
	}
	if !registry.Running("restaurant-1") {
		t.Fatalf("expected the key to be running")
	}
	if keys := registry.Keys(); !reflect.DeepEqual(keys, []string{"restaurant-1"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	if !registry.Stop("restaurant-1") {
		t.Fatalf("expected first stop to report a task")
	}
	if registry.Stop("restaurant-1") {
		t.Fatalf("expected second stop to be a no-op")
	}
	if second.Running() {
		t.Fatalf("expected the task to be stopped")
	}
}

func TestRegistryStopAll(t *testing.T) {
	registry := NewRegistry()
	var tasks []*Task
	for _, key := range []string{"a", "b", "c"} {
		task := newIdleTask(t, key)
		if err := registry.Replace(context.Background(), key, task); err != nil {
			t.Fatalf("Replace(%s): %v", key, err)
		}
		tasks = append(tasks, task)
	}

	registry.StopAll()

	if keys := registry.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
	for _, task := range tasks {
		if task.Running() {
			t.Fatalf("expected every task stopped")
		}
	}
}

func TestRegistryRemoveFromInsideTask(t *testing.T) {
	registry := NewRegistry()
	var task *Task
	retired := make(chan struct{})
	var once sync.Once
	task, err := NewTask("self", 5*time.Millisecond, func(context.Context) error {
		once.Do(func() {
			go func() {
				registry.Remove("order", task)
				close(retired)
			}()
		})
		return nil
	}, WithImmediateRun())
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	if err := registry.Replace(context.Background(), "order", task); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	select {
	case <-retired:
	case <-time.After(time.Second):
		t.Fatal("task did not retire itself")
	}
	if registry.Running("order") || task.Running() {
		t.Fatalf("expected the task removed and stopped")
	}
}

func TestRegistryRemoveIgnoresReplacedTask(t *testing.T) {
	registry := NewRegistry()
	first := newIdleTask(t, "first")
	second := newIdleTask(t, "second")

	if err := registry.Replace(context.Background(), "k", first); err != nil {
		t.Fatalf("Replace first: %v", err)
	}
	if err := registry.Replace(context.Background(), "k", second); err != nil {
		t.Fatalf("Replace second: %v", err)
	}

	if registry.Remove("k", first) {
		t.Fatalf("expected removing a replaced task to be a no-op")
	}
	if !second.Running() {
		t.Fatalf("expected the replacement to keep running")
	}
	if !registry.Remove("k", second) {
		t.Fatalf("expected the current task to be removed")
	}
}
