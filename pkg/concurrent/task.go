package concurrent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Panic carries a panic out of a worker goroutine so it can be raised again
// on the goroutine that joins the work.
type Panic struct {
	Value any
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.Value, p.Stack)
}

func capture(r any) *Panic {
	if p, ok := r.(*Panic); ok {
		return p
	}
	return &Panic{Value: r, Stack: debug.Stack()}
}

// Task is a handle to work running on another goroutine. It is the join point
// between a producer that starts work and the owner that later consumes its result.
type Task struct {
	done     chan struct{}
	err      error
	panicked *Panic
	started  time.Time
	ended    time.Time
	once     sync.Once
}

// Go starts fn on a new goroutine. A panic in fn is held until the task is
// joined and raised again by Wait.
func Go(ctx context.Context, fn func(context.Context) error) *Task {
	t := &Task{done: make(chan struct{}), started: time.Now()}
	go func() {
		defer t.finish()
		defer func() {
			if r := recover(); r != nil {
				t.panicked = capture(r)
			}
		}()
		t.err = fn(ctx)
	}()
	return t
}

// Completed returns a task that is already finished with err.
func Completed(err error) *Task {
	t := &Task{done: make(chan struct{}), started: time.Now(), err: err}
	t.finish()
	return t
}

func (t *Task) finish() {
	t.once.Do(func() {
		t.ended = time.Now()
		close(t.done)
	})
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsComplete reports whether the task has finished without blocking.
func (t *Task) IsComplete() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task finishes and returns its error. If the task
// panicked, Wait panics on the calling goroutine with the captured *Panic.
func (t *Task) Wait() error {
	<-t.done
	return t.result()
}

// WaitContext is Wait bounded by ctx. The task keeps running if ctx ends first.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.result()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) result() error {
	if t.panicked != nil {
		panic(t.panicked)
	}
	return t.err
}

// Elapsed is the run time so far, or the total run time once complete.
func (t *Task) Elapsed() time.Duration {
	if t.IsComplete() {
		return t.ended.Sub(t.started)
	}
	return time.Since(t.started)
}
