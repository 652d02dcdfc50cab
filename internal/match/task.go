// internal/match/task.go
package match

import (
	"context"
	"sync/atomic"

	"github.com/solatis/dupmatch/internal/expr"
	"github.com/solatis/dupmatch/internal/progress"
)

/*
 * Background execution of one run.
 *
 * Start hands the run to a single goroutine and returns a Task. The caller
 * reads events from Events() until the channel closes, may call Cancel at
 * any time and collects the result with Wait.
 *
 * Delivery: progress events are dropped when the consumer lags; exactly one
 * terminal event (finished, cancelled or error) is always delivered, then
 * the channel closes. One buffer slot is kept free for the terminal event so
 * the worker never blocks on a slow or absent reader.
 */

// EventKind distinguishes task events.
type EventKind int

const (
	EventProgress EventKind = iota + 1
	EventFinished
	EventCancelled
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventFinished:
		return "finished"
	case EventCancelled:
		return "cancelled"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one notification from a running task.
type Event struct {
	Kind     EventKind
	Progress progress.Update // EventProgress
	Count    int             // EventFinished and EventCancelled: matches found
	Err      error           // EventError
}

const eventBuffer = 32

// Task is a run executing in the background.
type Task struct {
	events    chan Event
	cancelled atomic.Bool
	done      chan struct{}

	result Result
	err    error
}

// Start launches a run on its own goroutine.
func (e *Engine) Start(ctx context.Context, groups []Group, cond expr.Node) *Task {
	t := &Task{
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
	}
	go t.run(ctx, e, groups, cond)
	return t
}

func (t *Task) run(ctx context.Context, e *Engine, groups []Group, cond expr.Node) {
	defer close(t.done)
	defer close(t.events)

	t.result, t.err = e.Run(ctx, groups, cond, t)
	switch {
	case t.err != nil:
		t.events <- Event{Kind: EventError, Err: t.err}
	case t.result.State == StateCancelled:
		t.events <- Event{Kind: EventCancelled, Count: len(t.result.Matches)}
	default:
		t.events <- Event{Kind: EventFinished, Count: len(t.result.Matches)}
	}
}

// Progress implements Monitor. Called only from the worker goroutine.
func (t *Task) Progress(u progress.Update) {
	if len(t.events) >= cap(t.events)-1 {
		return
	}
	t.events <- Event{Kind: EventProgress, Progress: u}
}

// Cancelled implements Monitor.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Cancel asks the run to stop at its next check point. Matches collected so
// far are kept.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Events returns the event stream. It closes after the terminal event.
func (t *Task) Events() <-chan Event {
	return t.events
}

// Done is closed once the run has ended.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the run ends and returns its result.
func (t *Task) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}
