package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"sable/internal/value"
)

// Task states. A task moves Pending -> Running -> Completed or Failed
// and never transitions again. There is no cancellation: the upstream
// static checker rejects programs that would leave a task unawaited, so
// the runtime never reconciles an abandoned result.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Task is the opaque handle returned by spawn and consumed by await.
// It is a value: both engines pass it around like any other value.
type Task struct {
	id     int64
	state  atomic.Int32
	result value.Value
	err    *value.Err
	done   chan struct{}
	once   sync.Once
}

func (t *Task) ID() int64 { return t.id }

func (t *Task) State() State { return State(t.state.Load()) }

func (t *Task) Kind() value.Kind { return value.TASK_KIND }

func (t *Task) Inspect() string {
	return fmt.Sprintf("task(%d, %s)", t.id, t.State())
}

// Await blocks until the task finishes, then yields the result or
// propagates the task's error unchanged. Awaiting an already-finished
// task returns the same outcome.
func (t *Task) Await() (value.Value, *value.Err) {
	<-t.done
	return t.result, t.err
}

func (t *Task) complete(v value.Value, err *value.Err) {
	t.once.Do(func() {
		t.result = v
		t.err = err
		if err != nil {
			t.state.Store(int32(Failed))
		} else {
			t.state.Store(int32(Completed))
		}
		close(t.done)
	})
}
