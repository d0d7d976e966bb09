package sched

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"sable/internal/value"
)

// Pool is the shared pool of resident workers executing spawned tasks.
// Spawning never blocks the caller; the handle comes back immediately.
// A task is handed to an idle worker when one is receiving, otherwise
// it runs on a goroutine of its own, so a task parked in an await can
// never starve the subtasks it is waiting on. Effects inside one task
// stay ordered because each task runs start to finish on one goroutine.
type Pool struct {
	queue    chan *pending
	wg       sync.WaitGroup
	inflight sync.WaitGroup
	nextID   atomic.Int64
	mu       sync.RWMutex
	closed   bool
}

type pending struct {
	task *Task
	fn   func() (value.Value, *value.Err)
}

// NewPool starts a pool with the given number of workers; workers <= 0
// means one per CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	// Unbuffered: a send succeeds only when a worker is idle, so work
	// can never sit queued behind workers parked in awaits.
	p := &Pool{
		queue: make(chan *pending),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	slog.Debug("worker pool started", slog.Int("workers", workers))
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for item := range p.queue {
		p.run(item)
	}
}

func (p *Pool) run(item *pending) {
	item.task.state.Store(int32(Running))
	v, err := item.fn()
	item.task.complete(v, err)
	p.inflight.Done()
}

// Spawn starts fn and returns its task handle without blocking.
func (p *Pool) Spawn(fn func() (value.Value, *value.Err)) *Task {
	t := &Task{
		id:   p.nextID.Add(1),
		done: make(chan struct{}),
	}
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		// Shutdown in progress: the pool stopped accepting new work.
		t.complete(nil, value.NewErr(value.ErrHostFailure, "scheduler is shutting down"))
		return t
	}
	p.inflight.Add(1)
	item := &pending{task: t, fn: fn}
	select {
	case p.queue <- item:
	default:
		// Every resident worker is busy or parked in an await; the
		// task still has to start.
		go p.run(item)
	}
	p.mu.RUnlock()
	return t
}

// Drain stops accepting new work and blocks until in-flight tasks
// finish. Used by the AOT shutdown path: drain then exit success.
func (p *Pool) Drain() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
	close(p.queue)
	p.wg.Wait()
	slog.Debug("worker pool drained")
}
