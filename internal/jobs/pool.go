// Package jobs runs detached work items (exec commands, port-check
// batches) off a bounded worker pool so the control-plane dispatcher never
// blocks handling a frame (spec §4.8 dispatch table: ExecCommand and
// PortCheck both "spawn" a worker).
//
// The teacher's internal/worker package plays the same "detach onto a
// pool" role but backs it with asynq.Server against a Redis broker —
// durable, clustered task processing this engine's Non-goals explicitly
// rule out (no persistence, no clustering, single process — spec.md §1).
// This package has no task-type registry: callers submit plain closures,
// and the Redis-backed broker is replaced with a stdlib buffered channel
// and a fixed goroutine pool, grounded on
// internal/tunnel/server.go's semaphore-gated goroutine-per-connection
// pattern (a channel used as a counting semaphore/queue rather than a sync
// primitive).
package jobs

import (
	"sync"

	"github.com/websoft9/appos/engine/internal/logging"
)

var logger = logging.For("jobs")

// Task is one unit of detached work.
type Task func()

// Pool is a fixed-size goroutine pool draining a buffered task queue.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewPool starts workers goroutines, each pulling from a queue of
// capacity queueSize.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		tasks:   make(chan Task, queueSize),
		stopped: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		runSafely(task)
	}
}

func runSafely(task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("jobs: task panicked")
		}
	}()
	task()
}

// Submit enqueues task without blocking, returning false if the pool has
// been stopped or its queue is full. Non-blocking is required: a task
// already running on this pool (e.g. a PortCheck batch) may itself submit
// more tasks to the same pool, and a blocking Submit would deadlock every
// worker waiting on queue space that only a worker could drain.
func (p *Pool) Submit(task Task) bool {
	select {
	case <-p.stopped:
		return false
	default:
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks to drain. It does
// not cancel already-submitted tasks.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.tasks)
	})
	p.wg.Wait()
}
