// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package variant

import (
	"sync"
	"sync/atomic"
)

// Task is one queued compilation. Cancellation is best-effort: a task
// already picked up by a worker runs to completion.
type Task struct {
	run       func()
	cancelled atomic.Bool
	done      *Fence
}

// Cancel asks for the task to be skipped. The done fence still signals.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Wait blocks until the task has run or been skipped.
func (t *Task) Wait() {
	t.done.Wait()
}

// Queue runs compilation tasks on a fixed pool of workers, in submission
// order per worker.
type Queue struct {
	tasks chan *Task
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewQueue starts a queue with the given worker count.
func NewQueue(workers int) *Queue {
	if workers < 1 {
		workers = 1
	}
	q := &Queue{tasks: make(chan *Task, 64)}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		if !t.cancelled.Load() {
			t.run()
		}
		t.done.Signal()
	}
}

// Submit queues run for execution. After Destroy, the task is skipped but
// its fence still signals, so waiters never hang.
func (q *Queue) Submit(run func()) *Task {
	t := &Task{run: run, done: NewFence()}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.done.Signal()
		return t
	}
	q.tasks <- t
	q.mu.Unlock()
	return t
}

// Destroy stops accepting tasks and waits for the workers to drain.
func (q *Queue) Destroy() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}
