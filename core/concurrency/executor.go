// File: core/concurrency/executor.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks to a fixed set of worker goroutines through a
// shared bounded queue. Close stops intake, lets workers drain what was
// already accepted and waits for them to exit.

package concurrency

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type TaskFunc func()

// Stats is a point-in-time view of executor activity.
type Stats struct {
	Workers   int
	Submitted int64
	Completed int64
	Panicked  int64
	Queued    int
}

// Executor manages a pool of worker goroutines.
type Executor struct {
	tasks   chan TaskFunc
	workers int

	mu     sync.RWMutex // serializes Submit against close(tasks)
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// NewExecutor starts numWorkers workers; numWorkers <= 0 means runtime.NumCPU().
// queueSize <= 0 selects numWorkers*64.
func NewExecutor(numWorkers, queueSize int) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = numWorkers * 64
	}
	e := &Executor{
		tasks:   make(chan TaskFunc, queueSize),
		workers: numWorkers,
	}
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.run()
	}
	return e
}

// Submit enqueues a task, blocking while the queue is full.
// Returns ErrExecutorClosed after Close.
func (e *Executor) Submit(task func()) error {
	if task == nil {
		return ErrNilTask
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.submitted.Add(1)
	e.tasks <- task
	return nil
}

// Close shuts down the executor, waiting for queued tasks to finish.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()
	e.wg.Wait()
}

// NumWorkers returns the worker count.
func (e *Executor) NumWorkers() int {
	return e.workers
}

// Stats returns counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Workers:   e.workers,
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Panicked:  e.panicked.Load(),
		Queued:    len(e.tasks),
	}
}

func (e *Executor) run() {
	defer e.wg.Done()
	for task := range e.tasks {
		e.safeExecute(task)
	}
}

func (e *Executor) safeExecute(task TaskFunc) {
	defer func() {
		if r := recover(); r != nil {
			e.panicked.Add(1)
		}
		e.completed.Add(1)
	}()
	task()
}
