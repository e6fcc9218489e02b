// Package api
// Author: momentics
//
// Executor contract for background task dispatch.

package api

// Executor abstracts an explicitly constructed pool of worker goroutines.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of worker routines.
	NumWorkers() int

	// Close stops accepting tasks and waits for queued ones to finish.
	Close()
}
