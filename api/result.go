// Package api
// Author: momentics@gmail.com
//
// Generic result and future handles for asynchronous operations.

package api

import (
	"context"
	"sync"
)

// Result wraps any payload or error.
type Result[T any] struct {
	Value T
	Err   error
}

// Future is the handle of an operation that completes later.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	res  Result[T]
}

// NewFuture returns a pending future and the function that completes it.
// Only the first completion is kept.
func NewFuture[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.complete
}

// CompletedFuture returns a future that is already done.
func CompletedFuture[T any](v T, err error) *Future[T] {
	f, complete := NewFuture[T]()
	complete(v, err)
	return f
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.res = Result[T]{Value: v, Err: err}
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone polls for completion.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the result is available or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.res.Value, f.res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the outcome, blocking until it is available.
func (f *Future[T]) Result() Result[T] {
	<-f.done
	return f.res
}
