// Author: momentics <momentics@gmail.com>

package asyncnet

import (
	"sync"

	"github.com/momentics/hioload-echo/api"
)

// state tracks closure and in-flight operations of one socket.
type state struct {
	exec api.Executor

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

func (s *state) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// shut marks the socket closed and waits for running operations to notice.
// It reports false when the socket was already closed.
func (s *state) shut() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
	return true
}

func submit[T any](s *state, op func() (T, error)) *api.Future[T] {
	var zero T
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return api.CompletedFuture(zero, api.ErrTransportClosed)
	}
	s.inflight.Add(1)
	s.mu.RUnlock()

	fut, complete := api.NewFuture[T]()
	err := s.exec.Submit(func() {
		defer s.inflight.Done()
		v, err := op()
		complete(v, err)
	})
	if err != nil {
		s.inflight.Done()
		complete(zero, err)
	}
	return fut
}
