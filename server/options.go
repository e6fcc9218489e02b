// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/logger"
	"github.com/momentics/hioload-echo/pool"
)

// ListenFunc opens the listening socket described by cfg.
type ListenFunc func(cfg Config) (api.Listener, error)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics mirrors server counters into mr under "server.*".
func WithMetrics(mr *control.MetricsRegistry) ServerOption {
	return func(s *Server) {
		s.metrics = mr
	}
}

// WithDemultiplexer overrides how the readiness demultiplexer is created.
func WithDemultiplexer(factory func() (api.Demultiplexer, error)) ServerOption {
	return func(s *Server) {
		s.newDemux = factory
	}
}

// WithListenFunc overrides how the listening socket is opened.
func WithListenFunc(fn ListenFunc) ServerOption {
	return func(s *Server) {
		s.listen = fn
	}
}

// WithBytePool shares a chunk pool between servers.
func WithBytePool(bp *pool.BytePool) ServerOption {
	return func(s *Server) {
		s.buffers = bp
	}
}
