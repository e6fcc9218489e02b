// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reactor loop: accept, read into a fixed scratch buffer, queue, write back.

package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/internal/transport"
	"github.com/momentics/hioload-echo/logger"
	"github.com/momentics/hioload-echo/pool"
	"github.com/momentics/hioload-echo/reactor"
	"go.uber.org/multierr"
)

var (
	ErrAlreadyRunning   = errors.New("server already running")
	ErrAlreadyListening = errors.New("server already listening")
	ErrNotListening     = errors.New("server is not listening")
	ErrServerClosed     = errors.New("server closed")
)

// Stats is a snapshot of server activity.
type Stats struct {
	Accepted int64
	Closed   int64
	Active   int64
	ChunksIn int64
	BytesIn  int64
	BytesOut int64
}

// Server is a single-threaded echo reactor. Serve runs on the caller's
// goroutine; Stop, CloseListener and Stats may be called from any goroutine.
type Server struct {
	cfg      Config
	log      logger.Logger
	metrics  *control.MetricsRegistry
	newDemux func() (api.Demultiplexer, error)
	listen   ListenFunc
	buffers  *pool.BytePool

	// owned by the loop goroutine
	conns   map[int]*connection
	scratch []byte
	events  []api.Event

	mu       sync.Mutex // guards demux, listener and closed
	demux    api.Demultiplexer
	listener api.Listener
	addr     api.Endpoint
	closed   bool

	running       atomic.Bool
	stopping      atomic.Bool
	closeListener atomic.Bool

	accepted atomic.Int64
	dropped  atomic.Int64
	active   atomic.Int64
	chunksIn atomic.Int64
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
}

// NewServer builds a Server; nothing is bound until Listen.
func NewServer(cfg Config, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		conns: make(map[int]*connection),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.newDemux == nil {
		s.newDemux = reactor.Factory(reactor.WithMaxEvents(cfg.MaxEvents))
	}
	if s.listen == nil {
		s.listen = func(c Config) (api.Listener, error) {
			return transport.Listen(c.Endpoint(), c.socketOptions())
		}
	}
	if s.buffers == nil {
		s.buffers = pool.NewBytePool(cfg.ScratchBufferSize)
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = reactor.DefaultMaxEvents
	}
	s.scratch = make([]byte, cfg.ScratchBufferSize)
	s.events = make([]api.Event, maxEvents)
	return s, nil
}

// Listen binds the endpoint, creates the demultiplexer and registers the
// listener for Accept interest. Bind failures are reported as api.ErrBind.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil {
		return ErrAlreadyListening
	}
	l, err := s.listen(s.cfg)
	if err != nil {
		return err
	}
	d, err := s.newDemux()
	if err != nil {
		l.Close()
		return err
	}
	if err := d.Register(l.FD(), api.InterestAccept); err != nil {
		return multierr.Combine(err, l.Close(), d.Close())
	}
	s.listener, s.demux, s.addr = l, d, l.Addr()
	s.log.Infof("listening on %s", s.addr)
	s.setMetric("server.listening", 1)
	return nil
}

// Addr returns the bound endpoint with any kernel-assigned port resolved.
func (s *Server) Addr() api.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start is Listen followed by Serve.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the reactor loop until Stop, ctx cancellation or a
// demultiplexer failure. All connections and the demultiplexer are closed
// before it returns. The returned error is nil after Stop or cancellation.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ready := s.demux != nil
	s.mu.Unlock()
	if !ready {
		return ErrNotListening
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-done:
		}
	}()

	var loopErr error
	for !s.stopping.Load() {
		if err := s.poll(-1); err != nil {
			if !s.stopping.Load() {
				loopErr = api.FatalTransportError("wait", err)
				s.log.Errorf("reactor failed: %v", err)
			}
			break
		}
	}
	return multierr.Append(loopErr, s.shutdown())
}

// poll performs one wait and dispatches its events.
func (s *Server) poll(timeout time.Duration) error {
	if s.closeListener.Load() {
		s.dropListener()
	}
	n, err := s.demux.Wait(s.events, timeout)
	if err != nil {
		return err
	}
	s.dispatch(s.events[:n])
	return nil
}

func (s *Server) dispatch(events []api.Event) {
	for _, ev := range events {
		if s.listener != nil && ev.FD == s.listener.FD() {
			if ev.Ready.Has(api.InterestAccept) {
				s.accept()
			}
			continue
		}
		c, ok := s.conns[ev.FD]
		if !ok {
			// destroyed earlier in this batch
			continue
		}
		if ev.Ready.Has(api.InterestRead) && !s.onReadable(c) {
			continue
		}
		if ev.Ready.Has(api.InterestWrite) {
			s.onWritable(c)
		}
	}
}

// accept takes exactly one pending connection.
func (s *Server) accept() {
	conn, err := s.listener.Accept()
	if err != nil {
		if !errors.Is(err, api.ErrWouldBlock) {
			s.log.Warnf("accept: %v", err)
			s.addMetric("server.accept_errors", 1)
		}
		return
	}
	c := newConnection(conn, s.buffers)
	interest := api.InterestRead
	if s.cfg.Greeting != "" {
		c.out.Push([]byte(s.cfg.Greeting))
		interest = api.InterestWrite
	}
	if err := s.demux.Register(conn.FD(), interest); err != nil {
		s.log.Warnf("register %s: %v", conn.RemoteAddr(), err)
		c.out.Reset()
		conn.Close()
		return
	}
	c.interest = interest
	s.conns[conn.FD()] = c
	s.accepted.Add(1)
	s.active.Add(1)
	s.addMetric("server.accepted", 1)
	s.setMetric("server.active", s.active.Load())
	s.log.Debugf("accepted %s id=%s", conn.RemoteAddr(), c.id)
}

// onReadable performs one bounded read. It reports false if c was destroyed.
func (s *Server) onReadable(c *connection) bool {
	n, err := c.conn.Read(s.scratch)
	switch {
	case err == nil:
		if n == 0 {
			return true
		}
		c.out.Push(s.scratch[:n])
		s.chunksIn.Add(1)
		s.bytesIn.Add(int64(n))
		s.addMetric("server.bytes_in", int64(n))
		return s.setInterest(c, api.InterestWrite)
	case errors.Is(err, api.ErrWouldBlock):
		return true
	case errors.Is(err, io.EOF):
		s.destroy(c, nil)
		return false
	default:
		s.destroy(c, err)
		return false
	}
}

// onWritable flushes the queue; once drained the connection reads again.
func (s *Server) onWritable(c *connection) {
	drained, n, err := c.out.Flush(c.conn)
	if n > 0 {
		s.bytesOut.Add(int64(n))
		s.addMetric("server.bytes_out", int64(n))
	}
	if err != nil {
		s.destroy(c, err)
		return
	}
	if drained {
		s.setInterest(c, api.InterestRead)
	}
}

func (s *Server) setInterest(c *connection, want api.Interest) bool {
	if c.interest == want {
		return true
	}
	if err := s.demux.Modify(c.fd(), want); err != nil {
		s.destroy(c, err)
		return false
	}
	c.interest = want
	return true
}

// destroy tears down exactly one connection. cause is nil for an orderly
// peer close.
func (s *Server) destroy(c *connection, cause error) {
	fd := c.fd()
	err := multierr.Combine(s.demux.Deregister(fd), c.conn.Close())
	c.out.Reset()
	delete(s.conns, fd)
	s.dropped.Add(1)
	s.active.Add(-1)
	s.addMetric("server.closed", 1)
	s.setMetric("server.active", s.active.Load())
	if cause != nil {
		s.addMetric("server.io_errors", 1)
		s.log.Warnf("connection %s id=%s closed: %v", c.conn.RemoteAddr(), c.id, cause)
	} else {
		s.log.Debugf("connection %s id=%s closed by peer after %s", c.conn.RemoteAddr(), c.id, time.Since(c.opened))
	}
	if err != nil {
		s.log.Debugf("teardown %s: %v", c.id, err)
	}
}

// dropListener deregisters and closes the listener; accepted connections stay.
func (s *Server) dropListener() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	err := multierr.Combine(s.demux.Deregister(s.listener.FD()), s.listener.Close())
	if err != nil {
		s.log.Warnf("close listener: %v", err)
	}
	s.listener = nil
	s.setMetric("server.listening", 0)
	s.log.Infof("listener closed, %d connections remain", len(s.conns))
}

func (s *Server) shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	for fd, c := range s.conns {
		err = multierr.Append(err, c.conn.Close())
		c.out.Reset()
		delete(s.conns, fd)
		s.dropped.Add(1)
		s.active.Add(-1)
	}
	if s.listener != nil {
		err = multierr.Append(err, s.listener.Close())
		s.listener = nil
	}
	if s.demux != nil {
		err = multierr.Append(err, s.demux.Close())
	}
	s.setMetric("server.active", s.active.Load())
	s.setMetric("server.listening", 0)
	s.log.Infof("server stopped")
	return err
}

// Stop ends the loop. Safe from any goroutine; without a running loop the
// resources are released immediately.
func (s *Server) Stop() error {
	s.stopping.Store(true)
	if !s.running.Load() {
		return s.shutdown()
	}
	return s.wake()
}

// CloseListener stops accepting while existing connections keep being served.
func (s *Server) CloseListener() error {
	s.closeListener.Store(true)
	if !s.running.Load() {
		s.dropListener()
		return nil
	}
	return s.wake()
}

func (s *Server) wake() error {
	s.mu.Lock()
	d, closed := s.demux, s.closed
	s.mu.Unlock()
	if d == nil || closed {
		return nil
	}
	if err := d.Wakeup(); err != nil && !errors.Is(err, api.ErrTransportClosed) {
		return err
	}
	return nil
}

// Stats returns a snapshot of counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Closed:   s.dropped.Load(),
		Active:   s.active.Load(),
		ChunksIn: s.chunksIn.Load(),
		BytesIn:  s.bytesIn.Load(),
		BytesOut: s.bytesOut.Load(),
	}
}

// RegisterProbes exposes server state through dp.
func (s *Server) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("server.addr", func() any { return s.Addr().String() })
	dp.RegisterProbe("server.stats", func() any { return s.Stats() })
}

func (s *Server) addMetric(key string, delta int64) {
	if s.metrics != nil {
		s.metrics.Add(key, delta)
	}
}

func (s *Server) setMetric(key string, v int64) {
	if s.metrics != nil {
		s.metrics.Set(key, v)
	}
}
