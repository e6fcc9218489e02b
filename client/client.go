// File: client/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/internal/outbound"
	"github.com/momentics/hioload-echo/internal/transport"
	"github.com/momentics/hioload-echo/logger"
	"github.com/momentics/hioload-echo/pool"
	"github.com/momentics/hioload-echo/reactor"
	"go.uber.org/multierr"
)

// StopReason tells why a session ended without error.
type StopReason string

const (
	ReasonPeerClosed StopReason = "peer-closed"
	ReasonStopPolicy StopReason = "stop-policy"
	ReasonIdle       StopReason = "idle"
	ReasonCanceled   StopReason = "canceled"
)

// Report summarizes one session.
type Report struct {
	Reason         StopReason
	Remote         string
	ChunksSent     int
	ChunksReceived int
	BytesSent      int64
	BytesReceived  int64
	LastEcho       []byte
	Duration       time.Duration
}

// DialFunc starts an asynchronous connect to the server in cfg.
type DialFunc func(cfg Config) (api.ClientConn, error)

// Option customizes client initialization.
type Option func(*Client)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithDemultiplexer overrides how the readiness demultiplexer is created.
func WithDemultiplexer(factory func() (api.Demultiplexer, error)) Option {
	return func(c *Client) { c.newDemux = factory }
}

// WithDialFunc overrides how the connection is opened.
func WithDialFunc(fn DialFunc) Option {
	return func(c *Client) { c.dial = fn }
}

// WithStopPolicy replaces RandomStop(cfg.StopProbability).
func WithStopPolicy(p StopPolicy) Option {
	return func(c *Client) { c.stop = p }
}

// WithMessageGenerator replaces RandomNumbers.
func WithMessageGenerator(g MessageGenerator) Option {
	return func(c *Client) { c.next = g }
}

// Client runs echo sessions. A Client may run several sessions, one at a
// time or concurrently; each Run owns its own connection and demultiplexer.
type Client struct {
	cfg      Config
	log      logger.Logger
	newDemux func() (api.Demultiplexer, error)
	dial     DialFunc
	stop     StopPolicy
	next     MessageGenerator
	buffers  *pool.BytePool
}

// New builds a Client; nothing is connected until Run.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{cfg: cfg}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.newDemux == nil {
		c.newDemux = reactor.Factory(reactor.WithMaxEvents(4))
	}
	if c.dial == nil {
		c.dial = func(cfg Config) (api.ClientConn, error) {
			return transport.Dial(cfg.Endpoint(), cfg.socketOptions())
		}
	}
	if c.stop == nil {
		c.stop = RandomStop(cfg.StopProbability, 0)
	}
	if c.next == nil {
		c.next = RandomNumbers(0)
	}
	c.buffers = pool.NewBytePool(cfg.ScratchBufferSize)
	return c, nil
}

type session struct {
	*Client
	demux     api.Demultiplexer
	conn      api.ClientConn
	out       *outbound.Queue
	scratch   []byte
	interest  api.Interest
	connected bool
	report    Report
}

// Run connects and drives one session to completion. It returns a report
// for every session that got as far as dialing. Connect failures are
// reported as api.ErrConnect; context cancellation ends the session with
// ReasonCanceled and a nil error.
func (c *Client) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	d, err := c.newDemux()
	if err != nil {
		return nil, err
	}
	conn, err := c.dial(c.cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	s := &session{
		Client:   c,
		demux:    d,
		conn:     conn,
		out:      outbound.New(c.buffers),
		scratch:  make([]byte, c.cfg.ScratchBufferSize),
		interest: api.InterestConnect,
		report:   Report{Remote: conn.RemoteAddr()},
	}
	defer func() {
		s.report.Duration = time.Since(started)
		if err := s.teardown(); err != nil {
			c.log.Debugf("teardown: %v", err)
		}
	}()

	if err := d.Register(conn.FD(), api.InterestConnect); err != nil {
		return &s.report, api.ConnectError(c.cfg.Endpoint(), err)
	}
	unwake := context.AfterFunc(ctx, func() { d.Wakeup() })
	defer unwake()

	err = s.loop(ctx)
	return &s.report, err
}

func (s *session) loop(ctx context.Context) error {
	events := make([]api.Event, 4)
	idle := 0
	for {
		if ctx.Err() != nil {
			s.finish(ReasonCanceled)
			return nil
		}
		n, err := s.demux.Wait(events, s.cfg.WaitTimeout)
		if err != nil {
			return api.FatalTransportError("wait", err)
		}
		if n == 0 {
			if ctx.Err() != nil {
				continue
			}
			idle++
			if s.cfg.MaxIdleWaits > 0 && idle >= s.cfg.MaxIdleWaits {
				s.finish(ReasonIdle)
				return nil
			}
			continue
		}
		idle = 0
		for _, ev := range events[:n] {
			if ev.FD != s.conn.FD() {
				continue
			}
			done, err := s.handle(ev.Ready)
			if err != nil || done {
				return err
			}
		}
	}
}

// handle processes one readiness event. It reports true when the session ended.
func (s *session) handle(ready api.Interest) (bool, error) {
	if !s.connected {
		if !ready.Has(api.InterestConnect) {
			return false, nil
		}
		if err := s.conn.FinishConnect(); err != nil {
			return true, err
		}
		s.connected = true
		s.log.Infof("connected to %s", s.conn.RemoteAddr())
		if err := s.send([]byte(s.cfg.Greeting)); err != nil {
			return true, err
		}
		return false, nil
	}
	if ready.Has(api.InterestWrite) {
		if err := s.flush(); err != nil {
			return true, err
		}
	}
	if ready.Has(api.InterestRead) {
		return s.receive()
	}
	return false, nil
}

func (s *session) receive() (bool, error) {
	n, err := s.conn.Read(s.scratch)
	switch {
	case err == nil:
	case errors.Is(err, api.ErrWouldBlock):
		return false, nil
	case errors.Is(err, io.EOF):
		s.finish(ReasonPeerClosed)
		return true, nil
	default:
		return true, err
	}
	if n == 0 {
		return false, nil
	}
	data := s.scratch[:n]
	s.report.ChunksReceived++
	s.report.BytesReceived += int64(n)
	s.report.LastEcho = append(s.report.LastEcho[:0], data...)
	s.log.Debugf("received %q", data)

	if s.stop.ShouldStop(data) {
		s.finish(ReasonStopPolicy)
		return true, nil
	}
	return false, s.send(s.next())
}

// send queues one chunk and writes as much as the socket takes now.
func (s *session) send(p []byte) error {
	if len(p) == 0 {
		return s.rearm()
	}
	s.out.Push(p)
	s.report.ChunksSent++
	return s.flush()
}

func (s *session) flush() error {
	_, n, err := s.out.Flush(s.conn)
	s.report.BytesSent += int64(n)
	if err != nil {
		return err
	}
	return s.rearm()
}

// rearm keeps Read interest and adds Write while bytes are pending.
func (s *session) rearm() error {
	want := api.InterestRead
	if !s.out.Empty() {
		want |= api.InterestWrite
	}
	if want == s.interest {
		return nil
	}
	if err := s.demux.Modify(s.conn.FD(), want); err != nil {
		return api.FatalTransportError("modify", err)
	}
	s.interest = want
	return nil
}

func (s *session) finish(reason StopReason) {
	s.report.Reason = reason
	s.log.Infof("session with %s ended: %s (sent %d, received %d)",
		s.report.Remote, reason, s.report.ChunksSent, s.report.ChunksReceived)
}

func (s *session) teardown() error {
	s.out.Reset()
	return multierr.Combine(
		s.demux.Deregister(s.conn.FD()),
		s.conn.Close(),
		s.demux.Close(),
	)
}
