// Author: momentics <momentics@gmail.com>

package asyncnet

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/client"
	"github.com/momentics/hioload-echo/logger"
)

// EchoStats counts what an EchoServer has handled.
type EchoStats struct {
	Served int64 // connections served to completion
	Bytes  int64 // bytes echoed
}

// ServerOption customizes an EchoServer.
type ServerOption func(*EchoServer)

// WithServerLogger sets the logger; the default discards output.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *EchoServer) { s.log = l }
}

// WithBufferSize sets the per-read buffer, 1024 bytes by default.
func WithBufferSize(n int) ServerOption {
	return func(s *EchoServer) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// EchoServer serves one connection at a time: accept, then read and write
// back until the peer closes, then accept the next.
type EchoServer struct {
	ln      *Listener
	log     logger.Logger
	bufSize int

	served atomic.Int64
	bytes  atomic.Int64
}

// NewEchoServer serves connections accepted from ln. Serve takes ownership of ln.
func NewEchoServer(ln *Listener, opts ...ServerOption) *EchoServer {
	s := &EchoServer{ln: ln, log: logger.Nop(), bufSize: 1024}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Addr returns the listening endpoint.
func (s *EchoServer) Addr() api.Endpoint { return s.ln.Addr() }

// Stats returns counters.
func (s *EchoServer) Stats() EchoStats {
	return EchoStats{Served: s.served.Load(), Bytes: s.bytes.Load()}
}

// Serve accepts and echoes until ctx is done or the listener fails. It closes
// the listener on return; cancellation yields a nil error.
func (s *EchoServer) Serve(ctx context.Context) error {
	defer s.ln.Close()
	s.log.Infof("waiting for connections on %s", s.ln.Addr())
	for {
		fut := s.ln.Accept()
		conn, err := fut.Get(ctx)
		if ctx.Err() != nil {
			s.ln.Close()
			if r := fut.Result(); r.Err == nil {
				r.Value.Close()
			}
			return nil
		}
		switch {
		case errors.Is(err, api.ErrTransportClosed):
			return nil
		case err != nil:
			return err
		}
		s.session(ctx, conn)
	}
}

func (s *EchoServer) session(ctx context.Context, conn *Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	s.log.Infof("incoming connection from %s", remote)
	buf := make([]byte, s.bufSize)
	for {
		n, err := conn.Read(buf).Get(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Warnf("read from %s: %v", remote, err)
				return
			}
			break
		}
		if _, err := conn.Write(buf[:n]).Get(ctx); err != nil {
			if ctx.Err() == nil {
				s.log.Warnf("write to %s: %v", remote, err)
			}
			return
		}
		s.bytes.Add(int64(n))
	}
	if ctx.Err() == nil {
		s.served.Add(1)
		s.log.Infof("%s was successfully served", remote)
	}
}

// ClientOption customizes an EchoClient.
type ClientOption func(*EchoClient)

// WithClientLogger sets the logger; the default discards output.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *EchoClient) { c.log = l }
}

// WithStopPolicy replaces client.RandomStop(cfg.StopProbability).
func WithStopPolicy(p client.StopPolicy) ClientOption {
	return func(c *EchoClient) { c.stop = p }
}

// WithMessageGenerator replaces client.RandomNumbers.
func WithMessageGenerator(g client.MessageGenerator) ClientOption {
	return func(c *EchoClient) { c.next = g }
}

// EchoClient sends the greeting, then after every complete echo either stops
// or sends the next generated chunk. Each step waits on its future.
type EchoClient struct {
	cfg  client.Config
	exec api.Executor
	log  logger.Logger
	stop client.StopPolicy
	next client.MessageGenerator
}

// NewEchoClient validates cfg. Operations run on exec.
func NewEchoClient(cfg client.Config, exec api.Executor, opts ...ClientOption) (*EchoClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, api.ErrInvalidArgument
	}
	c := &EchoClient{cfg: cfg, exec: exec, log: logger.Nop()}
	for _, o := range opts {
		o(c)
	}
	if c.stop == nil {
		c.stop = client.RandomStop(cfg.StopProbability, 0)
	}
	if c.next == nil {
		c.next = client.RandomNumbers(0)
	}
	return c, nil
}

var errIdle = errors.New("asyncnet: idle")

// Run connects and drives one session. The report carries the same reasons
// as the reactor client: peer close, stop policy, idle (MaxIdleWaits
// consecutive WaitTimeout periods without progress) and cancellation.
func (c *EchoClient) Run(ctx context.Context) (*client.Report, error) {
	started := time.Now()
	ep := c.cfg.Endpoint()
	dial := Dial(ep, c.exec,
		WithReceiveBuffer(c.cfg.ReceiveBufferSize),
		WithSendBuffer(c.cfg.SendBufferSize),
		WithKeepAlive(c.cfg.KeepAlive),
		WithNoDelay(c.cfg.NoDelay),
	)
	conn, err := dial.Get(ctx)
	if ctx.Err() != nil {
		go func() {
			if r := dial.Result(); r.Err == nil {
				r.Value.Close()
			}
		}()
		return &client.Report{Reason: client.ReasonCanceled, Remote: ep.String()}, nil
	}
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rep := &client.Report{Remote: conn.RemoteAddr()}
	defer func() { rep.Duration = time.Since(started) }()
	c.log.Infof("connected to %s", rep.Remote)

	chunk := []byte(c.cfg.Greeting)
	if len(chunk) == 0 {
		chunk = c.next()
	}
	for {
		if err := c.send(ctx, conn, chunk, rep); err != nil {
			return c.end(ctx, rep, err)
		}
		echo, err := c.receive(ctx, conn, len(chunk), rep)
		if err != nil {
			return c.end(ctx, rep, err)
		}
		c.log.Debugf("received %q", echo)
		if c.stop.ShouldStop(echo) {
			rep.Reason = client.ReasonStopPolicy
			return rep, nil
		}
		chunk = c.next()
	}
}

func (c *EchoClient) send(ctx context.Context, conn *Conn, chunk []byte, rep *client.Report) error {
	n, err := c.await(ctx, conn.Write(chunk))
	rep.BytesSent += int64(n)
	if err != nil {
		return err
	}
	rep.ChunksSent++
	return nil
}

// receive reads until the echo of a want-byte chunk is complete.
func (c *EchoClient) receive(ctx context.Context, conn *Conn, want int, rep *client.Report) ([]byte, error) {
	echo := make([]byte, want)
	for got := 0; got < want; {
		n, err := c.await(ctx, conn.Read(echo[got:]))
		got += n
		rep.BytesReceived += int64(n)
		if err != nil {
			return nil, err
		}
	}
	rep.ChunksReceived++
	rep.LastEcho = echo
	return echo, nil
}

// await waits on fut in WaitTimeout periods, giving up after MaxIdleWaits of them.
func (c *EchoClient) await(ctx context.Context, fut *api.Future[int]) (int, error) {
	for idle := 0; ; {
		wctx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
		n, err := fut.Get(wctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return n, err
		}
		idle++
		if c.cfg.MaxIdleWaits > 0 && idle >= c.cfg.MaxIdleWaits {
			return 0, errIdle
		}
	}
}

func (c *EchoClient) end(ctx context.Context, rep *client.Report, err error) (*client.Report, error) {
	switch {
	case ctx.Err() != nil:
		rep.Reason = client.ReasonCanceled
	case errors.Is(err, io.EOF):
		rep.Reason = client.ReasonPeerClosed
	case errors.Is(err, errIdle):
		rep.Reason = client.ReasonIdle
	default:
		return rep, err
	}
	c.log.Infof("session with %s ended: %s (sent %d, received %d)",
		rep.Remote, rep.Reason, rep.ChunksSent, rep.ChunksReceived)
	return rep, nil
}
