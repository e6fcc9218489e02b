// Author: momentics <momentics@gmail.com>

package asyncnet

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/internal/transport"
)

// Option adjusts socket options for Listen and Dial.
type Option func(*transport.SocketOptions)

// WithReceiveBuffer sets SO_RCVBUF.
func WithReceiveBuffer(n int) Option {
	return func(o *transport.SocketOptions) { o.ReceiveBufferSize = n }
}

// WithSendBuffer sets SO_SNDBUF.
func WithSendBuffer(n int) Option {
	return func(o *transport.SocketOptions) { o.SendBufferSize = n }
}

// WithReuseAddress toggles SO_REUSEADDR on listeners.
func WithReuseAddress(on bool) Option {
	return func(o *transport.SocketOptions) { o.ReuseAddress = on }
}

// WithKeepAlive toggles SO_KEEPALIVE.
func WithKeepAlive(on bool) Option {
	return func(o *transport.SocketOptions) { o.KeepAlive = on }
}

// WithNoDelay toggles TCP_NODELAY.
func WithNoDelay(on bool) Option {
	return func(o *transport.SocketOptions) { o.NoDelay = on }
}

func socketOptions(opts []Option) transport.SocketOptions {
	var so transport.SocketOptions
	for _, o := range opts {
		o(&so)
	}
	return so
}

// Listener accepts connections through futures.
type Listener struct {
	st state
	l  api.Listener
}

// Listen binds ep. Failures are reported as api.BindError.
func Listen(ep api.Endpoint, exec api.Executor, opts ...Option) (*Listener, error) {
	if exec == nil {
		return nil, fmt.Errorf("asyncnet: nil executor: %w", api.ErrInvalidArgument)
	}
	l, err := transport.Listen(ep, socketOptions(opts))
	if err != nil {
		return nil, err
	}
	return &Listener{st: state{exec: exec}, l: l}, nil
}

// Addr returns the bound endpoint.
func (l *Listener) Addr() api.Endpoint { return l.l.Addr() }

// Accept completes with the next incoming connection. Accepted connections
// share the listener's executor.
func (l *Listener) Accept() *api.Future[*Conn] {
	return submit(&l.st, func() (*Conn, error) {
		for {
			c, err := l.l.Accept()
			switch {
			case err == nil:
				return newConn(c, l.st.exec), nil
			case errors.Is(err, api.ErrWouldBlock):
				if err := waitReadable(l.l.FD(), l.st.isClosed); err != nil {
					return nil, err
				}
			default:
				return nil, err
			}
		}
	})
}

// Close fails pending accepts with api.ErrTransportClosed and closes the socket.
func (l *Listener) Close() error {
	if !l.st.shut() {
		return nil
	}
	return l.l.Close()
}

// Conn is a connected socket whose reads and writes return futures. At most
// one read and one write may be outstanding at a time.
type Conn struct {
	st state
	c  api.Conn
}

func newConn(c api.Conn, exec api.Executor) *Conn {
	return &Conn{st: state{exec: exec}, c: c}
}

// Dial connects to ep. The future fails with api.ErrConnect when the server
// cannot be reached.
func Dial(ep api.Endpoint, exec api.Executor, opts ...Option) *api.Future[*Conn] {
	if exec == nil {
		return api.CompletedFuture[*Conn](nil, fmt.Errorf("asyncnet: nil executor: %w", api.ErrInvalidArgument))
	}
	cc, err := transport.Dial(ep, socketOptions(opts))
	if err != nil {
		return api.CompletedFuture[*Conn](nil, err)
	}
	c := newConn(cc, exec)
	return submit(&c.st, func() (*Conn, error) {
		err := waitWritable(cc.FD(), c.st.isClosed)
		if err == nil {
			err = cc.FinishConnect()
		}
		if err != nil {
			cc.Close()
			return nil, err
		}
		return c, nil
	})
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.c.RemoteAddr() }

// Read completes with the bytes read into p, or io.EOF once the peer closed.
func (c *Conn) Read(p []byte) *api.Future[int] {
	return submit(&c.st, func() (int, error) {
		for {
			n, err := c.c.Read(p)
			if !errors.Is(err, api.ErrWouldBlock) {
				return n, err
			}
			if err := waitReadable(c.c.FD(), c.st.isClosed); err != nil {
				return 0, err
			}
		}
	})
}

// Write completes once all of p was written or the connection failed.
func (c *Conn) Write(p []byte) *api.Future[int] {
	return submit(&c.st, func() (int, error) {
		written := 0
		for written < len(p) {
			n, err := c.c.Write(p[written:])
			written += n
			switch {
			case err == nil:
			case errors.Is(err, api.ErrWouldBlock):
				if err := waitWritable(c.c.FD(), c.st.isClosed); err != nil {
					return written, err
				}
			default:
				return written, err
			}
		}
		return written, nil
	})
}

// Close fails pending operations with api.ErrTransportClosed and closes the socket.
func (c *Conn) Close() error {
	if !c.st.shut() {
		return nil
	}
	return c.c.Close()
}
