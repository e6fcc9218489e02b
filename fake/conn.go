// Author: momentics <momentics@gmail.com>

package fake

import (
	"bytes"
	"io"
	"sync"

	"github.com/momentics/hioload-echo/api"
)

// Conn is a fake implementation of api.ClientConn for testing.
// Inbound data is scripted with Feed; written bytes are recorded.
type Conn struct {
	mu         sync.Mutex
	fd         int
	remote     string
	inbound    [][]byte
	eof        bool
	readErr    error
	writeErr   error
	connectErr error
	writeLimit int
	blocked    bool
	echo       bool
	written    bytes.Buffer
	writes     [][]byte
	closed     bool
	closeCalls int
}

// NewConn creates an open, writable connection with a fresh descriptor.
func NewConn(remote string) *Conn {
	return &Conn{fd: NextFD(), remote: remote}
}

// FD implements api.Conn.
func (c *Conn) FD() int { return c.fd }

// RemoteAddr implements api.Conn.
func (c *Conn) RemoteAddr() string { return c.remote }

// Read returns data from the head inbound chunk, then io.EOF once CloseRemote
// was called and everything was consumed. Without data it would block.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrTransportClosed
	}
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.inbound) == 0 {
		if c.eof {
			return 0, io.EOF
		}
		return 0, api.ErrWouldBlock
	}
	head := c.inbound[0]
	n := copy(p, head)
	if n == len(head) {
		c.inbound = c.inbound[1:]
	} else {
		c.inbound[0] = head[n:]
	}
	return n, nil
}

// Write accepts at most the configured per-call limit.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, api.ErrTransportClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.blocked {
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if c.writeLimit > 0 && n > c.writeLimit {
		n = c.writeLimit
	}
	c.written.Write(p[:n])
	c.writes = append(c.writes, append([]byte(nil), p[:n]...))
	if c.echo && n > 0 {
		c.inbound = append(c.inbound, append([]byte(nil), p[:n]...))
	}
	return n, nil
}

// FinishConnect implements api.ClientConn.
func (c *Conn) FinishConnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectErr
}

// Close implements api.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	c.closed = true
	return nil
}

// Readiness reports what a level-triggered demultiplexer would see.
func (c *Conn) Readiness() api.Interest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	var r api.Interest
	if len(c.inbound) > 0 || c.eof || c.readErr != nil {
		r |= api.InterestRead
	}
	if !c.blocked || c.writeErr != nil {
		r |= api.InterestWrite | api.InterestConnect
	}
	return r
}

// Feed queues inbound data as one chunk.
func (c *Conn) Feed(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = append(c.inbound, append([]byte(nil), data...))
}

// CloseRemote makes Read return io.EOF after buffered data is consumed.
func (c *Conn) CloseRemote() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
}

// SetEcho loops every written byte back into the inbound stream.
func (c *Conn) SetEcho(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.echo = on
}

// SetWriteLimit caps bytes accepted per Write call; 0 removes the cap.
func (c *Conn) SetWriteLimit(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeLimit = n
}

// SetBlocked makes Write report api.ErrWouldBlock and clears Write readiness.
func (c *Conn) SetBlocked(b bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocked = b
}

// SetReadError configures the connection to fail on Read.
func (c *Conn) SetReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// SetWriteError configures the connection to fail on Write.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// SetConnectError configures FinishConnect to fail.
func (c *Conn) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

// Written returns every byte accepted by Write so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// Writes returns the bytes accepted by each Write call.
func (c *Conn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCalls returns how many times Close ran.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}
