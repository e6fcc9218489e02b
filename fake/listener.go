// Author: momentics <momentics@gmail.com>

package fake

import (
	"sync"

	"github.com/momentics/hioload-echo/api"
)

// Listener is a fake api.Listener handing out queued connections.
type Listener struct {
	mu        sync.Mutex
	fd        int
	addr      api.Endpoint
	pending   []*Conn
	accepted  []*Conn
	acceptErr error
	closed    bool
}

// NewListener creates a listener reporting addr as its bound endpoint.
func NewListener(addr api.Endpoint) *Listener {
	return &Listener{fd: NextFD(), addr: addr}
}

// FD implements api.Listener.
func (l *Listener) FD() int { return l.fd }

// Addr implements api.Listener.
func (l *Listener) Addr() api.Endpoint { return l.addr }

// Accept pops one queued connection or reports api.ErrWouldBlock.
func (l *Listener) Accept() (api.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, api.ErrTransportClosed
	}
	if l.acceptErr != nil {
		err := l.acceptErr
		l.acceptErr = nil
		return nil, err
	}
	if len(l.pending) == 0 {
		return nil, api.ErrWouldBlock
	}
	c := l.pending[0]
	l.pending = l.pending[1:]
	l.accepted = append(l.accepted, c)
	return c, nil
}

// Close implements api.Listener.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Readiness reports Accept while connections are queued.
func (l *Listener) Readiness() api.Interest {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || (len(l.pending) == 0 && l.acceptErr == nil) {
		return 0
	}
	return api.InterestAccept
}

// Enqueue makes c available to the next Accept.
func (l *Listener) Enqueue(c *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, c)
}

// FailNextAccept makes the next Accept return err once.
func (l *Listener) FailNextAccept(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acceptErr = err
}

// Accepted returns connections handed out so far.
func (l *Listener) Accepted() []*Conn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Conn, len(l.accepted))
	copy(out, l.accepted)
	return out
}

// Closed reports whether Close was called.
func (l *Listener) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
