// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines transport socket abstractions driven by the reactor loops.

package api

// Conn abstracts one non-blocking, connection-oriented socket.
type Conn interface {
	// FD returns the descriptor registered with the demultiplexer.
	FD() int

	// Read reads into p. It returns io.EOF at end-of-stream and
	// ErrWouldBlock when nothing is available.
	Read(p []byte) (n int, err error)

	// Write writes from p and may accept fewer bytes than offered without
	// an error (short write). ErrWouldBlock means nothing was written.
	Write(p []byte) (n int, err error)

	// Close shuts the socket down. Repeated calls are no-ops.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// ClientConn is an outgoing Conn whose connect may still be pending.
type ClientConn interface {
	Conn

	// FinishConnect completes the handshake once the connect event fired.
	FinishConnect() error
}

// Listener accepts incoming connections without blocking.
type Listener interface {
	FD() int

	// Accept returns ErrWouldBlock when no connection is pending.
	Accept() (Conn, error)

	// Addr returns the bound endpoint.
	Addr() Endpoint

	Close() error
}
