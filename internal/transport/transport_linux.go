// internal/transport/transport_linux.go
//go:build linux
// +build linux

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux non-blocking TCP sockets on raw descriptors.

package transport

import (
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/momentics/hioload-echo/api"
	"golang.org/x/sys/unix"
)

// Listener is a non-blocking listening socket.
type Listener struct {
	fd   int
	addr api.Endpoint
	opts SocketOptions
	once sync.Once
	cerr error
}

// Conn is a non-blocking stream socket, accepted or dialed.
type Conn struct {
	fd     int
	remote string
	once   sync.Once
	cerr   error
}

func newSocket(ip net.IP) (int, unix.Sockaddr, error) {
	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		s := &unix.SockaddrInet4{}
		copy(s.Addr[:], ip4)
		sa = s
	} else {
		family = unix.AF_INET6
		s := &unix.SockaddrInet6{}
		copy(s.Addr[:], ip.To16())
		sa = s
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, err
	}
	return fd, sa, nil
}

func withPort(sa unix.Sockaddr, port int) unix.Sockaddr {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		s.Port = port
	case *unix.SockaddrInet6:
		s.Port = port
	}
	return sa
}

func sockaddrString(sa unix.Sockaddr) (string, int) {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(s.Addr[:]).String(), s.Port
	case *unix.SockaddrInet6:
		return net.IP(s.Addr[:]).String(), s.Port
	}
	return "", 0
}

// applyBuffers sets SO_RCVBUF/SO_SNDBUF. Must run before bind or connect.
func applyBuffers(fd int, opts SocketOptions) error {
	if opts.ReceiveBufferSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.ReceiveBufferSize); err != nil {
			return err
		}
	}
	if opts.SendBufferSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufferSize); err != nil {
			return err
		}
	}
	return nil
}

func applyStreamOptions(fd int, opts SocketOptions) error {
	if opts.KeepAlive {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return err
		}
	}
	if opts.NoDelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return err
		}
	}
	return nil
}

// Listen binds a non-blocking listening socket. Failures are reported as api.BindError.
func Listen(ep api.Endpoint, opts SocketOptions) (api.Listener, error) {
	ip, port, err := resolve(ep)
	if err != nil {
		return nil, api.BindError(ep, err)
	}
	fd, sa, err := newSocket(ip)
	if err != nil {
		return nil, api.BindError(ep, err)
	}
	fail := func(err error) (api.Listener, error) {
		unix.Close(fd)
		return nil, api.BindError(ep, err)
	}
	if opts.ReuseAddress {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fail(err)
		}
	}
	if err := applyBuffers(fd, opts); err != nil {
		return fail(err)
	}
	if err := unix.Bind(fd, withPort(sa, port)); err != nil {
		return fail(err)
	}
	backlog := opts.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail(err)
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		return fail(err)
	}
	host, boundPort := sockaddrString(local)
	return &Listener{fd: fd, addr: api.NewEndpoint(host, boundPort), opts: opts}, nil
}

// FD returns the listening descriptor.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound endpoint with the kernel-assigned port resolved.
func (l *Listener) Addr() api.Endpoint { return l.addr }

// Accept takes exactly one pending connection.
func (l *Listener) Accept() (api.Conn, error) {
	nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.EINTR, unix.ECONNABORTED:
			return nil, api.ErrWouldBlock
		}
		return nil, api.FatalTransportError("accept", err)
	}
	if err := applyBuffers(nfd, l.opts); err != nil {
		unix.Close(nfd)
		return nil, api.FatalTransportError("setsockopt", err)
	}
	if err := applyStreamOptions(nfd, l.opts); err != nil {
		unix.Close(nfd)
		return nil, api.FatalTransportError("setsockopt", err)
	}
	host, port := sockaddrString(sa)
	return &Conn{fd: nfd, remote: net.JoinHostPort(host, strconv.Itoa(port))}, nil
}

// Close closes the listening socket only; accepted connections are unaffected.
func (l *Listener) Close() error {
	l.once.Do(func() { l.cerr = unix.Close(l.fd) })
	return l.cerr
}

// Dial starts an asynchronous connect. The returned connection may still be
// pending; FinishConnect must be called once the connect event fires.
func Dial(ep api.Endpoint, opts SocketOptions) (api.ClientConn, error) {
	ip, port, err := resolve(ep)
	if err != nil {
		return nil, api.ConnectError(ep, err)
	}
	fd, sa, err := newSocket(ip)
	if err != nil {
		return nil, api.ConnectError(ep, err)
	}
	fail := func(err error) (api.ClientConn, error) {
		unix.Close(fd)
		return nil, api.ConnectError(ep, err)
	}
	if err := applyBuffers(fd, opts); err != nil {
		return fail(err)
	}
	if err := applyStreamOptions(fd, opts); err != nil {
		return fail(err)
	}
	if err := unix.Connect(fd, withPort(sa, port)); err != nil && err != unix.EINPROGRESS {
		return fail(err)
	}
	return &Conn{fd: fd, remote: ep.String()}, nil
}

// FD returns the socket descriptor.
func (c *Conn) FD() int { return c.fd }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.remote }

// FinishConnect reports the outcome of an asynchronous connect.
func (c *Conn) FinishConnect() error {
	soerr, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return api.NewError(api.ErrCodeConnect, "connect failed").WithContext("peer", c.remote).Wrap(err)
	}
	if soerr != 0 {
		return api.NewError(api.ErrCodeConnect, "connect failed").WithContext("peer", c.remote).Wrap(unix.Errno(soerr))
	}
	if sa, err := unix.Getpeername(c.fd); err == nil {
		host, port := sockaddrString(sa)
		c.remote = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return nil
}

// Read performs one non-blocking read.
func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, api.ErrWouldBlock
		}
		return 0, api.FatalTransportError("read", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write performs one non-blocking send and may write fewer bytes than offered.
func (c *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := unix.SendmsgN(c.fd, p, nil, nil, unix.MSG_NOSIGNAL)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return 0, api.ErrWouldBlock
		}
		return 0, api.FatalTransportError("write", err)
	}
	return n, nil
}

// Close closes the socket once.
func (c *Conn) Close() error {
	c.once.Do(func() { c.cerr = unix.Close(c.fd) })
	return c.cerr
}
