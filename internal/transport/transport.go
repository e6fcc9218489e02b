// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent socket options and address helpers.

package transport

import (
	"fmt"
	"net"

	"github.com/momentics/hioload-echo/api"
)

// DefaultBacklog is the listen queue length when none is configured.
const DefaultBacklog = 128

// SocketOptions carries the socket-level knobs applied before bind/connect.
// Zero buffer sizes keep the OS defaults.
type SocketOptions struct {
	ReceiveBufferSize int
	SendBufferSize    int
	KeepAlive         bool
	ReuseAddress      bool
	NoDelay           bool
	Backlog           int
}

// resolve turns an endpoint into an IP and port. An empty host binds the IPv4 wildcard.
func resolve(ep api.Endpoint) (net.IP, int, error) {
	if ep.Port < 0 || ep.Port > 65535 {
		return nil, 0, fmt.Errorf("port %d: %w", ep.Port, api.ErrInvalidArgument)
	}
	if ep.Host == "" {
		return net.IPv4zero, ep.Port, nil
	}
	addr, err := net.ResolveTCPAddr("tcp", ep.String())
	if err != nil {
		return nil, 0, err
	}
	if addr.IP == nil {
		return net.IPv4zero, addr.Port, nil
	}
	return addr.IP, addr.Port, nil
}
