//go:build !linux

// Author: momentics <momentics@gmail.com>

package transport

import "github.com/momentics/hioload-echo/api"

// Listen is not available on this platform.
func Listen(ep api.Endpoint, _ SocketOptions) (api.Listener, error) {
	return nil, api.BindError(ep, api.ErrNotSupported)
}

// Dial is not available on this platform.
func Dial(ep api.Endpoint, _ SocketOptions) (api.ClientConn, error) {
	return nil, api.ConnectError(ep, api.ErrNotSupported)
}
