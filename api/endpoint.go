// File: api/endpoint.go
// Author: momentics <momentics@gmail.com>

package api

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a logical network address used to bind or connect.
type Endpoint struct {
	Host string
	Port int
}

// NewEndpoint builds an Endpoint value.
func NewEndpoint(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", s, ErrInvalidArgument)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// String renders the endpoint as host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
