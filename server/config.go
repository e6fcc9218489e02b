// File: server/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/internal/transport"
	"github.com/momentics/hioload-echo/reactor"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Host              string // bind host, empty = IPv4 wildcard
	Port              int    // 0 = kernel-assigned
	ReceiveBufferSize int    // SO_RCVBUF hint, 0 = OS default
	SendBufferSize    int    // SO_SNDBUF hint, 0 = OS default
	KeepAlive         bool
	ReuseAddress      bool
	NoDelay           bool
	Backlog           int
	ScratchBufferSize int    // bytes read per readable event
	MaxEvents         int    // events drained per wake-up
	Greeting          string // queued on every accepted connection when non-empty
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              5555,
		ReceiveBufferSize: 256 * 1024,
		ReuseAddress:      true,
		Backlog:           transport.DefaultBacklog,
		ScratchBufferSize: 2048,
		MaxEvents:         reactor.DefaultMaxEvents,
	}
}

// Endpoint returns the configured bind address.
func (c Config) Endpoint() api.Endpoint {
	return api.NewEndpoint(c.Host, c.Port)
}

// Validate rejects values the loop cannot run with.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server: port %d out of range: %w", c.Port, api.ErrInvalidArgument)
	}
	if c.ScratchBufferSize <= 0 {
		return fmt.Errorf("server: scratch buffer size must be positive: %w", api.ErrInvalidArgument)
	}
	if c.ReceiveBufferSize < 0 || c.SendBufferSize < 0 {
		return fmt.Errorf("server: negative socket buffer size: %w", api.ErrInvalidArgument)
	}
	return nil
}

// Load overrides fields present under "server." in store.
func (c *Config) Load(store *control.ConfigStore) {
	c.Host = store.GetString("server.host", c.Host)
	c.Port = store.GetInt("server.port", c.Port)
	c.ReceiveBufferSize = store.GetInt("server.receive_buffer_size", c.ReceiveBufferSize)
	c.SendBufferSize = store.GetInt("server.send_buffer_size", c.SendBufferSize)
	c.KeepAlive = store.GetBool("server.keep_alive", c.KeepAlive)
	c.ReuseAddress = store.GetBool("server.reuse_address", c.ReuseAddress)
	c.NoDelay = store.GetBool("server.no_delay", c.NoDelay)
	c.Backlog = store.GetInt("server.backlog", c.Backlog)
	c.ScratchBufferSize = store.GetInt("server.scratch_buffer_size", c.ScratchBufferSize)
	c.MaxEvents = store.GetInt("server.max_events", c.MaxEvents)
	c.Greeting = store.GetString("server.greeting", c.Greeting)
}

func (c Config) socketOptions() transport.SocketOptions {
	return transport.SocketOptions{
		ReceiveBufferSize: c.ReceiveBufferSize,
		SendBufferSize:    c.SendBufferSize,
		KeepAlive:         c.KeepAlive,
		ReuseAddress:      c.ReuseAddress,
		NoDelay:           c.NoDelay,
		Backlog:           c.Backlog,
	}
}
