// File: client/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/internal/transport"
)

// Config holds all client-side configuration parameters.
type Config struct {
	Host              string
	Port              int
	ReceiveBufferSize int
	SendBufferSize    int
	KeepAlive         bool
	NoDelay           bool
	ScratchBufferSize int           // bytes read per readable event
	StopProbability   float64       // chance of closing after each echo
	WaitTimeout       time.Duration // bound on a single demultiplexer wait
	MaxIdleWaits      int           // consecutive empty waits before giving up, 0 = unlimited
	Greeting          string        // first chunk sent after connect
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              5555,
		ReceiveBufferSize: 128 * 1024,
		SendBufferSize:    128 * 1024,
		KeepAlive:         true,
		ScratchBufferSize: 2048,
		StopProbability:   0.01,
		WaitTimeout:       time.Second,
		Greeting:          "Hello !",
	}
}

// Endpoint returns the server address.
func (c Config) Endpoint() api.Endpoint {
	return api.NewEndpoint(c.Host, c.Port)
}

// Validate rejects values the session cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("client: port %d out of range: %w", c.Port, api.ErrInvalidArgument)
	case c.ScratchBufferSize <= 0:
		return fmt.Errorf("client: scratch buffer size must be positive: %w", api.ErrInvalidArgument)
	case c.StopProbability < 0 || c.StopProbability > 1:
		return fmt.Errorf("client: stop probability %v not in [0,1]: %w", c.StopProbability, api.ErrInvalidArgument)
	case c.WaitTimeout <= 0:
		return fmt.Errorf("client: wait timeout must be positive: %w", api.ErrInvalidArgument)
	case c.MaxIdleWaits < 0:
		return fmt.Errorf("client: negative max idle waits: %w", api.ErrInvalidArgument)
	}
	return nil
}

// Load overrides fields present under "client." in store.
func (c *Config) Load(store *control.ConfigStore) {
	c.Host = store.GetString("client.host", c.Host)
	c.Port = store.GetInt("client.port", c.Port)
	c.ReceiveBufferSize = store.GetInt("client.receive_buffer_size", c.ReceiveBufferSize)
	c.SendBufferSize = store.GetInt("client.send_buffer_size", c.SendBufferSize)
	c.KeepAlive = store.GetBool("client.keep_alive", c.KeepAlive)
	c.NoDelay = store.GetBool("client.no_delay", c.NoDelay)
	c.ScratchBufferSize = store.GetInt("client.scratch_buffer_size", c.ScratchBufferSize)
	c.StopProbability = store.GetFloat("client.stop_probability", c.StopProbability)
	c.WaitTimeout = store.GetDuration("client.wait_timeout", c.WaitTimeout)
	c.MaxIdleWaits = store.GetInt("client.max_idle_waits", c.MaxIdleWaits)
	c.Greeting = store.GetString("client.greeting", c.Greeting)
}

func (c Config) socketOptions() transport.SocketOptions {
	return transport.SocketOptions{
		ReceiveBufferSize: c.ReceiveBufferSize,
		SendBufferSize:    c.SendBufferSize,
		KeepAlive:         c.KeepAlive,
		NoDelay:           c.NoDelay,
	}
}
