// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral constructor for the readiness demultiplexer.

package reactor

import "github.com/momentics/hioload-echo/api"

// DefaultMaxEvents bounds the ready set collected per wait.
const DefaultMaxEvents = 128

type config struct {
	maxEvents int
}

// Option customizes reactor construction.
type Option func(*config)

// WithMaxEvents sets the size of the internal ready-set buffer.
func WithMaxEvents(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxEvents = n
		}
	}
}

// New constructs the platform-specific Demultiplexer.
func New(opts ...Option) (api.Demultiplexer, error) {
	cfg := config{maxEvents: DefaultMaxEvents}
	for _, opt := range opts {
		opt(&cfg)
	}
	return newPlatformReactor(cfg)
}

// Factory adapts New to the constructor signature used by server and client options.
func Factory(opts ...Option) func() (api.Demultiplexer, error) {
	return func() (api.Demultiplexer, error) {
		return New(opts...)
	}
}
