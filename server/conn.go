// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/internal/outbound"
	"github.com/momentics/hioload-echo/pool"
)

// connection is the per-client state owned by the loop.
type connection struct {
	id       uuid.UUID
	conn     api.Conn
	out      *outbound.Queue
	interest api.Interest
	opened   time.Time
}

func newConnection(c api.Conn, buffers *pool.BytePool) *connection {
	return &connection{
		id:     uuid.New(),
		conn:   c,
		out:    outbound.New(buffers),
		opened: time.Now(),
	}
}

func (c *connection) fd() int { return c.conn.FD() }
