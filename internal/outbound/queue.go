// Package outbound
// Author: momentics <momentics@gmail.com>
//
// Per-connection FIFO of byte chunks awaiting transmission.

package outbound

import (
	"errors"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/pool"
)

// Writer is the write half of a non-blocking transport. Unlike io.Writer it
// may return n < len(p) with a nil error.
type Writer interface {
	Write(p []byte) (int, error)
}

type chunk struct {
	buf []byte
	off int
}

// Queue holds chunks in insertion order. A chunk leaves the queue only after
// it was written completely; a short write keeps the remainder at the head.
// Queue is not safe for concurrent use; it belongs to one reactor loop.
type Queue struct {
	chunks  *queue.Queue
	buffers *pool.BytePool
	pending int
}

// New creates an empty queue. buffers may be nil.
func New(buffers *pool.BytePool) *Queue {
	return &Queue{chunks: queue.New(), buffers: buffers}
}

// Push copies p into a new chunk at the tail.
func (q *Queue) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	var buf []byte
	if q.buffers != nil {
		buf = q.buffers.Get(len(p))
	} else {
		buf = make([]byte, len(p))
	}
	copy(buf, p)
	q.chunks.Add(&chunk{buf: buf})
	q.pending += len(p)
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int { return q.chunks.Length() }

// Pending returns the number of unwritten bytes.
func (q *Queue) Pending() int { return q.pending }

// Empty reports whether nothing is left to write.
func (q *Queue) Empty() bool { return q.chunks.Length() == 0 }

// Flush writes chunks in order until the queue drains, the writer reports a
// short write or would block, or fails. It returns whether the queue is
// empty, the number of bytes written and any non-transient error.
func (q *Queue) Flush(w Writer) (drained bool, written int, err error) {
	for q.chunks.Length() > 0 {
		c := q.chunks.Peek().(*chunk)
		rest := c.buf[c.off:]
		n, werr := w.Write(rest)
		if n < 0 {
			n = 0
		}
		if n > len(rest) {
			n = len(rest)
		}
		c.off += n
		q.pending -= n
		written += n
		if c.off == len(c.buf) {
			q.chunks.Remove()
			q.release(c)
		}
		if werr != nil {
			if errors.Is(werr, api.ErrWouldBlock) {
				return false, written, nil
			}
			return false, written, werr
		}
		if n < len(rest) {
			return false, written, nil
		}
	}
	return true, written, nil
}

// Snapshot returns copies of the unwritten bytes of every chunk, head first.
func (q *Queue) Snapshot() [][]byte {
	out := make([][]byte, 0, q.chunks.Length())
	for i := 0; i < q.chunks.Length(); i++ {
		c := q.chunks.Get(i).(*chunk)
		out = append(out, append([]byte(nil), c.buf[c.off:]...))
	}
	return out
}

// Reset discards all chunks.
func (q *Queue) Reset() {
	for q.chunks.Length() > 0 {
		q.release(q.chunks.Remove().(*chunk))
	}
	q.pending = 0
}

func (q *Queue) release(c *chunk) {
	if q.buffers != nil {
		q.buffers.Put(c.buf)
	}
	c.buf = nil
}
