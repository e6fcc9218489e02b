// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool recycles slices of one size class. Requests larger than the class
// are served by plain allocation and never return to the pool.
type BytePool struct {
	size  int
	slabs sync.Pool // *[]byte of len size

	gets   atomic.Int64
	misses atomic.Int64
	puts   atomic.Int64
}

// BytePoolStats is a point-in-time view of pool activity.
type BytePoolStats struct {
	Gets   int64 // total Get calls
	Misses int64 // Get calls served outside the size class
	Puts   int64 // slices returned to the pool
}

// NewBytePool creates a pool of size-byte slices.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = 2048
	}
	bp := &BytePool{size: size}
	bp.slabs.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return bp
}

// Size returns the size class.
func (b *BytePool) Size() int { return b.size }

// Get returns a slice of length n.
func (b *BytePool) Get(n int) []byte {
	b.gets.Add(1)
	if n > b.size {
		b.misses.Add(1)
		return make([]byte, n)
	}
	buf := b.slabs.Get().(*[]byte)
	return (*buf)[:n]
}

// Put returns buf to the pool. Slices not produced by this size class are dropped.
func (b *BytePool) Put(buf []byte) {
	if cap(buf) != b.size {
		return
	}
	buf = buf[:cap(buf)]
	b.puts.Add(1)
	b.slabs.Put(&buf)
}

// Stats returns activity counters.
func (b *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:   b.gets.Load(),
		Misses: b.misses.Load(),
		Puts:   b.puts.Load(),
	}
}
