// Package asyncfile
// Author: momentics <momentics@gmail.com>
//
// Future-style positional file I/O on an explicitly supplied executor.

package asyncfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/momentics/hioload-echo/api"
)

// File runs reads, writes and lock acquisition on exec and hands back
// futures. Operations issued after Close complete with api.ErrTransportClosed.
type File struct {
	f    *os.File
	exec api.Executor

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// Open opens path with os.OpenFile semantics. exec is required.
func Open(path string, flag int, perm os.FileMode, exec api.Executor) (*File, error) {
	if exec == nil {
		return nil, fmt.Errorf("asyncfile: nil executor: %w", api.ErrInvalidArgument)
	}
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &File{f: f, exec: exec}, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.f.Name() }

// ReadAt reads up to len(p) bytes at off. A short read at end of file is
// not an error; io.EOF is reported only when nothing was read.
func (f *File) ReadAt(p []byte, off int64) *api.Future[int] {
	return submit(f, func() (int, error) {
		n, err := f.f.ReadAt(p, off)
		if errors.Is(err, io.EOF) && n > 0 {
			err = nil
		}
		return n, err
	})
}

// WriteAt writes p at off.
func (f *File) WriteAt(p []byte, off int64) *api.Future[int] {
	return submit(f, func() (int, error) {
		return f.f.WriteAt(p, off)
	})
}

// Truncate changes the file size.
func (f *File) Truncate(size int64) *api.Future[struct{}] {
	return submit(f, func() (struct{}, error) {
		return struct{}{}, f.f.Truncate(size)
	})
}

// Lock acquires an exclusive advisory lock on the whole file, waiting on a
// worker until it is granted.
func (f *File) Lock() *api.Future[*FileLock] {
	return submit(f, func() (*FileLock, error) {
		if err := lockFile(f.f, true); err != nil {
			return nil, err
		}
		return &FileLock{file: f, valid: true}, nil
	})
}

// TryLock attempts the exclusive lock without waiting.
func (f *File) TryLock() (*FileLock, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, api.ErrTransportClosed
	}
	if err := lockFile(f.f, false); err != nil {
		return nil, err
	}
	return &FileLock{file: f, valid: true}, nil
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return 0, api.ErrTransportClosed
	}
	st, err := f.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Close waits for in-flight operations and closes the file. Locks held
// through it are released by the OS.
func (f *File) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	f.inflight.Wait()
	return f.f.Close()
}

func (f *File) isClosed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.closed
}

func submit[T any](f *File, op func() (T, error)) *api.Future[T] {
	var zero T
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return api.CompletedFuture(zero, api.ErrTransportClosed)
	}
	f.inflight.Add(1)
	f.mu.RUnlock()

	fut, complete := api.NewFuture[T]()
	err := f.exec.Submit(func() {
		defer f.inflight.Done()
		v, err := op()
		complete(v, err)
	})
	if err != nil {
		f.inflight.Done()
		complete(zero, err)
	}
	return fut
}

// FileLock is an exclusive advisory lock held through a File.
type FileLock struct {
	file  *File
	mu    sync.Mutex
	valid bool
}

// Valid reports whether the lock is still held.
func (l *FileLock) Valid() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.valid && !l.file.isClosed()
}

// Release drops the lock. Releasing twice is a no-op.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.valid {
		return nil
	}
	l.valid = false
	l.file.mu.RLock()
	defer l.file.mu.RUnlock()
	if l.file.closed {
		return nil
	}
	return unlockFile(l.file.f)
}
