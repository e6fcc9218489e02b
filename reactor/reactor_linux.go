//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux factory and eventfd wakeup channel for the epoll reactor.

package reactor

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-echo/api"
	"golang.org/x/sys/unix"
)

func newPlatformReactor(cfg config) (api.Demultiplexer, error) {
	r, err := newEpollReactor(cfg.maxEvents)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// wakeup is an eventfd counter polled alongside user registrations.
type wakeup struct {
	fd int
}

func newWakeup() (*wakeup, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &wakeup{fd: fd}, nil
}

func (w *wakeup) signal() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.fd, buf[:])
	if err == unix.EAGAIN {
		// counter saturated, a wakeup is already pending
		return nil
	}
	return err
}

func (w *wakeup) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(w.fd, buf[:]); err != nil {
			return
		}
	}
}

func (w *wakeup) close() error {
	return unix.Close(w.fd)
}
