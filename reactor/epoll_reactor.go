//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-echo/api"
	"golang.org/x/sys/unix"
)

// epollReactor implements api.Demultiplexer using level-triggered epoll.
type epollReactor struct {
	epfd      int
	wake      *wakeup
	interests map[int]api.Interest // owned by the loop goroutine
	raw       []unix.EpollEvent

	mu     sync.Mutex // guards closed against Wakeup from other goroutines
	closed bool
}

// newEpollReactor creates a new instance of epollReactor.
func newEpollReactor(maxEvents int) (*epollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	w, err := newWakeup()
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(w.fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, w.fd, &ev); err != nil {
		w.close()
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return &epollReactor{
		epfd:      epfd,
		wake:      w,
		interests: make(map[int]api.Interest),
		raw:       make([]unix.EpollEvent, maxEvents),
	}, nil
}

func toEpoll(i api.Interest) uint32 {
	var ev uint32
	if i&(api.InterestAccept|api.InterestRead) != 0 {
		ev |= unix.EPOLLIN
	}
	if i&(api.InterestConnect|api.InterestWrite) != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func fromEpoll(ev uint32, registered api.Interest) api.Interest {
	if ev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		// surface the failure through whichever operation the owner performs next
		return registered
	}
	var ready api.Interest
	if ev&unix.EPOLLIN != 0 {
		ready |= registered & (api.InterestAccept | api.InterestRead)
	}
	if ev&unix.EPOLLOUT != 0 {
		ready |= registered & (api.InterestConnect | api.InterestWrite)
	}
	return ready
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, interest api.Interest) error {
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, err)
	}
	r.interests[fd] = interest
	return nil
}

// Modify replaces the interest set of fd.
func (r *epollReactor) Modify(fd int, interest api.Interest) error {
	if _, ok := r.interests[fd]; !ok {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, api.ErrInvalidArgument)
	}
	ev := unix.EpollEvent{Events: toEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd=%d: %w", fd, err)
	}
	r.interests[fd] = interest
	return nil
}

// Deregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Deregister(fd int) error {
	if _, ok := r.interests[fd]; !ok {
		return nil
	}
	delete(r.interests, fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks for readiness. timeout < 0 means block infinitely.
func (r *epollReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, api.ErrInvalidArgument
	}
	ms := -1
	if timeout >= 0 {
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	limit := len(events)
	if limit > len(r.raw) {
		limit = len(r.raw)
	}

	n, err := unix.EpollWait(r.epfd, r.raw[:limit], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		fd := int(r.raw[i].Fd)
		if fd == r.wake.fd {
			r.wake.drain()
			continue
		}
		registered, ok := r.interests[fd]
		if !ok {
			continue
		}
		ready := fromEpoll(r.raw[i].Events, registered)
		if ready == 0 {
			continue
		}
		events[out] = api.Event{FD: fd, Ready: ready}
		out++
	}
	return out, nil
}

// Wakeup interrupts a blocked Wait.
func (r *epollReactor) Wakeup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return api.ErrTransportClosed
	}
	return r.wake.signal()
}

// Close releases the epoll and eventfd descriptors.
func (r *epollReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	werr := r.wake.close()
	if err := unix.Close(r.epfd); err != nil {
		return err
	}
	return werr
}
