//go:build linux

// Author: momentics <momentics@gmail.com>

package asyncnet

import (
	"time"

	"github.com/momentics/hioload-echo/api"
	"golang.org/x/sys/unix"
)

// pollSlice bounds one poll so a pending operation observes Close promptly.
const pollSlice = 50 * time.Millisecond

func waitFD(fd int, events int16, closed func() bool) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		if closed() {
			return api.ErrTransportClosed
		}
		n, err := unix.Poll(fds, int(pollSlice/time.Millisecond))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return api.FatalTransportError("poll", err)
		}
		if n > 0 {
			return nil
		}
	}
}

func waitReadable(fd int, closed func() bool) error { return waitFD(fd, unix.POLLIN, closed) }

func waitWritable(fd int, closed func() bool) error { return waitFD(fd, unix.POLLOUT, closed) }
