// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the readiness demultiplexer consumed by the reactor loops.

package api

import (
	"strings"
	"time"
)

// Interest is the set of event kinds a registration wants to be notified for.
type Interest uint8

const (
	InterestAccept Interest = 1 << iota
	InterestConnect
	InterestRead
	InterestWrite
)

// Has reports whether all bits of o are set.
func (i Interest) Has(o Interest) bool {
	return o != 0 && i&o == o
}

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	if i&InterestAccept != 0 {
		parts = append(parts, "accept")
	}
	if i&InterestConnect != 0 {
		parts = append(parts, "connect")
	}
	if i&InterestRead != 0 {
		parts = append(parts, "read")
	}
	if i&InterestWrite != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, "|")
}

// Event is one entry of the ready set returned by Wait.
type Event struct {
	FD    int      // registered descriptor
	Ready Interest // which of the registered interests fired
}

// Demultiplexer waits for readiness across many registered descriptors.
//
// Register, Modify, Deregister and Wait are called from the reactor goroutine
// only. Wakeup and Close may be called from any goroutine.
type Demultiplexer interface {
	// Register starts watching fd for the given interest set.
	Register(fd int, interest Interest) error

	// Modify replaces the interest set of an existing registration.
	Modify(fd int, interest Interest) error

	// Deregister cancels a registration. Events already collected for fd
	// are not reported by later Wait calls.
	Deregister(fd int) error

	// Wait blocks until at least one registration is ready, the timeout
	// elapses or Wakeup is called. A negative timeout blocks indefinitely.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Wakeup makes a blocked Wait return.
	Wakeup() error

	// Close releases the polling backend.
	Close() error
}
