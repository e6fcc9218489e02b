// Author: momentics <momentics@gmail.com>

package fake

import (
	"sort"
	"sync"
	"time"

	"github.com/momentics/hioload-echo/api"
)

// Source reports its current readiness to Demux.
type Source interface {
	FD() int
	Readiness() api.Interest
}

// Demux is a level-triggered fake api.Demultiplexer. Readiness is derived
// from attached sources and masked by the registered interest, matching
// the epoll reactor's semantics. Events for unregistered descriptors are
// never reported.
type Demux struct {
	mu        sync.Mutex
	interests map[int]api.Interest
	sources   map[int]Source
	injected  map[int]api.Interest
	history   []Op
	waitErr   error
	waits     int
	closed    bool
	wake      chan struct{}
}

// Op records one registration call.
type Op struct {
	Kind     string // "register", "modify", "deregister"
	FD       int
	Interest api.Interest
}

// NewDemux creates an empty fake demultiplexer.
func NewDemux() *Demux {
	return &Demux{
		interests: make(map[int]api.Interest),
		sources:   make(map[int]Source),
		injected:  make(map[int]api.Interest),
		wake:      make(chan struct{}, 1),
	}
}

// Attach makes the readiness of src visible once its descriptor is registered.
func (d *Demux) Attach(srcs ...Source) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range srcs {
		d.sources[s.FD()] = s
	}
}

// Inject adds readiness for fd that is reported until consumed by one Wait.
func (d *Demux) Inject(fd int, ready api.Interest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.injected[fd] |= ready
}

// FailWait makes every subsequent Wait return err.
func (d *Demux) FailWait(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waitErr = err
}

// Register implements api.Demultiplexer.
func (d *Demux) Register(fd int, interest api.Interest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.ErrTransportClosed
	}
	if _, ok := d.interests[fd]; ok {
		return api.ErrInvalidArgument
	}
	d.interests[fd] = interest
	d.history = append(d.history, Op{Kind: "register", FD: fd, Interest: interest})
	return nil
}

// Modify implements api.Demultiplexer.
func (d *Demux) Modify(fd int, interest api.Interest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.interests[fd]; !ok {
		return api.ErrInvalidArgument
	}
	d.interests[fd] = interest
	d.history = append(d.history, Op{Kind: "modify", FD: fd, Interest: interest})
	return nil
}

// Deregister implements api.Demultiplexer.
func (d *Demux) Deregister(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.interests[fd]; !ok {
		return nil
	}
	delete(d.interests, fd)
	delete(d.injected, fd)
	d.history = append(d.history, Op{Kind: "deregister", FD: fd})
	return nil
}

// Wait polls attached sources until something is ready, the timeout
// expires or Wakeup is called.
func (d *Demux) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, api.ErrInvalidArgument
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		n, err := d.collect(events)
		if err != nil || n > 0 {
			return n, err
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return 0, nil
		}
		select {
		case <-d.wake:
			return 0, nil
		case <-time.After(time.Millisecond):
		}
	}
}

func (d *Demux) collect(events []api.Event) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.waits++
	if d.closed {
		return 0, api.ErrTransportClosed
	}
	if d.waitErr != nil {
		return 0, d.waitErr
	}
	fds := make([]int, 0, len(d.interests))
	for fd := range d.interests {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	n := 0
	for _, fd := range fds {
		if n == len(events) {
			break
		}
		registered := d.interests[fd]
		var ready api.Interest
		if s, ok := d.sources[fd]; ok {
			ready = s.Readiness()
		}
		ready |= d.injected[fd]
		ready &= registered
		if ready == 0 {
			continue
		}
		delete(d.injected, fd)
		events[n] = api.Event{FD: fd, Ready: ready}
		n++
	}
	return n, nil
}

// Wakeup implements api.Demultiplexer.
func (d *Demux) Wakeup() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return api.ErrTransportClosed
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close implements api.Demultiplexer.
func (d *Demux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Interest returns the registered interest of fd.
func (d *Demux) Interest(fd int) (api.Interest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.interests[fd]
	return i, ok
}

// Registered returns the number of registered descriptors.
func (d *Demux) Registered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.interests)
}

// History returns all registration calls in order.
func (d *Demux) History() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.history))
	copy(out, d.history)
	return out
}

// Waits returns how many polls Wait performed.
func (d *Demux) Waits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waits
}

// Closed reports whether Close was called.
func (d *Demux) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
