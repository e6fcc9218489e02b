// File: server/server_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/fake"
	"github.com/momentics/hioload-echo/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	t  *testing.T
	s  *Server
	d  *fake.Demux
	l  *fake.Listener
	mr *control.MetricsRegistry
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		t:  t,
		d:  fake.NewDemux(),
		l:  fake.NewListener(api.NewEndpoint("127.0.0.1", 5555)),
		mr: control.NewMetricsRegistry(),
	}
	h.d.Attach(h.l)
	s, err := NewServer(cfg,
		WithLogger(logger.FromZap(zaptest.NewLogger(t))),
		WithMetrics(h.mr),
		WithDemultiplexer(func() (api.Demultiplexer, error) { return h.d, nil }),
		WithListenFunc(func(Config) (api.Listener, error) { return h.l, nil }),
	)
	require.NoError(t, err)
	require.NoError(t, s.Listen())
	h.s = s
	return h
}

// step runs one non-blocking loop iteration.
func (h *harness) step() {
	h.t.Helper()
	require.NoError(h.t, h.s.poll(0))
}

func (h *harness) steps(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.step()
	}
}

func (h *harness) connect(remote string) *fake.Conn {
	h.t.Helper()
	c := fake.NewConn(remote)
	h.d.Attach(c)
	h.l.Enqueue(c)
	h.step()
	require.Contains(h.t, h.s.conns, c.FD(), "connection %s not accepted", remote)
	return c
}

func (h *harness) interest(c *fake.Conn) api.Interest {
	h.t.Helper()
	i, ok := h.d.Interest(c.FD())
	require.True(h.t, ok, "fd %d not registered", c.FD())
	return i
}

func TestAcceptRegistersReadWithEmptyQueue(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")

	assert.Equal(t, api.InterestRead, h.interest(c))
	assert.True(t, h.s.conns[c.FD()].out.Empty())
	assert.Equal(t, int64(1), h.s.Stats().Accepted)
	assert.Equal(t, int64(1), h.mr.GetSnapshot()["server.accepted"])
}

func TestAcceptTakesOneConnectionPerWakeup(t *testing.T) {
	h := newHarness(t, nil)
	a, b := fake.NewConn("a:1"), fake.NewConn("b:1")
	h.d.Attach(a, b)
	h.l.Enqueue(a)
	h.l.Enqueue(b)

	h.step()
	assert.Len(t, h.s.conns, 1)
	h.step()
	assert.Len(t, h.s.conns, 2)
}

func TestTransientAcceptFailureIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.l.FailNextAccept(api.ErrWouldBlock)
	h.step()
	assert.Empty(t, h.s.conns)

	h.l.FailNextAccept(api.FatalTransportError("accept", errors.New("emfile")))
	h.step()
	assert.Empty(t, h.s.conns)
	assert.Equal(t, int64(1), h.mr.GetSnapshot()["server.accept_errors"])

	c := h.connect("after:1")
	assert.False(t, c.Closed())
}

// Echo output equals input, in order, across several reads.
func TestEchoPreservesOrder(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.ScratchBufferSize = 4 })
	c := h.connect("10.0.0.1:4000")

	var want bytes.Buffer
	for _, chunk := range []string{"alpha", "-", "beta-gamma", "", "delta"} {
		c.Feed([]byte(chunk))
		want.WriteString(chunk)
	}
	h.steps(40)

	assert.Equal(t, want.String(), string(c.Written()))
	assert.Equal(t, api.InterestRead, h.interest(c))
	assert.Equal(t, int64(want.Len()), h.s.Stats().BytesIn)
	assert.Equal(t, int64(want.Len()), h.s.Stats().BytesOut)
}

func TestReadableQueuesChunkAndSwitchesToWrite(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")
	c.Feed([]byte("Hello !"))

	h.step()
	conn := h.s.conns[c.FD()]
	assert.Equal(t, [][]byte{[]byte("Hello !")}, conn.out.Snapshot())
	assert.Equal(t, api.InterestWrite, h.interest(c))
	assert.Empty(t, c.Written())

	h.step()
	assert.Equal(t, "Hello !", string(c.Written()))
	assert.True(t, conn.out.Empty())
	assert.Equal(t, api.InterestRead, h.interest(c))
}

func TestShortWriteKeepsRemainder(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")
	c.SetWriteLimit(5)
	c.Feed([]byte("0123456789abc"))

	h.step() // read
	h.step() // first partial write
	conn := h.s.conns[c.FD()]
	assert.Equal(t, "01234", string(c.Written()))
	assert.Equal(t, [][]byte{[]byte("56789abc")}, conn.out.Snapshot())
	assert.Equal(t, api.InterestWrite, h.interest(c))

	h.steps(2)
	assert.Equal(t, "0123456789abc", string(c.Written()))
	assert.Equal(t, api.InterestRead, h.interest(c))
}

func TestWouldBlockWriteWaitsForWritable(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")
	c.Feed([]byte("payload"))
	h.step()

	c.SetBlocked(true)
	h.steps(3)
	assert.Empty(t, c.Written())
	assert.Equal(t, 7, h.s.conns[c.FD()].out.Pending())

	c.SetBlocked(false)
	h.step()
	assert.Equal(t, "payload", string(c.Written()))
}

func TestPeerCloseTearsDownOnlyThatConnection(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect("a:1")
	b := h.connect("b:1")

	a.Feed([]byte("bye"))
	a.CloseRemote()
	b.Feed([]byte("still here"))
	h.steps(6)

	assert.True(t, a.Closed())
	assert.Equal(t, "bye", string(a.Written()))
	_, registered := h.d.Interest(a.FD())
	assert.False(t, registered)
	assert.NotContains(t, h.s.conns, a.FD())

	assert.False(t, b.Closed())
	assert.Equal(t, "still here", string(b.Written()))
	assert.Equal(t, api.InterestRead, h.interest(b))

	st := h.s.Stats()
	assert.Equal(t, int64(1), st.Closed)
	assert.Equal(t, int64(1), st.Active)
}

func TestFatalIOErrorDestroysConnection(t *testing.T) {
	h := newHarness(t, nil)
	a := h.connect("a:1")
	b := h.connect("b:1")

	a.SetReadError(api.FatalTransportError("read", errors.New("connection reset by peer")))
	b.Feed([]byte("ok"))
	h.steps(3)
	assert.True(t, a.Closed())
	assert.False(t, b.Closed())

	b.Feed([]byte("more"))
	h.step()
	b.SetWriteError(api.FatalTransportError("write", errors.New("broken pipe")))
	h.step()
	assert.True(t, b.Closed())
	assert.Empty(t, h.s.conns)
	assert.Equal(t, int64(2), h.mr.GetSnapshot()["server.io_errors"])
}

func TestConnectionsHaveIsolatedQueues(t *testing.T) {
	h := newHarness(t, nil)
	conns := make([]*fake.Conn, 5)
	for i := range conns {
		conns[i] = h.connect(fmt.Sprintf("10.0.0.%d:4000", i))
	}
	for round := 0; round < 3; round++ {
		for i, c := range conns {
			c.Feed([]byte(fmt.Sprintf("[%d:%d]", i, round)))
		}
		h.steps(4)
	}
	for i, c := range conns {
		want := fmt.Sprintf("[%d:0][%d:1][%d:2]", i, i, i)
		assert.Equal(t, want, string(c.Written()), "connection %d", i)
	}
	ids := make(map[string]bool)
	for _, c := range h.s.conns {
		ids[c.id.String()] = true
	}
	assert.Len(t, ids, len(conns))
}

func TestGreetingQueuedOnAccept(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Greeting = "Hello!\n" })
	c := h.connect("10.0.0.1:4000")
	assert.Equal(t, api.InterestWrite, h.interest(c))

	h.step()
	assert.Equal(t, "Hello!\n", string(c.Written()))
	assert.Equal(t, api.InterestRead, h.interest(c))
}

func TestCloseListenerKeepsConnections(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")

	require.NoError(t, h.s.CloseListener())
	assert.True(t, h.l.Closed())

	c.Feed([]byte("after close"))
	h.steps(2)
	assert.Equal(t, "after close", string(c.Written()))
	assert.Equal(t, 1, h.d.Registered())
}

func TestServeStopsOnStop(t *testing.T) {
	h := newHarness(t, nil)
	c := fake.NewConn("10.0.0.1:4000")
	h.d.Attach(c)
	h.l.Enqueue(c)
	c.Feed([]byte("ping"))

	errCh := make(chan error, 1)
	go func() { errCh <- h.s.Serve(context.Background()) }()

	require.Eventually(t, func() bool { return string(c.Written()) == "ping" }, 2*time.Second, time.Millisecond)
	require.NoError(t, h.s.Stop())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
	assert.True(t, c.Closed())
	assert.True(t, h.l.Closed())
	assert.True(t, h.d.Closed())
	assert.Zero(t, h.s.Stats().Active)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.s.Serve(ctx) }()

	require.Eventually(t, func() bool { return h.d.Waits() > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.True(t, h.d.Closed())
}

func TestServeFailsOnDemultiplexerError(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("10.0.0.1:4000")
	h.d.FailWait(errors.New("epoll: bad file descriptor"))

	err := h.s.Serve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrFatalTransport)
	assert.True(t, c.Closed())
	assert.True(t, h.d.Closed())
}

func TestServeRequiresListen(t *testing.T) {
	s, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	assert.ErrorIs(t, s.Serve(context.Background()), ErrNotListening)
}

func TestListenReportsBindError(t *testing.T) {
	bindErr := api.BindError(api.NewEndpoint("127.0.0.1", 5555), errors.New("address already in use"))
	s, err := NewServer(DefaultConfig(),
		WithListenFunc(func(Config) (api.Listener, error) { return nil, bindErr }),
		WithDemultiplexer(func() (api.Demultiplexer, error) { return fake.NewDemux(), nil }),
	)
	require.NoError(t, err)
	err = s.Listen()
	assert.ErrorIs(t, err, api.ErrBind)
	assert.Equal(t, api.ErrCodeBind, api.CodeOf(err))
}

func TestListenTwice(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.s.Listen(), ErrAlreadyListening)
	assert.Equal(t, "127.0.0.1:5555", h.s.Addr().String())
}

func TestStopWithoutServeReleasesResources(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.s.Stop())
	assert.True(t, h.l.Closed())
	assert.True(t, h.d.Closed())
	assert.ErrorIs(t, h.s.Listen(), ErrServerClosed)
	require.NoError(t, h.s.Stop())
}

func TestConfigValidateAndLoad(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:5555", cfg.Endpoint().String())
	assert.Equal(t, 256*1024, cfg.ReceiveBufferSize)
	assert.True(t, cfg.ReuseAddress)
	assert.Equal(t, 2048, cfg.ScratchBufferSize)

	store := control.NewConfigStore()
	store.SetConfig(map[string]any{
		"server.port":                "6001",
		"server.scratch_buffer_size": 512,
		"server.greeting":            "hi",
	})
	cfg.Load(store)
	assert.Equal(t, 6001, cfg.Port)
	assert.Equal(t, 512, cfg.ScratchBufferSize)
	assert.Equal(t, "hi", cfg.Greeting)
	require.NoError(t, cfg.Validate())

	cfg.Port = 70000
	assert.ErrorIs(t, cfg.Validate(), api.ErrInvalidArgument)
	cfg.Port = 1
	cfg.ScratchBufferSize = 0
	_, err := NewServer(cfg)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestRegisterProbes(t *testing.T) {
	h := newHarness(t, nil)
	h.connect("10.0.0.1:4000")
	dp := control.NewDebugProbes()
	h.s.RegisterProbes(dp)

	state := dp.DumpState()
	assert.Equal(t, "127.0.0.1:5555", state["server.addr"])
	assert.Equal(t, int64(1), state["server.stats"].(Stats).Active)
}
