// File: client/client_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/client"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/fake"
	"github.com/momentics/hioload-echo/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, conn *fake.Conn, cfg client.Config, opts ...client.Option) (*client.Client, *fake.Demux) {
	t.Helper()
	d := fake.NewDemux()
	d.Attach(conn)
	base := []client.Option{
		client.WithLogger(logger.FromZap(zaptest.NewLogger(t))),
		client.WithDemultiplexer(func() (api.Demultiplexer, error) { return d, nil }),
		client.WithDialFunc(func(client.Config) (api.ClientConn, error) { return conn, nil }),
	}
	c, err := client.New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return c, d
}

// sequence yields "m1", "m2", ... and records what it produced.
type sequence struct {
	n    int
	sent bytes.Buffer
}

func (s *sequence) next() []byte {
	s.n++
	msg := fmt.Sprintf("m%d;", s.n)
	s.sent.WriteString(msg)
	return []byte(msg)
}

func TestRun_AlwaysStopClosesAfterFirstEcho(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.SetEcho(true)
	c, d := newClient(t, conn, client.DefaultConfig(), client.WithStopPolicy(client.Always()))

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonStopPolicy, rep.Reason)
	assert.Equal(t, 1, rep.ChunksSent)
	assert.Equal(t, 1, rep.ChunksReceived)
	assert.Equal(t, "Hello !", string(rep.LastEcho))
	assert.Equal(t, "Hello !", string(conn.Written()), "no chunk may follow the stop decision")
	assert.True(t, conn.Closed())
	assert.True(t, d.Closed())
	assert.Zero(t, d.Registered())
}

func TestRun_RegistersConnectThenRead(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.SetEcho(true)
	c, d := newClient(t, conn, client.DefaultConfig(), client.WithStopPolicy(client.Always()))

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	hist := d.History()
	require.GreaterOrEqual(t, len(hist), 2)
	assert.Equal(t, fake.Op{Kind: "register", FD: conn.FD(), Interest: api.InterestConnect}, hist[0])
	assert.Equal(t, fake.Op{Kind: "modify", FD: conn.FD(), Interest: api.InterestRead}, hist[1])
}

func TestRun_SendsGeneratedChunkPerEcho(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.SetEcho(true)
	seq := &sequence{}
	received := 0
	c, _ := newClient(t, conn, client.DefaultConfig(),
		client.WithMessageGenerator(seq.next),
		client.WithStopPolicy(client.StopFunc(func([]byte) bool {
			received++
			return received == 4
		})),
	)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonStopPolicy, rep.Reason)
	assert.Equal(t, 4, rep.ChunksSent)
	assert.Equal(t, 4, rep.ChunksReceived)
	assert.Equal(t, "m3;", string(rep.LastEcho))
	assert.Equal(t, "Hello !m1;m2;m3;", string(conn.Written()))
	assert.Equal(t, int64(len("Hello !m1;m2;m3;")), rep.BytesSent)
	assert.Equal(t, rep.BytesSent, rep.BytesReceived)
}

func TestRun_ShortWritesKeepOrder(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.SetEcho(true)
	conn.SetWriteLimit(3)
	seq := &sequence{}
	var echoed bytes.Buffer
	c, _ := newClient(t, conn, client.DefaultConfig(),
		client.WithMessageGenerator(seq.next),
		client.WithStopPolicy(client.StopFunc(func(b []byte) bool {
			echoed.Write(b)
			return echoed.Len() >= 20
		})),
	)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonStopPolicy, rep.Reason)
	want := "Hello !" + seq.sent.String()
	assert.True(t, bytes.HasPrefix([]byte(want), conn.Written()), "written %q not a prefix of %q", conn.Written(), want)
	assert.Equal(t, echoed.String(), string(conn.Written()[:echoed.Len()]))
	for _, w := range conn.Writes() {
		assert.LessOrEqual(t, len(w), 3)
	}
}

func TestRun_PeerClose(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.CloseRemote()
	c, _ := newClient(t, conn, client.DefaultConfig(), client.WithStopPolicy(client.Never()))

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonPeerClosed, rep.Reason)
	assert.Equal(t, "Hello !", string(conn.Written()))
	assert.Zero(t, rep.ChunksReceived)
	assert.True(t, conn.Closed())
}

func TestRun_ConnectFailure(t *testing.T) {
	ep := api.NewEndpoint("127.0.0.1", 5555)
	conn := fake.NewConn(ep.String())
	conn.SetConnectError(api.ConnectError(ep, errors.New("connection refused")))
	c, _ := newClient(t, conn, client.DefaultConfig())

	rep, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrConnect)
	assert.Empty(t, conn.Written())
	assert.True(t, conn.Closed())
	assert.Empty(t, rep.Reason)
}

func TestRun_DialFailure(t *testing.T) {
	ep := api.NewEndpoint("127.0.0.1", 1)
	dialErr := api.ConnectError(ep, errors.New("network unreachable"))
	d := fake.NewDemux()
	c, err := client.New(client.DefaultConfig(),
		client.WithDemultiplexer(func() (api.Demultiplexer, error) { return d, nil }),
		client.WithDialFunc(func(client.Config) (api.ClientConn, error) { return nil, dialErr }),
	)
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	assert.Nil(t, rep)
	assert.Equal(t, api.ErrCodeConnect, api.CodeOf(err))
	assert.True(t, d.Closed())
}

func TestRun_IdleEndsSession(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	cfg := client.DefaultConfig()
	cfg.WaitTimeout = 5 * time.Millisecond
	cfg.MaxIdleWaits = 2
	c, _ := newClient(t, conn, cfg, client.WithStopPolicy(client.Never()))

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonIdle, rep.Reason)
	assert.Equal(t, 1, rep.ChunksSent)
}

func TestRun_ContextCancel(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	cfg := client.DefaultConfig()
	cfg.WaitTimeout = time.Minute
	c, _ := newClient(t, conn, cfg, client.WithStopPolicy(client.Never()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	rep, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, client.ReasonCanceled, rep.Reason)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, conn.Closed())
}

func TestRun_ReadErrorIsReturned(t *testing.T) {
	conn := fake.NewConn("127.0.0.1:5555")
	conn.SetReadError(api.FatalTransportError("read", errors.New("connection reset by peer")))
	c, _ := newClient(t, conn, client.DefaultConfig())

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, api.ErrFatalTransport)
	assert.True(t, conn.Closed())
}

func TestPolicies(t *testing.T) {
	never, always := client.RandomStop(0, 7), client.RandomStop(1, 7)
	for i := 0; i < 1000; i++ {
		require.False(t, never.ShouldStop(nil))
		require.True(t, always.ShouldStop(nil))
	}

	a, b := client.RandomStop(0.5, 42), client.RandomStop(0.5, 42)
	stops := 0
	for i := 0; i < 1000; i++ {
		sa := a.ShouldStop(nil)
		require.Equal(t, sa, b.ShouldStop(nil))
		if sa {
			stops++
		}
	}
	assert.InDelta(t, 500, stops, 100)
}

func TestRandomNumbers(t *testing.T) {
	re := regexp.MustCompile(`^Random number: (\d{1,2})$`)
	gen := client.RandomNumbers(1)
	for i := 0; i < 200; i++ {
		assert.Regexp(t, re, string(gen()))
	}
	g1, g2 := client.RandomNumbers(99), client.RandomNumbers(99)
	assert.Equal(t, g1(), g2())
}

func TestConfig(t *testing.T) {
	cfg := client.DefaultConfig()
	assert.Equal(t, "Hello !", cfg.Greeting)
	assert.Equal(t, 128*1024, cfg.SendBufferSize)
	assert.True(t, cfg.KeepAlive)
	assert.InDelta(t, 0.01, cfg.StopProbability, 1e-12)
	assert.Equal(t, time.Second, cfg.WaitTimeout)
	require.NoError(t, cfg.Validate())

	store := control.NewConfigStore()
	store.SetConfig(map[string]any{
		"client.stop_probability": "0.5",
		"client.wait_timeout":     "250ms",
		"client.max_idle_waits":   int64(3),
	})
	cfg.Load(store)
	assert.InDelta(t, 0.5, cfg.StopProbability, 1e-12)
	assert.Equal(t, 250*time.Millisecond, cfg.WaitTimeout)
	assert.Equal(t, 3, cfg.MaxIdleWaits)

	cfg.StopProbability = 1.5
	_, err := client.New(cfg)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
