//go:build linux

// File: server/integration_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loopback tests against the epoll reactor and real sockets.

package server_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/client"
	"github.com/momentics/hioload-echo/logger"
	"github.com/momentics/hioload-echo/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startServer(t *testing.T, mutate func(*server.Config)) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Port = 0
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := server.NewServer(cfg, server.WithLogger(logger.FromZap(zaptest.NewLogger(t))))
	require.NoError(t, err)
	require.NoError(t, s.Listen())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(context.Background()) }()
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

func clientConfig(s *server.Server) client.Config {
	cfg := client.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = s.Addr().Port
	cfg.WaitTimeout = 2 * time.Second
	cfg.MaxIdleWaits = 3
	return cfg
}

// echoTracker generates numbered chunks and stops the session once at least
// minChunks chunks were sent and every sent byte came back. TCP may split or merge
// echoes, so only the byte streams are compared.
type echoTracker struct {
	prefix            string
	minChunks, chunks int
	sent, received    bytes.Buffer
}

func newEchoTracker(greeting, prefix string, minChunks int) *echoTracker {
	e := &echoTracker{prefix: prefix, minChunks: minChunks, chunks: 1}
	e.sent.WriteString(greeting)
	return e
}

func (e *echoTracker) next() []byte {
	msg := fmt.Sprintf("%s%d;", e.prefix, e.chunks)
	e.chunks++
	e.sent.WriteString(msg)
	return []byte(msg)
}

func (e *echoTracker) ShouldStop(b []byte) bool {
	e.received.Write(b)
	return e.chunks >= e.minChunks && e.received.Len() == e.sent.Len()
}

func TestLoopback_ClientSession(t *testing.T) {
	s := startServer(t, nil)
	cfg := clientConfig(s)
	tr := newEchoTracker(cfg.Greeting, "Random number: ", 5)
	c, err := client.New(cfg, client.WithStopPolicy(tr), client.WithMessageGenerator(tr.next))
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.ReasonStopPolicy, rep.Reason)
	assert.GreaterOrEqual(t, rep.ChunksSent, 5)
	assert.Equal(t, tr.sent.String(), tr.received.String())
	assert.Equal(t, int64(tr.sent.Len()), rep.BytesSent)
	assert.Equal(t, rep.BytesSent, rep.BytesReceived)
	assert.True(t, strings.HasSuffix(tr.sent.String(), string(rep.LastEcho)))

	// client-initiated close must tear the server side down
	require.Eventually(t, func() bool {
		st := s.Stats()
		return st.Closed == 1 && st.Active == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLoopback_GreetingEchoedFirst(t *testing.T) {
	s := startServer(t, nil)
	cfg := clientConfig(s)
	tr := newEchoTracker(cfg.Greeting, "unused", 1)
	c, err := client.New(cfg, client.WithStopPolicy(tr), client.WithMessageGenerator(tr.next))
	require.NoError(t, err)

	rep, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello !", tr.received.String())
	assert.Equal(t, int64(len("Hello !")), rep.BytesReceived)
}

func TestLoopback_ConcurrentClientsAreIsolated(t *testing.T) {
	s := startServer(t, nil)
	const clients = 4

	var wg sync.WaitGroup
	trackers := make([]*echoTracker, clients)
	errs := make([]error, clients)
	for id := 0; id < clients; id++ {
		cfg := clientConfig(s)
		trackers[id] = newEchoTracker(cfg.Greeting, fmt.Sprintf("client-%d/", id), 6)
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			tr := trackers[id]
			c, err := client.New(cfg, client.WithStopPolicy(tr), client.WithMessageGenerator(tr.next))
			if err != nil {
				errs[id] = err
				return
			}
			_, errs[id] = c.Run(context.Background())
		}(id)
	}
	wg.Wait()

	for id := 0; id < clients; id++ {
		require.NoError(t, errs[id])
		assert.Equal(t, trackers[id].sent.String(), trackers[id].received.String(), "client %d", id)
	}
	require.Eventually(t, func() bool { return s.Stats().Closed == clients }, 5*time.Second, 5*time.Millisecond)
}

// Small socket buffers force partial sends on the server side.
func TestLoopback_BulkEchoWithShortWrites(t *testing.T) {
	s := startServer(t, func(c *server.Config) {
		c.SendBufferSize = 4096
		c.ReceiveBufferSize = 4096
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	payload := make([]byte, 1<<20)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	writeErr := make(chan error, 1)
	go func() {
		_, err := conn.Write(payload)
		writeErr <- err
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(20*time.Second)))
	got := make([]byte, len(payload))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.NoError(t, <-writeErr)
	assert.True(t, bytes.Equal(payload, got), "echo differs from input")
	assert.Equal(t, int64(len(payload)), s.Stats().BytesOut)
}

func TestLoopback_CloseListenerKeepsSessions(t *testing.T) {
	s := startServer(t, nil)
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Stats().Accepted == 1 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, s.CloseListener())

	_, err = conn.Write([]byte("still served"))
	require.NoError(t, err)
	buf := make([]byte, len("still served"))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "still served", string(buf))

	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", s.Addr().String(), 100*time.Millisecond)
		if err == nil {
			c.Close()
			return false
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLoopback_BindConflict(t *testing.T) {
	s := startServer(t, func(c *server.Config) { c.ReuseAddress = false })

	cfg := server.DefaultConfig()
	cfg.Port = s.Addr().Port
	cfg.ReuseAddress = false
	second, err := server.NewServer(cfg)
	require.NoError(t, err)
	err = second.Listen()
	assert.ErrorIs(t, err, api.ErrBind)
}

func TestLoopback_ConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := client.DefaultConfig()
	cfg.Port = port
	c, err := client.New(cfg)
	require.NoError(t, err)
	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, api.ErrConnect)
}
