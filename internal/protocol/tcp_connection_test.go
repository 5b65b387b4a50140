package protocol

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// loopback starts a listener and returns a connection for it plus the
// accepted server side.
func loopback(t *testing.T) (*TCPConnection, <-chan net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	tc := NewTCPConnection(&TCPConfig{
		Host:         host,
		Port:         port,
		Timeout:      time.Second,
		DrainTimeout: 10 * time.Millisecond,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { tc.Close() })

	return tc, accepted
}

func serverSide(t *testing.T, accepted <-chan net.Conn) net.Conn {
	t.Helper()
	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil
	}
}

func TestTCPConnectionRoundTrip(t *testing.T) {
	tc, accepted := loopback(t)
	ctx := context.Background()

	require.NoError(t, tc.Open(ctx))
	assert.True(t, tc.IsOpen())
	server := serverSide(t, accepted)

	require.NoError(t, tc.SetLowLatency(true))
	require.NoError(t, tc.SetWriteBufferLimits(2048, 1024))

	require.NoError(t, tc.Write(ctx, []byte("ID:\r")))
	buf := make([]byte, 16)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ID:\r", string(buf[:n]))

	_, err = server.Write([]byte("ID:NET FP-CPU-2000 2.11\r"))
	require.NoError(t, err)

	got, err := tc.Read(ctx, 128)
	require.NoError(t, err)
	assert.Equal(t, "ID:NET FP-CPU-2000 2.11\r", string(got))

	stats := tc.Stats()
	assert.True(t, stats.IsConnected)
	assert.Equal(t, int64(4), stats.BytesWritten)
	assert.Equal(t, int64(len(got)), stats.BytesRead)
	assert.Equal(t, int64(2), stats.OperationCount)
	assert.Zero(t, stats.ErrorCount)

	require.NoError(t, tc.Close())
	assert.False(t, tc.Stats().IsConnected)
}

func TestTCPConnectionResetInputBufferDropsStaleBytes(t *testing.T) {
	tc, accepted := loopback(t)
	ctx := context.Background()

	require.NoError(t, tc.Open(ctx))
	server := serverSide(t, accepted)

	_, err := server.Write([]byte("XX:F\rWD:P\r"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, tc.ResetInputBuffer())

	_, err = server.Write([]byte("ID:\r"))
	require.NoError(t, err)

	got, err := tc.Read(ctx, 128)
	require.NoError(t, err)
	assert.Equal(t, "ID:\r", string(got))
}

func TestTCPConnectionReadHonorsContext(t *testing.T) {
	tc, accepted := loopback(t)

	require.NoError(t, tc.Open(context.Background()))
	serverSide(t, accepted)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := tc.Read(ctx, 128)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTCPConnectionReadReportsRemoteClose(t *testing.T) {
	tc, accepted := loopback(t)

	require.NoError(t, tc.Open(context.Background()))
	server := serverSide(t, accepted)
	require.NoError(t, server.Close())

	_, err := tc.Read(context.Background(), 128)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTCPConnectionNotOpen(t *testing.T) {
	tc := NewTCPConnection(&TCPConfig{Host: "127.0.0.1", Port: 1}, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.False(t, tc.IsOpen())
	assert.ErrorIs(t, tc.Write(ctx, []byte("ID:\r")), ErrNotOpen)
	_, err := tc.Read(ctx, 8)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, tc.ResetInputBuffer(), ErrNotOpen)
	assert.NoError(t, tc.Close())
}
