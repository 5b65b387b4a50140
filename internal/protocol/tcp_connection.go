// internal/protocol/tcp_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPConnection implements Transport for socket:// ports, typically a
// serial-over-network bridge or a simulator.
type TCPConnection struct {
	config *TCPConfig
	conn   net.Conn
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsRecorder
}

// NewTCPConnection creates a new TCP connection
func NewTCPConnection(config *TCPConfig, logger *zap.Logger) *TCPConnection {
	return &TCPConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "tcp"),
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		),
	}
}

// Open opens the TCP connection
func (tc *TCPConnection) Open(ctx context.Context) error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if tc.isOpen {
		return nil
	}

	dialer := &net.Dialer{
		Timeout:   tc.config.Timeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.DialContext(ctx, "tcp", tc.address())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", tc.address(), err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && tc.config.KeepAlive {
		tcpConn.SetKeepAlive(true)
		tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	tc.conn = conn
	tc.isOpen = true
	tc.stats.connected(true)

	tc.logger.Info("TCP connection opened successfully")
	return nil
}

func (tc *TCPConnection) address() string {
	return net.JoinHostPort(tc.config.Host, fmt.Sprintf("%d", tc.config.Port))
}

// Close closes the TCP connection
func (tc *TCPConnection) Close() error {
	tc.mutex.Lock()
	defer tc.mutex.Unlock()

	if !tc.isOpen || tc.conn == nil {
		return nil
	}

	err := tc.conn.Close()

	tc.conn = nil
	tc.isOpen = false
	tc.stats.connected(false)

	if err != nil {
		tc.logger.Error("Failed to close TCP connection", zap.Error(err))
		return fmt.Errorf("failed to close TCP connection: %w", err)
	}

	tc.logger.Info("TCP connection closed successfully")
	return nil
}

// IsOpen returns whether the connection is open
func (tc *TCPConnection) IsOpen() bool {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()
	return tc.isOpen && tc.conn != nil
}

// Write writes data to the TCP connection
func (tc *TCPConnection) Write(ctx context.Context, data []byte) error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return ErrNotOpen
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	startTime := time.Now()
	n, err := tc.conn.Write(data)
	if err != nil {
		tc.stats.failed()
		return fmt.Errorf("failed to write to TCP connection: %w", err)
	}
	if n != len(data) {
		tc.stats.failed()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	tc.stats.wrote(n, time.Since(startTime))
	return nil
}

// Read reads whatever is available, blocking until at least one byte
// arrives. Cancelling ctx interrupts the read through the read deadline.
func (tc *TCPConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return nil, ErrNotOpen
	}

	conn := tc.conn
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	buffer := make([]byte, maxBytes)
	n, err := conn.Read(buffer)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, io.EOF) {
			tc.stats.failed()
		}
		return nil, err
	}

	tc.stats.read(n)

	return buffer[:n], nil
}

// ResetInputBuffer drains bytes already queued on the socket
func (tc *TCPConnection) ResetInputBuffer() error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if !tc.isOpen || tc.conn == nil {
		return ErrNotOpen
	}

	drain := tc.config.DrainTimeout
	if drain <= 0 {
		drain = 10 * time.Millisecond
	}
	defer tc.conn.SetReadDeadline(time.Time{})

	buffer := make([]byte, 1024)
	for {
		tc.conn.SetReadDeadline(time.Now().Add(drain))
		n, err := tc.conn.Read(buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to drain TCP connection: %w", err)
		}
		tc.logger.Debug("Discarded stale input", zap.Int("bytes", n))
	}
}

// SetLowLatency toggles Nagle's algorithm
func (tc *TCPConnection) SetLowLatency(enabled bool) error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	tcpConn, ok := tc.conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("low latency mode not supported on %T", tc.conn)
	}
	return tcpConn.SetNoDelay(enabled)
}

// SetWriteBufferLimits sizes the socket send buffer to the high watermark
func (tc *TCPConnection) SetWriteBufferLimits(high, low int) error {
	tc.mutex.RLock()
	defer tc.mutex.RUnlock()

	if high < low {
		return fmt.Errorf("high watermark %d below low watermark %d", high, low)
	}
	tcpConn, ok := tc.conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("write buffer limits not supported on %T", tc.conn)
	}
	return tcpConn.SetWriteBuffer(high)
}

// Stats returns a snapshot of the I/O counters
func (tc *TCPConnection) Stats() TransportStats {
	return tc.stats.snapshot()
}

// GetProtocolType returns the protocol type
func (tc *TCPConnection) GetProtocolType() ConnectionType {
	return ConnectionTypeTCP
}

// Name returns the socket URL of this connection
func (tc *TCPConnection) Name() string {
	return "socket://" + tc.address()
}
