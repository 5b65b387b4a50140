// internal/protocol/protocol.go
package protocol

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ConnectionType identifies the kind of byte channel behind a Transport
type ConnectionType string

const (
	ConnectionTypeSerial ConnectionType = "serial"
	ConnectionTypeTCP    ConnectionType = "tcp"
)

// ErrNotOpen is returned by I/O on a transport that is not open
var ErrNotOpen = errors.New("transport not open")

// Transport is a duplex byte channel to a FAST processor
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication. Read returns io.EOF once the remote side is gone.
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// ResetInputBuffer discards anything already buffered by the device
	ResetInputBuffer() error

	// Protocol information
	GetProtocolType() ConnectionType
	Name() string
}

// LowLatencySetter is implemented by transports that can trade throughput
// for latency. Support is optional.
type LowLatencySetter interface {
	SetLowLatency(enabled bool) error
}

// WriteBufferLimiter is implemented by transports with a tunable write buffer
type WriteBufferLimiter interface {
	SetWriteBufferLimits(high, low int) error
}

// StatsProvider is implemented by transports that keep I/O counters
type StatsProvider interface {
	Stats() TransportStats
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// statsRecorder guards TransportStats. Reads and writes happen on different
// goroutines.
type statsRecorder struct {
	mu    sync.Mutex
	stats TransportStats
}

func (r *statsRecorder) connected(up bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.IsConnected = up
	if up {
		r.stats.LastActivity = time.Now()
	}
}

func (r *statsRecorder) wrote(n int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.BytesWritten += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()

	// running average of write latency
	if r.stats.AverageLatency == 0 {
		r.stats.AverageLatency = latency
	} else {
		r.stats.AverageLatency = (r.stats.AverageLatency + latency) / 2
	}
}

func (r *statsRecorder) read(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.BytesRead += int64(n)
	r.stats.OperationCount++
	r.stats.LastActivity = time.Now()
}

func (r *statsRecorder) failed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.ErrorCount++
}

func (r *statsRecorder) snapshot() TransportStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
