// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// defaultSerialPoll bounds how long a Read waits before rechecking its context
const defaultSerialPoll = 50 * time.Millisecond

// SerialConnection implements Transport for a FAST USB serial port
type SerialConnection struct {
	config *SerialConfig
	port   serial.Port
	logger *zap.Logger
	mutex  sync.RWMutex
	isOpen bool
	stats  statsRecorder
}

// NewSerialConnection creates a new serial connection
func NewSerialConnection(config *SerialConfig, logger *zap.Logger) *SerialConnection {
	return &SerialConnection{
		config: config,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", config.Port),
		),
	}
}

// Open opens the port. FAST processors always run 8N1; parity and stop bits
// are only honoured for bridges that need them.
func (sc *SerialConnection) Open(ctx context.Context) error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if sc.isOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sc.logger.Debug("Opening serial port",
		zap.Int("baud_rate", sc.config.BaudRate),
	)

	mode := &serial.Mode{
		BaudRate: sc.config.BaudRate,
		DataBits: sc.config.DataBits,
		StopBits: serialStopBits(sc.config.StopBits),
	}

	switch sc.config.Parity {
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	default:
		mode.Parity = serial.NoParity
	}

	port, err := serial.Open(sc.config.Port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", sc.config.Port, err)
	}

	poll := sc.config.Timeout
	if poll <= 0 {
		poll = defaultSerialPoll
	}
	if err := port.SetReadTimeout(poll); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.isOpen = true
	sc.stats.connected(true)

	sc.logger.Info("Serial port opened", zap.Duration("read_poll", poll))
	return nil
}

func serialStopBits(bits int) serial.StopBits {
	if bits == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// Close closes the serial connection
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	if !sc.isOpen || sc.port == nil {
		return nil
	}

	err := sc.port.Close()

	sc.port = nil
	sc.isOpen = false
	sc.stats.connected(false)

	if err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed")
	return nil
}

// IsOpen returns whether the connection is open
func (sc *SerialConnection) IsOpen() bool {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	return sc.isOpen && sc.port != nil
}

// Write writes one frame
func (sc *SerialConnection) Write(ctx context.Context, data []byte) error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	startTime := time.Now()
	n, err := sc.port.Write(data)
	if err != nil {
		sc.stats.failed()
		return fmt.Errorf("failed to write to serial port: %w", err)
	}
	if n != len(data) {
		sc.stats.failed()
		return fmt.Errorf("incomplete write: wrote %d of %d bytes", n, len(data))
	}

	sc.stats.wrote(n, time.Since(startTime))
	return nil
}

// Read blocks until at least one byte is available, the port is closed or
// ctx is cancelled. A closed port is reported as io.EOF.
func (sc *SerialConnection) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return nil, ErrNotOpen
	}

	buffer := make([]byte, maxBytes)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := sc.port.Read(buffer)
		if err != nil {
			var portErr *serial.PortError
			if errors.Is(err, io.EOF) || (errors.As(err, &portErr) && portErr.Code() == serial.PortClosed) {
				return nil, io.EOF
			}
			sc.stats.failed()
			return nil, fmt.Errorf("failed to read from serial port: %w", err)
		}

		// n == 0 without an error is the poll timeout
		if n > 0 {
			sc.stats.read(n)
			return buffer[:n], nil
		}
	}
}

// ResetInputBuffer discards bytes received by the OS but not yet read
func (sc *SerialConnection) ResetInputBuffer() error {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	if !sc.isOpen || sc.port == nil {
		return ErrNotOpen
	}
	return sc.port.ResetInputBuffer()
}

// Stats returns a snapshot of the I/O counters
func (sc *SerialConnection) Stats() TransportStats {
	return sc.stats.snapshot()
}

// GetProtocolType returns the protocol type
func (sc *SerialConnection) GetProtocolType() ConnectionType {
	return ConnectionTypeSerial
}

// Name returns the configured port name
func (sc *SerialConnection) Name() string {
	return sc.config.Port
}
