// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const socketScheme = "socket://"

// CreateTransport builds the transport for a configured port string. Device
// paths open a serial port (8N1); socket://host:port opens a TCP connection.
func CreateTransport(port string, baudRate int, logger *zap.Logger) (Transport, error) {
	if port == "" {
		return nil, fmt.Errorf("port is required")
	}

	if strings.HasPrefix(strings.ToLower(port), socketScheme) {
		return createTCPTransport(port[len(socketScheme):], logger)
	}

	return createSerialTransport(port, baudRate, logger)
}

// createSerialTransport creates a serial transport
func createSerialTransport(port string, baudRate int, logger *zap.Logger) (Transport, error) {
	if err := ValidateBaudRate(baudRate); err != nil {
		return nil, err
	}

	serialConfig := &SerialConfig{
		Port:     port,
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "none",
	}

	logger.Debug("Creating serial transport",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger), nil
}

// createTCPTransport creates a TCP transport from host:port
func createTCPTransport(hostPort string, logger *zap.Logger) (Transport, error) {
	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return nil, fmt.Errorf("invalid socket address %q: %w", hostPort, err)
	}

	portNum, err := strconv.Atoi(portStr)
	if err != nil || portNum < 1 || portNum > 65535 {
		return nil, fmt.Errorf("invalid port number: %s", portStr)
	}

	tcpConfig := &TCPConfig{
		Host:         host,
		Port:         portNum,
		KeepAlive:    true,
		Timeout:      5 * time.Second,
		DrainTimeout: 10 * time.Millisecond,
	}

	logger.Debug("Creating TCP transport",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
	)

	return NewTCPConnection(tcpConfig, logger), nil
}

// ValidateBaudRate rejects rates the FAST serial adapters cannot run at
func ValidateBaudRate(rate int) error {
	validRates := []int{9600, 19200, 38400, 57600, 115200, 230400, 460800, 921600}
	for _, validRate := range validRates {
		if rate == validRate {
			return nil
		}
	}
	return fmt.Errorf("invalid baud rate: %d", rate)
}
