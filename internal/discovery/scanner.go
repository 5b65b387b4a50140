// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// PortScanner lists candidate ports for a FAST processor
type PortScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredPort, error)
	GetScannerType() string
}

// DiscoveredPort is one port found on the host
type DiscoveredPort struct {
	Name         string `json:"name"`
	Scanner      string `json:"scanner"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`

	// Processor is set when the port is the configured NET or EXP port
	Processor string `json:"processor,omitempty"`
}

// SerialScanner enumerates the host's serial ports
type SerialScanner struct {
	list   func() ([]*enumerator.PortDetails, error)
	logger *zap.Logger
}

// NewSerialScanner creates a scanner backed by the OS port enumerator
func NewSerialScanner(logger *zap.Logger) *SerialScanner {
	return &SerialScanner{
		list:   enumerator.GetDetailedPortsList,
		logger: logger.With(zap.String("scanner", "serial")),
	}
}

// GetScannerType returns scanner type
func (s *SerialScanner) GetScannerType() string {
	return "serial"
}

// Scan lists the serial ports currently present
func (s *SerialScanner) Scan(ctx context.Context) ([]*DiscoveredPort, error) {
	details, err := s.list()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	ports := make([]*DiscoveredPort, 0, len(details))
	for _, d := range details {
		if err := ctx.Err(); err != nil {
			return ports, err
		}
		ports = append(ports, &DiscoveredPort{
			Name:         d.Name,
			Scanner:      s.GetScannerType(),
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports_found", len(ports)))
	return ports, nil
}

// ScannerManager runs every registered scanner and tags the ports that are
// already configured for a processor.
type ScannerManager struct {
	scanners   []PortScanner
	configured map[string]string
	logger     *zap.Logger
}

// NewScannerManager creates a new scanner manager. configured maps a port
// name to the processor using it.
func NewScannerManager(configured map[string]string, logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		configured: configured,
		logger:     logger,
	}
}

// RegisterScanner registers a port scanner
func (sm *ScannerManager) RegisterScanner(scanner PortScanner) {
	sm.scanners = append(sm.scanners, scanner)
	sm.logger.Info("Scanner registered", zap.String("type", scanner.GetScannerType()))
}

// ScanAll scans with every registered scanner. A failing scanner is logged
// and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*DiscoveredPort, error) {
	var all []*DiscoveredPort

	for _, scanner := range sm.scanners {
		ports, err := scanner.Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			sm.logger.Error("Scanner failed", zap.String("type", scanner.GetScannerType()), zap.Error(err))
			continue
		}
		all = append(all, ports...)
	}

	for _, p := range all {
		for name, processor := range sm.configured {
			if strings.EqualFold(name, p.Name) {
				p.Processor = processor
			}
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}
