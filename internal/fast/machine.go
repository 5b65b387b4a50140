package fast

import (
	"go.uber.org/zap"

	"fastbus-service/internal/metrics"
)

// VariableSink receives the machine variables published by communicators
type VariableSink interface {
	SetMachineVar(name, value string)
}

// TrafficObserver receives every frame sent to or received from a processor
type TrafficObserver interface {
	ObserveTraffic(direction Direction, processor, message string)
}

// Direction of a frame on the bus
type Direction string

const (
	DirectionTx Direction = "tx"
	DirectionRx Direction = "rx"
)

// Machine is the execution context shared by the platform and its
// communicators. It replaces any process-wide state: everything a
// communicator needs from its host is reached through here.
type Machine struct {
	Logger *zap.Logger

	// Production enables retrying a port that fails to open instead of
	// failing startup.
	Production bool

	Variables VariableSink
	Metrics   *metrics.BusMetrics
	Traffic   TrafficObserver

	// Shutdown asks the host process to stop. It may be called from any
	// goroutine and more than once, including from a communicator's own
	// loops, so it must not stop the platform synchronously.
	Shutdown func(reason string)
}

func (m *Machine) stop(reason string) {
	if m.Shutdown != nil {
		m.Shutdown(reason)
	}
}

func (m *Machine) setVar(name, value string) {
	if m.Variables != nil {
		m.Variables.SetMachineVar(name, value)
	}
}

func (m *Machine) observe(direction Direction, processor, message string) {
	if m.Traffic != nil {
		m.Traffic.ObserveTraffic(direction, processor, message)
	}
}
