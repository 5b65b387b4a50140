package fast

import (
	"context"
	"fmt"
	"strings"

	"fastbus-service/internal/protocol"
)

// NetCommunicator talks to the NET processor of a Neuron controller
type NetCommunicator struct {
	*Communicator
}

// NewNetCommunicator creates the NET connection over transport
func NewNetCommunicator(m *Machine, cfg CommunicatorConfig, transport protocol.Transport) *NetCommunicator {
	if cfg.MinFirmware == "" {
		cfg.MinFirmware = "0.00"
	}
	nc := &NetCommunicator{}
	nc.Communicator = newCommunicator(m, cfg, transport, nc)
	return nc
}

// IgnoredMessages drops the watchdog acknowledgement
func (nc *NetCommunicator) IgnoredMessages() []string {
	return []string{"WD:P"}
}

func (nc *NetCommunicator) MessageHandlers() map[string]MessageHandler {
	return map[string]MessageHandler{
		"XX:": nc.processXX,
		"ID:": nc.processID,
	}
}

// OnInit asks the processor to identify itself
func (nc *NetCommunicator) OnInit(ctx context.Context) error {
	return nc.SendQuery(ctx, "ID:", "ID:")
}

func (nc *NetCommunicator) OnStart()    {}
func (nc *NetCommunicator) OnStopping() {}

func (nc *NetCommunicator) processXX(body string) error {
	nc.log.Warn(fmt.Sprintf("Received XX response: %s", body))
	return nil
}

// processID handles "ID:<processor> <model> <firmware>"
func (nc *NetCommunicator) processID(body string) error {
	id, err := parseIdentity(body)
	if err != nil {
		return err
	}

	nc.publishIdentity(id)

	return CheckFirmware(id.Processor, id.Firmware, nc.config.MinFirmware)
}

func parseIdentity(body string) (RemoteIdentity, error) {
	fields := strings.Fields(body)
	if len(fields) != 3 {
		return RemoteIdentity{}, fmt.Errorf("%w: %q", ErrBadIdentity, body)
	}
	return RemoteIdentity{Processor: fields[0], Model: fields[1], Firmware: fields[2]}, nil
}
