package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"
)

type failingScanner struct{}

func (failingScanner) Scan(context.Context) ([]*DiscoveredPort, error) {
	return nil, errors.New("enumeration failed")
}

func (failingScanner) GetScannerType() string { return "broken" }

func fakeSerialScanner(t *testing.T, details ...*enumerator.PortDetails) *SerialScanner {
	s := NewSerialScanner(zaptest.NewLogger(t))
	s.list = func() ([]*enumerator.PortDetails, error) { return details, nil }
	return s
}

func TestScanAllTagsConfiguredPorts(t *testing.T) {
	m := NewScannerManager(map[string]string{
		"/dev/ttyACM0": "NET",
		"/dev/ttyACM1": "EXP",
	}, zaptest.NewLogger(t))

	m.RegisterScanner(failingScanner{})
	m.RegisterScanner(fakeSerialScanner(t,
		&enumerator.PortDetails{Name: "/dev/ttyS0"},
		&enumerator.PortDetails{Name: "/dev/ttyACM1", IsUSB: true, VID: "2e8a", PID: "1083", Product: "FAST Neuron"},
		&enumerator.PortDetails{Name: "/dev/ttyACM0", IsUSB: true, VID: "2e8a", PID: "1083"},
	))

	ports, err := m.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 3)

	assert.Equal(t, "/dev/ttyACM0", ports[0].Name)
	assert.Equal(t, "NET", ports[0].Processor)
	assert.Equal(t, "/dev/ttyACM1", ports[1].Name)
	assert.Equal(t, "EXP", ports[1].Processor)
	assert.Equal(t, "FAST Neuron", ports[1].Product)
	assert.True(t, ports[1].IsUSB)
	assert.Equal(t, "/dev/ttyS0", ports[2].Name)
	assert.Empty(t, ports[2].Processor)
	assert.Equal(t, "serial", ports[2].Scanner)
}

func TestSerialScannerHonorsContext(t *testing.T) {
	s := fakeSerialScanner(t, &enumerator.PortDetails{Name: "/dev/ttyACM0"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
