package fast

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fastbus-service/internal/metrics"
	"fastbus-service/internal/protocol"
)

// fakeTransport is an in-memory processor port. Every frame written is
// recorded and, if a responder is set, answered on the read side.
type fakeTransport struct {
	mu           sync.Mutex
	open         bool
	openCalls    int
	openFailures int
	closeCalls   int
	frames       []string
	responder    func(frame string) []string

	rx     chan []byte
	eof    chan struct{}
	eofOne sync.Once
}

func newFakeTransport(responder func(frame string) []string) *fakeTransport {
	return &fakeTransport{
		responder: responder,
		rx:        make(chan []byte, 256),
		eof:       make(chan struct{}),
	}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.openCalls++
	if f.openFailures > 0 {
		f.openFailures--
		return fmt.Errorf("port busy")
	}
	f.open = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closeCalls++
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return protocol.ErrNotOpen
	}
	var replies []string
	for _, fr := range strings.Split(string(data), "\r") {
		if fr == "" {
			continue
		}
		f.frames = append(f.frames, fr)
		if f.responder != nil {
			replies = append(replies, f.responder(fr)...)
		}
	}
	if string(data) == "\r\r\r\r" {
		f.frames = append(f.frames, `\r\r\r\r`)
	}
	f.mu.Unlock()

	for _, r := range replies {
		f.inject(r + "\r")
	}
	return nil
}

func (f *fakeTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	select {
	case data := <-f.rx:
		return data, nil
	case <-f.eof:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) ResetInputBuffer() error { return nil }

func (f *fakeTransport) GetProtocolType() protocol.ConnectionType {
	return protocol.ConnectionTypeSerial
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) inject(data string) {
	f.rx <- []byte(data)
}

func (f *fakeTransport) hangUp() {
	f.eofOne.Do(func() { close(f.eof) })
}

func (f *fakeTransport) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

func (f *fakeTransport) count(frame string) int {
	n := 0
	for _, fr := range f.written() {
		if fr == frame {
			n++
		}
	}
	return n
}

func (f *fakeTransport) waitFor(t *testing.T, frame string) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count(frame) > 0 },
		2*time.Second, 5*time.Millisecond, "frame %q never written, got %v", frame, f.written())
}

// testMachine records what the engine publishes to its host
type testMachine struct {
	*Machine

	mu        sync.Mutex
	vars      map[string]string
	shutdowns []string
}

func newTestMachine(t *testing.T) *testMachine {
	tm := &testMachine{vars: make(map[string]string)}
	tm.Machine = &Machine{
		Logger:    zaptest.NewLogger(t),
		Variables: tm,
		Metrics:   metrics.NewBusMetrics(),
		Shutdown: func(reason string) {
			tm.mu.Lock()
			tm.shutdowns = append(tm.shutdowns, reason)
			tm.mu.Unlock()
		},
	}
	return tm
}

func (tm *testMachine) SetMachineVar(name, value string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.vars[name] = value
}

func (tm *testMachine) variable(name string) string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.vars[name]
}

func (tm *testMachine) shutdownReasons() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return append([]string(nil), tm.shutdowns...)
}

func testConfig(processor string) CommunicatorConfig {
	cfg := DefaultCommunicatorConfig(processor, "fake", 921600)
	cfg.RetryDelay = time.Millisecond
	cfg.SettleTime = 5 * time.Millisecond
	return cfg
}

// netResponder answers like a NET processor running firmware 2.11
func netResponder(frame string) []string {
	switch frame {
	case "ID:":
		return []string{"ID:NET FP-CPU-2000 2.11"}
	}
	return nil
}
