package fast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectNet(t *testing.T, tm *testMachine, ft *fakeTransport, cfg CommunicatorConfig) *NetCommunicator {
	t.Helper()

	nc := NewNetCommunicator(tm.Machine, cfg, ft)
	t.Cleanup(func() { nc.Stop() })

	require.NoError(t, nc.Connect(context.Background()))
	return nc
}

func TestNetHandshake(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(netResponder)
	nc := connectNet(t, tm, ft, testConfig("net"))

	require.NoError(t, nc.Init(context.Background()))

	assert.Equal(t, RemoteIdentity{Processor: "NET", Model: "FP-CPU-2000", Firmware: "2.11"}, nc.Identity())
	assert.Equal(t, "2.11", tm.variable("fast_net_firmware"))
	assert.Equal(t, "FP-CPU-2000", tm.variable("fast_net_model"))
	assert.Equal(t, []string{`\r\r\r\r`, "ID:"}, ft.written())
	assert.True(t, nc.IsConnected())

	assert.Equal(t, 1.0, testutil.ToFloat64(tm.Metrics.Connected.WithLabelValues("NET")))
	assert.Equal(t, 2.0, testutil.ToFloat64(tm.Metrics.MessagesSent.WithLabelValues("NET")))
}

func TestNetFirmwareTooOld(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(netResponder)

	cfg := testConfig("net")
	cfg.MinFirmware = "3.00"
	nc := connectNet(t, tm, ft, cfg)

	err := nc.Init(context.Background())
	require.ErrorIs(t, err, ErrFirmwareTooOld)
	require.ErrorIs(t, nc.Err(), ErrFirmwareTooOld)
	assert.NotEmpty(t, tm.shutdownReasons())
}

func TestAtMostOneFrameAwaitingConfirmation(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	var wg sync.WaitGroup
	for _, msg := range []string{"SA:1", "SA:2", "SA:3"} {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			nc.SendAndConfirm(msg, "SA:P")
		}(msg)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return len(ft.written()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ft.written(), 2, "second frame written before the first was confirmed")

	ft.inject("SA:P\r")
	require.Eventually(t, func() bool { return len(ft.written()) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, ft.written(), 3)

	ft.inject("SA:P\r")
	require.Eventually(t, func() bool { return len(ft.written()) == 4 }, time.Second, 5*time.Millisecond)

	ft.inject("SA:P\r")
	nc.SendBlind("WD:")
	ft.waitFor(t, "WD:")
	assert.Equal(t, 0, nc.QueueLen())
}

func TestBlindSendsDoNotWait(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	nc.SendBlind("DL:1")
	nc.SendBlind("DL:2")
	nc.SendBytes([]byte("DL:3\r"), "DL:3")

	require.Eventually(t, func() bool { return len(ft.written()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`\r\r\r\r`, "DL:1", "DL:2", "DL:3"}, ft.written())
}

func TestConfirmTimeoutIsFatal(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)

	cfg := testConfig("net")
	cfg.ConfirmTimeout = 30 * time.Millisecond
	nc := connectNet(t, tm, ft, cfg)

	nc.SendAndConfirm("SA:1", "SA:P")
	nc.SendBlind("SA:2")

	select {
	case err := <-nc.Errors():
		require.ErrorIs(t, err, ErrConfirmTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not time out")
	}

	assert.Zero(t, ft.count("SA:2"))
	assert.NotEmpty(t, tm.shutdownReasons())

	<-nc.Done()
	require.ErrorIs(t, nc.SendQuery(context.Background(), "ID:", "ID:"), ErrConfirmTimeout)
}

func TestUnknownMessagesAreNotFatal(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(netResponder)
	nc := connectNet(t, tm, ft, testConfig("net"))

	ft.inject("ZZ:what\rQ\r")

	require.NoError(t, nc.Init(context.Background()))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(tm.Metrics.UnknownMessages.WithLabelValues("NET")) == 2
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, nc.Err())
}

func TestDrainToleratesGarbage(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(netResponder)
	ft.inject(string([]byte{0xff, 0x00, 0xfe, '\r'}))

	cfg := testConfig("net")
	cfg.SettleTime = 100 * time.Millisecond
	nc := connectNet(t, tm, ft, cfg)

	require.NoError(t, nc.Init(context.Background()))
	assert.NoError(t, nc.Err())
	assert.Equal(t, 1.0, testutil.ToFloat64(tm.Metrics.DecodeErrors.WithLabelValues("NET")))
}

func TestRemoteCloseStopsMachine(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	pending := make(chan error, 1)
	go func() { pending <- nc.SendQuery(context.Background(), "ID:", "ID:") }()
	ft.waitFor(t, "ID:")

	ft.hangUp()

	require.Eventually(t, func() bool { return len(tm.shutdownReasons()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Serial fake closed.", tm.shutdownReasons()[0])

	select {
	case err := <-pending:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("query still blocked after the remote end closed")
	}

	<-nc.Done()
	assert.False(t, nc.IsConnected())
	assert.NoError(t, nc.Err())
	assert.Equal(t, 0.0, testutil.ToFloat64(tm.Metrics.Connected.WithLabelValues("NET")))
	require.ErrorIs(t, nc.SendQuery(context.Background(), "ID:", "ID:"), ErrStopped)
}

func TestConnectRetry(t *testing.T) {
	t.Run("production retries", func(t *testing.T) {
		tm := newTestMachine(t)
		tm.Production = true
		ft := newFakeTransport(nil)
		ft.openFailures = 3

		connectNet(t, tm, ft, testConfig("net"))

		assert.Equal(t, 4, ft.openCalls)
		assert.Equal(t, 3.0, testutil.ToFloat64(tm.Metrics.ConnectRetries.WithLabelValues("NET")))
	})

	t.Run("development fails fast", func(t *testing.T) {
		tm := newTestMachine(t)
		ft := newFakeTransport(nil)
		ft.openFailures = 1

		nc := NewNetCommunicator(tm.Machine, testConfig("net"), ft)
		require.Error(t, nc.Connect(context.Background()))
		assert.Equal(t, 1, ft.openCalls)
	})

	t.Run("cancelled while retrying", func(t *testing.T) {
		tm := newTestMachine(t)
		tm.Production = true
		ft := newFakeTransport(nil)
		ft.openFailures = 1 << 20

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		nc := NewNetCommunicator(tm.Machine, testConfig("net"), ft)
		require.ErrorIs(t, nc.Connect(ctx), context.DeadlineExceeded)
	})
}

func TestStop(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	require.NoError(t, nc.Stop())
	require.NoError(t, nc.Stop())

	assert.False(t, ft.IsOpen())
	assert.Equal(t, 1, ft.closeCalls)
	assert.False(t, nc.IsConnected())
	assert.Equal(t, 0.0, testutil.ToFloat64(tm.Metrics.Connected.WithLabelValues("NET")))

	require.ErrorIs(t, nc.SendQuery(context.Background(), "ID:", "ID:"), ErrStopped)
}

func TestSendQueryHonoursContext(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	// Known risk: SendQuery has no deadline of its own. An unanswered query
	// only returns through ctx or the engine stopping.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, nc.SendQuery(ctx, "ID:", "ID:"), context.DeadlineExceeded)
}

func TestConnectAfterStop(t *testing.T) {
	t.Run("stopped before connect", func(t *testing.T) {
		tm := newTestMachine(t)
		ft := newFakeTransport(nil)
		nc := NewNetCommunicator(tm.Machine, testConfig("net"), ft)

		require.NoError(t, nc.Stop())
		require.ErrorIs(t, nc.Connect(context.Background()), ErrStopped)

		assert.Zero(t, ft.openCalls)
		assert.False(t, nc.IsConnected())
		require.NoError(t, nc.Stop())
	})

	t.Run("stopped while the port was opening", func(t *testing.T) {
		tm := newTestMachine(t)
		tm.Production = true
		ft := newFakeTransport(nil)
		ft.openFailures = 2

		cfg := testConfig("net")
		cfg.RetryDelay = 40 * time.Millisecond
		nc := NewNetCommunicator(tm.Machine, cfg, ft)

		result := make(chan error, 1)
		go func() { result <- nc.Connect(context.Background()) }()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, nc.Stop())

		select {
		case err := <-result:
			require.ErrorIs(t, err, ErrStopped)
		case <-time.After(time.Second):
			t.Fatal("connect did not return")
		}

		assert.False(t, ft.IsOpen(), "port left open after stop")
		assert.False(t, nc.IsConnected())
		assert.Empty(t, ft.written())
		assert.Equal(t, 0.0, testutil.ToFloat64(tm.Metrics.Connected.WithLabelValues("NET")))
		require.NoError(t, nc.Stop())
	})
}

func TestQueriesWaitingForTheSlotHonourContext(t *testing.T) {
	tm := newTestMachine(t)
	ft := newFakeTransport(nil)
	nc := connectNet(t, tm, ft, testConfig("net"))

	go nc.SendQuery(context.Background(), "ID:", "ID:")
	ft.waitFor(t, "ID:")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.ErrorIs(t, nc.SendQuery(ctx, "ID@88:", "ID:"), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, ft.count("ID@88:"), "second query reached the wire")
}
