package fast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastbus-service/internal/protocol"
	"fastbus-service/internal/utils"
)

const (
	headerLen = 3

	writeBufferHigh = 2048
	writeBufferLow  = 1024
)

// MessageHandler processes the body of a frame (everything after the
// 3-character header). A returned error is fatal for the connection.
type MessageHandler func(body string) error

// Variant supplies the parts of a connection that differ between processors
type Variant interface {
	IgnoredMessages() []string
	MessageHandlers() map[string]MessageHandler
	OnInit(ctx context.Context) error
	OnStart()
	OnStopping()
}

// CommunicatorConfig configures one processor connection
type CommunicatorConfig struct {
	Processor      string
	Port           string
	Baud           int
	Debug          bool
	MinFirmware    string
	RetryDelay     time.Duration
	SettleTime     time.Duration
	ConfirmTimeout time.Duration
	ReadSize       int
}

// DefaultCommunicatorConfig returns the timing used by FAST controllers
func DefaultCommunicatorConfig(processor, port string, baud int) CommunicatorConfig {
	return CommunicatorConfig{
		Processor:      strings.ToUpper(processor),
		Port:           port,
		Baud:           baud,
		MinFirmware:    "0.00",
		RetryDelay:     100 * time.Millisecond,
		SettleTime:     500 * time.Millisecond,
		ConfirmTimeout: time.Second,
		ReadSize:       128,
	}
}

// RemoteIdentity is what the processor reported in its ID: response
type RemoteIdentity struct {
	Processor string `json:"processor"`
	Model     string `json:"model"`
	Firmware  string `json:"firmware"`
}

// Communicator drives the command/response protocol on one serial
// connection. A reader goroutine parses and routes incoming frames and a
// writer goroutine drains the send queue, holding back any frame while a
// previously sent frame still awaits its confirmation.
type Communicator struct {
	machine   *Machine
	config    CommunicatorConfig
	transport protocol.Transport
	variant   Variant
	log       *utils.ProcessorLogger

	handlers map[string]MessageHandler
	parser   *FrameParser

	queue     *sendQueue
	ready     *gate
	queryDone *gate
	querySlot chan struct{}

	confirmMu      sync.Mutex
	confirmMsg     string
	confirmIsQuery bool
	confirmSent    time.Time

	identityMu sync.RWMutex
	identity   RemoteIdentity

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	connected   bool
	stopped     bool
	err         error
	wg          sync.WaitGroup
	done        chan struct{}
	doneOnce    sync.Once
	errCh       chan error
}

func newCommunicator(m *Machine, cfg CommunicatorConfig, transport protocol.Transport, variant Variant) *Communicator {
	cfg.Processor = strings.ToUpper(cfg.Processor)
	log := utils.NewProcessorLogger(m.Logger, cfg.Processor, cfg.Port, cfg.Debug)

	// The handler table is fixed for the life of the communicator
	handlers := make(map[string]MessageHandler)
	for header, h := range variant.MessageHandlers() {
		handlers[header] = h
	}

	c := &Communicator{
		machine:   m,
		config:    cfg,
		transport: transport,
		variant:   variant,
		log:       log,
		handlers:  handlers,
		parser:    NewFrameParser(variant.IgnoredMessages(), log.Logger),
		queue:     newSendQueue(),
		ready:     newGate(),
		queryDone: newGate(),
		querySlot: make(chan struct{}, 1),
		done:      make(chan struct{}),
		errCh:     make(chan error, 2),
		identity:  RemoteIdentity{Processor: cfg.Processor},
	}
	c.parser.SetIgnoreDecodeErrors(true)
	c.parser.OnDecodeError = func([]byte) {
		m.Metrics.DecodeError(cfg.Processor)
	}
	return c
}

func (c *Communicator) String() string {
	return fmt.Sprintf("<FAST %s Communicator>", c.config.Processor)
}

// Processor returns the configured processor name (NET, EXP, ...)
func (c *Communicator) Processor() string {
	return c.config.Processor
}

// Port returns the configured port
func (c *Communicator) Port() string {
	return c.config.Port
}

// Config returns the communicator configuration
func (c *Communicator) Config() CommunicatorConfig {
	return c.config
}

// Identity returns the last identity reported by the processor
func (c *Communicator) Identity() RemoteIdentity {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.identity
}

func (c *Communicator) setIdentity(id RemoteIdentity) {
	c.identityMu.Lock()
	c.identity = id
	c.identityMu.Unlock()
}

// publishIdentity records the identity and exposes it as machine variables
func (c *Communicator) publishIdentity(id RemoteIdentity) {
	c.setIdentity(id)

	c.log.Info(fmt.Sprintf("Connected to %s processor on %s with firmware v%s",
		id.Processor, id.Model, id.Firmware))

	prefix := "fast_" + strings.ToLower(id.Processor)
	c.machine.setVar(prefix+"_firmware", id.Firmware)
	c.machine.setVar(prefix+"_model", id.Model)
}

// IsConnected reports whether the loops are running
func (c *Communicator) IsConnected() bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.connected && !c.stopped
}

// Done is closed when the connection stops or fails
func (c *Communicator) Done() <-chan struct{} {
	return c.done
}

// Errors delivers fatal errors from the reader and writer loops
func (c *Communicator) Errors() <-chan error {
	return c.errCh
}

// Err returns the fatal error that ended the connection, if any
func (c *Communicator) Err() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.err
}

// QueueLen returns the number of frames waiting to be written
func (c *Communicator) QueueLen() int {
	return c.queue.len()
}

// TransportStats returns the transport's I/O counters when it keeps any
func (c *Communicator) TransportStats() (protocol.TransportStats, bool) {
	if sp, ok := c.transport.(protocol.StatsProvider); ok {
		return sp.Stats(), true
	}
	return protocol.TransportStats{}, false
}

// Connect opens the port, clears out stale data and starts the reader and
// writer loops. In production mode a port that fails to open is retried
// until ctx is cancelled.
func (c *Communicator) Connect(ctx context.Context) error {
	if c.isStopped() {
		return ErrStopped
	}

	c.log.Debug(fmt.Sprintf("Connecting to %s at %dbps", c.config.Port, c.config.Baud))

	if err := c.open(ctx); err != nil {
		c.log.LogConnection("open", false, err)
		return err
	}

	c.tune()

	// Throw away whatever is sitting in the device and in our buffer
	if err := c.transport.ResetInputBuffer(); err != nil {
		c.log.Warn("Could not reset input buffer", zap.Error(err))
	}
	c.parser.Reset()

	loopCtx, cancel := context.WithCancel(context.Background())

	// Garbage is expected until the board has flushed its own buffer
	c.parser.SetIgnoreDecodeErrors(true)

	// Stop may have run while the port was opening. It saw no loops and no
	// cancel func, so the port is ours to close.
	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		cancel()
		if err := c.closeTransport(); err != nil {
			c.log.Warn("Could not close port after stop", zap.Error(err))
		}
		return ErrStopped
	}
	c.cancel = cancel
	c.connected = true
	c.machine.Metrics.SetConnected(c.config.Processor, true)
	c.wg.Add(1)
	c.lifecycleMu.Unlock()

	go c.run(loopCtx, "reader", c.readLoop)

	if err := c.ClearBoardSerialBuffer(ctx); err != nil {
		c.Stop()
		return fmt.Errorf("failed to clear %s serial buffer: %w", c.config.Processor, err)
	}

	c.parser.SetIgnoreDecodeErrors(false)

	if !c.startLoop(loopCtx, "writer", c.writeLoop) {
		return ErrStopped
	}

	c.log.LogConnection("connect", true, nil)
	return nil
}

func (c *Communicator) open(ctx context.Context) error {
	for {
		err := c.transport.Open(ctx)
		if err == nil {
			return nil
		}

		if !c.machine.Production {
			return fmt.Errorf("failed to connect to %s: %w", c.config.Port, err)
		}

		c.machine.Metrics.Retry(c.config.Processor)
		c.log.Warn(fmt.Sprintf("Connection to %s failed. Will retry.", c.config.Port), zap.Error(err))

		select {
		case <-time.After(c.config.RetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// tune applies optional transport settings. None of them are required.
func (c *Communicator) tune() {
	if ll, ok := c.transport.(protocol.LowLatencySetter); ok {
		if err := ll.SetLowLatency(true); err != nil {
			c.log.Debug(fmt.Sprintf("Could not enable low latency mode for %s", c.config.Port), zap.Error(err))
		}
	}

	if wb, ok := c.transport.(protocol.WriteBufferLimiter); ok {
		if err := wb.SetWriteBufferLimits(writeBufferHigh, writeBufferLow); err != nil {
			c.log.Debug("Could not set write buffer limits", zap.Error(err))
		}
	}
}

// ClearBoardSerialBuffer flushes any partial command the board is holding
func (c *Communicator) ClearBoardSerialBuffer(ctx context.Context) error {
	if err := c.writeToPort(ctx, []byte("\r\r\r\r"), `\r\r\r\r`); err != nil {
		return err
	}

	select {
	case <-time.After(c.config.SettleTime):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Init performs the handshake for this processor
func (c *Communicator) Init(ctx context.Context) error {
	return c.variant.OnInit(ctx)
}

// Start is called once the whole platform is initialised
func (c *Communicator) Start() {
	c.variant.OnStart()
}

// Stopping lets the variant queue final frames before Stop
func (c *Communicator) Stopping() {
	c.variant.OnStopping()
}

func (c *Communicator) isStopped() bool {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.stopped
}

// startLoop starts a loop unless Stop already ran. The wait group is bumped
// under the lifecycle lock so Stop never waits before the Add.
func (c *Communicator) startLoop(ctx context.Context, name string, loop func(context.Context) error) bool {
	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.lifecycleMu.Unlock()

	go c.run(ctx, name, loop)
	return true
}

func (c *Communicator) closeTransport() error {
	if !c.transport.IsOpen() {
		return nil
	}
	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", c.config.Port, err)
	}
	return nil
}

// markDown records that the remote end went away. It is not an error: Err
// stays nil and blocked callers get ErrStopped.
func (c *Communicator) markDown() {
	c.setDisconnected()
	c.doneOnce.Do(func() { close(c.done) })
}

// Stop cancels both loops and closes the port. Calling it again is a no-op.
func (c *Communicator) Stop() error {
	c.lifecycleMu.Lock()
	if c.stopped {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	c.cancel = nil
	c.lifecycleMu.Unlock()

	c.log.Info("Stop called on serial connection")

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.doneOnce.Do(func() { close(c.done) })

	c.setDisconnected()

	return c.closeTransport()
}

// setDisconnected keeps the flag and the gauge in step with Connect
func (c *Communicator) setDisconnected() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.connected = false
	c.machine.Metrics.SetConnected(c.config.Processor, false)
}

func (c *Communicator) run(ctx context.Context, name string, loop func(context.Context) error) {
	defer c.wg.Done()

	if err := loop(ctx); err != nil {
		c.fail(fmt.Errorf("%s %s loop: %w", c.config.Processor, name, err))
	}
}

// fail records a fatal error, releases blocked callers and asks the host to
// shut down.
func (c *Communicator) fail(err error) {
	c.lifecycleMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.lifecycleMu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })

	c.log.Error("Fatal serial communication error", zap.Error(err))

	select {
	case c.errCh <- err:
	default:
	}

	c.machine.stop(err.Error())
}

func (c *Communicator) readLoop(ctx context.Context) error {
	for {
		data, err := c.transport.Read(ctx, c.config.ReadSize)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil || len(data) == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				c.log.Warn("Serial error", zap.Error(err))
			} else {
				c.log.Warn("Serial closed.")
			}
			c.markDown()
			c.machine.stop(fmt.Sprintf("Serial %s closed.", c.config.Port))
			return nil
		}

		c.log.LogRx(data)

		if err := c.parse(data); err != nil {
			return err
		}
	}
}

// parse feeds a chunk to the frame parser and routes every complete frame
func (c *Communicator) parse(data []byte) error {
	msgs, err := c.parser.Feed(data)
	for _, msg := range msgs {
		if rerr := c.route(msg); rerr != nil {
			return rerr
		}
	}
	return err
}

// route dispatches one frame. A frame can both match a handler and satisfy
// the pending confirmation.
func (c *Communicator) route(msg string) error {
	handled := false

	header := msg
	if len(header) > headerLen {
		header = header[:headerLen]
	}

	c.machine.observe(DirectionRx, c.config.Processor, msg)
	c.machine.Metrics.Received(c.config.Processor, header)

	if h, ok := c.handlers[header]; ok && len(msg) >= headerLen {
		if err := h(msg[headerLen:]); err != nil {
			return err
		}
		handled = true
	}

	if c.confirm(msg) {
		handled = true
	}

	if !handled {
		c.machine.Metrics.Unknown(c.config.Processor)
		c.log.Warn(fmt.Sprintf("Unknown message received: %s", msg))
	}
	return nil
}

// confirm clears the pending confirmation if msg satisfies it
func (c *Communicator) confirm(msg string) bool {
	c.confirmMu.Lock()
	defer c.confirmMu.Unlock()

	if c.confirmMsg == "" || !strings.HasPrefix(msg, c.confirmMsg) {
		return false
	}

	c.machine.Metrics.ObserveConfirm(c.config.Processor, time.Since(c.confirmSent))

	isQuery := c.confirmIsQuery
	c.confirmMsg = ""
	c.confirmIsQuery = false
	c.ready.open()

	if isQuery {
		c.queryDone.open()
	}
	return true
}

func (c *Communicator) writeLoop(ctx context.Context) error {
	for {
		item, err := c.queue.pop(ctx)
		if err != nil {
			return nil
		}

		timer := time.NewTimer(c.config.ConfirmTimeout)
		select {
		case <-c.ready.wait():
			timer.Stop()
		case <-timer.C:
			c.log.Error("Timeout waiting for send_ready", zap.String("message", item.logMsg))
			return fmt.Errorf("%w: message was %q", ErrConfirmTimeout, item.logMsg)
		case <-ctx.Done():
			timer.Stop()
			return nil
		}

		if item.confirm != "" {
			c.confirmMu.Lock()
			c.confirmMsg = item.confirm
			c.confirmIsQuery = item.query
			c.confirmSent = time.Now()
			c.ready.close()
			c.confirmMu.Unlock()
		}

		if err := c.writeToPort(ctx, item.data, item.logMsg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// writeToPort sends bytes as they are, without adding a delimiter
func (c *Communicator) writeToPort(ctx context.Context, data []byte, logMsg string) error {
	c.log.LogTx(logMsg)

	if err := c.transport.Write(ctx, data); err != nil {
		return err
	}

	c.machine.Metrics.Sent(c.config.Processor)
	c.machine.observe(DirectionTx, c.config.Processor, logMsg)
	return nil
}

func frame(msg string) []byte {
	return []byte(msg + "\r")
}

// SendBytes queues raw bytes. logMsg is what appears in logs and traffic.
func (c *Communicator) SendBytes(data []byte, logMsg string) {
	if logMsg == "" {
		logMsg = fmt.Sprintf("%q", data)
	}
	c.queue.push(pendingSend{data: data, logMsg: logMsg})
}

// SendBlind queues a command without waiting for any response
func (c *Communicator) SendBlind(msg string) {
	c.queue.push(pendingSend{data: frame(msg), logMsg: msg})
}

// SendAndConfirm queues a command and holds back every later frame until
// a received message starts with confirm.
func (c *Communicator) SendAndConfirm(msg, confirm string) {
	c.queue.push(pendingSend{data: frame(msg), confirm: confirm, logMsg: msg})
}

// SendQuery sends msg and blocks until a message starting with response has
// been received and processed by its handler. There is deliberately no
// timeout: only use it for commands the processor always answers. It
// returns early only if ctx is cancelled or the connection stops.
func (c *Communicator) SendQuery(ctx context.Context, msg, response string) error {
	if response == "" {
		return fmt.Errorf("query %q needs a response pattern", msg)
	}

	// One query at a time. Waiting for the slot honours ctx too.
	select {
	case c.querySlot <- struct{}{}:
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.querySlot }()

	c.queryDone.close()
	c.queue.push(pendingSend{data: frame(msg), confirm: response, query: true, logMsg: msg})

	select {
	case <-c.queryDone.wait():
		return nil
	case <-c.done:
		if err := c.Err(); err != nil {
			return err
		}
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
