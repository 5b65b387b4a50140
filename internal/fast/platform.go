package fast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"fastbus-service/internal/config"
	"fastbus-service/internal/protocol"
)

// stoppingGrace gives the writer time to flush the frames queued by Stopping
const stoppingGrace = 100 * time.Millisecond

// TransportFactory opens the transport for a configured port
type TransportFactory func(port string, baud int) (protocol.Transport, error)

// DefaultTransportFactory builds serial or socket:// transports
func DefaultTransportFactory(logger *zap.Logger) TransportFactory {
	return func(port string, baud int) (protocol.Transport, error) {
		return protocol.CreateTransport(port, baud, logger)
	}
}

// Platform owns the processor connections of one FAST controller and the
// boards discovered on them.
type Platform struct {
	machine *Machine
	config  config.FastConfig
	log     *zap.Logger

	net *NetCommunicator
	exp *ExpCommunicator

	mu        sync.RWMutex
	expBoards []*ExpansionBoard
	breakouts []*BreakoutBoard
	started   bool
}

// NewPlatform creates the communicators for every configured port
func NewPlatform(m *Machine, cfg config.FastConfig, transports TransportFactory) (*Platform, error) {
	p := &Platform{
		machine: m,
		config:  cfg,
		log:     m.Logger.With(zap.String("component", "fast")),
	}

	if cfg.Net.Enabled() {
		t, err := transports(cfg.Net.Port, cfg.Net.Baud)
		if err != nil {
			return nil, fmt.Errorf("failed to create NET transport: %w", err)
		}
		p.net = NewNetCommunicator(m, p.communicatorConfig("NET", cfg.Net), t)
	}

	if cfg.Exp.Enabled() {
		t, err := transports(cfg.Exp.Port, cfg.Exp.Baud)
		if err != nil {
			return nil, fmt.Errorf("failed to create EXP transport: %w", err)
		}
		p.exp = NewExpCommunicator(m, p.communicatorConfig("EXP", cfg.Exp.PortConfig), t, cfg.Exp.Boards, p)
	}

	if p.net == nil && p.exp == nil {
		return nil, fmt.Errorf("no FAST processor ports configured")
	}
	return p, nil
}

func (p *Platform) communicatorConfig(processor string, pc config.PortConfig) CommunicatorConfig {
	cc := DefaultCommunicatorConfig(processor, pc.Port, pc.Baud)
	cc.Debug = pc.Debug
	if pc.MinFirmware != "" {
		cc.MinFirmware = pc.MinFirmware
	}
	if p.config.RetryDelay > 0 {
		cc.RetryDelay = p.config.RetryDelay
	}
	if p.config.SettleTime > 0 {
		cc.SettleTime = p.config.SettleTime
	}
	if p.config.ConfirmTimeout > 0 {
		cc.ConfirmTimeout = p.config.ConfirmTimeout
	}
	if p.config.ReadSize > 0 {
		cc.ReadSize = p.config.ReadSize
	}
	return cc
}

// Communicators returns the configured connections, NET first
func (p *Platform) Communicators() []*Communicator {
	var out []*Communicator
	if p.net != nil {
		out = append(out, p.net.Communicator)
	}
	if p.exp != nil {
		out = append(out, p.exp.Communicator)
	}
	return out
}

// Net returns the NET connection, or nil
func (p *Platform) Net() *NetCommunicator {
	return p.net
}

// Exp returns the EXP bus connection, or nil
func (p *Platform) Exp() *ExpCommunicator {
	return p.exp
}

// Connect connects and initialises each processor in turn, then starts them
func (p *Platform) Connect(ctx context.Context) error {
	for _, c := range p.Communicators() {
		if err := c.Connect(ctx); err != nil {
			return err
		}
		if err := c.Init(ctx); err != nil {
			return fmt.Errorf("%s init failed: %w", c.Processor(), err)
		}
	}

	for _, c := range p.Communicators() {
		c.Start()
	}

	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	p.log.Info("FAST platform started",
		zap.Int("expansion_boards", len(p.ExpansionBoards())),
		zap.Int("breakouts", len(p.BreakoutBoards())),
	)
	return nil
}

// Started reports whether Connect completed
func (p *Platform) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

// Stop resets the boards and closes every connection
func (p *Platform) Stop() error {
	comms := p.Communicators()

	p.mu.Lock()
	wasStarted := p.started
	p.started = false
	p.mu.Unlock()

	if wasStarted {
		for _, c := range comms {
			c.Stopping()
		}
		time.Sleep(stoppingGrace)
	}

	var err error
	for _, c := range comms {
		err = multierr.Append(err, c.Stop())
	}
	return err
}

// SoftReset turns off the outputs of every breakout
func (p *Platform) SoftReset(ctx context.Context) error {
	for _, board := range p.ExpansionBoards() {
		if err := board.SoftReset(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Platform) RegisterExpansionBoard(board *ExpansionBoard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expBoards = append(p.expBoards, board)
}

func (p *Platform) RegisterBreakoutBoard(breakout *BreakoutBoard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakouts = append(p.breakouts, breakout)
}

// ExpansionBoards returns every registered board in discovery order
func (p *Platform) ExpansionBoards() []*ExpansionBoard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*ExpansionBoard(nil), p.expBoards...)
}

// BreakoutBoards returns every registered breakout
func (p *Platform) BreakoutBoards() []*BreakoutBoard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*BreakoutBoard(nil), p.breakouts...)
}
