package fast

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"fastbus-service/internal/config"
	"fastbus-service/internal/protocol"
)

const maxLEDFadeRate = 8191

// BoardRegistry is told about every board the EXP bus creates
type BoardRegistry interface {
	RegisterExpansionBoard(board *ExpansionBoard)
	RegisterBreakoutBoard(breakout *BreakoutBoard)
}

// ExpCommunicator coordinates the expansion bus: it discovers the configured
// boards one at a time, keeps the address registry and tracks which board
// the bus is currently addressed to.
type ExpCommunicator struct {
	*Communicator

	registry BoardRegistry
	boards   []config.ExpBoardConfig

	mu              sync.Mutex
	boardsByAddress map[string]*ExpansionBoard
	boardOrder      []*ExpansionBoard
	discovering     *ExpansionBoard
	queriedAddress  string
	activeBoard     string
}

// NewExpCommunicator creates the EXP bus connection. registry may be nil.
func NewExpCommunicator(m *Machine, cfg CommunicatorConfig, transport protocol.Transport,
	boards []config.ExpBoardConfig, registry BoardRegistry) *ExpCommunicator {

	if cfg.MinFirmware == "" || cfg.MinFirmware == "0.00" {
		cfg.MinFirmware = "0.7"
	}
	ec := &ExpCommunicator{
		registry:        registry,
		boards:          boards,
		boardsByAddress: make(map[string]*ExpansionBoard),
	}
	ec.Communicator = newCommunicator(m, cfg, transport, ec)
	return ec
}

// IgnoredMessages drops the "no board selected" failure echoed after a
// buffer clear.
func (ec *ExpCommunicator) IgnoredMessages() []string {
	return []string{"XX:F"}
}

func (ec *ExpCommunicator) MessageHandlers() map[string]MessageHandler {
	return map[string]MessageHandler{
		"ID:": ec.processID,
		"BR:": ec.processBR,
	}
}

// OnInit discovers the configured boards
func (ec *ExpCommunicator) OnInit(ctx context.Context) error {
	return ec.QueryExpBoards(ctx)
}

func (ec *ExpCommunicator) OnStart() {
	for _, board := range ec.Boards() {
		board.Start()
	}
}

func (ec *ExpCommunicator) OnStopping() {
	for _, board := range ec.Boards() {
		board.Stopping()
	}
}

// processID handles "ID:EXP <product> <firmware>" for the board being
// discovered.
func (ec *ExpCommunicator) processID(body string) error {
	id, err := parseIdentity(body)
	if err != nil {
		return err
	}
	if id.Processor != "EXP" {
		return fmt.Errorf("%w: expected EXP bus, got %q", ErrBadIdentity, id.Processor)
	}

	if err := CheckFirmware("EXP", id.Firmware, ec.config.MinFirmware); err != nil {
		return err
	}

	ec.publishIdentity(id)

	ec.mu.Lock()
	board, address := ec.discovering, ec.queriedAddress
	ec.mu.Unlock()

	if board == nil {
		ec.log.Warn(fmt.Sprintf("Received ID response with no board being discovered: %s", body))
		return nil
	}
	return board.VerifyHardware(address, id.Model, id.Firmware)
}

func (ec *ExpCommunicator) processBR(body string) error {
	ec.log.Debug(fmt.Sprintf("Board reset response: %s", body))
	return nil
}

// RegisterBoard creates the board record for cfg and adds it to the address
// registry. It does not talk to the board.
func (ec *ExpCommunicator) RegisterBoard(cfg config.ExpBoardConfig) (*ExpansionBoard, error) {
	cfg.Model = NormalizeModel(cfg.Model)

	address, ok := LookupBoardAddress(cfg.Model, cfg.ID)
	if !ok {
		return nil, ec.configError(CodeUnknownAddress,
			fmt.Sprintf("no bus address for board %q (%s id %s)", cfg.Name, cfg.Model, cfg.ID), nil)
	}

	ec.mu.Lock()
	if existing, dup := ec.boardsByAddress[address]; dup {
		ec.mu.Unlock()
		return nil, ec.configError(CodeDuplicateAddress,
			fmt.Sprintf("board %q resolves to address %s already used by %q", cfg.Name, address, existing.Name),
			ErrDuplicateBoard)
	}
	ec.mu.Unlock()

	board, err := NewExpansionBoard(cfg.Name, ec, address, cfg)
	if err != nil {
		return nil, err
	}

	ec.mu.Lock()
	ec.boardsByAddress[address] = board
	ec.boardOrder = append(ec.boardOrder, board)
	ec.mu.Unlock()

	if ec.registry != nil {
		ec.registry.RegisterExpansionBoard(board)
		for _, brk := range board.Breakouts() {
			ec.registry.RegisterBreakoutBoard(brk)
		}
	}
	return board, nil
}

// QueryExpBoards registers, identifies and resets each configured board in
// declaration order. Each board is fully identified before the next one is
// queried.
func (ec *ExpCommunicator) QueryExpBoards(ctx context.Context) error {
	defer func() {
		ec.mu.Lock()
		ec.discovering = nil
		ec.queriedAddress = ""
		ec.mu.Unlock()
	}()

	for _, cfg := range ec.boards {
		board, err := ec.RegisterBoard(cfg)
		if err != nil {
			return err
		}

		ec.mu.Lock()
		ec.discovering = board
		ec.queriedAddress = board.Address
		ec.mu.Unlock()

		ec.log.Info(fmt.Sprintf("Querying %s", board))

		if err := ec.SendQuery(ctx, fmt.Sprintf("ID@%s:", board.Address), "ID:"); err != nil {
			return fmt.Errorf("failed to identify %s: %w", board, err)
		}

		if err := board.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset %s: %w", board, err)
		}
	}
	return nil
}

// GetAddressFromNumberString resolves a device number string to a board
// address, breakout index and device identifier. See ResolveAddress.
func (ec *ExpCommunicator) GetAddressFromNumberString(number string) (string, int, string, error) {
	addr, breakout, device, err := ResolveAddress(number)
	if err != nil {
		ec.log.Error("Invalid expansion board number", zap.String("number", number), zap.Error(err))
		return "", 0, "", err
	}
	return addr, breakout, device, nil
}

// SetActiveBoard addresses the bus to board_address unless it already is
func (ec *ExpCommunicator) SetActiveBoard(address string) {
	address = strings.ToUpper(address)

	ec.mu.Lock()
	if ec.activeBoard == address {
		ec.mu.Unlock()
		return
	}
	ec.activeBoard = address
	ec.mu.Unlock()

	ec.SendBlind("EA:" + address)
}

// ActiveBoard returns the address the bus was last switched to
func (ec *ExpCommunicator) ActiveBoard() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.activeBoard
}

// SetLEDFadeRate sets the LED fade time of a board, in milliseconds. Values
// outside 0..8191 are clamped.
func (ec *ExpCommunicator) SetLEDFadeRate(address string, rate int) {
	switch {
	case rate > maxLEDFadeRate:
		ec.log.Warn(fmt.Sprintf("FAST LED fade rate of %dms is too high. Setting to %dms", rate, maxLEDFadeRate))
		rate = maxLEDFadeRate
	case rate < 0:
		ec.log.Warn(fmt.Sprintf("FAST LED fade rate of %dms is too low. Setting to 0ms", rate))
		rate = 0
	}

	ec.SendBlind(fmt.Sprintf("RF@%s:%04X", address, rate))
}

// Boards returns the registered boards in discovery order
func (ec *ExpCommunicator) Boards() []*ExpansionBoard {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]*ExpansionBoard(nil), ec.boardOrder...)
}

// Board returns the board registered at address
func (ec *ExpCommunicator) Board(address string) (*ExpansionBoard, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	b, ok := ec.boardsByAddress[strings.ToUpper(address)]
	return b, ok
}

func (ec *ExpCommunicator) configError(code int, msg string, err error) error {
	ec.log.Error(msg, zap.Int("code", code))
	return &ConfigError{Code: code, Message: msg, Err: err}
}
