package fast

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastbus-service/internal/config"
)

const (
	maxLEDHz         = 31.25
	softResetSettle  = 30 * time.Millisecond
	softResetPayload = "000000"
)

// ExpansionBoard is one board on the EXP bus
type ExpansionBoard struct {
	Name    string
	Address string
	Model   string

	communicator *ExpCommunicator
	config       config.ExpBoardConfig
	features     BoardFeatures
	log          *zap.Logger

	mu          sync.RWMutex
	firmware    string
	verified    bool
	started     bool
	ledFadeRate int
	ledHz       float64
	breakouts   map[int]*BreakoutBoard
}

// BoardInfo is a snapshot of a board for the API
type BoardInfo struct {
	Name      string         `json:"name"`
	Address   string         `json:"address"`
	Model     string         `json:"model"`
	Firmware  string         `json:"firmware,omitempty"`
	Verified  bool           `json:"verified"`
	Started   bool           `json:"started"`
	FadeRate  int            `json:"led_fade_rate"`
	Breakouts []BreakoutInfo `json:"breakouts"`
}

// BreakoutInfo is a snapshot of a breakout for the API
type BreakoutInfo struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Model   string `json:"model"`
}

// NewExpansionBoard creates a board and its breakouts. The built-in
// breakouts take the first ports; configured breakouts are placed on the
// port they declare.
func NewExpansionBoard(name string, comm *ExpCommunicator, address string, cfg config.ExpBoardConfig) (*ExpansionBoard, error) {
	model := NormalizeModel(cfg.Model)

	features, ok := LookupBoardFeatures(model)
	if !ok {
		return nil, comm.configError(CodeUnknownBoardModel,
			fmt.Sprintf("unknown expansion board model %q for board %q", cfg.Model, name), nil)
	}

	b := &ExpansionBoard{
		Name:         name,
		Address:      address,
		Model:        model,
		communicator: comm,
		config:       cfg,
		features:     features,
		log:          comm.log.With(zap.String("board", name), zap.String("address", address)),
		ledFadeRate:  cfg.LEDFadeTime,
		breakouts:    make(map[int]*BreakoutBoard),
	}

	for idx, brkModel := range features.LocalBreakouts {
		if err := b.addBreakout(idx, brkModel); err != nil {
			return nil, err
		}
	}

	for _, brk := range cfg.Breakouts {
		port, err := strconv.Atoi(brk.Port)
		if err != nil || port < 1 || port > features.BreakoutPorts {
			return nil, comm.configError(CodeBadBreakoutPort,
				fmt.Sprintf("breakout port %q is not valid for %s, which has %d breakout ports",
					brk.Port, b, features.BreakoutPorts), nil)
		}
		if err := b.addBreakout(port, brk.Model); err != nil {
			return nil, err
		}
	}

	return b, nil
}

func (b *ExpansionBoard) addBreakout(index int, model string) error {
	model = NormalizeModel(model)

	features, ok := LookupBreakoutFeatures(model)
	if !ok {
		return b.communicator.configError(CodeUnknownBoardModel,
			fmt.Sprintf("unknown breakout model %q on %s", model, b), nil)
	}
	if _, dup := b.breakouts[index]; dup {
		return b.communicator.configError(CodeBadBreakoutPort,
			fmt.Sprintf("breakout port %d on %s is used twice", index, b), nil)
	}

	b.breakouts[index] = &BreakoutBoard{
		Index:    index,
		Address:  fmt.Sprintf("%s%d", b.Address, index),
		Model:    model,
		Board:    b,
		features: features,
	}
	return nil
}

func (b *ExpansionBoard) String() string {
	return fmt.Sprintf("EXP %q (%s @ %s)", b.Name, b.Model, b.Address)
}

// Breakouts returns the breakouts ordered by index
func (b *ExpansionBoard) Breakouts() []*BreakoutBoard {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*BreakoutBoard, 0, len(b.breakouts))
	for _, brk := range b.breakouts {
		out = append(out, brk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Firmware returns the firmware reported during discovery
func (b *ExpansionBoard) Firmware() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.firmware
}

// VerifyHardware checks the identity a board reported against its
// configuration. address is the bus address the ID query went to; only its
// board part (the first two characters) is compared. A board running
// firmware older than its model needs shuts the machine down.
func (b *ExpansionBoard) VerifyHardware(address, productID, firmware string) error {
	if len(address) < 2 || !strings.EqualFold(address[:2], b.Address) {
		return fmt.Errorf("%w: %s answered an ID query sent to %q", ErrHardwareMismatch, b, address)
	}

	b.mu.Lock()
	b.firmware = firmware
	b.mu.Unlock()

	if NormalizeModel(productID) != b.Model {
		return fmt.Errorf("%w: %s identified as %s", ErrHardwareMismatch, b, productID)
	}

	if err := CheckFirmware(b.Model, firmware, b.features.MinFirmware); err != nil {
		b.log.Error("Firmware too old", zap.Error(err))
		b.communicator.machine.stop(err.Error())
		return nil
	}

	b.mu.Lock()
	b.verified = true
	b.mu.Unlock()

	b.log.Info(fmt.Sprintf("Expansion Board Model: %s, Firmware: %s", b.Model, firmware))
	return nil
}

// Reset resets the board and waits for it to acknowledge, then applies the
// configured LED fade time.
func (b *ExpansionBoard) Reset(ctx context.Context) error {
	if err := b.communicator.SendQuery(ctx, fmt.Sprintf("BR@%s:", b.Address), "BR:P"); err != nil {
		return err
	}

	if b.config.LEDFadeTime > 0 {
		b.SetLEDFade(b.config.LEDFadeTime)
	}
	return nil
}

// SetLEDFade sets the hardware fade time for every LED on the board
func (b *ExpansionBoard) SetLEDFade(rate int) {
	b.mu.Lock()
	b.ledFadeRate = rate
	b.mu.Unlock()

	b.communicator.SetLEDFadeRate(b.Address, rate)
}

// Start is called once the platform is running
func (b *ExpansionBoard) Start() {
	hz := b.config.LEDHz
	if hz <= 0 || hz > maxLEDHz {
		hz = maxLEDHz
	}

	b.mu.Lock()
	b.started = true
	b.ledHz = hz
	b.mu.Unlock()

	b.log.Debug("Board started", zap.Float64("led_hz", hz))
}

// Stopping resets the board so outputs are left off
func (b *ExpansionBoard) Stopping() {
	b.mu.Lock()
	b.started = false
	b.mu.Unlock()

	b.communicator.SendBlind(fmt.Sprintf("BR@%s:", b.Address))
}

// SoftReset resets every breakout on the board
func (b *ExpansionBoard) SoftReset(ctx context.Context) error {
	for _, brk := range b.Breakouts() {
		if err := brk.SoftReset(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Info returns a snapshot of the board
func (b *ExpansionBoard) Info() BoardInfo {
	breakouts := b.Breakouts()

	b.mu.RLock()
	defer b.mu.RUnlock()

	info := BoardInfo{
		Name:      b.Name,
		Address:   b.Address,
		Model:     b.Model,
		Firmware:  b.firmware,
		Verified:  b.verified,
		Started:   b.started,
		FadeRate:  b.ledFadeRate,
		Breakouts: make([]BreakoutInfo, 0, len(breakouts)),
	}
	for _, brk := range breakouts {
		info.Breakouts = append(info.Breakouts, BreakoutInfo{Index: brk.Index, Address: brk.Address, Model: brk.Model})
	}
	return info
}

// BreakoutBoard is a secondary addressing tier on an expansion board
type BreakoutBoard struct {
	Index   int
	Address string
	Model   string
	Board   *ExpansionBoard

	features BreakoutFeatures
}

func (brk *BreakoutBoard) String() string {
	return fmt.Sprintf("Breakout %s (%s)", brk.Address, brk.Model)
}

// SoftReset turns off every output on the breakout
func (brk *BreakoutBoard) SoftReset(ctx context.Context) error {
	brk.Board.communicator.SendBlind(fmt.Sprintf("RA@%s:%s", brk.Address, softResetPayload))

	select {
	case <-time.After(softResetSettle):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
