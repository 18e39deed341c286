// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"fmt"
	"io"
	"log"
	"time"
)

// State is the transaction controller state
type State int

// Transaction states
const (
	StateIdle     State = iota // Chip not selected, or frame dropped
	StateArming                // Selected, frame built, transfer requested
	StateActive                // Transfer owned by the host
	StateComplete              // Completion callback running
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArming:
		return "ARMING"
	case StateActive:
		return "ACTIVE"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// ResetActive is the asserted level of the RESET line
const ResetActive = Low

// Config is the immutable build configuration of one chip
type Config struct {
	Channels    int
	Variant     Variant
	WarmupDelay time.Duration
	Writable    []uint8 // nil selects DefaultWritable
}

// Chip is one simulated ADC instance.
//
// All methods and host callbacks must be called from a single goroutine at a
// time; the host is responsible for delivering events serially.
type Chip struct {
	cfg      Config
	host     Host
	logger   *log.Logger
	bank     *RegisterBank
	warmup   *Warmup
	stats    *Statistics
	warmups  int // Warm-ups completed before the last counter reset
	state    State
	frameLen int
	tx       []byte
	rx       []byte

	response    uint16
	hasResponse bool
	stopping    bool
	lastFault   *Fault

	// OnFault is called after a fault has been logged and counted
	OnFault func(*Fault)
}

// New creates a chip at power-on defaults and binds it to host.
// A nil logger discards diagnostics.
func New(cfg Config, host Host, logger *log.Logger) (*Chip, error) {
	if host == nil {
		return nil, fmt.Errorf("spiadc: host required")
	}
	if cfg.Channels == 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.Channels < 1 || cfg.Channels > MaxChannels {
		return nil, fmt.Errorf("spiadc: channel count %d out of range (1-%d)", cfg.Channels, MaxChannels)
	}
	if cfg.Variant != VariantSimple && cfg.Variant != VariantCRC {
		return nil, fmt.Errorf("spiadc: unsupported variant %v", cfg.Variant)
	}
	if cfg.Channels > cfg.Variant.MaxChannels() {
		return nil, fmt.Errorf("spiadc: %s frames carry at most %d channels, got %d",
			cfg.Variant, cfg.Variant.MaxChannels(), cfg.Channels)
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = WarmupDelay
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	c := &Chip{
		cfg:      cfg,
		host:     host,
		logger:   logger,
		bank:     NewRegisterBank(cfg.Channels, cfg.Writable),
		stats:    NewStatistics(),
		frameLen: cfg.Variant.FrameLength(cfg.Channels),
	}
	c.tx = make([]byte, c.frameLen)
	c.rx = make([]byte, c.frameLen)
	c.warmup = NewWarmup(c.bank, host, cfg.WarmupDelay, logger)

	host.PinWatch(PinCS, c.csChanged)
	host.PinWatch(PinReset, c.resetChanged)
	host.SPIInit(c.spiDone)

	c.buildFrame()

	logger.Printf("SPI chip initialized: %d channel(s), %s variant, %d-byte frames",
		cfg.Channels, cfg.Variant, c.frameLen)
	return c, nil
}

// csChanged handles both edges of chip-select
func (c *Chip) csChanged(pin Pin, level Level) {
	if pin != PinCS {
		return
	}

	if level == Low {
		c.logger.Printf("SPI chip selected")
		c.stats.Selections++
		c.stopping = false
		c.arm()
		return
	}

	c.logger.Printf("SPI chip deselected")
	c.stopping = c.state == StateActive
	c.state = StateIdle
	c.host.SPIStop()
}

// resetChanged re-initializes the register bank when RESET is asserted
func (c *Chip) resetChanged(pin Pin, level Level) {
	if pin != PinReset || level != ResetActive {
		return
	}
	c.logger.Printf("Reset asserted")
	c.Reset()
}

// arm rebuilds the outgoing frame and requests the next transfer
func (c *Chip) arm() {
	c.state = StateArming
	c.buildFrame()
	c.host.SPIStart(c.tx)
	if c.state == StateArming {
		c.state = StateActive
	}
}

// spiDone decodes one completed transfer
func (c *Chip) spiDone(rx []byte, count int) {
	if count == 0 {
		// Nothing was received. After SPIStop this is the expected abort,
		// otherwise it is recorded but handled the same way.
		expected := c.stopping || c.state == StateIdle
		c.stopping = false
		c.state = StateIdle
		c.stats.Aborted++
		if !expected {
			c.reportFault(&Fault{Kind: FaultSpuriousCompletion, Message: "Empty transfer completion while selected"})
		}
		return
	}

	c.state = StateComplete

	if count > len(rx) {
		count = len(rx)
	}
	for i := range c.rx {
		c.rx[i] = 0
	}
	copy(c.rx, rx[:count])

	if fault := c.handleFrame(c.rx); fault != nil && fault.Kind == FaultCRCMismatch {
		// Frame dropped: keep the previous response and wait for a new selection
		c.state = StateIdle
		return
	}

	if c.host.PinRead(PinCS) == Low {
		c.arm()
		return
	}
	c.state = StateIdle
}

// handleFrame validates and dispatches one received frame.
// On success the outgoing frame is rebuilt with the command's response.
func (c *Chip) handleFrame(frame []byte) *Fault {
	v := c.cfg.Variant
	word := uint16(frame[0])<<8 | uint16(frame[1])

	if v.HasCRC() {
		calculated, received, ok := VerifyCRC(frame, v.crcOffset(len(frame)))
		if !ok {
			fault := newCRCFault(word, calculated, received)
			c.stats.Update(OpUnknown, fault)
			c.reportFault(fault)
			return fault
		}
	}

	cmd := v.Decode(word)
	c.logger.Printf("Command: 0x%04X (%s)", word, FormatCommand(v, word))

	var fault *Fault
	var response uint16

	switch cmd.Op {
	case OpNull:
		response = c.bank.Status()

	case OpRead:
		response = c.bank.Read(cmd.Address)

	case OpWrite:
		value := v.commandValue(frame)
		effect, err := c.bank.Write(cmd.Address, value)
		if err != nil {
			fault = err.(*Fault)
			fault.Command = word
		}
		if effect == EffectArmWarmup {
			c.warmup.Arm()
		}
		response = AckWord(word)

	default:
		fault = newUnknownCommandFault(word)
		response = RespUnknown
	}

	c.stats.Update(cmd.Op, fault)
	if fault != nil {
		c.reportFault(fault)
	}

	c.response = response
	c.hasResponse = true
	c.buildFrame()
	return fault
}

// buildFrame refreshes the outgoing frame from the bank and analog inputs
func (c *Chip) buildFrame() {
	header := c.bank.Status()
	if c.hasResponse {
		header = c.response
	}

	samples := make([]float64, c.cfg.Channels)
	for i := range samples {
		samples[i] = c.host.AnalogRead(i)
	}
	c.cfg.Variant.BuildFrame(c.tx, header, samples)
}

func (c *Chip) reportFault(f *Fault) {
	c.lastFault = f
	c.logger.Printf("%s: %s", f.Kind, f.Error())
	if c.OnFault != nil {
		c.OnFault(f)
	}
}

// Reset restores the register bank to power-on defaults.
// A pending warm-up is not cancelled.
func (c *Chip) Reset() {
	c.bank.Reset()
	c.hasResponse = false
	c.stats.Resets++
}

// Registers returns a copy of the register bank
func (c *Chip) Registers() [NumRegisters]uint16 {
	return c.bank.Snapshot()
}

// ReadRegister reads one register without going through SPI
func (c *Chip) ReadRegister(addr uint8) uint16 {
	return c.bank.Read(addr)
}

// TxFrame returns a copy of the frame the chip will shift out next
func (c *Chip) TxFrame() []byte {
	out := make([]byte, len(c.tx))
	copy(out, c.tx)
	return out
}

// FrameLength returns the fixed exchange size
func (c *Chip) FrameLength() int {
	return c.frameLen
}

// Config returns the chip configuration
func (c *Chip) Config() Config {
	return c.cfg
}

// State returns the transaction controller state
func (c *Chip) State() State {
	return c.state
}

// LastFault returns the most recent fault, or nil
func (c *Chip) LastFault() *Fault {
	return c.lastFault
}

// WarmupPending reports whether the regulator enable delay is running
func (c *Chip) WarmupPending() bool {
	return c.warmup.Pending()
}

// Statistics returns a snapshot of the transaction counters
func (c *Chip) Statistics() Statistics {
	s := *c.stats
	s.WarmupsCompleted = uint64(c.warmup.Fired() - c.warmups)
	s.CalculateRates()
	return s
}

// ResetStatistics zeroes the transaction counters. Registers and the
// protocol state are untouched.
func (c *Chip) ResetStatistics() {
	c.stats.Reset()
	c.warmups = c.warmup.Fired()
}
