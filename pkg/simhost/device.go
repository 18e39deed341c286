// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simhost

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// Device is a chip bound to its own simulated host.
// All methods are safe for concurrent use; events are serialized by one mutex.
type Device struct {
	mu   sync.Mutex
	host *Host
	chip *spiadc.Chip
}

// NewDevice creates a powered-on chip with idle lines
func NewDevice(cfg spiadc.Config, logger *log.Logger) (*Device, error) {
	host := NewHost(logger)
	chip, err := spiadc.New(cfg, host, logger)
	if err != nil {
		return nil, err
	}
	return &Device{host: host, chip: chip}, nil
}

// Config returns the chip configuration
func (d *Device) Config() spiadc.Config {
	return d.chip.Config()
}

// SetPin drives CS or RESET
func (d *Device) SetPin(pin spiadc.Pin, level spiadc.Level) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host.SetPin(pin, level)
}

// Select drives CS low
func (d *Device) Select() {
	d.SetPin(spiadc.PinCS, spiadc.Low)
}

// Deselect drives CS high
func (d *Device) Deselect() {
	d.SetPin(spiadc.PinCS, spiadc.High)
}

// Selected reports whether CS is low
func (d *Device) Selected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host.PinRead(spiadc.PinCS) == spiadc.Low
}

// PulseReset asserts then releases RESET
func (d *Device) PulseReset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host.SetPin(spiadc.PinReset, spiadc.ResetActive)
	d.host.SetPin(spiadc.PinReset, spiadc.High)
}

// Exchange clocks one raw frame and returns what the chip shifted out
func (d *Device) Exchange(mosi []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host.Transfer(mosi)
}

// Transact sends one command and returns the response that carries its
// result. The command frame is followed by a null frame whose MISO holds the
// response; the chip is selected, or reselected if it dropped the
// transaction, as needed.
func (d *Device) Transact(cmd, value uint16) (*spiadc.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.chip.Config()
	if !d.host.Pending() {
		d.host.SetPin(spiadc.PinCS, spiadc.High)
		d.host.SetPin(spiadc.PinCS, spiadc.Low)
	}

	if _, err := d.host.Transfer(spiadc.EncodeCommand(cfg.Variant, cfg.Channels, cmd, value)); err != nil {
		return nil, fmt.Errorf("command frame: %w", err)
	}
	if !d.host.Pending() {
		// Command frame was dropped
		if f := d.chip.LastFault(); f != nil {
			return nil, fmt.Errorf("command 0x%04X dropped: %w", cmd, f)
		}
		return nil, fmt.Errorf("command 0x%04X dropped: %w", cmd, ErrNoTransfer)
	}

	miso, err := d.host.Transfer(spiadc.EncodeCommand(cfg.Variant, cfg.Channels, spiadc.CmdNull, 0))
	if err != nil {
		return nil, fmt.Errorf("response frame: %w", err)
	}
	return spiadc.DecodeResponse(cfg.Variant, cfg.Channels, miso)
}

// SetAnalog sets the external input of channel
func (d *Device) SetAnalog(channel int, value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host.SetAnalog(channel, value)
}

// Advance moves virtual time forward, firing due timers
func (d *Device) Advance(dt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host.Advance(dt)
}

// Now returns the virtual time since power-on
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host.Now()
}

// Registers returns a copy of the register bank
func (d *Device) Registers() [spiadc.NumRegisters]uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chip.Registers()
}

// Stats returns a snapshot of the chip counters
func (d *Device) Stats() spiadc.Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chip.Statistics()
}

// ResetStats zeroes the chip counters
func (d *Device) ResetStats() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chip.ResetStatistics()
}

// LastFault returns the chip's most recent fault
func (d *Device) LastFault() *spiadc.Fault {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chip.LastFault()
}

// TxFrame returns the frame the chip will shift out next
func (d *Device) TxFrame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chip.TxFrame()
}

// RunClock advances virtual time along with wall time until ctx is done
func (d *Device) RunClock(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			d.Advance(now.Sub(last))
			last = now
		}
	}
}
