// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simhost is a deterministic event substrate for spiadc chips.
//
// Host implements spiadc.Host on a virtual clock and also plays the SPI
// master: tests and the bridge drive pins, clock frames through Transfer and
// advance time explicitly. Callbacks raised while another callback is running
// are queued and delivered after it returns, so chip handlers always run to
// completion.
package simhost

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var (
	// ErrNoTransfer is returned by Transfer when the chip has not armed one
	ErrNoTransfer = errors.New("no transfer armed")
	// ErrFrameLength is returned by Transfer when MOSI is longer than the armed frame
	ErrFrameLength = errors.New("frame longer than armed transfer")
)

// Host is a simulated MCU running one chip.
// It is not safe for concurrent use; see Device.
type Host struct {
	logger *log.Logger

	now   time.Duration
	sched scheduler

	watchers map[spiadc.Pin][]spiadc.PinChangeFunc
	levels   map[spiadc.Pin]spiadc.Level
	analog   map[int]float64

	done    spiadc.SPIDoneFunc
	pending []byte

	queue   []func()
	running bool
}

// NewHost creates a host with both lines idle high and all analog inputs at 0.
// A nil logger discards diagnostics.
func NewHost(logger *log.Logger) *Host {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Host{
		logger:   logger,
		watchers: make(map[spiadc.Pin][]spiadc.PinChangeFunc),
		levels: map[spiadc.Pin]spiadc.Level{
			spiadc.PinCS:    spiadc.High,
			spiadc.PinReset: spiadc.High,
		},
		analog: make(map[int]float64),
	}
}

// dispatch runs fn now, or after the running callback returns
func (h *Host) dispatch(fn func()) {
	if h.running {
		h.queue = append(h.queue, fn)
		return
	}

	h.running = true
	fn()
	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		next()
	}
	h.running = false
}

// ============================================================
// spiadc.Host
// ============================================================

// PinWatch subscribes fn to both edges of pin
func (h *Host) PinWatch(pin spiadc.Pin, fn spiadc.PinChangeFunc) {
	h.watchers[pin] = append(h.watchers[pin], fn)
}

// PinRead returns the current level of pin
func (h *Host) PinRead(pin spiadc.Pin) spiadc.Level {
	level, ok := h.levels[pin]
	if !ok {
		return spiadc.High
	}
	return level
}

// SPIInit registers the completion callback
func (h *Host) SPIInit(done spiadc.SPIDoneFunc) {
	h.done = done
}

// SPIStart arms a transfer. The buffer is shifted out as it is when the
// master clocks it, not as it was when armed.
func (h *Host) SPIStart(tx []byte) {
	h.pending = tx
}

// SPIStop aborts the armed transfer; its completion reports zero bytes
func (h *Host) SPIStop() {
	if h.pending == nil {
		return
	}
	h.pending = nil
	h.dispatch(func() {
		if h.done != nil {
			h.done(nil, 0)
		}
	})
}

// TimerStart arms a one-shot timer on the virtual clock
func (h *Host) TimerStart(delay time.Duration, fn func()) {
	h.sched.add(h.now+delay, fn)
}

// AnalogRead returns the value last set for channel
func (h *Host) AnalogRead(channel int) float64 {
	return h.analog[channel]
}

// ============================================================
// Master side
// ============================================================

// SetPin drives a line; watchers run only on a level change
func (h *Host) SetPin(pin spiadc.Pin, level spiadc.Level) {
	if h.PinRead(pin) == level {
		return
	}
	h.levels[pin] = level
	h.logger.Printf("[%v] %s -> %s", h.now, pin, level)

	for _, fn := range h.watchers[pin] {
		h.dispatch(func() { fn(pin, level) })
	}
}

// Pending reports whether the chip has armed a transfer
func (h *Host) Pending() bool {
	return h.pending != nil
}

// PendingLength returns the size of the armed transfer, or 0
func (h *Host) PendingLength() int {
	return len(h.pending)
}

// Transfer clocks one full-duplex frame. mosi shorter than the armed frame is
// zero-padded. Returns the bytes the chip shifted out.
func (h *Host) Transfer(mosi []byte) ([]byte, error) {
	if h.pending == nil {
		return nil, ErrNoTransfer
	}
	if len(mosi) > len(h.pending) {
		return nil, fmt.Errorf("%w: %d bytes, expected %d", ErrFrameLength, len(mosi), len(h.pending))
	}

	miso := make([]byte, len(h.pending))
	copy(miso, h.pending)
	rx := make([]byte, len(h.pending))
	copy(rx, mosi)
	h.pending = nil

	h.dispatch(func() {
		if h.done != nil {
			h.done(rx, len(rx))
		}
	})
	return miso, nil
}

// SetAnalog sets the external input of channel
func (h *Host) SetAnalog(channel int, value float64) {
	h.analog[channel] = value
}

// Advance moves the virtual clock forward by d, firing due timers in order
func (h *Host) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d > math.MaxInt64-h.now {
		d = math.MaxInt64 - h.now
	}
	target := h.now + d
	for {
		t := h.sched.pop(target)
		if t == nil {
			break
		}
		h.now = t.wake
		h.logger.Printf("[%v] timer fired", h.now)
		h.dispatch(t.handler)
	}
	h.now = target
}

// Now returns the virtual time since power-on
func (h *Host) Now() time.Duration {
	return h.now
}

// Timers returns the number of armed timers
func (h *Host) Timers() int {
	return h.sched.len()
}

// NextTimer returns the delay until the earliest armed timer
func (h *Host) NextTimer() (time.Duration, bool) {
	wake, ok := h.sched.nextWake()
	if !ok {
		return 0, false
	}
	return wake - h.now, true
}
