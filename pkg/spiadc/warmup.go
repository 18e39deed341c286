// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"log"
	"time"
)

// Warmup models the DC/DC regulator enable latency.
// Once armed it always runs to completion and clears StatusNotReady.
type Warmup struct {
	bank    *RegisterBank
	host    Host
	delay   time.Duration
	logger  *log.Logger
	pending bool
	fired   int
}

// NewWarmup creates an idle warm-up timer bound to bank
func NewWarmup(bank *RegisterBank, host Host, delay time.Duration, logger *log.Logger) *Warmup {
	return &Warmup{
		bank:   bank,
		host:   host,
		delay:  delay,
		logger: logger,
	}
}

// Arm schedules the one-shot completion. It is a no-op while already pending.
// Returns true if a timer was started.
func (w *Warmup) Arm() bool {
	if w.pending {
		return false
	}
	w.pending = true
	w.logger.Printf("Starting to enable DCDC (%v)", w.delay)
	w.host.TimerStart(w.delay, w.fire)
	return true
}

func (w *Warmup) fire() {
	w.pending = false
	w.fired++
	w.bank.ClearStatus(StatusNotReady)
	w.logger.Printf("DCDC enabled, status 0x%04X", w.bank.Status())
}

// Pending reports whether a completion is outstanding
func (w *Warmup) Pending() bool {
	return w.pending
}

// Fired returns how many times the warm-up has completed
func (w *Warmup) Fired() int {
	return w.fired
}
