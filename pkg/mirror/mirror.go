// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mirror copies a chip's register bank into Modbus holding registers.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// RegisterWriter is the contract the mirror writes through
type RegisterWriter interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Source provides register bank snapshots
type Source interface {
	Registers() [spiadc.NumRegisters]uint16
}

// Config controls where and how often the bank is mirrored
type Config struct {
	UnitID   uint8
	Address  uint16 // first holding register
	Interval time.Duration
}

// Mirror pushes the register bank to a Modbus server whenever it changes
type Mirror struct {
	cfg    Config
	src    Source
	w      RegisterWriter
	logger *log.Logger

	last   [spiadc.NumRegisters]uint16
	synced bool

	writes   uint64
	failures uint64
}

// New creates a mirror. A nil logger discards diagnostics.
func New(cfg Config, src Source, w RegisterWriter, logger *log.Logger) (*Mirror, error) {
	if src == nil || w == nil {
		return nil, errors.New("mirror: source and writer required")
	}
	if int(cfg.Address)+spiadc.NumRegisters > 0x10000 {
		return nil, fmt.Errorf("mirror: address %d leaves no room for %d registers", cfg.Address, spiadc.NumRegisters)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Mirror{cfg: cfg, src: src, w: w, logger: logger}, nil
}

// SyncOnce writes the bank if it changed since the last successful write.
// Returns true if a write was issued. A failed write forces the next call to
// write again.
func (m *Mirror) SyncOnce() (bool, error) {
	regs := m.src.Registers()
	if m.synced && regs == m.last {
		return false, nil
	}

	if err := m.w.WriteRegisters(m.cfg.UnitID, m.cfg.Address, regs[:]); err != nil {
		m.synced = false
		m.failures++
		return true, fmt.Errorf("mirror: unit=%d addr=%d err=%w", m.cfg.UnitID, m.cfg.Address, err)
	}

	m.last = regs
	m.synced = true
	m.writes++
	return true, nil
}

// Run syncs on every tick until ctx is done. No overlap. No retries
// beyond the next tick.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SyncOnce(); err != nil {
				m.logger.Printf("%v", err)
			}
		}
	}
}

// Counts returns the number of successful and failed writes
func (m *Mirror) Counts() (writes, failures uint64) {
	return m.writes, m.failures
}
