// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

// WriteEffect is a side effect requested by a register write
type WriteEffect int

const (
	EffectNone WriteEffect = iota
	EffectArmWarmup
)

// RegisterBank is the chip's addressable configuration and status memory.
// It is not safe for concurrent use; the owning Chip serializes access.
type RegisterBank struct {
	regs     [NumRegisters]uint16
	writable [NumRegisters]bool
	channels int
}

// DefaultWritable returns the addresses that accept writes on a stock part.
// Identity and status are read-only, everything above them is writable.
func DefaultWritable() []uint8 {
	addrs := make([]uint8, 0, NumRegisters-2)
	for a := RegStatus + 1; a <= MaxAddress; a++ {
		addrs = append(addrs, uint8(a))
	}
	return addrs
}

// NewRegisterBank creates a bank at power-on defaults.
// A nil writable list selects DefaultWritable.
func NewRegisterBank(channels int, writable []uint8) *RegisterBank {
	if writable == nil {
		writable = DefaultWritable()
	}
	b := &RegisterBank{channels: channels}
	for _, a := range writable {
		if int(a) < NumRegisters {
			b.writable[a] = true
		}
	}
	b.Reset()
	return b
}

// Reset clears every slot, then restores identity and the not-ready bit
func (b *RegisterBank) Reset() {
	b.regs = [NumRegisters]uint16{}
	b.regs[RegID] = uint16(b.channels)
	b.regs[RegStatus] |= StatusNotReady
}

// Read returns the value at addr; unknown addresses read as zero
func (b *RegisterBank) Read(addr uint8) uint16 {
	if int(addr) >= NumRegisters {
		return 0
	}
	return b.regs[addr]
}

// Writable reports whether addr accepts writes
func (b *RegisterBank) Writable(addr uint8) bool {
	return int(addr) < NumRegisters && b.writable[addr]
}

// Write stores value at addr if the address is whitelisted.
// Writes elsewhere leave the bank untouched and return an ErrIllegalWrite fault.
// Setting the DC/DC enable bit on the control register while it was clear
// returns EffectArmWarmup.
func (b *RegisterBank) Write(addr uint8, value uint16) (WriteEffect, error) {
	if !b.Writable(addr) {
		return EffectNone, newIllegalWriteFault(addr, value)
	}

	prev := b.regs[addr]
	b.regs[addr] = value

	if addr == RegControl && prev&ControlDCDCEnable == 0 && value&ControlDCDCEnable != 0 {
		return EffectArmWarmup, nil
	}
	return EffectNone, nil
}

// Status returns the status register
func (b *RegisterBank) Status() uint16 {
	return b.regs[RegStatus]
}

// ClearStatus clears bits in the status register
func (b *RegisterBank) ClearStatus(bits uint16) {
	b.regs[RegStatus] &^= bits
}

// Channels returns the configured channel count
func (b *RegisterBank) Channels() int {
	return b.channels
}

// Snapshot returns a copy of every register
func (b *RegisterBank) Snapshot() [NumRegisters]uint16 {
	return b.regs
}
