// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package spiadc models the digital side of a register-addressed SPI ADC.
//
// A Chip decodes fixed-length SPI frames gated by chip-select, keeps a bank of
// 64 16-bit registers, checks and generates CRC-16/CCITT trailers, and models
// the DC/DC regulator warm-up delay that clears the "not ready" status bit.
// All I/O goes through the Host interface so the same Chip runs against the
// deterministic simulator in pkg/simhost or any other event substrate.
package spiadc

import "time"

// Register bank geometry
const (
	NumRegisters = 0x40
	MaxAddress   = NumRegisters - 1
)

// Register addresses
const (
	RegID      = 0x00 // Identity: channel count
	RegStatus  = 0x01 // Status bitfield
	RegControl = 0x31 // Regulator control word
)

// Status register bits
const (
	StatusNotReady uint16 = 0x0040 // Startup/security not ready
)

// Control register bits
const (
	ControlDCDCEnable uint16 = 0x0001
)

// WarmupDelay is the modeled DC/DC regulator enable latency.
const WarmupDelay = 200 * time.Millisecond

// Channel limits
const (
	MaxChannels     = 8
	DefaultChannels = 1
)

// Frame geometry
const (
	WordSize          = 3 // Bytes per word in the CRC variant
	SimpleFrameSize   = 9 // Fixed frame size in the simple variant
	SampleSize        = 3 // Bytes per packed analog sample
	SampleScale       = 1 << 23
	SimpleMaxChannels = (SimpleFrameSize - 2) / SampleSize
)

// Command words
const (
	CmdNull     uint16 = 0x0000
	AckOpcode   uint16 = 0x2000
	AckMask     uint16 = 0x1FFF
	RespUnknown uint16 = 0x0000
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Pin identifies a logic line watched by the chip.
type Pin int

// Pins used by the chip
const (
	PinCS Pin = iota
	PinReset
)

// String returns the line name as printed on the part.
func (p Pin) String() string {
	switch p {
	case PinCS:
		return "CS"
	case PinReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Level is a digital logic level.
type Level int

// Logic levels
const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}
