// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"fmt"
	"strings"
)

// Variant selects the command encoding and frame layout of a device build
type Variant int

const (
	// VariantSimple is the 9-byte, CRC-less build: 2-bit opcode in bits
	// [14:13], 6-bit address in bits [5:0].
	VariantSimple Variant = iota
	// VariantCRC is the word-framed build with a CRC trailer: 3-bit opcode
	// in bits [15:13], address in bits [12:7].
	VariantCRC
)

// Opcode values per variant
const (
	simpleOpMask  uint16 = 0xE000
	simpleOpRead  uint16 = 0x6000
	simpleOpWrite uint16 = 0x2000
	simpleAddr    uint16 = 0x003F

	crcOpMask    uint16 = 0xE000
	crcOpRead    uint16 = 0xA000
	crcOpWrite   uint16 = 0x6000
	crcAddrMask  uint16 = 0x1F80
	crcAddrShift uint16 = 7
)

// String returns the variant name used in configuration files
func (v Variant) String() string {
	switch v {
	case VariantSimple:
		return "simple"
	case VariantCRC:
		return "crc"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses a variant name as written in configuration files
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return VariantSimple, nil
	case "crc", "":
		return VariantCRC, nil
	default:
		return 0, fmt.Errorf("unknown protocol variant %q (use simple or crc)", s)
	}
}

// HasCRC reports whether frames carry a CRC trailer
func (v Variant) HasCRC() bool {
	return v == VariantCRC
}

// Opcode is a decoded command class
type Opcode int

const (
	OpNull Opcode = iota
	OpRead
	OpWrite
	OpUnknown
)

// String returns the opcode mnemonic
func (o Opcode) String() string {
	switch o {
	case OpNull:
		return "NULL"
	case OpRead:
		return "RREG"
	case OpWrite:
		return "WREG"
	default:
		return "UNKNOWN"
	}
}

// Command is a decoded command word
type Command struct {
	Word    uint16
	Op      Opcode
	Address uint8
}

// Decode splits a command word into opcode and register address
func (v Variant) Decode(word uint16) Command {
	cmd := Command{Word: word, Op: OpUnknown}
	if word == CmdNull {
		cmd.Op = OpNull
		return cmd
	}

	switch v {
	case VariantSimple:
		cmd.Address = uint8(word & simpleAddr)
		switch word & simpleOpMask {
		case simpleOpRead:
			cmd.Op = OpRead
		case simpleOpWrite:
			cmd.Op = OpWrite
		}
	case VariantCRC:
		cmd.Address = uint8((word & crcAddrMask) >> crcAddrShift)
		switch word & crcOpMask {
		case crcOpRead:
			cmd.Op = OpRead
		case crcOpWrite:
			cmd.Op = OpWrite
		}
	}
	return cmd
}

// MaxChannels returns how many channels a frame of this variant can carry
func (v Variant) MaxChannels() int {
	if v == VariantSimple {
		return SimpleMaxChannels
	}
	return MaxChannels
}

// ReadCommand builds the command word that reads addr
func (v Variant) ReadCommand(addr uint8) uint16 {
	if v == VariantSimple {
		return simpleOpRead | uint16(addr)&simpleAddr
	}
	return crcOpRead | (uint16(addr)<<crcAddrShift)&crcAddrMask
}

// WriteCommand builds the command word that writes addr
func (v Variant) WriteCommand(addr uint8) uint16 {
	if v == VariantSimple {
		return simpleOpWrite | uint16(addr)&simpleAddr
	}
	return crcOpWrite | (uint16(addr)<<crcAddrShift)&crcAddrMask
}

// AckWord returns the response acknowledging a write command
func AckWord(word uint16) uint16 {
	return AckOpcode | (word & AckMask)
}
