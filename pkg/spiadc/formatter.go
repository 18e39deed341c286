// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"fmt"
	"strings"
)

// FormatRegisterName returns the human-readable name for a register address
func FormatRegisterName(addr uint8) string {
	switch addr {
	case RegID:
		return "ID"
	case RegStatus:
		return "STATUS"
	case RegControl:
		return "CONTROL"
	default:
		if int(addr) >= NumRegisters {
			return "INVALID"
		}
		return fmt.Sprintf("REG_%02X", addr)
	}
}

// FormatCommand returns a mnemonic for a command word, e.g. "WREG 0x31 (CONTROL)"
func FormatCommand(v Variant, word uint16) string {
	cmd := v.Decode(word)
	switch cmd.Op {
	case OpNull:
		return "NULL"
	case OpRead, OpWrite:
		return fmt.Sprintf("%s 0x%02X (%s)", cmd.Op, cmd.Address, FormatRegisterName(cmd.Address))
	default:
		return "UNKNOWN"
	}
}

// FormatStatus lists the set bits of the status register
func FormatStatus(status uint16) string {
	if status&StatusNotReady != 0 {
		return "NOT_READY"
	}
	return "READY"
}

// FormatFrame returns a hex dump of a frame split into words
func FormatFrame(v Variant, frame []byte) string {
	var b strings.Builder
	step := WordSize
	if v == VariantSimple {
		step = 2
	}
	for i, x := range frame {
		if i > 0 && i%step == 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%02X", x)
	}
	return b.String()
}

// FormatResponse formats a decoded response frame
func FormatResponse(r *Response) string {
	result := fmt.Sprintf("  Header: 0x%04X\n", r.Header)
	for i, s := range r.Samples {
		result += fmt.Sprintf("  CH%d: %8d (%+.6f)\n", i, s, float64(s)/SampleScale)
	}
	if !r.CRCValid {
		result += fmt.Sprintf("  CRC: 0x%04X (INVALID)\n", r.CRC)
	}
	return result
}

// FormatRegisters returns a table of every register with a non-zero value,
// plus the named registers
func FormatRegisters(regs [NumRegisters]uint16) string {
	var b strings.Builder
	for addr, val := range regs {
		a := uint8(addr)
		if val == 0 && a != RegID && a != RegStatus && a != RegControl {
			continue
		}
		fmt.Fprintf(&b, "  0x%02X %-8s 0x%04X\n", a, FormatRegisterName(a), val)
	}
	return b.String()
}
