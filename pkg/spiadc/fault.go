// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import "fmt"

// FaultKind represents the non-fatal protocol faults the chip can observe
type FaultKind int

const (
	FaultCRCMismatch FaultKind = iota + 1
	FaultUnknownCommand
	FaultIllegalWrite
	FaultSpuriousCompletion
)

// String returns the fault kind name used in logs
func (k FaultKind) String() string {
	switch k {
	case FaultCRCMismatch:
		return "CRC_MISMATCH"
	case FaultUnknownCommand:
		return "UNKNOWN_COMMAND"
	case FaultIllegalWrite:
		return "ILLEGAL_WRITE"
	case FaultSpuriousCompletion:
		return "SPURIOUS_COMPLETION"
	default:
		return "UNKNOWN"
	}
}

// Sentinel faults for use with errors.Is
var (
	ErrCRCMismatch        = &Fault{Kind: FaultCRCMismatch}
	ErrUnknownCommand     = &Fault{Kind: FaultUnknownCommand}
	ErrIllegalWrite       = &Fault{Kind: FaultIllegalWrite}
	ErrSpuriousCompletion = &Fault{Kind: FaultSpuriousCompletion}
)

// Fault describes one dropped frame, rejected command or ignored write.
// None of these halt the chip; they are reported and the chip stays ready.
type Fault struct {
	Kind    FaultKind
	Command uint16
	Address uint8
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (f *Fault) Error() string {
	if f.Message == "" {
		return f.Kind.String()
	}
	return f.Message
}

// Is matches any fault of the same kind, so sentinels work with errors.Is
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok || f == nil || t == nil {
		return false
	}
	return t.Kind == f.Kind
}

func newCRCFault(cmd uint16, calculated, received uint16) *Fault {
	return &Fault{
		Kind:    FaultCRCMismatch,
		Command: cmd,
		Message: fmt.Sprintf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, received),
		Details: map[string]interface{}{"calculated": calculated, "received": received},
	}
}

func newUnknownCommandFault(cmd uint16) *Fault {
	return &Fault{
		Kind:    FaultUnknownCommand,
		Command: cmd,
		Message: fmt.Sprintf("Unknown command: 0x%04X", cmd),
	}
}

func newIllegalWriteFault(addr uint8, value uint16) *Fault {
	return &Fault{
		Kind:    FaultIllegalWrite,
		Address: addr,
		Message: fmt.Sprintf("Write to register 0x%02X ignored (value 0x%04X)", addr, value),
		Details: map[string]interface{}{"value": value},
	}
}
