// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"fmt"
	"time"
)

// Statistics tracks transaction counts and fault rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Selections       uint64
	Transfers        uint64
	Aborted          uint64
	NullCommands     uint64
	Reads            uint64
	Writes           uint64
	CRCErrors        uint64
	UnknownCommands  uint64
	IllegalWrites    uint64
	Resets           uint64
	WarmupsCompleted uint64

	// Rates (calculated)
	TransferRate float64 // transfers/sec
	FaultRate    float64 // faults/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts a decoded command and the fault it raised, if any
func (s *Statistics) Update(op Opcode, fault *Fault) {
	s.Transfers++
	s.LastUpdateTime = time.Now()

	if fault != nil {
		switch fault.Kind {
		case FaultCRCMismatch:
			s.CRCErrors++
			return
		case FaultUnknownCommand:
			s.UnknownCommands++
			return
		case FaultIllegalWrite:
			s.IllegalWrites++
		}
	}

	switch op {
	case OpNull:
		s.NullCommands++
	case OpRead:
		s.Reads++
	case OpWrite:
		s.Writes++
	}
}

// Faults returns the total number of faults seen
func (s *Statistics) Faults() uint64 {
	return s.CRCErrors + s.UnknownCommands + s.IllegalWrites
}

// CalculateRates calculates transfer and fault rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransferRate = float64(s.Transfers) / elapsed
		s.FaultRate = float64(s.Faults()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var crcPercent float64
	if s.Transfers > 0 {
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.Transfers)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Selections:      %8d\n", s.Selections)
	result += fmt.Sprintf("Transfers:       %8d\n", s.Transfers)
	result += fmt.Sprintf("  Null:          %8d\n", s.NullCommands)
	result += fmt.Sprintf("  Read:          %8d\n", s.Reads)
	result += fmt.Sprintf("  Write:         %8d\n", s.Writes)

	if s.Aborted > 0 {
		result += fmt.Sprintf("Aborted:         %8d\n", s.Aborted)
	}
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", s.UnknownCommands)
	}
	if s.IllegalWrites > 0 {
		result += fmt.Sprintf("Illegal Writes:  %8d\n", s.IllegalWrites)
	}

	result += fmt.Sprintf("Resets:          %8d\n", s.Resets)
	result += fmt.Sprintf("Warm-ups:        %8d\n", s.WarmupsCompleted)
	result += fmt.Sprintf("Transfer Rate:   %8.1f xfers/sec\n", s.TransferRate)
	result += fmt.Sprintf("Fault Rate:      %8.1f faults/sec\n", s.FaultRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
