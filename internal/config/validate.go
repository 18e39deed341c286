// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	d := cfg.Device
	if d.Channels < 0 || d.Channels > spiadc.MaxChannels {
		return fmt.Errorf("device: channels must be 1-%d, got %d", spiadc.MaxChannels, d.Channels)
	}

	variant, err := spiadc.ParseVariant(d.Variant)
	if err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if d.Channels > variant.MaxChannels() {
		return fmt.Errorf("device: %s variant carries at most %d channels, got %d",
			variant, variant.MaxChannels(), d.Channels)
	}

	if d.WarmupMs < 0 {
		return fmt.Errorf("device: warmup_ms must not be negative")
	}
	if d.TickMs < 0 {
		return fmt.Errorf("device: tick_ms must not be negative")
	}

	seen := make(map[uint8]bool)
	for _, a := range d.Writable {
		if int(a) >= spiadc.NumRegisters {
			return fmt.Errorf("device: writable register 0x%02X out of range", a)
		}
		if a == spiadc.RegID || a == spiadc.RegStatus {
			return fmt.Errorf("device: register 0x%02X is read-only", a)
		}
		if seen[a] {
			return fmt.Errorf("device: writable register 0x%02X listed twice", a)
		}
		seen[a] = true
	}

	channels := d.Channels
	if channels == 0 {
		channels = spiadc.DefaultChannels
	}
	if len(d.Analog) > channels {
		return fmt.Errorf("device: %d analog values for %d channels", len(d.Analog), channels)
	}

	// ------------------------------------------------------------
	// BRIDGE
	// ------------------------------------------------------------

	b := cfg.Bridge
	if b.Path != "" && !strings.HasPrefix(b.Path, "/") {
		return fmt.Errorf("bridge: path %q must start with /", b.Path)
	}
	if b.Baud < 0 {
		return fmt.Errorf("bridge: baud must not be negative")
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("mirror: endpoint required")
		}
		if int(m.Address)+spiadc.NumRegisters > 0x10000 {
			return fmt.Errorf("mirror: address %d leaves no room for %d registers", m.Address, spiadc.NumRegisters)
		}
		if m.IntervalMs < 0 || m.TimeoutMs < 0 {
			return fmt.Errorf("mirror: interval_ms and timeout_ms must not be negative")
		}
	}

	return nil
}
