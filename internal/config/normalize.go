// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"strings"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// Defaults
const (
	DefaultWarmupMs   = 200
	DefaultTickMs     = 1
	DefaultPath       = "/ws"
	DefaultBaud       = 115200
	DefaultIntervalMs = 1000
	DefaultTimeoutMs  = 1000
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	d := &cfg.Device
	if d.Channels == 0 {
		d.Channels = spiadc.DefaultChannels
	}
	d.Variant = strings.ToLower(strings.TrimSpace(d.Variant))
	if d.Variant == "" {
		d.Variant = spiadc.VariantCRC.String()
	}
	if d.WarmupMs == 0 {
		d.WarmupMs = DefaultWarmupMs
	}
	if d.TickMs == 0 {
		d.TickMs = DefaultTickMs
	}

	b := &cfg.Bridge
	if b.Path == "" {
		b.Path = DefaultPath
	}
	if b.Baud == 0 {
		b.Baud = DefaultBaud
	}

	if m := cfg.Mirror; m != nil {
		if m.IntervalMs == 0 {
			m.IntervalMs = DefaultIntervalMs
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = DefaultTimeoutMs
		}
	}
}
