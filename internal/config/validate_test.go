// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"too many channels", Config{Device: DeviceConfig{Channels: 9}}},
		{"bad variant", Config{Device: DeviceConfig{Variant: "spi3"}}},
		{"simple with too many channels", Config{Device: DeviceConfig{Channels: 3, Variant: "simple"}}},
		{"negative warmup", Config{Device: DeviceConfig{WarmupMs: -1}}},
		{"writable out of range", Config{Device: DeviceConfig{Writable: []uint8{0x40}}}},
		{"writable id", Config{Device: DeviceConfig{Writable: []uint8{0x00}}}},
		{"writable status", Config{Device: DeviceConfig{Writable: []uint8{0x01}}}},
		{"writable duplicate", Config{Device: DeviceConfig{Writable: []uint8{0x31, 0x31}}}},
		{"too many analog values", Config{Device: DeviceConfig{Channels: 2, Analog: []float64{0, 0, 0}}}},
		{"relative path", Config{Bridge: BridgeConfig{Path: "ws"}}},
		{"mirror without endpoint", Config{Mirror: &MirrorConfig{}}},
		{"mirror address overflow", Config{Mirror: &MirrorConfig{Endpoint: "x:502", Address: 0xFFE0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(&tt.cfg); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := Config{Device: DeviceConfig{Variant: " Simple "}}
	if err := Validate(&cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Variant != " Simple " || cfg.Device.Channels != 0 {
		t.Errorf("Validate mutated config: %+v", cfg.Device)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.Device.Channels != 1 || cfg.Device.Variant != "crc" || cfg.Device.WarmupMs != 200 {
		t.Errorf("unexpected device defaults %+v", cfg.Device)
	}
	if cfg.Bridge.Path != "/ws" || cfg.Bridge.Baud != 115200 {
		t.Errorf("unexpected bridge defaults %+v", cfg.Bridge)
	}
	if cfg.Mirror != nil {
		t.Errorf("mirror should stay disabled")
	}
	if cfg.Tick() != time.Millisecond {
		t.Errorf("expected 1ms tick, got %v", cfg.Tick())
	}
}

func TestParse_Full(t *testing.T) {
	data := []byte(`
device:
  channels: 2
  variant: Simple
  warmup_ms: 50
  writable: [0x10, 0x31]
  analog: [0.5, -0.25]
bridge:
  listen: ":8080"
  username: admin
mirror:
  endpoint: "127.0.0.1:1502"
  unit_id: 3
  address: 100
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	chip, err := cfg.ChipConfig()
	if err != nil {
		t.Fatalf("chip config failed: %v", err)
	}
	if chip.Channels != 2 || chip.Variant != spiadc.VariantSimple || chip.WarmupDelay != 50*time.Millisecond {
		t.Errorf("unexpected chip config %+v", chip)
	}
	if len(chip.Writable) != 2 || chip.Writable[1] != 0x31 {
		t.Errorf("unexpected writable list %v", chip.Writable)
	}
	if cfg.Device.Analog[1] != -0.25 {
		t.Errorf("unexpected analog values %v", cfg.Device.Analog)
	}
	if cfg.Bridge.Listen != ":8080" || cfg.Bridge.Path != "/ws" {
		t.Errorf("unexpected bridge config %+v", cfg.Bridge)
	}
	if cfg.Mirror == nil || cfg.Mirror.UnitID != 3 || cfg.Mirror.IntervalMs != DefaultIntervalMs {
		t.Errorf("unexpected mirror config %+v", cfg.Mirror)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spiadc.yaml")
	if err := os.WriteFile(path, []byte("device:\n  channels: 4\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Device.Channels != 4 {
		t.Errorf("expected 4 channels, got %d", cfg.Device.Channels)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
	if _, err := Parse([]byte("device: [1, 2")); err == nil {
		t.Errorf("expected YAML error")
	}
}
