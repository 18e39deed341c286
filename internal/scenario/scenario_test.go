// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scenario

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/spiadc/pkg/simhost"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

func newDevice(t *testing.T, v spiadc.Variant, channels int) *simhost.Device {
	t.Helper()
	dev, err := simhost.NewDevice(spiadc.Config{
		Channels:    channels,
		Variant:     v,
		WarmupDelay: 200 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	return dev
}

func TestPowerUp(t *testing.T) {
	for _, v := range []spiadc.Variant{spiadc.VariantSimple, spiadc.VariantCRC} {
		t.Run(v.String(), func(t *testing.T) {
			dev := newDevice(t, v, 2)
			var out bytes.Buffer

			if err := NewRunner(dev, &out).Run(PowerUp(v, 200*time.Millisecond)); err != nil {
				t.Fatalf("power-up failed: %v\n%s", err, out.String())
			}
			if !strings.Contains(out.String(), "Scenario complete") {
				t.Errorf("missing completion line in output:\n%s", out.String())
			}
			if regs := dev.Registers(); regs[spiadc.RegStatus]&spiadc.StatusNotReady != 0 {
				t.Errorf("status still not ready: 0x%04X", regs[spiadc.RegStatus])
			}
		})
	}
}

func TestPowerUp_TooEarly(t *testing.T) {
	dev := newDevice(t, spiadc.VariantCRC, 1)

	err := NewRunner(dev, nil).Run(PowerUp(spiadc.VariantCRC, 199*time.Millisecond))
	if !errors.Is(err, ErrExpectation) {
		t.Fatalf("expected expectation failure, got %v", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no steps", "name: empty\n"},
		{"empty step", "steps:\n  - comment: nothing\n"},
		{"two actions", "steps:\n  - select: true\n    null_cmd: true\n"},
		{"negative advance", "steps:\n  - advance_ms: -5\n"},
		{"bad yaml", "steps: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("expected parse error")
			}
		})
	}
}

func TestRun_WriteReadScript(t *testing.T) {
	sc, err := Parse([]byte(`
name: write-read
steps:
  - select: true
  - write: {addr: 0x10, value: 0x1234}
  - read: 0x10
  - null_cmd: true
  - expect_header: 0x1234
  - expect_register: {addr: 0x10, value: 0x1234}
  - deselect: true
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	for _, v := range []spiadc.Variant{spiadc.VariantSimple, spiadc.VariantCRC} {
		t.Run(v.String(), func(t *testing.T) {
			dev := newDevice(t, v, 1)
			r := NewRunner(dev, nil)
			if err := r.Run(sc); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if h, ok := r.Header(); !ok || h != 0x1234 {
				t.Errorf("expected last header 0x1234, got 0x%04X (%v)", h, ok)
			}
		})
	}
}

func TestRun_CorruptFrameDropsTransaction(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - select: true
  - raw: "00 00 00 00 00 00 00 00 00"
  - null_cmd: true
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	dev := newDevice(t, spiadc.VariantCRC, 1)
	err = NewRunner(dev, nil).Run(sc)
	if !errors.Is(err, simhost.ErrNoTransfer) {
		t.Fatalf("expected no transfer after corrupt frame, got %v", err)
	}
	if f := dev.LastFault(); f == nil || f.Kind != spiadc.FaultCRCMismatch {
		t.Errorf("expected CRC fault, got %v", f)
	}
}

func TestStep_Errors(t *testing.T) {
	dev := newDevice(t, spiadc.VariantCRC, 1)
	r := NewRunner(dev, nil)
	u16 := func(x uint16) *uint16 { return &x }

	if err := r.Step(Step{Header: u16(0)}); !errors.Is(err, ErrExpectation) {
		t.Errorf("expected expectation error before first frame, got %v", err)
	}
	if err := r.Step(Step{Analog: &AnalogStep{Channel: 1, Value: 0.5}}); err == nil {
		t.Errorf("expected analog channel range error")
	}
	if err := r.Step(Step{Raw: "zz"}); err == nil {
		t.Errorf("expected hex error")
	}
	if err := r.Step(Step{Register: &WriteStep{Addr: 0x00, Value: 0x0002}}); !errors.Is(err, ErrExpectation) {
		t.Errorf("expected ID register mismatch, got %v", err)
	}
	if err := r.Step(Step{}); err == nil {
		t.Errorf("expected error for empty step")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reset.yaml")
	script := `
name: reset
steps:
  - select: true
  - write: {addr: 0x20, value: 7}
  - reset: true
  - expect_register: {addr: 0x20, value: 0}
`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if sc.Name != "reset" || len(sc.Steps) != 4 {
		t.Fatalf("unexpected scenario %+v", sc)
	}

	dev := newDevice(t, spiadc.VariantSimple, 1)
	if err := NewRunner(dev, nil).Run(sc); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}
