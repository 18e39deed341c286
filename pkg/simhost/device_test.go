// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simhost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

func newTestDevice(t *testing.T, channels int, v spiadc.Variant) *Device {
	t.Helper()
	d, err := NewDevice(spiadc.Config{Channels: channels, Variant: v}, nil)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	return d
}

func header(frame []byte) uint16 {
	return uint16(frame[0])<<8 | uint16(frame[1])
}

// Power-up, regulator enable and warm-up on a two channel part
func TestDevice_PowerUpScenario(t *testing.T) {
	d := newTestDevice(t, 2, spiadc.VariantCRC)
	v := spiadc.VariantCRC

	d.Select()

	// First exchange shifts out the power-up status
	miso, err := d.Exchange(spiadc.EncodeCommand(v, 2, spiadc.CmdNull, 0))
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if header(miso) != 0x0040 {
		t.Fatalf("expected status 0x0040, got 0x%04X", header(miso))
	}
	if len(miso) != 12 {
		t.Fatalf("expected 12-byte frame, got %d", len(miso))
	}

	// Enable DC/DC
	miso, err = d.Exchange(spiadc.EncodeCommand(v, 2, 0x7880, 0x0001))
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if header(miso) != 0x0040 {
		t.Errorf("null response should be status, got 0x%04X", header(miso))
	}

	// The write is acknowledged in the next frame
	miso, err = d.Exchange(spiadc.EncodeCommand(v, 2, spiadc.CmdNull, 0))
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if header(miso) != 0x3880 {
		t.Fatalf("expected ack 0x3880, got 0x%04X", header(miso))
	}

	// Not ready until 200ms have passed
	d.Advance(199 * time.Millisecond)
	if d.Registers()[spiadc.RegStatus] != 0x0040 {
		t.Fatalf("status cleared early")
	}
	d.Advance(time.Millisecond)

	d.Exchange(spiadc.EncodeCommand(v, 2, spiadc.CmdNull, 0))
	miso, _ = d.Exchange(spiadc.EncodeCommand(v, 2, spiadc.CmdNull, 0))
	if header(miso) != 0x0000 {
		t.Errorf("expected ready status 0x0000, got 0x%04X", header(miso))
	}

	if d.Stats().WarmupsCompleted != 1 {
		t.Errorf("expected one completed warm-up")
	}
}

func TestDevice_Transact(t *testing.T) {
	for _, v := range []spiadc.Variant{spiadc.VariantSimple, spiadc.VariantCRC} {
		t.Run(v.String(), func(t *testing.T) {
			d := newTestDevice(t, 1, v)

			r, err := d.Transact(v.WriteCommand(0x22), 0x4242)
			if err != nil {
				t.Fatalf("write failed: %v", err)
			}
			if r.Header != spiadc.AckWord(v.WriteCommand(0x22)) {
				t.Errorf("unexpected ack 0x%04X", r.Header)
			}

			r, err = d.Transact(v.ReadCommand(0x22), 0)
			if err != nil {
				t.Fatalf("read failed: %v", err)
			}
			if r.Header != 0x4242 {
				t.Errorf("expected 0x4242, got 0x%04X", r.Header)
			}
			if !r.CRCValid {
				t.Errorf("response CRC invalid")
			}
		})
	}
}

func TestDevice_ExchangeRequiresSelection(t *testing.T) {
	d := newTestDevice(t, 1, spiadc.VariantCRC)
	if _, err := d.Exchange(make([]byte, 9)); !errors.Is(err, ErrNoTransfer) {
		t.Errorf("expected ErrNoTransfer, got %v", err)
	}
}

func TestDevice_CorruptFrameNeedsReselect(t *testing.T) {
	d := newTestDevice(t, 1, spiadc.VariantCRC)
	d.Select()

	frame := spiadc.EncodeCommand(spiadc.VariantCRC, 1, spiadc.VariantCRC.WriteCommand(0x10), 0x1111)
	frame[7] ^= 0x80
	if _, err := d.Exchange(frame); err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if _, err := d.Exchange(make([]byte, 9)); !errors.Is(err, ErrNoTransfer) {
		t.Errorf("chip should wait for reselect after a dropped frame, got %v", err)
	}
	if !errors.Is(d.LastFault(), spiadc.ErrCRCMismatch) {
		t.Errorf("expected CRC fault, got %v", d.LastFault())
	}

	// Transact reselects on its own
	r, err := d.Transact(spiadc.VariantCRC.ReadCommand(spiadc.RegID), 0)
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if r.Header != 1 {
		t.Errorf("expected ID 1, got %d", r.Header)
	}
}

func TestDevice_PulseReset(t *testing.T) {
	d := newTestDevice(t, 3, spiadc.VariantCRC)
	d.Transact(spiadc.VariantCRC.WriteCommand(0x30), 0x0F0F)

	d.PulseReset()

	regs := d.Registers()
	if regs[0x30] != 0 || regs[spiadc.RegID] != 3 || regs[spiadc.RegStatus] != spiadc.StatusNotReady {
		t.Errorf("unexpected registers after reset: 0x30=0x%04X id=%d status=0x%04X",
			regs[0x30], regs[spiadc.RegID], regs[spiadc.RegStatus])
	}
}

func TestDevice_SimpleVariantChannelLimit(t *testing.T) {
	if _, err := NewDevice(spiadc.Config{Channels: spiadc.MaxChannels, Variant: spiadc.VariantSimple}, nil); err == nil {
		t.Errorf("expected error for %d channels on the simple variant", spiadc.MaxChannels)
	}
	d := newTestDevice(t, spiadc.SimpleMaxChannels, spiadc.VariantSimple)
	if id := d.Registers()[spiadc.RegID]; id != spiadc.SimpleMaxChannels {
		t.Errorf("expected ID %d, got %d", spiadc.SimpleMaxChannels, id)
	}
}

func TestDevice_ResetStats(t *testing.T) {
	d := newTestDevice(t, 1, spiadc.VariantCRC)
	if _, err := d.Transact(spiadc.VariantCRC.WriteCommand(0x30), 0x0F0F); err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if d.Stats().Writes != 1 {
		t.Fatalf("expected one write counted")
	}

	d.ResetStats()

	s := d.Stats()
	if s.Writes != 0 || s.Transfers != 0 || s.Selections != 0 {
		t.Errorf("counters not cleared %+v", s)
	}
	if d.Registers()[0x30] != 0x0F0F {
		t.Errorf("register bank changed by counter reset")
	}
}

func TestDevice_AnalogSamples(t *testing.T) {
	d := newTestDevice(t, 2, spiadc.VariantCRC)
	d.SetAnalog(0, 0.5)
	d.SetAnalog(1, -0.25)

	r, err := d.Transact(spiadc.CmdNull, 0)
	if err != nil {
		t.Fatalf("transact failed: %v", err)
	}
	if r.Samples[0] != 0x400000 || r.Samples[1] != -0x200000 {
		t.Errorf("unexpected samples %v", r.Samples)
	}
}

func TestDevice_RunClock(t *testing.T) {
	d := newTestDevice(t, 1, spiadc.VariantCRC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := d.RunClock(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if d.Now() <= 0 {
		t.Errorf("virtual clock did not advance")
	}
}
