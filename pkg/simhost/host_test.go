// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simhost

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// ============================================================
// Scheduler Tests
// ============================================================

func TestScheduler_Order(t *testing.T) {
	var s scheduler
	var fired []int

	s.add(30*time.Millisecond, func() { fired = append(fired, 3) })
	s.add(10*time.Millisecond, func() { fired = append(fired, 1) })
	s.add(20*time.Millisecond, func() { fired = append(fired, 2) })
	s.add(20*time.Millisecond, func() { fired = append(fired, 22) })

	if s.len() != 4 {
		t.Fatalf("expected 4 timers, got %d", s.len())
	}

	for tm := s.pop(time.Second); tm != nil; tm = s.pop(time.Second) {
		tm.handler()
	}

	expected := []int{1, 2, 22, 3}
	for i, v := range expected {
		if fired[i] != v {
			t.Fatalf("expected order %v, got %v", expected, fired)
		}
	}
}

func TestScheduler_PopNotDue(t *testing.T) {
	var s scheduler
	s.add(50*time.Millisecond, func() {})

	if s.pop(49*time.Millisecond) != nil {
		t.Errorf("timer popped before its wake time")
	}
	if s.pop(50*time.Millisecond) == nil {
		t.Errorf("timer not popped at its wake time")
	}
	if _, ok := s.nextWake(); ok {
		t.Errorf("scheduler should be empty")
	}
}

// ============================================================
// Host Tests
// ============================================================

func TestHost_AdvanceFiresInOrder(t *testing.T) {
	h := NewHost(nil)
	var at []time.Duration

	h.TimerStart(200*time.Millisecond, func() { at = append(at, h.Now()) })
	h.TimerStart(50*time.Millisecond, func() { at = append(at, h.Now()) })

	h.Advance(100 * time.Millisecond)
	if len(at) != 1 || at[0] != 50*time.Millisecond {
		t.Fatalf("expected one timer at 50ms, got %v", at)
	}
	if d, ok := h.NextTimer(); !ok || d != 100*time.Millisecond {
		t.Errorf("expected next timer in 100ms, got %v %v", d, ok)
	}

	h.Advance(100 * time.Millisecond)
	if len(at) != 2 || at[1] != 200*time.Millisecond {
		t.Fatalf("expected second timer at 200ms, got %v", at)
	}
	if h.Now() != 200*time.Millisecond {
		t.Errorf("clock should be at 200ms, got %v", h.Now())
	}
}

func TestHost_AdvanceSaturates(t *testing.T) {
	h := NewHost(nil)
	h.Advance(time.Second)
	h.Advance(math.MaxInt64)

	if h.Now() != math.MaxInt64 {
		t.Errorf("expected clock to stop at its maximum, got %v", h.Now())
	}
	h.Advance(time.Second)
	if h.Now() != math.MaxInt64 {
		t.Errorf("clock wrapped to %v", h.Now())
	}
}

func TestHost_SetPinEdgesOnly(t *testing.T) {
	h := NewHost(nil)
	calls := 0
	h.PinWatch(spiadc.PinCS, func(spiadc.Pin, spiadc.Level) { calls++ })

	h.SetPin(spiadc.PinCS, spiadc.High) // already high
	h.SetPin(spiadc.PinCS, spiadc.Low)
	h.SetPin(spiadc.PinCS, spiadc.Low)
	h.SetPin(spiadc.PinCS, spiadc.High)

	if calls != 2 {
		t.Errorf("expected 2 edge callbacks, got %d", calls)
	}
}

func TestHost_StopDeferredUntilHandlerReturns(t *testing.T) {
	h := NewHost(nil)
	var events []string

	h.SPIInit(func(rx []byte, count int) {
		events = append(events, "done")
	})
	h.PinWatch(spiadc.PinCS, func(_ spiadc.Pin, level spiadc.Level) {
		if level == spiadc.Low {
			h.SPIStart(make([]byte, 4))
			return
		}
		h.SPIStop()
		events = append(events, "handler-end")
	})

	h.SetPin(spiadc.PinCS, spiadc.Low)
	h.SetPin(spiadc.PinCS, spiadc.High)

	if len(events) != 2 || events[0] != "handler-end" || events[1] != "done" {
		t.Errorf("completion re-entered the pin handler: %v", events)
	}
}

func TestHost_TransferErrors(t *testing.T) {
	h := NewHost(nil)
	if _, err := h.Transfer([]byte{0}); !errors.Is(err, ErrNoTransfer) {
		t.Errorf("expected ErrNoTransfer, got %v", err)
	}

	h.SPIInit(func([]byte, int) {})
	h.SPIStart(make([]byte, 3))
	if _, err := h.Transfer(make([]byte, 4)); !errors.Is(err, ErrFrameLength) {
		t.Errorf("expected ErrFrameLength, got %v", err)
	}
	if !h.Pending() {
		t.Errorf("rejected transfer should stay armed")
	}
}

func TestHost_TransferPadsMOSI(t *testing.T) {
	h := NewHost(nil)
	var got []byte
	h.SPIInit(func(rx []byte, count int) { got = rx[:count] })
	h.SPIStart([]byte{0xAA, 0xBB, 0xCC})

	miso, err := h.Transfer([]byte{0x01})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0] != 0x01 || got[1] != 0 || got[2] != 0 {
		t.Errorf("expected zero-padded MOSI, got % X", got)
	}
	if miso[0] != 0xAA || miso[2] != 0xCC {
		t.Errorf("unexpected MISO % X", miso)
	}
}
