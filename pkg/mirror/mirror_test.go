// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/spiadc/pkg/simhost"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// ---- fake register writer ----

type fakeWriter struct {
	mu     sync.Mutex
	writes []writeCall
	fail   error
}

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

func (f *fakeWriter) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	cp := make([]uint16, len(regs))
	copy(cp, regs)
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: cp})
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func newDevice(t *testing.T) *simhost.Device {
	t.Helper()
	d, err := simhost.NewDevice(spiadc.Config{Channels: 2, Variant: spiadc.VariantCRC}, nil)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	return d
}

// ---- tests ----

func TestMirror_WritesOnlyOnChange(t *testing.T) {
	dev := newDevice(t)
	fake := &fakeWriter{}
	m, err := New(Config{UnitID: 7, Address: 100}, dev, fake, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	wrote, err := m.SyncOnce()
	if err != nil || !wrote {
		t.Fatalf("first sync should write, got %v %v", wrote, err)
	}
	w := fake.writes[0]
	if w.unitID != 7 || w.addr != 100 || len(w.regs) != spiadc.NumRegisters {
		t.Errorf("unexpected write %+v", w)
	}
	if w.regs[spiadc.RegID] != 2 || w.regs[spiadc.RegStatus] != spiadc.StatusNotReady {
		t.Errorf("snapshot content wrong: id=%d status=0x%04X", w.regs[spiadc.RegID], w.regs[spiadc.RegStatus])
	}

	if wrote, _ := m.SyncOnce(); wrote {
		t.Errorf("unchanged bank should not be rewritten")
	}

	dev.Transact(spiadc.VariantCRC.WriteCommand(0x20), 0x1234)
	if wrote, _ := m.SyncOnce(); !wrote {
		t.Fatalf("changed bank should be written")
	}
	if fake.writes[1].regs[0x20] != 0x1234 {
		t.Errorf("expected 0x1234 at 0x20, got 0x%04X", fake.writes[1].regs[0x20])
	}
}

func TestMirror_FailureForcesRewrite(t *testing.T) {
	dev := newDevice(t)
	fake := &fakeWriter{}
	m, _ := New(Config{}, dev, fake, nil)

	m.SyncOnce()

	dev.Transact(spiadc.VariantCRC.WriteCommand(0x21), 1)
	fake.fail = errors.New("connection reset")
	if _, err := m.SyncOnce(); err == nil {
		t.Fatalf("expected error")
	}

	fake.fail = nil
	if wrote, err := m.SyncOnce(); !wrote || err != nil {
		t.Fatalf("expected rewrite after failure, got %v %v", wrote, err)
	}
	if writes, failures := m.Counts(); writes != 2 || failures != 1 {
		t.Errorf("expected 2 writes and 1 failure, got %d/%d", writes, failures)
	}
}

func TestMirror_RejectsBadConfig(t *testing.T) {
	dev := newDevice(t)
	if _, err := New(Config{Address: 0xFFF0}, dev, &fakeWriter{}, nil); err == nil {
		t.Errorf("expected address range error")
	}
	if _, err := New(Config{}, nil, &fakeWriter{}, nil); err == nil {
		t.Errorf("expected error for nil source")
	}
}

func TestMirror_Run(t *testing.T) {
	dev := newDevice(t)
	fake := &fakeWriter{}
	m, _ := New(Config{Interval: 5 * time.Millisecond}, dev, fake, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for fake.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if fake.count() != 1 {
		t.Errorf("expected exactly one write for an idle bank, got %d", fake.count())
	}
}

func TestPackRegisters(t *testing.T) {
	got := packRegisters([]uint16{0x0040, 0x3880})
	want := []byte{0x00, 0x40, 0x38, 0x80}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected % X, got % X", want, got)
		}
	}
}
