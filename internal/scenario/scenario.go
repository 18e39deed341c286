// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package scenario runs scripted master-side sequences against a simulated
// device. Scripts are YAML lists of steps, each naming exactly one action.
package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/spiadc/pkg/simhost"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// ErrExpectation is returned when an expect step does not match
var ErrExpectation = errors.New("expectation failed")

// Scenario is a named list of steps
type Scenario struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted action. Exactly one field must be set.
type Step struct {
	Select    bool        `yaml:"select,omitempty"`
	Deselect  bool        `yaml:"deselect,omitempty"`
	Reset     bool        `yaml:"reset,omitempty"`
	Analog    *AnalogStep `yaml:"analog,omitempty"`
	AdvanceMs int         `yaml:"advance_ms,omitempty"`
	Null      bool        `yaml:"null_cmd,omitempty"` // "null" is a YAML keyword
	Read      *uint8      `yaml:"read,omitempty"`
	Write     *WriteStep  `yaml:"write,omitempty"`
	Raw       string      `yaml:"raw,omitempty"` // hex, spaces allowed
	Header    *uint16     `yaml:"expect_header,omitempty"`
	Register  *WriteStep  `yaml:"expect_register,omitempty"`
	Comment   string      `yaml:"comment,omitempty"`
}

// AnalogStep sets one channel's input
type AnalogStep struct {
	Channel int     `yaml:"channel"`
	Value   float64 `yaml:"value"`
}

// WriteStep is an address/value pair
type WriteStep struct {
	Addr  uint8  `yaml:"addr"`
	Value uint16 `yaml:"value"`
}

// action returns the name of the single action a step performs
func (s Step) action() (string, error) {
	var names []string
	if s.Select {
		names = append(names, "select")
	}
	if s.Deselect {
		names = append(names, "deselect")
	}
	if s.Reset {
		names = append(names, "reset")
	}
	if s.Analog != nil {
		names = append(names, "analog")
	}
	if s.AdvanceMs != 0 {
		names = append(names, "advance_ms")
	}
	if s.Null {
		names = append(names, "null_cmd")
	}
	if s.Read != nil {
		names = append(names, "read")
	}
	if s.Write != nil {
		names = append(names, "write")
	}
	if s.Raw != "" {
		names = append(names, "raw")
	}
	if s.Header != nil {
		names = append(names, "expect_header")
	}
	if s.Register != nil {
		names = append(names, "expect_register")
	}

	switch len(names) {
	case 0:
		return "", fmt.Errorf("step has no action")
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("step has several actions: %s", strings.Join(names, ", "))
	}
}

// Parse decodes and checks a YAML scenario
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	for i, s := range sc.Steps {
		if _, err := s.action(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if s.AdvanceMs < 0 {
			return nil, fmt.Errorf("step %d: advance_ms must not be negative", i+1)
		}
	}
	return &sc, nil
}

// Load reads a scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// PowerUp returns the reference start-up sequence for a variant: the part
// reports not-ready, acknowledges the regulator enable, then becomes ready
// once the warm-up delay has elapsed.
func PowerUp(v spiadc.Variant, warmup time.Duration) *Scenario {
	u16 := func(x uint16) *uint16 { return &x }
	id := uint8(spiadc.RegID)
	ack := spiadc.AckWord(v.WriteCommand(spiadc.RegControl))

	return &Scenario{
		Name: "power-up",
		Steps: []Step{
			{Select: true},
			{Null: true, Comment: "first frame carries the status register"},
			{Header: u16(spiadc.StatusNotReady)},
			{Write: &WriteStep{Addr: spiadc.RegControl, Value: spiadc.ControlDCDCEnable}},
			{Null: true},
			{Header: u16(ack)},
			{AdvanceMs: int(warmup / time.Millisecond)},
			{Null: true, Comment: "response built before the delay elapsed"},
			{Header: u16(spiadc.StatusNotReady)},
			{Null: true},
			{Header: u16(0)},
			{Read: &id},
			{Deselect: true},
		},
	}
}

// Runner executes steps against one device
type Runner struct {
	dev *simhost.Device
	out io.Writer

	header   uint16
	received bool
}

// NewRunner creates a runner printing each exchange to out. A nil out
// discards output.
func NewRunner(dev *simhost.Device, out io.Writer) *Runner {
	if out == nil {
		out = io.Discard
	}
	return &Runner{dev: dev, out: out}
}

// Run executes every step of sc, stopping at the first failure
func (r *Runner) Run(sc *Scenario) error {
	if sc.Name != "" {
		fmt.Fprintf(r.out, "Scenario: %s\n", sc.Name)
	}
	for i, s := range sc.Steps {
		if err := r.Step(s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	fmt.Fprintf(r.out, "Scenario complete: %d steps\n", len(sc.Steps))
	return nil
}

// Step executes a single step
func (r *Runner) Step(s Step) error {
	action, err := s.action()
	if err != nil {
		return err
	}

	cfg := r.dev.Config()
	v := cfg.Variant

	if s.Comment != "" {
		fmt.Fprintf(r.out, "%s # %s\n", r.stamp(), s.Comment)
	}

	switch action {
	case "select":
		r.dev.Select()
		fmt.Fprintf(r.out, "%s CS low\n", r.stamp())
	case "deselect":
		r.dev.Deselect()
		fmt.Fprintf(r.out, "%s CS high\n", r.stamp())
	case "reset":
		r.dev.PulseReset()
		fmt.Fprintf(r.out, "%s RESET pulse\n", r.stamp())
	case "analog":
		if s.Analog.Channel < 0 || s.Analog.Channel >= cfg.Channels {
			return fmt.Errorf("analog channel %d out of range", s.Analog.Channel)
		}
		r.dev.SetAnalog(s.Analog.Channel, s.Analog.Value)
		fmt.Fprintf(r.out, "%s CH%d = %+.6f\n", r.stamp(), s.Analog.Channel, s.Analog.Value)
	case "advance_ms":
		r.dev.Advance(time.Duration(s.AdvanceMs) * time.Millisecond)
		fmt.Fprintf(r.out, "%s advanced %dms\n", r.stamp(), s.AdvanceMs)
	case "null_cmd":
		return r.exchange(spiadc.EncodeCommand(v, cfg.Channels, spiadc.CmdNull, 0))
	case "read":
		if int(*s.Read) > spiadc.MaxAddress {
			return fmt.Errorf("read address 0x%02X out of range", *s.Read)
		}
		return r.exchange(spiadc.EncodeCommand(v, cfg.Channels, v.ReadCommand(*s.Read), 0))
	case "write":
		if int(s.Write.Addr) > spiadc.MaxAddress {
			return fmt.Errorf("write address 0x%02X out of range", s.Write.Addr)
		}
		return r.exchange(spiadc.EncodeCommand(v, cfg.Channels, v.WriteCommand(s.Write.Addr), s.Write.Value))
	case "raw":
		frame, err := hex.DecodeString(strings.ReplaceAll(s.Raw, " ", ""))
		if err != nil {
			return fmt.Errorf("raw frame: %w", err)
		}
		return r.exchange(frame)
	case "expect_header":
		if !r.received {
			return fmt.Errorf("%w: no frame received yet", ErrExpectation)
		}
		if r.header != *s.Header {
			return fmt.Errorf("%w: header 0x%04X, expected 0x%04X", ErrExpectation, r.header, *s.Header)
		}
		fmt.Fprintf(r.out, "%s header 0x%04X ok\n", r.stamp(), r.header)
	case "expect_register":
		if int(s.Register.Addr) > spiadc.MaxAddress {
			return fmt.Errorf("register 0x%02X out of range", s.Register.Addr)
		}
		regs := r.dev.Registers()
		got := regs[s.Register.Addr]
		if got != s.Register.Value {
			return fmt.Errorf("%w: %s is 0x%04X, expected 0x%04X", ErrExpectation,
				spiadc.FormatRegisterName(s.Register.Addr), got, s.Register.Value)
		}
		fmt.Fprintf(r.out, "%s %s 0x%04X ok\n", r.stamp(), spiadc.FormatRegisterName(s.Register.Addr), got)
	}
	return nil
}

// Header returns the header of the last received frame
func (r *Runner) Header() (uint16, bool) {
	return r.header, r.received
}

func (r *Runner) exchange(mosi []byte) error {
	cfg := r.dev.Config()
	word := uint16(0)
	if len(mosi) >= 2 {
		word = uint16(mosi[0])<<8 | uint16(mosi[1])
	}

	miso, err := r.dev.Exchange(mosi)
	if err != nil {
		return err
	}
	resp, err := spiadc.DecodeResponse(cfg.Variant, cfg.Channels, miso)
	if err != nil {
		return err
	}
	r.header = resp.Header
	r.received = true

	fmt.Fprintf(r.out, "%s %s\n", r.stamp(), spiadc.FormatCommand(cfg.Variant, word))
	fmt.Fprintf(r.out, "  MOSI: %s\n", spiadc.FormatFrame(cfg.Variant, mosi))
	fmt.Fprintf(r.out, "  MISO: %s\n", spiadc.FormatFrame(cfg.Variant, miso))
	fmt.Fprint(r.out, spiadc.FormatResponse(resp))
	return nil
}

func (r *Runner) stamp() string {
	return fmt.Sprintf("[%9.3fms]", float64(r.dev.Now())/float64(time.Millisecond))
}
