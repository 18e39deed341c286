// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// EncodeFrame creates a complete wire-formatted frame for m.
// Returns the bytes ready for transmission, including framing and byte stuffing.
func EncodeFrame(m *Message) ([]byte, error) {
	payload, err := EncodeMessage(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}

	crc := spiadc.CalculateCRC(payload)
	data := make([]byte, 0, len(payload)+CRCSize)
	data = append(data, payload...)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes replaces START, END and ESC with ESC + (byte XOR EscXor)
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}
	return result
}

// Decoder reassembles messages from a byte stream
type Decoder struct {
	state      int
	buffer     []byte
	escapeNext bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed message, or nil if the frame is incomplete.
// Returns an error if the frame is malformed; the decoder is then reset.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	if b == StartByte {
		d.Reset()
		d.state = stateBody
		return nil, nil
	}

	if d.state == stateIdle {
		return nil, nil
	}

	if b == EndByte {
		if d.escapeNext {
			d.Reset()
			return nil, fmt.Errorf("incomplete escape sequence at end of frame")
		}
		return d.finish()
	}

	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	if len(d.buffer) >= MaxFrameSize {
		d.Reset()
		return nil, fmt.Errorf("buffer overflow: frame exceeds %d bytes", MaxFrameSize)
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}

// finish validates the CRC trailer and parses the payload
func (d *Decoder) finish() (*Message, error) {
	defer d.Reset()

	if len(d.buffer) <= CRCSize {
		return nil, fmt.Errorf("frame too short: %d bytes", len(d.buffer))
	}

	offset := len(d.buffer) - CRCSize
	calculated, received, ok := spiadc.VerifyCRC(d.buffer, offset)
	if !ok {
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calculated, received)
	}

	payload := make([]byte, offset)
	copy(payload, d.buffer[:offset])
	return ParseMessage(payload)
}

// Decode feeds every byte of data and returns the completed messages.
// Decode errors are collected and do not stop decoding.
func (d *Decoder) Decode(data []byte) ([]*Message, []error) {
	var msgs []*Message
	var errs []error
	for _, b := range data {
		m, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m != nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, errs
}
