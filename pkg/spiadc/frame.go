// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import (
	"encoding/binary"
	"fmt"
)

// FrameLength returns the size of one exchange for the given channel count.
// Request and response frames always have the same size.
func (v Variant) FrameLength(channels int) int {
	if v == VariantSimple {
		return SimpleFrameSize
	}
	return (2 + channels) * WordSize
}

// crcOffset returns where the CRC trailer starts in a frame of frameLen bytes
func (v Variant) crcOffset(frameLen int) int {
	return frameLen - WordSize
}

// valueOffset returns where a write command carries its 16-bit value
func (v Variant) valueOffset() int {
	if v == VariantSimple {
		return 2
	}
	return WordSize
}

// sampleOffset returns where channel i is packed, or -1 if it does not fit
func (v Variant) sampleOffset(i, frameLen int) int {
	var off int
	if v == VariantSimple {
		off = 2 + i*SampleSize
	} else {
		off = WordSize + i*WordSize
	}
	end := frameLen
	if v.HasCRC() {
		end = v.crcOffset(frameLen)
	}
	if off+SampleSize > end {
		return -1
	}
	return off
}

// EncodeSample converts a normalized analog value to 24-bit two's complement.
// The value is scaled by 2^23 and truncated toward zero; out-of-range inputs
// wrap instead of saturating.
func EncodeSample(v float64) uint32 {
	return uint32(int64(v*SampleScale)) & 0xFFFFFF
}

// DecodeSample sign-extends a packed 3-byte big-endian sample
func DecodeSample(b []byte) int32 {
	raw := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	return int32(raw<<8) >> 8
}

func putSample(dst []byte, v float64) {
	s := EncodeSample(v)
	dst[0] = byte(s >> 16)
	dst[1] = byte(s >> 8)
	dst[2] = byte(s)
}

// BuildFrame fills buf with a response frame: header word, one packed sample
// per channel and, for the CRC variant, the trailer over everything before it.
// len(buf) must equal FrameLength for the channel count.
func (v Variant) BuildFrame(buf []byte, header uint16, samples []float64) {
	for i := range buf {
		buf[i] = 0
	}
	binary.BigEndian.PutUint16(buf[0:2], header)

	for i, s := range samples {
		off := v.sampleOffset(i, len(buf))
		if off < 0 {
			break
		}
		putSample(buf[off:off+SampleSize], s)
	}

	if v.HasCRC() {
		off := v.crcOffset(len(buf))
		crc := CalculateCRC(buf[:off])
		binary.BigEndian.PutUint16(buf[off:off+2], crc)
	}
}

// EncodeCommand builds a master-side request frame carrying cmd and, for
// write commands, value in the first data word.
func EncodeCommand(v Variant, channels int, cmd, value uint16) []byte {
	buf := make([]byte, v.FrameLength(channels))
	binary.BigEndian.PutUint16(buf[0:2], cmd)

	off := v.valueOffset()
	binary.BigEndian.PutUint16(buf[off:off+2], value)

	if v.HasCRC() {
		crcOff := v.crcOffset(len(buf))
		crc := CalculateCRC(buf[:crcOff])
		binary.BigEndian.PutUint16(buf[crcOff:crcOff+2], crc)
	}
	return buf
}

// Response is a decoded response frame as seen by the master
type Response struct {
	Header   uint16
	Samples  []int32
	CRC      uint16
	CRCValid bool
}

// DecodeResponse parses a response frame received by the master
func DecodeResponse(v Variant, channels int, frame []byte) (*Response, error) {
	want := v.FrameLength(channels)
	if len(frame) != want {
		return nil, fmt.Errorf("invalid frame length: %d (expected %d)", len(frame), want)
	}

	r := &Response{
		Header:   binary.BigEndian.Uint16(frame[0:2]),
		CRCValid: true,
	}

	for i := 0; i < channels; i++ {
		off := v.sampleOffset(i, len(frame))
		if off < 0 {
			break
		}
		r.Samples = append(r.Samples, DecodeSample(frame[off:off+SampleSize]))
	}

	if v.HasCRC() {
		_, received, ok := VerifyCRC(frame, v.crcOffset(len(frame)))
		r.CRC = received
		r.CRCValid = ok
	}
	return r, nil
}

// commandValue extracts the write value carried by a request frame
func (v Variant) commandValue(frame []byte) uint16 {
	off := v.valueOffset()
	return binary.BigEndian.Uint16(frame[off : off+2])
}
