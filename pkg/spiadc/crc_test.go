// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import "testing"

func TestCalculateCRC_Empty(t *testing.T) {
	crc := CalculateCRC([]byte{})
	if crc != crcInitial {
		t.Errorf("CRC of empty data should be initial value, got 0x%04X", crc)
	}
}

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0x29B1, // Standard CRC-16-CCITT check value
		},
		{
			name:     "ASCII 'A'",
			data:     []byte("A"),
			expected: 0xB915,
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0xE1F0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC_Deterministic(t *testing.T) {
	data := []byte{0x78, 0x80, 0x00, 0x00, 0x01, 0x00}
	crc1 := CalculateCRC(data)
	crc2 := CalculateCRC(data)
	if crc1 != crc2 {
		t.Errorf("CRC should be deterministic: 0x%04X != 0x%04X", crc1, crc2)
	}
}

func TestVerifyCRC(t *testing.T) {
	frame := []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x00}
	crc := CalculateCRC(frame[:3])
	frame[3] = byte(crc >> 8)
	frame[4] = byte(crc)

	calculated, received, ok := VerifyCRC(frame, 3)
	if !ok {
		t.Fatalf("expected valid trailer, calculated 0x%04X received 0x%04X", calculated, received)
	}

	if calculated != crc || received != crc {
		t.Errorf("expected 0x%04X both ways, calculated 0x%04X received 0x%04X", crc, calculated, received)
	}

	corrupt := []struct {
		name  string
		apply func(f []byte)
	}{
		{"high byte flipped", func(f []byte) { f[3] ^= 0x01 }},
		{"low byte flipped", func(f []byte) { f[4] ^= 0x01 }},
		{"bytes swapped", func(f []byte) { f[3], f[4] = f[4], f[3] }},
		{"payload flipped", func(f []byte) { f[1] ^= 0x80 }},
	}
	for _, tt := range corrupt {
		t.Run(tt.name, func(t *testing.T) {
			f := append([]byte(nil), frame...)
			tt.apply(f)
			if f[3] == frame[3] && f[4] == frame[4] && f[1] == frame[1] {
				t.Skip("swap is a no-op for this trailer")
			}
			if _, _, ok := VerifyCRC(f, 3); ok {
				t.Errorf("corrupted frame % X should not verify", f)
			}
		})
	}
}

// A residue of zero over payload plus trailer is a property of the
// polynomial, so verification must compare the trailer itself.
func TestVerifyCRC_Residue(t *testing.T) {
	frame := []byte{0x12, 0x34, 0x56, 0x00, 0x00}
	crc := CalculateCRC(frame[:3])
	frame[3] = byte(crc >> 8)
	frame[4] = byte(crc)

	if r := CalculateCRC(frame); r != 0 {
		t.Errorf("expected zero residue, got 0x%04X", r)
	}

	// A zero trailer never verifies a payload whose CRC is non-zero
	zero := []byte{0x12, 0x34, 0x56, 0x00, 0x00}
	if _, _, ok := VerifyCRC(zero, 3); ok && crc != 0 {
		t.Errorf("zero trailer should not verify payload with CRC 0x%04X", crc)
	}
}

func TestVerifyCRC_OutOfRange(t *testing.T) {
	if _, _, ok := VerifyCRC([]byte{0x01, 0x02}, 1); ok {
		t.Errorf("trailer past end of data should not verify")
	}
	if _, _, ok := VerifyCRC([]byte{0x01, 0x02}, -1); ok {
		t.Errorf("negative offset should not verify")
	}
}
