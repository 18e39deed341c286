// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

// CalculateCRC computes CRC-16-CCITT checksum for the given data
func CalculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// VerifyCRC checks a big-endian CRC trailer stored at data[offset:offset+2]
// against the CRC of everything before offset.
// Returns the calculated and received values along with the verdict.
func VerifyCRC(data []byte, offset int) (calculated, received uint16, ok bool) {
	if offset < 0 || offset+2 > len(data) {
		return 0, 0, false
	}
	calculated = CalculateCRC(data[:offset])
	received = uint16(data[offset])<<8 | uint16(data[offset+1])
	return calculated, received, calculated == received
}
