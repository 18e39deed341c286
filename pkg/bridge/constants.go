// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge exposes a simulated SPI ADC to remote masters.
//
// Messages are CBOR arrays [msg_type, payload_map] carried in byte-stuffed
// frames with a CRC-16/CCITT trailer. The same framing is used on serial
// lines and inside WebSocket binary messages.
package bridge

// Framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Size limits
const (
	MaxPayloadSize = 512
	CRCSize        = 2
	MaxFrameSize   = MaxPayloadSize + CRCSize
)

// Message types - Requests (master -> device) 0x10-0x1F
const (
	MsgSetPin        = 0x10
	MsgTransfer      = 0x11
	MsgSetAnalog     = 0x12
	MsgAdvance       = 0x13
	MsgPulseReset    = 0x14
	MsgReadRegisters = 0x15
	MsgGetStats      = 0x16
	MsgResetStats    = 0x17
	MsgPing          = 0x1F
)

// Message types - Responses (device -> master) 0x30-0x3F
const (
	MsgAck            = 0x30
	MsgTransferResult = 0x31
	MsgRegisters      = 0x32
	MsgStats          = 0x33
	MsgPong           = 0x3F
)

// Message types - Errors 0xE0-0xEF
const (
	MsgError = 0xE0
)

// Error codes carried in MsgError
const (
	ErrCodeInvalidMessage  = 1
	ErrCodeInvalidArgument = 2
	ErrCodeNoTransfer      = 3
	ErrCodeFrameLength     = 4
	ErrCodeInternal        = 5
)

// Payload keys
const (
	KeyPin   = 0
	KeyLevel = 1

	KeyData = 0 // Transfer / TransferResult

	KeyChannel = 0
	KeyValue   = 1

	KeyMicros = 0 // Advance / Pong

	KeyRegisters = 0

	KeyErrorCode    = 0
	KeyErrorMessage = 1

	// KeySeq is reserved in every payload. Clients number their requests
	// with it and the server echoes it in the response.
	KeySeq = 0xFF
)

// Stats payload keys
const (
	StatSelections = iota
	StatTransfers
	StatAborted
	StatNullCommands
	StatReads
	StatWrites
	StatCRCErrors
	StatUnknownCommands
	StatIllegalWrites
	StatResets
	StatWarmupsCompleted
	StatNowMicros
)

// Decoder states
const (
	stateIdle = iota
	stateBody
)
