// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// Message is one decoded bridge message
type Message struct {
	Type    uint8
	Payload map[int]interface{} // nil for empty payloads
}

// NewMessage creates a message with the given type and payload
func NewMessage(msgType uint8, payload map[int]interface{}) *Message {
	return &Message{Type: msgType, Payload: payload}
}

// EncodeMessage creates the CBOR payload [msg_type, payload_map]
func EncodeMessage(m *Message) ([]byte, error) {
	var msg interface{}
	if len(m.Payload) == 0 {
		msg = []interface{}{uint64(m.Type), nil}
	} else {
		msg = []interface{}{uint64(m.Type), m.Payload}
	}

	data, err := cbor.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(data), MaxPayloadSize)
	}
	return data, nil
}

// ParseMessage parses a CBOR message: [msg_type, payload_map]
func ParseMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR: %w", err)
	}

	if len(msg) != 2 {
		return nil, fmt.Errorf("expected 2-element array, got %d elements", len(msg))
	}

	m := &Message{}
	switch v := msg[0].(type) {
	case uint64:
		if v > 255 {
			return nil, fmt.Errorf("message type out of range: %d", v)
		}
		m.Type = uint8(v)
	default:
		return nil, fmt.Errorf("expected uint for message type, got %T", msg[0])
	}

	if msg[1] == nil {
		return m, nil
	}

	switch v := msg[1].(type) {
	case map[interface{}]interface{}:
		m.Payload = make(map[int]interface{})
		for key, val := range v {
			switch k := key.(type) {
			case uint64:
				m.Payload[int(k)] = val
			case int64:
				m.Payload[int(k)] = val
			default:
				return nil, fmt.Errorf("expected integer map key, got %T", key)
			}
		}
	default:
		return nil, fmt.Errorf("expected map or nil for payload, got %T", msg[1])
	}

	return m, nil
}

// ============================================================
// Payload extraction helpers
// ============================================================

// GetMapUint extracts a uint64 from a CBOR map by key
func GetMapUint(m map[int]interface{}, key int) (uint64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case uint64:
		return val, true
	case int64:
		if val >= 0 {
			return uint64(val), true
		}
	}
	return 0, false
}

// GetMapFloat extracts a float64 from a CBOR map by key
func GetMapFloat(m map[int]interface{}, key int) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	}
	return 0, false
}

// GetMapBytes extracts a []byte from a CBOR map by key
func GetMapBytes(m map[int]interface{}, key int) ([]byte, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	if val, ok := v.([]byte); ok {
		return val, true
	}
	return nil, false
}

// GetMapString extracts a string from a CBOR map by key
func GetMapString(m map[int]interface{}, key int) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	if val, ok := v.(string); ok {
		return val, true
	}
	return "", false
}

// GetMapUintSlice extracts an array of unsigned integers from a CBOR map by key
func GetMapUintSlice(m map[int]interface{}, key int) ([]uint64, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	if u, ok := v.([]uint64); ok {
		return u, true
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]uint64, len(arr))
	for i, item := range arr {
		u, ok := item.(uint64)
		if !ok {
			return nil, false
		}
		out[i] = u
	}
	return out, true
}

// ============================================================
// Request builders
// ============================================================

// SetPinRequest drives CS or RESET
func SetPinRequest(pin spiadc.Pin, level spiadc.Level) *Message {
	return NewMessage(MsgSetPin, map[int]interface{}{
		KeyPin:   uint64(pin),
		KeyLevel: uint64(level),
	})
}

// TransferRequest clocks one frame
func TransferRequest(mosi []byte) *Message {
	return NewMessage(MsgTransfer, map[int]interface{}{KeyData: mosi})
}

// SetAnalogRequest sets an external analog input
func SetAnalogRequest(channel int, value float64) *Message {
	return NewMessage(MsgSetAnalog, map[int]interface{}{
		KeyChannel: uint64(channel),
		KeyValue:   value,
	})
}

// AdvanceRequest moves the device clock forward
func AdvanceRequest(d time.Duration) *Message {
	return NewMessage(MsgAdvance, map[int]interface{}{KeyMicros: uint64(d.Microseconds())})
}

// PulseResetRequest asserts and releases RESET
func PulseResetRequest() *Message {
	return NewMessage(MsgPulseReset, nil)
}

// ReadRegistersRequest asks for a register bank snapshot
func ReadRegistersRequest() *Message {
	return NewMessage(MsgReadRegisters, nil)
}

// GetStatsRequest asks for the chip counters
func GetStatsRequest() *Message {
	return NewMessage(MsgGetStats, nil)
}

// ResetStatsRequest zeroes the chip counters
func ResetStatsRequest() *Message {
	return NewMessage(MsgResetStats, nil)
}

// PingRequest checks the link
func PingRequest() *Message {
	return NewMessage(MsgPing, nil)
}

// ============================================================
// Response builders
// ============================================================

// AckResponse acknowledges a request with no result
func AckResponse() *Message {
	return NewMessage(MsgAck, nil)
}

// ErrorResponse reports a rejected request
func ErrorResponse(code uint64, format string, args ...interface{}) *Message {
	return NewMessage(MsgError, map[int]interface{}{
		KeyErrorCode:    code,
		KeyErrorMessage: fmt.Sprintf(format, args...),
	})
}

// RegistersResponse carries a register bank snapshot
func RegistersResponse(regs [spiadc.NumRegisters]uint16) *Message {
	values := make([]uint64, len(regs))
	for i, r := range regs {
		values[i] = uint64(r)
	}
	return NewMessage(MsgRegisters, map[int]interface{}{KeyRegisters: values})
}

// StatsResponse carries the chip counters and the device clock
func StatsResponse(s spiadc.Statistics, now time.Duration) *Message {
	return NewMessage(MsgStats, map[int]interface{}{
		StatSelections:       s.Selections,
		StatTransfers:        s.Transfers,
		StatAborted:          s.Aborted,
		StatNullCommands:     s.NullCommands,
		StatReads:            s.Reads,
		StatWrites:           s.Writes,
		StatCRCErrors:        s.CRCErrors,
		StatUnknownCommands:  s.UnknownCommands,
		StatIllegalWrites:    s.IllegalWrites,
		StatResets:           s.Resets,
		StatWarmupsCompleted: s.WarmupsCompleted,
		StatNowMicros:        uint64(now.Microseconds()),
	})
}

// ============================================================
// Response decoding
// ============================================================

// RemoteError is an error reported by the device side
type RemoteError struct {
	Code    uint64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// ParseError converts a MsgError message
func ParseError(m *Message) *RemoteError {
	code, _ := GetMapUint(m.Payload, KeyErrorCode)
	msg, _ := GetMapString(m.Payload, KeyErrorMessage)
	return &RemoteError{Code: code, Message: msg}
}

// ParseRegisters decodes a MsgRegisters payload
func ParseRegisters(m *Message) ([spiadc.NumRegisters]uint16, error) {
	var regs [spiadc.NumRegisters]uint16
	values, ok := GetMapUintSlice(m.Payload, KeyRegisters)
	if !ok {
		return regs, fmt.Errorf("registers payload missing")
	}
	if len(values) != spiadc.NumRegisters {
		return regs, fmt.Errorf("expected %d registers, got %d", spiadc.NumRegisters, len(values))
	}
	for i, v := range values {
		regs[i] = uint16(v)
	}
	return regs, nil
}

// ParseStats decodes a MsgStats payload
func ParseStats(m *Message) (spiadc.Statistics, time.Duration) {
	get := func(key int) uint64 {
		v, _ := GetMapUint(m.Payload, key)
		return v
	}
	s := spiadc.Statistics{
		Selections:       get(StatSelections),
		Transfers:        get(StatTransfers),
		Aborted:          get(StatAborted),
		NullCommands:     get(StatNullCommands),
		Reads:            get(StatReads),
		Writes:           get(StatWrites),
		CRCErrors:        get(StatCRCErrors),
		UnknownCommands:  get(StatUnknownCommands),
		IllegalWrites:    get(StatIllegalWrites),
		Resets:           get(StatResets),
		WarmupsCompleted: get(StatWarmupsCompleted),
	}
	now := time.Duration(get(StatNowMicros)) * time.Microsecond

	// Rates are relative to the device clock
	s.LastUpdateTime = time.Now()
	s.StartTime = s.LastUpdateTime.Add(-now)
	return s, now
}

// TypeName returns a human-readable message type name
func TypeName(t uint8) string {
	switch t {
	case MsgSetPin:
		return "SET_PIN"
	case MsgTransfer:
		return "TRANSFER"
	case MsgSetAnalog:
		return "SET_ANALOG"
	case MsgAdvance:
		return "ADVANCE"
	case MsgPulseReset:
		return "PULSE_RESET"
	case MsgReadRegisters:
		return "READ_REGISTERS"
	case MsgGetStats:
		return "GET_STATS"
	case MsgResetStats:
		return "RESET_STATS"
	case MsgPing:
		return "PING"
	case MsgAck:
		return "ACK"
	case MsgTransferResult:
		return "TRANSFER_RESULT"
	case MsgRegisters:
		return "REGISTERS"
	case MsgStats:
		return "STATS"
	case MsgPong:
		return "PONG"
	case MsgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", t)
	}
}
