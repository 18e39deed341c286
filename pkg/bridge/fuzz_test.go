// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// buildRandomCBORPayload creates a CBOR payload [msgType, random_map]
func buildRandomCBORPayload(rng *rand.Rand, msgType uint8) []byte {
	numEntries := rng.Intn(6)
	payloadMap := make(map[int]interface{})
	for i := 0; i < numEntries; i++ {
		key := rng.Intn(12)
		switch rng.Intn(4) {
		case 0:
			payloadMap[key] = rng.Uint64()
		case 1:
			payloadMap[key] = rng.Float64()
		case 2:
			b := make([]byte, rng.Intn(32))
			rng.Read(b)
			payloadMap[key] = b
		case 3:
			payloadMap[key] = rng.Intn(2) == 1
		}
	}

	var msg interface{}
	if len(payloadMap) == 0 {
		msg = []interface{}{uint64(msgType), nil}
	} else {
		msg = []interface{}{uint64(msgType), payloadMap}
	}

	data, err := cbor.Marshal(msg)
	if err != nil {
		data, _ = cbor.Marshal([]interface{}{uint64(msgType), nil})
	}
	return data
}

// frameRaw wraps an arbitrary payload in valid framing
func frameRaw(payload []byte) []byte {
	data := append([]byte{}, payload...)
	crc := spiadc.CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc))
	out := []byte{StartByte}
	out = append(out, stuffBytes(data)...)
	return append(out, EndByte)
}

func TestFuzz_DecoderRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	dec := NewDecoder()

	for i := 0; i < rounds; i++ {
		data := make([]byte, rng.Intn(64))
		rng.Read(data)
		// Must never panic
		dec.Decode(data)
	}

	// A valid frame still decodes after arbitrary garbage
	good, _ := EncodeFrame(PingRequest())
	msgs, _ := dec.Decode(good)
	if len(msgs) != 1 || msgs[0].Type != MsgPing {
		t.Fatalf("decoder did not recover after random input")
	}
}

func TestFuzz_RandomPayloadsSurviveFraming(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	dec := NewDecoder()

	for i := 0; i < rounds; i++ {
		msgType := uint8(rng.Intn(256))
		payload := buildRandomCBORPayload(rng, msgType)

		msgs, errs := dec.Decode(frameRaw(payload))
		if len(errs) != 0 || len(msgs) != 1 {
			t.Fatalf("round %d: payload % X failed: %v", i, payload, errs)
		}
		if msgs[0].Type != msgType {
			t.Fatalf("round %d: expected type 0x%02X, got 0x%02X", i, msgType, msgs[0].Type)
		}
	}
}

func TestFuzz_ServerHandlesRandomMessages(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()
	s, _ := newTestServer(t, 1+rng.Intn(8))

	types := []uint8{MsgSetPin, MsgTransfer, MsgSetAnalog, MsgAdvance, MsgPulseReset,
		MsgReadRegisters, MsgGetStats, MsgPing, uint8(rng.Intn(256))}

	for i := 0; i < rounds; i++ {
		msgType := types[rng.Intn(len(types))]
		payload := buildRandomCBORPayload(rng, msgType)
		m, err := ParseMessage(payload)
		if err != nil {
			t.Fatalf("round %d: parse failed: %v", i, err)
		}

		// Keep simulated time bounded
		if m.Type == MsgAdvance {
			m.Payload = map[int]interface{}{KeyMicros: uint64(rng.Intn(1000000))}
		}

		resp := s.Handle(m)
		if resp == nil {
			t.Fatalf("round %d: nil response", i)
		}
		if _, err := EncodeFrame(resp); err != nil {
			t.Fatalf("round %d: response does not encode: %v", i, err)
		}
	}
}

func TestFuzz_StuffingIsReversible(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		mosi := make([]byte, rng.Intn(40))
		rng.Read(mosi)

		frame, err := EncodeFrame(TransferRequest(mosi))
		if err != nil {
			t.Fatalf("round %d: encode failed: %v", i, err)
		}
		msgs, errs := NewDecoder().Decode(frame)
		if len(errs) != 0 || len(msgs) != 1 {
			t.Fatalf("round %d: decode failed: %v", i, errs)
		}
		got, _ := GetMapBytes(msgs[0].Payload, KeyData)
		if !bytes.Equal(got, mosi) {
			t.Fatalf("round %d: expected % X, got % X", i, mosi, got)
		}
	}
}
