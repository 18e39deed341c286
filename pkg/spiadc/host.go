// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package spiadc

import "time"

// PinChangeFunc is called on every edge of a watched pin
type PinChangeFunc func(pin Pin, level Level)

// SPIDoneFunc is called when a transfer finishes.
// count is zero when the transfer was aborted by SPIStop.
type SPIDoneFunc func(rx []byte, count int)

// Host is the event and I/O substrate the chip runs on.
//
// Callbacks must be delivered serially: the host never calls into the chip
// while another chip callback is still running.
type Host interface {
	// PinWatch subscribes fn to both edges of pin
	PinWatch(pin Pin, fn PinChangeFunc)
	// PinRead returns the current level of pin
	PinRead(pin Pin) Level

	// SPIInit registers the transfer completion callback
	SPIInit(done SPIDoneFunc)
	// SPIStart arms a full-duplex transfer of len(tx) bytes. The host shifts
	// tx out as the master clocks and reports what it received through done.
	SPIStart(tx []byte)
	// SPIStop aborts any transfer in flight
	SPIStop()

	// TimerStart arms a one-shot timer
	TimerStart(delay time.Duration, fn func())

	// AnalogRead samples the external analog input of a channel
	AnalogRead(channel int) float64
}
