// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// spiadc - Simulated SPI ADC peripheral
//
// A register-addressed SPI ADC model with a bridge for remote tools, a
// scenario runner and a Modbus register mirror.

package main

import (
	"os"

	"github.com/Thermoquad/spiadc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
