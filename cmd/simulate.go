// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/internal/scenario"
	"github.com/Thermoquad/spiadc/pkg/simhost"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var (
	simVerbose bool
	simStats   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [scenario.yaml]",
	Short: "Run a scripted scenario against an in-process chip",
	Long: `Build a chip from the config file and run a scenario against it,
printing every frame exchanged and the decoded response.

Without a scenario file the built-in power-up sequence runs: the status
register reports NOT_READY, the DC/DC enable write is acknowledged, and the
part becomes ready once the warm-up delay has elapsed.

Scenario steps:
  select, deselect, reset          drive CS or pulse RESET
  analog: {channel, value}         set a channel input
  advance_ms: N                    move the virtual clock
  null_cmd, read: A, write: {addr, value}, raw: "hex"
  expect_header: V                 check the last received header
  expect_register: {addr, value}   check the register bank`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Log chip diagnostics to stderr")
	simulateCmd.Flags().BoolVar(&simStats, "stats", true, "Print transaction statistics at the end")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	chipCfg, err := cfg.ChipConfig()
	if err != nil {
		return err
	}

	logger := log.New(io.Discard, "", 0)
	if simVerbose {
		logger = log.New(os.Stderr, "chip: ", log.Lmicroseconds)
	}

	dev, err := simhost.NewDevice(chipCfg, logger)
	if err != nil {
		return err
	}
	for i, v := range cfg.Device.Analog {
		dev.SetAnalog(i, v)
	}

	sc := scenario.PowerUp(chipCfg.Variant, chipCfg.WarmupDelay)
	if len(args) == 1 {
		sc, err = scenario.Load(args[0])
		if err != nil {
			return err
		}
	}

	fmt.Printf("spiadc - Simulation\n")
	fmt.Printf("Device: %d channel(s), %s variant, %d-byte frames, warm-up %v\n\n",
		chipCfg.Channels, chipCfg.Variant, chipCfg.Variant.FrameLength(chipCfg.Channels),
		chipCfg.WarmupDelay.Round(time.Millisecond))

	runErr := scenario.NewRunner(dev, os.Stdout).Run(sc)

	if simStats {
		stats := dev.Stats()
		fmt.Printf("\n%s", stats.String())
		fmt.Printf("Registers:\n%s", spiadc.FormatRegisters(dev.Registers()))
	}
	return runErr
}
