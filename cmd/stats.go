// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/pkg/bridge"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var (
	statsInterval int
	statsCount    int
	statsShowRegs bool
	statsReset    bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print transaction and fault statistics of a bridged chip",
	Long: `Poll a bridged chip and print its transaction counters at a fixed interval.

Counters cover selections, completed transfers by command class, aborted
transfers, and the protocol faults the chip observed (CRC mismatches,
unknown commands, illegal writes). Rates are computed against the device
clock.

Use --count 1 for a single snapshot. --reset zeroes the counters before
the first snapshot.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsInterval, "interval", 10, "Statistics update interval (seconds)")
	statsCmd.Flags().IntVar(&statsCount, "count", 0, "Number of snapshots (0 = until interrupted)")
	statsCmd.Flags().BoolVar(&statsShowRegs, "registers", false, "Also print the register bank")
	statsCmd.Flags().BoolVar(&statsReset, "reset", false, "Zero the counters before polling")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsInterval < 1 {
		return fmt.Errorf("--interval must be at least 1 second")
	}

	client, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer client.Close()

	if statsReset {
		if err := client.ResetStats(); err != nil {
			return fmt.Errorf("stats reset failed: %w", err)
		}
	}

	fmt.Printf("spiadc - Statistics\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()

	for n := 1; ; n++ {
		if err := printStatsSnapshot(client); err != nil {
			return err
		}
		if statsCount > 0 && n >= statsCount {
			return nil
		}

		select {
		case <-client.Done():
			log.Printf("Connection closed")
			return nil
		case <-ticker.C:
		}
	}
}

func printStatsSnapshot(client *bridge.Client) error {
	stats, clock, err := client.Stats()
	if err != nil {
		return fmt.Errorf("stats request failed: %w", err)
	}

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] device clock %v\n", timestamp, clock.Round(time.Millisecond))
	fmt.Print(stats.String())

	if statsShowRegs {
		regs, err := client.ReadRegisters()
		if err != nil {
			return fmt.Errorf("register request failed: %w", err)
		}
		fmt.Printf("Status: %s\n", spiadc.FormatStatus(regs[spiadc.RegStatus]))
		fmt.Print(spiadc.FormatRegisters(regs))
	}
	fmt.Println()
	return nil
}
