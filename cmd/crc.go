// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var crcCmd = &cobra.Command{
	Use:   "crc <hex bytes>...",
	Short: "Compute the CRC-16/CCITT of a byte string",
	Long: `Compute the CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) used by the CRC
protocol variant. Arguments are concatenated; spaces and colons are ignored.

Example:
  spiadc crc 31 32 33 34 35 36 37 38 39   # 0x29B1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCRC,
}

func init() {
	rootCmd.AddCommand(crcCmd)
}

func runCRC(cmd *cobra.Command, args []string) error {
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")

	data, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex input: %v", err)
	}

	fmt.Printf("0x%04X\n", spiadc.CalculateCRC(data))
	return nil
}
