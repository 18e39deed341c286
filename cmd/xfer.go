// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/pkg/bridge"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var (
	xferRead    string
	xferWrite   string
	xferValue   string
	xferVariant string
	xferTimeout int
)

var xferCmd = &cobra.Command{
	Use:   "xfer",
	Short: "Send one command to a bridged chip and print the response",
	Long: `Send a null, read or write command to a chip served over a bridge.

The chip is reselected, the command frame is clocked, and a null frame
follows to collect the response. The channel count is taken from the
identity register; the protocol variant comes from --variant or the config
file and must match the served device.

Examples:
  spiadc xfer --url ws://localhost:8080/ws
  spiadc xfer --url ws://localhost:8080/ws --read 0x01
  spiadc xfer --port /dev/ttyUSB0 --write 0x31 --value 1

Exit codes:
  0 - Response received
  1 - Command failed
  2 - Connection error`,
	RunE: runXfer,
}

func init() {
	rootCmd.AddCommand(xferCmd)
	xferCmd.Flags().StringVar(&xferRead, "read", "", "Register address to read")
	xferCmd.Flags().StringVar(&xferWrite, "write", "", "Register address to write")
	xferCmd.Flags().StringVar(&xferValue, "value", "0", "Value to write")
	xferCmd.Flags().StringVar(&xferVariant, "variant", "", "Protocol variant (simple or crc)")
	xferCmd.Flags().IntVar(&xferTimeout, "timeout", 5, "Timeout in seconds for each request")
	xferCmd.MarkFlagsMutuallyExclusive("read", "write")
}

func parseAddress(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > spiadc.MaxAddress {
		return 0, fmt.Errorf("invalid register address %q (0x00-0x%02X)", s, spiadc.MaxAddress)
	}
	return uint8(v), nil
}

func xferVariantFromFlags() (spiadc.Variant, error) {
	if xferVariant != "" {
		return spiadc.ParseVariant(xferVariant)
	}
	cfg, err := loadConfig()
	if err != nil {
		return 0, err
	}
	return spiadc.ParseVariant(cfg.Device.Variant)
}

func runXfer(cmd *cobra.Command, args []string) error {
	v, err := xferVariantFromFlags()
	if err != nil {
		return err
	}

	word := spiadc.CmdNull
	var value uint16
	switch {
	case xferRead != "":
		addr, err := parseAddress(xferRead)
		if err != nil {
			return err
		}
		word = v.ReadCommand(addr)
	case xferWrite != "":
		addr, err := parseAddress(xferWrite)
		if err != nil {
			return err
		}
		x, err := strconv.ParseUint(xferValue, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid value %q: %v", xferValue, err)
		}
		word = v.WriteCommand(addr)
		value = uint16(x)
	}

	client, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()
	client.Timeout = time.Duration(xferTimeout) * time.Second

	fmt.Printf("spiadc - Transfer\n")
	fmt.Printf("Connection: %s\n", connInfo)

	regs, err := client.ReadRegisters()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Read registers failed: %v\n", err)
		os.Exit(2)
	}
	channels := int(regs[spiadc.RegID])
	fmt.Printf("Device: %d channel(s), %s variant, %d-byte frames\n\n", channels, v, v.FrameLength(channels))

	fmt.Printf("Command: 0x%04X (%s)\n", word, spiadc.FormatCommand(v, word))
	resp, err := transact(client, v, channels, word, value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Response:\n%s", spiadc.FormatResponse(resp))
	if word == spiadc.CmdNull {
		fmt.Printf("  Status: %s\n", spiadc.FormatStatus(resp.Header))
	}
	return nil
}

// transact runs one command in a fresh transaction: CS is cycled, the command
// and a collecting null frame are clocked, then CS is released
func transact(client *bridge.Client, v spiadc.Variant, channels int, word, value uint16) (*spiadc.Response, error) {
	if err := client.Deselect(); err != nil {
		return nil, fmt.Errorf("deselect: %w", err)
	}
	if err := client.Select(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	resp, err := client.Command(v, channels, word, value)
	if err != nil {
		return nil, err
	}
	if err := client.Deselect(); err != nil {
		return nil, fmt.Errorf("deselect: %w", err)
	}
	return resp, nil
}
