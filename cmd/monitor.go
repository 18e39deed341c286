// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jpillora/backoff"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/pkg/bridge"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

var (
	monitorPollMs  int
	monitorVariant string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for watching and driving a bridged chip",
	Long: `Monitor a simulated chip served over a bridge via an interactive terminal UI.

Features:
  - Live register bank with changed registers highlighted
  - Transaction and fault statistics
  - Last decoded response frame
  - Event log (status changes, command results, connection events)
  - Automatic reconnection with exponential backoff

Keys:
  r        pulse RESET
  n        send a null command (reads status)
  e / d    enable / disable the DC/DC converter
  w        write a register (ADDR=VALUE, e.g. 0x10=0x1234)
  up/down  scroll the register table
  q        quit

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorPollMs, "poll-ms", 250, "Register poll interval in milliseconds")
	monitorCmd.Flags().StringVar(&monitorVariant, "variant", "", "Protocol variant (simple or crc)")
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	client   *bridge.Client
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getClient() *bridge.Client {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client
}

func (cm *connectionManager) setClient(client *bridge.Client, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.client = client
	cm.connInfo = connInfo
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorPollMs < 10 {
		return fmt.Errorf("--poll-ms must be at least 10")
	}

	variant := monitorVariant
	if variant == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		variant = cfg.Device.Variant
	}
	v, err := spiadc.ParseVariant(variant)
	if err != nil {
		return err
	}

	client, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	cm := &connectionManager{
		client:   client,
		connInfo: connInfo,
		done:     make(chan struct{}),
	}

	m := initialMonitorModel(cm, connInfo, v, time.Duration(monitorPollMs)*time.Millisecond)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.watch()

	_, runErr := p.Run()

	close(cm.done)
	cm.getClient().Close()

	if runErr != nil {
		return fmt.Errorf("TUI error: %v", runErr)
	}
	return nil
}

// watch waits for the connection to drop and reconnects until shutdown
func (cm *connectionManager) watch() {
	for {
		select {
		case <-cm.done:
			return
		case <-cm.getClient().Done():
		}

		cm.p.Send(connectionLostMsg{})

		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if shutdown was requested during reconnection.
func (cm *connectionManager) reconnect() bool {
	cm.getClient().Close()

	b := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(b.Duration()):
		}

		client, connInfo, err := OpenConnection()
		if err != nil {
			cm.p.Send(reconnectFailedMsg{err: err, attempt: int(b.Attempt())})
			continue
		}

		cm.setClient(client, connInfo)
		cm.p.Send(reconnectedMsg{connInfo: connInfo})
		return true
	}
}
