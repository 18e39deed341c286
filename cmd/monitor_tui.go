// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	maxLogEntries   = 100
	visibleLogLines = 8
	tableHeight     = 16
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	connMgr  *connectionManager
	connInfo string
	variant  spiadc.Variant
	interval time.Duration

	// Device state from the last poll
	regs     [spiadc.NumRegisters]uint16
	changed  [spiadc.NumRegisters]bool
	polled   bool
	stats    spiadc.Statistics
	clock    time.Duration
	lastResp *spiadc.Response
	lastCmd  string
	inFlight bool

	// Widgets
	regTable   table.Model
	writeInput textinput.Model
	writing    bool

	eventLog []logEntry

	// UI state
	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type pollResultMsg struct {
	regs  [spiadc.NumRegisters]uint16
	stats spiadc.Statistics
	clock time.Duration
	err   error
}

type commandResultMsg struct {
	label string
	resp  *spiadc.Response
	err   error
}

type connectionLostMsg struct{}

type reconnectedMsg struct {
	connInfo string
}

type reconnectFailedMsg struct {
	err     error
	attempt int
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialMonitorModel(connMgr *connectionManager, connInfo string, v spiadc.Variant, interval time.Duration) monitorModel {
	columns := []table.Column{
		{Title: "Addr", Width: 6},
		{Title: "Name", Width: 10},
		{Title: "Value", Width: 8},
		{Title: "", Width: 2},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(tableHeight),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12"))
	t.SetStyles(styles)

	ti := textinput.New()
	ti.Placeholder = "0x10=0x1234"
	ti.CharLimit = 16
	ti.Width = 16

	m := monitorModel{
		connMgr:    connMgr,
		connInfo:   connInfo,
		variant:    v,
		interval:   interval,
		regTable:   t,
		writeInput: ti,
		eventLog:   make([]logEntry, 0),
		width:      80,
		height:     24,
	}
	m.updateTable()
	return m
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.pollCmd(), m.tickCmd())
}

func (m monitorModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// pollCmd fetches registers and statistics in the background
func (m monitorModel) pollCmd() tea.Cmd {
	client := m.connMgr.getClient()
	return func() tea.Msg {
		regs, err := client.ReadRegisters()
		if err != nil {
			return pollResultMsg{err: err}
		}
		stats, clock, err := client.Stats()
		return pollResultMsg{regs: regs, stats: stats, clock: clock, err: err}
	}
}

// commandCmd runs one chip command in its own transaction
func (m monitorModel) commandCmd(label string, word, value uint16) tea.Cmd {
	client := m.connMgr.getClient()
	v := m.variant
	channels := int(m.regs[spiadc.RegID])
	if channels < 1 {
		channels = spiadc.DefaultChannels
	}
	return func() tea.Msg {
		resp, err := transact(client, v, channels, word, value)
		return commandResultMsg{label: label, resp: resp, err: err}
	}
}

func (m monitorModel) resetCmd() tea.Cmd {
	client := m.connMgr.getClient()
	return func() tea.Msg {
		return commandResultMsg{label: "RESET pulse", err: client.PulseReset()}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		if m.connectionLost {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.pollCmd(), m.tickCmd())

	case pollResultMsg:
		if msg.err != nil {
			if !m.connectionLost {
				m.addLogEntry(fmt.Sprintf("Poll failed: %v", msg.err), true)
			}
			return m, nil
		}
		m.applyPoll(msg)

	case commandResultMsg:
		m.inFlight = false
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.label, msg.err), true)
			return m, nil
		}
		m.lastCmd = msg.label
		if msg.resp != nil {
			m.lastResp = msg.resp
			m.addLogEntry(fmt.Sprintf("%s -> 0x%04X", msg.label, msg.resp.Header), false)
		} else {
			m.addLogEntry(msg.label, false)
		}
		return m, m.pollCmd()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectFailedMsg:
		m.addLogEntry(fmt.Sprintf("Reconnect attempt %d failed: %v", msg.attempt, msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
		return m, m.pollCmd()
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.writing {
		return m.handleWriteInput(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "r", "n", "e", "d", "w":
		if m.connectionLost {
			m.addLogEntry("Cannot send command: connection lost", true)
			return m, nil
		}
		if m.inFlight {
			return m, nil
		}
	}

	switch msg.String() {
	case "r":
		m.inFlight = true
		return m, m.resetCmd()

	case "n":
		m.inFlight = true
		return m, m.commandCmd("NULL", spiadc.CmdNull, 0)

	case "e":
		m.inFlight = true
		return m, m.commandCmd("DC/DC enable", m.variant.WriteCommand(spiadc.RegControl), spiadc.ControlDCDCEnable)

	case "d":
		m.inFlight = true
		return m, m.commandCmd("DC/DC disable", m.variant.WriteCommand(spiadc.RegControl), 0)

	case "w":
		m.writing = true
		m.writeInput.SetValue("")
		return m, m.writeInput.Focus()
	}

	var cmd tea.Cmd
	m.regTable, cmd = m.regTable.Update(msg)
	return m, cmd
}

func (m monitorModel) handleWriteInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.writing = false
		m.writeInput.Blur()
		return m, nil

	case "enter":
		m.writing = false
		m.writeInput.Blur()

		addr, value, err := parseRegisterWrite(m.writeInput.Value())
		if err != nil {
			m.addLogEntry(err.Error(), true)
			return m, nil
		}
		if m.connectionLost || m.inFlight {
			m.addLogEntry("Cannot send command: bridge busy", true)
			return m, nil
		}
		m.inFlight = true
		label := fmt.Sprintf("WRITE %s=0x%04X", spiadc.FormatRegisterName(addr), value)
		return m, m.commandCmd(label, m.variant.WriteCommand(addr), value)
	}

	var cmd tea.Cmd
	m.writeInput, cmd = m.writeInput.Update(msg)
	return m, cmd
}

// parseRegisterWrite parses "ADDR=VALUE" with C-style number prefixes
func parseRegisterWrite(s string) (uint8, uint16, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "=", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("write must be ADDR=VALUE, got %q", s)
	}
	addr, err := parseAddress(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	value, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 0, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q", parts[1])
	}
	return addr, uint16(value), nil
}

//////////////////////////////////////////////////////////////
// State Helpers
//////////////////////////////////////////////////////////////

func (m *monitorModel) applyPoll(msg pollResultMsg) {
	if m.polled {
		prev := m.regs[spiadc.RegStatus]
		cur := msg.regs[spiadc.RegStatus]
		if prev != cur {
			m.addLogEntry(fmt.Sprintf("Status %s -> %s", spiadc.FormatStatus(prev), spiadc.FormatStatus(cur)), false)
		}
		if msg.stats.Resets > m.stats.Resets {
			m.addLogEntry("Register bank reset", false)
		}
		if n := msg.stats.CRCErrors - m.stats.CRCErrors; msg.stats.CRCErrors > m.stats.CRCErrors {
			m.addLogEntry(fmt.Sprintf("%d CRC error(s)", n), true)
		}
		if n := msg.stats.IllegalWrites - m.stats.IllegalWrites; msg.stats.IllegalWrites > m.stats.IllegalWrites {
			m.addLogEntry(fmt.Sprintf("%d illegal write(s)", n), true)
		}
	} else {
		m.addLogEntry(fmt.Sprintf("Connected: %d channel(s), status %s",
			msg.regs[spiadc.RegID], spiadc.FormatStatus(msg.regs[spiadc.RegStatus])), false)
	}

	for i := range msg.regs {
		m.changed[i] = m.polled && msg.regs[i] != m.regs[i]
	}
	m.regs = msg.regs
	m.stats = msg.stats
	m.clock = msg.clock
	m.polled = true
	m.updateTable()
}

func (m *monitorModel) updateTable() {
	rows := make([]table.Row, 0, spiadc.NumRegisters)
	for addr, val := range m.regs {
		mark := ""
		if m.changed[addr] {
			mark = "*"
		}
		rows = append(rows, table.Row{
			fmt.Sprintf("0x%02X", addr),
			spiadc.FormatRegisterName(uint8(addr)),
			fmt.Sprintf("0x%04X", val),
			mark,
		})
	}
	m.regTable.SetRows(rows)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	s.WriteString(titleStyle.Render("SPIADC MONITOR"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | %s variant | r=reset n=null e/d=dc-dc w=write q=quit",
		connStatus, m.variant)))
	s.WriteString("\n\n")

	// Device panel
	var dev strings.Builder
	status := m.regs[spiadc.RegStatus]
	statusText := valueStyle.Render(spiadc.FormatStatus(status))
	if status&spiadc.StatusNotReady != 0 {
		statusText = warningStyle.Render(spiadc.FormatStatus(status))
	}
	dev.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Status:"), statusText))
	dev.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Channels:"),
		valueStyle.Render(fmt.Sprintf("%d", m.regs[spiadc.RegID]))))
	dcdc := "OFF"
	if m.regs[spiadc.RegControl]&spiadc.ControlDCDCEnable != 0 {
		dcdc = "ON"
	}
	dev.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("DC/DC:"), valueStyle.Render(dcdc)))
	dev.WriteString(fmt.Sprintf("%s %s\n\n", labelStyle.Render("Clock:"),
		valueStyle.Render(m.clock.Round(time.Millisecond).String())))

	dev.WriteString(labelStyle.Render("Statistics"))
	dev.WriteString("\n")
	dev.WriteString(fmt.Sprintf("Selections: %d  Transfers: %d  Aborted: %d\n",
		m.stats.Selections, m.stats.Transfers, m.stats.Aborted))
	dev.WriteString(fmt.Sprintf("Null: %d  Read: %d  Write: %d\n",
		m.stats.NullCommands, m.stats.Reads, m.stats.Writes))
	faults := fmt.Sprintf("CRC: %d  Unknown: %d  Illegal: %d",
		m.stats.CRCErrors, m.stats.UnknownCommands, m.stats.IllegalWrites)
	if m.stats.Faults() > 0 {
		dev.WriteString(errorStyle.Render(faults))
	} else {
		dev.WriteString(valueStyle.Render(faults))
	}
	dev.WriteString(fmt.Sprintf("\nResets: %d  Warm-ups: %d\n\n", m.stats.Resets, m.stats.WarmupsCompleted))

	dev.WriteString(labelStyle.Render("Last Response"))
	dev.WriteString("\n")
	if m.lastResp == nil {
		dev.WriteString(headerStyle.Render("(none)"))
	} else {
		dev.WriteString(headerStyle.Render(m.lastCmd))
		dev.WriteString("\n")
		dev.WriteString(strings.TrimRight(spiadc.FormatResponse(m.lastResp), "\n"))
	}

	if m.writing {
		dev.WriteString("\n\n")
		dev.WriteString(labelStyle.Render("Write: "))
		dev.WriteString(m.writeInput.View())
	}

	devPanel := boxStyle.Width(50).Render(dev.String())
	regPanel := boxStyle.Render(m.regTable.View())
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, regPanel, " ", devPanel))
	s.WriteString("\n\n")

	// Event log
	var logContent strings.Builder
	logContent.WriteString(labelStyle.Render("Event Log"))
	start := len(m.eventLog) - visibleLogLines
	if start < 0 {
		start = 0
	}
	for _, entry := range m.eventLog[start:] {
		line := fmt.Sprintf("[%s] %s", entry.timestamp.Format("15:04:05.000"), entry.message)
		logContent.WriteString("\n")
		if entry.isError {
			logContent.WriteString(errorStyle.Render(line))
		} else {
			logContent.WriteString(line)
		}
	}
	s.WriteString(boxStyle.Render(logContent.String()))
	s.WriteString("\n")

	return s.String()
}
