// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Thermoquad/spiadc/pkg/bridge"
)

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	// First check environment variable
	if pw := os.Getenv("SPIADC_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// cachedPassword holds the prompted password so reconnects do not ask again
var cachedPassword *string

func connectionPassword() (string, error) {
	if wsUsername == "" {
		return "", nil
	}
	if cachedPassword != nil {
		return *cachedPassword, nil
	}
	pw, err := GetPassword()
	if err != nil {
		return "", err
	}
	cachedPassword = &pw
	return pw, nil
}

// OpenConnection opens either a serial or WebSocket bridge connection based
// on flags and wraps it in a client
func OpenConnection() (*bridge.Client, string, error) {
	if wsURL != "" {
		password, err := connectionPassword()
		if err != nil {
			return nil, "", err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		conn, err := bridge.DialWebSocket(ctx, wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return bridge.NewClient(conn), fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := bridge.OpenSerial(portName, baudRate)
		if err != nil {
			return nil, "", err
		}

		return bridge.NewClient(conn), fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
