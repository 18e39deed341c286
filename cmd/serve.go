// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/spiadc/pkg/bridge"
	"github.com/Thermoquad/spiadc/pkg/mirror"
	"github.com/Thermoquad/spiadc/pkg/simhost"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a simulated chip over the bridge protocol",
	Long: `Build a chip from the config file and expose it to remote tools.

The bridge is served over WebSocket (--listen, or bridge.listen in the config
file) and/or a serial port (--port, or bridge.serial_port). The virtual clock
advances with wall time so the DC/DC warm-up completes in real time.

When the config file has a mirror section, the register bank is copied to a
Modbus TCP server whenever it changes.

If bridge.username is set, WebSocket clients must authenticate with HTTP Basic
auth. The password is read from SPIADC_PASSWORD or prompted for.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "WebSocket listen address (host:port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Bridge.Listen = serveListen
	}
	if portName != "" {
		cfg.Bridge.SerialPort = portName
		cfg.Bridge.Baud = baudRate
	}
	if cfg.Bridge.Listen == "" && cfg.Bridge.SerialPort == "" {
		return fmt.Errorf("nothing to serve: set --listen and/or --port")
	}

	chipCfg, err := cfg.ChipConfig()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	dev, err := simhost.NewDevice(chipCfg, logger)
	if err != nil {
		return err
	}
	for i, v := range cfg.Device.Analog {
		dev.SetAnalog(i, v)
	}

	srv := bridge.NewServer(dev, logger)
	if cfg.Bridge.Username != "" {
		password, err := GetPassword()
		if err != nil {
			return err
		}
		srv.Username = cfg.Bridge.Username
		srv.Password = password
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	go dev.RunClock(ctx, cfg.Tick())

	if cfg.Bridge.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Bridge.Path, srv)
		httpSrv := &http.Server{
			Addr:              cfg.Bridge.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()

		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("websocket listener: %w", err)
			}
		}()
		logger.Printf("WebSocket bridge on ws://%s%s", cfg.Bridge.Listen, cfg.Bridge.Path)
	}

	if cfg.Bridge.SerialPort != "" {
		conn, err := bridge.OpenSerial(cfg.Bridge.SerialPort, cfg.Bridge.Baud)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		go func() {
			if err := srv.ServeStream(ctx, conn); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("serial bridge: %w", err)
			}
		}()
		logger.Printf("Serial bridge on %s @ %d baud", cfg.Bridge.SerialPort, cfg.Bridge.Baud)
	}

	if m := cfg.Mirror; m != nil {
		client, err := mirror.NewEndpointClient(mirror.EndpointConfig{
			Endpoint: m.Endpoint,
			Timeout:  time.Duration(m.TimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return fmt.Errorf("mirror endpoint %s: %w", m.Endpoint, err)
		}
		defer client.Close()

		mir, err := mirror.New(mirror.Config{
			UnitID:   m.UnitID,
			Address:  m.Address,
			Interval: time.Duration(m.IntervalMs) * time.Millisecond,
		}, dev, client, logger)
		if err != nil {
			return err
		}
		go mir.Run(ctx)
		logger.Printf("Mirroring registers to %s unit=%d addr=%d", m.Endpoint, m.UnitID, m.Address)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		return err
	}

	handled, rejected := srv.Requests()
	logger.Printf("Shutting down: %d requests handled, %d rejected", handled, rejected)
	stats := dev.Stats()
	fmt.Print(stats.String())
	return nil
}
