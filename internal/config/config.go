// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the YAML file describing the simulated device, its
// bridge endpoints and the optional register mirror.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

type Config struct {
	Device DeviceConfig  `yaml:"device"`
	Bridge BridgeConfig  `yaml:"bridge"`
	Mirror *MirrorConfig `yaml:"mirror"` // optional
}

// ---- DEVICE ----

type DeviceConfig struct {
	Channels int       `yaml:"channels"`
	Variant  string    `yaml:"variant"` // simple | crc
	WarmupMs int       `yaml:"warmup_ms"`
	TickMs   int       `yaml:"tick_ms"` // wall clock step for the live server
	Writable []uint8   `yaml:"writable"`
	Analog   []float64 `yaml:"analog"` // initial input per channel
}

// ---- BRIDGE ----

type BridgeConfig struct {
	Listen     string `yaml:"listen"` // host:port, empty disables websocket
	Path       string `yaml:"path"`
	Username   string `yaml:"username"`
	SerialPort string `yaml:"serial_port"` // empty disables serial
	Baud       int    `yaml:"baud"`
}

// ---- MIRROR ----

type MirrorConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	Address    uint16 `yaml:"address"`
	IntervalMs int    `yaml:"interval_ms"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Load reads, validates and normalizes a YAML config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, validates and normalizes YAML config data
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	Normalize(&cfg)
	return &cfg, nil
}

// Default returns a normalized config for a single channel CRC part
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}

// ChipConfig converts the device section for spiadc.New.
// It MUST be called only after Normalize().
func (c *Config) ChipConfig() (spiadc.Config, error) {
	v, err := spiadc.ParseVariant(c.Device.Variant)
	if err != nil {
		return spiadc.Config{}, err
	}
	return spiadc.Config{
		Channels:    c.Device.Channels,
		Variant:     v,
		WarmupDelay: time.Duration(c.Device.WarmupMs) * time.Millisecond,
		Writable:    c.Device.Writable,
	}, nil
}

// Tick returns the wall clock step for the live server
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Device.TickMs) * time.Millisecond
}
