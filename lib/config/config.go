// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parlor daemons.
//
// Configuration is loaded from a single YAML file specified by the
// PARLOR_CONFIG environment variable or a --config flag. There are no
// fallbacks or automatic discovery; a missing path means defaults.
// Flags on the binaries override individual fields after loading.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted when no --config
// flag is given.
const EnvVar = "PARLOR_CONFIG"

// Config is the master configuration for the lobby daemon.
type Config struct {
	// Listen is the TCP address the lobby accepts player connections
	// on.
	Listen string `yaml:"listen"`

	// PublicHost is the host advertised to players and game servers in
	// launch info. Defaults to the listen host; set it when the lobby
	// sits behind NAT.
	PublicHost string `yaml:"public_host"`

	// StorageAddr is the TCP address of the storage daemon.
	StorageAddr string `yaml:"storage_addr"`

	// RuntimeRoot is the directory under which per-launch runtime
	// directories are materialized. Created if absent.
	RuntimeRoot string `yaml:"runtime_root"`

	// LaunchStateFile is where the lobby records active launches
	// (CBOR, written atomically). Empty disables the record.
	LaunchStateFile string `yaml:"launch_state_file"`

	// Ports is the range probed when allocating a game server port.
	Ports PortRange `yaml:"ports"`

	// LaunchTimeout bounds package extraction plus process startup for
	// one launch.
	LaunchTimeout time.Duration `yaml:"launch_timeout"`
}

// PortRange is an inclusive TCP port interval.
type PortRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Default returns the configuration used when no file is present. The
// port range matches what the stock game templates expect.
func Default() Config {
	return Config{
		Listen:        "127.0.0.1:23002",
		StorageAddr:   "127.0.0.1:23000",
		RuntimeRoot:   "runtime",
		Ports:         PortRange{Start: 20000, End: 40000},
		LaunchTimeout: 30 * time.Second,
	}
}

// Load reads the config file at path, layered over Default. An empty
// path consults EnvVar; if that is also empty, defaults are returned
// unchanged.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.StorageAddr == "" {
		return fmt.Errorf("storage address is required")
	}
	if c.Ports.Start <= 0 || c.Ports.End < c.Ports.Start {
		return fmt.Errorf("invalid port range %d-%d", c.Ports.Start, c.Ports.End)
	}
	if c.Ports.End > 65535 {
		return fmt.Errorf("port range end %d above 65535", c.Ports.End)
	}
	if c.LaunchTimeout <= 0 {
		return fmt.Errorf("launch timeout must be positive")
	}
	return nil
}
