// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingPathReturnsDefaults(t *testing.T) {
	t.Setenv(EnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:23002" {
		t.Errorf("Listen = %q, want default", cfg.Listen)
	}
	if cfg.Ports.Start != 20000 || cfg.Ports.End != 40000 {
		t.Errorf("Ports = %+v, want 20000-40000", cfg.Ports)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parlor.yaml")
	content := strings.Join([]string{
		"listen: 0.0.0.0:24000",
		"public_host: lobby.example.net",
		"ports:",
		"  start: 30000",
		"  end: 30100",
		"launch_timeout: 10s",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:24000" {
		t.Errorf("Listen = %q, want file value", cfg.Listen)
	}
	if cfg.PublicHost != "lobby.example.net" {
		t.Errorf("PublicHost = %q", cfg.PublicHost)
	}
	if cfg.LaunchTimeout != 10*time.Second {
		t.Errorf("LaunchTimeout = %v, want 10s", cfg.LaunchTimeout)
	}
	// Unspecified fields keep their defaults.
	if cfg.StorageAddr != "127.0.0.1:23000" {
		t.Errorf("StorageAddr = %q, want default", cfg.StorageAddr)
	}
}

func TestLoadHonorsEnvVar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parlor.yaml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:25000\n"), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:25000" {
		t.Errorf("Listen = %q, want env-var file value", cfg.Listen)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted ports", func(c *Config) { c.Ports = PortRange{Start: 400, End: 300} }},
		{"zero start", func(c *Config) { c.Ports = PortRange{Start: 0, End: 300} }},
		{"port above 65535", func(c *Config) { c.Ports = PortRange{Start: 65000, End: 70000} }},
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero timeout", func(c *Config) { c.LaunchTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}
