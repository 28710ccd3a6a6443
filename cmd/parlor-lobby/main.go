// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Parlor-lobby is the room and session orchestration daemon. Players
// connect over TCP with length-prefixed JSON frames; the daemon
// authenticates them, manages rooms, and launches a game server
// process per playing room. All durable state lives behind the
// parlor-storage daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/parlor-games/parlor/lib/clock"
	"github.com/parlor-games/parlor/lib/config"
	"github.com/parlor-games/parlor/lobby"
	"github.com/parlor-games/parlor/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listenAddr  string
		storageAddr string
		publicHost  string
	)

	flag.StringVar(&configPath, "config", os.Getenv(config.EnvVar), "path to the lobby config file (YAML)")
	flag.StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	flag.StringVar(&storageAddr, "storage", "", "storage daemon address (overrides config)")
	flag.StringVar(&publicHost, "public-host", "", "host advertised to game clients (overrides config)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if storageAddr != "" {
		cfg.StorageAddr = storageAddr
	}
	if publicHost != "" {
		cfg.PublicHost = publicHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := storage.NewClient(cfg.StorageAddr)
	server, err := lobby.New(cfg, backend, logger, clock.Real())
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}
	return server.Serve(ctx, listener)
}
