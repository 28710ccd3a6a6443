// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Parlor-storage is the durable half of a Parlor deployment. It owns
// the SQLite database and answers entity/action RPCs from the lobby
// over length-prefixed JSON frames. Run with --memory for an
// ephemeral in-process store.
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

	"github.com/parlor-games/parlor/storage"
	"github.com/parlor-games/parlor/storage/memstore"
	"github.com/parlor-games/parlor/storage/sqlitestore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listenAddr string
		dbPath     string
		poolSize   int
		inMemory   bool
	)

	flag.StringVar(&listenAddr, "listen", "127.0.0.1:23000", "TCP address to answer storage RPCs on")
	flag.StringVar(&dbPath, "db", "parlor.db", "path to the SQLite database file")
	flag.IntVar(&poolSize, "pool-size", 4, "SQLite connection pool size")
	flag.BoolVar(&inMemory, "memory", false, "keep all state in memory (no database file)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend storage.Backend
	if inMemory {
		logger.Info("using in-memory store")
		backend = memstore.New(nil)
	} else {
		store, err := sqlitestore.Open(dbPath, sqlitestore.Options{
			PoolSize: poolSize,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("opening database %s: %w", dbPath, err)
		}
		defer store.Close()
		logger.Info("database open", "path", dbPath)
		backend = store
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listenAddr, err)
	}
	return storage.NewServer(backend, logger).Serve(ctx, listener)
}
