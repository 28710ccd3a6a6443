// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// parlor-game-mock is a stand-in game server for exercising the lobby
// end to end. It reads the launch environment contract, binds the
// assigned port, and answers the client handshake: a HELLO frame
// carrying the correct room token is accepted, anything else is
// refused. Accepted clients get the player roster back and an echo of
// every frame they send.
//
// Package a compiled copy of this binary as a game version's server
// entrypoint to test launches without a real game.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/parlor-games/parlor/gameenv"
	"github.com/parlor-games/parlor/lib/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parlor-game-mock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	contract, err := gameenv.Parse()
	if err != nil {
		return err
	}
	players, err := contract.Players()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(contract.ServerHost, fmt.Sprint(contract.ServerPort))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	logger.Info("mock game server up",
		"addr", addr, "roomId", contract.RoomID, "players", len(players))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("mock game server stopping")
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		go handleClient(netConn, contract, players, logger)
	}
}

type hello struct {
	Type      string `json:"type"`
	RoomToken string `json:"roomToken"`
}

func handleClient(netConn net.Conn, contract gameenv.Contract, players []gameenv.Player, logger *slog.Logger) {
	defer netConn.Close()
	conn := wire.NewConn(netConn, wire.MaxControlFrame)
	remote := netConn.RemoteAddr().String()

	var greeting hello
	if err := conn.Recv(&greeting); err != nil {
		logger.Warn("handshake read failed", "remote", remote, "error", err)
		return
	}
	if greeting.Type != "HELLO" || greeting.RoomToken != contract.RoomToken {
		logger.Warn("handshake rejected", "remote", remote)
		conn.Send(wire.Fail("bad room token"))
		return
	}
	if err := conn.Send(wire.OK(map[string]any{
		"roomId":  contract.RoomID,
		"players": players,
	})); err != nil {
		return
	}
	logger.Info("client attached", "remote", remote)

	for {
		raw, err := conn.RecvRaw()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("client read failed", "remote", remote, "error", err)
			}
			return
		}
		if err := conn.Send(wire.OK(map[string]any{"echo": string(raw)})); err != nil {
			return
		}
	}
}
