// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Parlor is the operator CLI for a running lobby. It speaks the same
// framed protocol as the game clients and prints responses as JSON.
//
// Usage:
//
//	parlor [flags] ping
//	parlor [flags] games
//	parlor [flags] rooms
//	parlor [flags] players
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/parlor-games/parlor/lib/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("parlor", pflag.ContinueOnError)
	addr := flags.StringP("addr", "a", "127.0.0.1:23002", "lobby address")
	username := flags.StringP("username", "u", "", "account to authenticate as")
	passwordHash := flags.String("password-hash", "", "password hash for the account")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return fmt.Errorf("expected exactly one command, got %d", flags.NArg())
	}
	command := flags.Arg(0)

	netConn, err := net.Dial("tcp", *addr)
	if err != nil {
		return fmt.Errorf("connecting to lobby at %s: %w", *addr, err)
	}
	defer netConn.Close()
	conn := wire.NewConn(netConn, wire.MaxPackageFrame)

	// Everything except ping needs a session.
	if command != "ping" {
		if *username == "" || *passwordHash == "" {
			return fmt.Errorf("%s requires --username and --password-hash", command)
		}
		if err := call(conn, map[string]any{
			"type": "LOGIN", "username": *username, "passwordHash": *passwordHash,
		}, nil); err != nil {
			return err
		}
		defer call(conn, map[string]any{"type": "LOGOUT"}, nil)
	}

	var response map[string]any
	switch command {
	case "ping":
		err = call(conn, map[string]any{"type": "PING"}, &response)
	case "games":
		err = call(conn, map[string]any{"type": "LIST_GAMES"}, &response)
	case "rooms":
		err = call(conn, map[string]any{"type": "LIST_ROOMS"}, &response)
	case "players":
		err = call(conn, map[string]any{"type": "LIST_ACTIVE_PLAYERS"}, &response)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// call sends one request and fails on an error response. A nil result
// discards the body.
func call(conn *wire.Conn, req map[string]any, result *map[string]any) error {
	if err := conn.Send(req); err != nil {
		return fmt.Errorf("sending %v: %w", req["type"], err)
	}
	var response map[string]any
	if err := conn.Recv(&response); err != nil {
		return fmt.Errorf("reading %v response: %w", req["type"], err)
	}
	if response["ok"] != true {
		return fmt.Errorf("%v rejected: %v", req["type"], response["error"])
	}
	if result != nil {
		*result = response
	}
	return nil
}
