// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package gameenv defines the environment contract between the lobby
// and the game server processes it launches. The lobby renders a
// Contract into KEY=VALUE pairs; a game server parses its environment
// back into one.
package gameenv

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// Player is one room member as handed to the game server. Slots are
// assigned in join order starting at 1.
type Player struct {
	ID       int64  `json:"playerId"`
	Username string `json:"username"`
	Slot     int    `json:"slot"`
}

// Contract is everything a launched game server learns from its
// environment. No other channel exists at startup.
type Contract struct {
	ServerHost string `env:"GAME_SERVER_HOST"`
	ServerPort int    `env:"GAME_SERVER_PORT"`
	RoomID     int64  `env:"GAME_ROOM_ID"`
	RoomToken  string `env:"GAME_ROOM_TOKEN"`
	VersionID  int64  `env:"GAME_VERSION_ID"`
	LobbyHost  string `env:"LOBBY_HOST"`
	LobbyPort  int    `env:"LOBBY_PORT"`

	PlayersJSON  string `env:"ROOM_PLAYERS" envDefault:"[]"`
	MetadataJSON string `env:"ROOM_METADATA" envDefault:"{}"`
}

// Parse reads the contract from the process environment.
func Parse() (Contract, error) {
	var c Contract
	if err := env.Parse(&c); err != nil {
		return Contract{}, fmt.Errorf("parsing game environment: %w", err)
	}
	if c.ServerPort == 0 {
		return Contract{}, fmt.Errorf("GAME_SERVER_PORT is not set")
	}
	if c.RoomToken == "" {
		return Contract{}, fmt.Errorf("GAME_ROOM_TOKEN is not set")
	}
	return c, nil
}

// Players decodes the ROOM_PLAYERS payload.
func (c Contract) Players() ([]Player, error) {
	var players []Player
	if err := json.Unmarshal([]byte(c.PlayersJSON), &players); err != nil {
		return nil, fmt.Errorf("decoding ROOM_PLAYERS: %w", err)
	}
	return players, nil
}

// Environ renders the contract as KEY=VALUE pairs for exec. The
// result is the complete child environment apart from the PATH and
// HOME entries the launcher appends.
func (c Contract) Environ() []string {
	return []string{
		"GAME_SERVER_HOST=" + c.ServerHost,
		"GAME_SERVER_PORT=" + strconv.Itoa(c.ServerPort),
		"GAME_ROOM_ID=" + strconv.FormatInt(c.RoomID, 10),
		"GAME_ROOM_TOKEN=" + c.RoomToken,
		"GAME_VERSION_ID=" + strconv.FormatInt(c.VersionID, 10),
		"LOBBY_HOST=" + c.LobbyHost,
		"LOBBY_PORT=" + strconv.Itoa(c.LobbyPort),
		"ROOM_PLAYERS=" + c.PlayersJSON,
		"ROOM_METADATA=" + c.MetadataJSON,
	}
}

// EncodePlayers marshals the member list for ROOM_PLAYERS.
func EncodePlayers(players []Player) (string, error) {
	encoded, err := json.Marshal(players)
	if err != nil {
		return "", fmt.Errorf("encoding room players: %w", err)
	}
	return string(encoded), nil
}
