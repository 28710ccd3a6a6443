// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package storage_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/parlor-games/parlor/lib/testutil"
	"github.com/parlor-games/parlor/storage"
	"github.com/parlor-games/parlor/storage/memstore"
)

// startTestServer runs a storage server on a loopback listener and
// returns a client pointed at it.
func startTestServer(t *testing.T) (*storage.Client, *memstore.Store) {
	t.Helper()

	backend := memstore.New(nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := storage.NewServer(backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 10*time.Second, "storage shutdown"); err != nil {
			t.Errorf("server exited with error: %v", err)
		}
	})

	return storage.NewClient(listener.Addr().String()), backend
}

func TestPlayerRoundTrip(t *testing.T) {
	client, _ := startTestServer(t)
	ctx := t.Context()

	created, err := client.PlayerCreate(ctx, "alice", "pw-hash", "Alice")
	if err != nil {
		t.Fatalf("PlayerCreate over RPC: %v", err)
	}
	if created.ID == 0 || created.Username != "alice" {
		t.Fatalf("PlayerCreate = %+v, want populated account", created)
	}

	byName, err := client.PlayerByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("PlayerByUsername over RPC: %v", err)
	}
	if byName.ID != created.ID || byName.PasswordHash != "pw-hash" {
		t.Errorf("PlayerByUsername = %+v, want the created account", byName)
	}
}

func TestSentinelErrorsCrossTheWire(t *testing.T) {
	client, _ := startTestServer(t)
	ctx := t.Context()

	if _, err := client.PlayerByID(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing player error = %v, want ErrNotFound", err)
	}

	if _, err := client.PlayerCreate(ctx, "bob", "h1", "Bob"); err != nil {
		t.Fatalf("PlayerCreate: %v", err)
	}
	_, err := client.PlayerCreate(ctx, "bob", "h2", "Bob II")
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate username error = %v, want ErrConflict", err)
	}

	var rpcErr *storage.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("conflict error %v does not carry RPCError detail", err)
	}
	if rpcErr.Entity != "PlayerAccount" || rpcErr.Action != "create" {
		t.Errorf("RPCError = %+v, want PlayerAccount.create", rpcErr)
	}

	owner, err := client.PlayerCreate(ctx, "carol", "h", "Carol")
	if err != nil {
		t.Fatalf("PlayerCreate: %v", err)
	}
	room, err := client.RoomCreate(ctx, storage.NewRoom{
		Code: "FULL01", OwnerPlayerID: owner.ID, GameID: 1, GameVersionID: 1, Capacity: 1, MetadataJSON: "{}",
	})
	if err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}
	if err := client.MemberAdd(ctx, room.ID, owner.ID); err != nil {
		t.Fatalf("MemberAdd: %v", err)
	}
	extra, err := client.PlayerCreate(ctx, "dave", "h", "Dave")
	if err != nil {
		t.Fatalf("PlayerCreate: %v", err)
	}
	if err := client.MemberAdd(ctx, room.ID, extra.ID); !errors.Is(err, storage.ErrCapacity) {
		t.Errorf("full-room MemberAdd error = %v, want ErrCapacity", err)
	}
}

func TestRoomLifecycleOverRPC(t *testing.T) {
	client, backend := startTestServer(t)
	ctx := t.Context()

	game, version := backend.AddGame(
		storage.Game{Title: "Trellis", Status: storage.GamePublished, MinPlayers: 2, MaxPlayers: 4},
		storage.GameVersion{Version: "1.0.0", ServerEntrypoint: "bin/trellis-server"})

	owner, err := client.PlayerCreate(ctx, "alice", "h", "Alice")
	if err != nil {
		t.Fatalf("PlayerCreate: %v", err)
	}

	room, err := client.RoomCreate(ctx, storage.NewRoom{
		Code:          "AB12CD",
		OwnerPlayerID: owner.ID,
		GameID:        game.ID,
		GameVersionID: version.ID,
		Capacity:      4,
		MetadataJSON:  `{"mode":"ranked"}`,
	})
	if err != nil {
		t.Fatalf("RoomCreate over RPC: %v", err)
	}
	if room.Status != storage.RoomWaiting {
		t.Errorf("new room status = %q, want %q", room.Status, storage.RoomWaiting)
	}
	if room.MetadataJSON != `{"mode":"ranked"}` {
		t.Errorf("room metadata = %q, want the submitted JSON", room.MetadataJSON)
	}

	if err := client.MemberAdd(ctx, room.ID, owner.ID); err != nil {
		t.Fatalf("MemberAdd: %v", err)
	}
	members, err := client.MembersByRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("MembersByRoom: %v", err)
	}
	if len(members) != 1 || members[0].Username != "alice" {
		t.Fatalf("MembersByRoom = %+v, want alice as the only member", members)
	}

	current, err := client.MemberRoomOf(ctx, owner.ID)
	if err != nil {
		t.Fatalf("MemberRoomOf: %v", err)
	}
	if current.ID != room.ID {
		t.Errorf("MemberRoomOf = room %d, want %d", current.ID, room.ID)
	}

	if err := client.RoomSetStatus(ctx, room.ID, storage.RoomPlaying); err != nil {
		t.Fatalf("RoomSetStatus: %v", err)
	}
	byCode, err := client.RoomByCode(ctx, "AB12CD")
	if err != nil {
		t.Fatalf("RoomByCode: %v", err)
	}
	if byCode.Status != storage.RoomPlaying {
		t.Errorf("RoomByCode status = %q, want %q", byCode.Status, storage.RoomPlaying)
	}

	deleted, err := client.RoomDelete(ctx, room.ID)
	if err != nil {
		t.Fatalf("RoomDelete: %v", err)
	}
	if !deleted {
		t.Error("RoomDelete reported nothing deleted for an existing room")
	}
	deleted, err = client.RoomDelete(ctx, room.ID)
	if err != nil {
		t.Fatalf("second RoomDelete: %v", err)
	}
	if deleted {
		t.Error("second RoomDelete reported a deletion")
	}
}

func TestCatalogAndChatOverRPC(t *testing.T) {
	client, backend := startTestServer(t)
	ctx := t.Context()

	game, version := backend.AddGame(
		storage.Game{Title: "Trellis", Status: storage.GamePublished, MinPlayers: 2, MaxPlayers: 2},
		storage.GameVersion{Version: "2.1.0", PackagePath: "trellis-2.1.0.tar.zst"})

	published, err := client.GamesPublished(ctx)
	if err != nil {
		t.Fatalf("GamesPublished: %v", err)
	}
	if len(published) != 1 || published[0].ID != game.ID {
		t.Fatalf("GamesPublished = %+v, want the seeded game", published)
	}

	fetched, err := client.VersionByID(ctx, version.ID)
	if err != nil {
		t.Fatalf("VersionByID: %v", err)
	}
	if fetched.PackagePath != "trellis-2.1.0.tar.zst" {
		t.Errorf("VersionByID package path = %q", fetched.PackagePath)
	}

	player, err := client.PlayerCreate(ctx, "alice", "h", "Alice")
	if err != nil {
		t.Fatalf("PlayerCreate: %v", err)
	}
	room, err := client.RoomCreate(ctx, storage.NewRoom{
		Code: "CHAT01", OwnerPlayerID: player.ID, GameID: game.ID, GameVersionID: version.ID, Capacity: 2, MetadataJSON: "{}",
	})
	if err != nil {
		t.Fatalf("RoomCreate: %v", err)
	}

	sent, err := client.ChatAdd(ctx, room.ID, player.ID, "anyone up for a round?")
	if err != nil {
		t.Fatalf("ChatAdd: %v", err)
	}
	if sent.Username != "alice" {
		t.Errorf("ChatAdd username = %q, want alice", sent.Username)
	}
	history, err := client.ChatHistory(ctx, room.ID, 10)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(history) != 1 || history[0].Message != "anyone up for a round?" {
		t.Fatalf("ChatHistory = %+v, want the single message", history)
	}
}
