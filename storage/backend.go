// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines Parlor's durable-state contract: the record
// types, the Backend interface every store implements, and the
// entity/action RPC client and server that carry the contract over
// TCP.
//
// The lobby daemon only ever talks to a Backend. In production that is
// a Client pointed at the storage daemon; in tests it is an in-memory
// implementation. Either way, the lobby's rule holds: in-memory lobby
// state is never mutated ahead of the durable write it depends on.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by reads whose subject does not exist and by
// conditional writes whose subject disappeared. RPC transport errors
// are never ErrNotFound.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a uniqueness constraint rejects a write
// (duplicate username, duplicate open-room code, duplicate member).
var ErrConflict = errors.New("record conflicts with an existing one")

// ErrCapacity is returned by MemberAdd when the room already holds its
// configured maximum of members.
var ErrCapacity = errors.New("room capacity reached")

// NewRoom carries the caller-supplied fields of a room creation.
type NewRoom struct {
	Code          string
	OwnerPlayerID int64
	GameID        int64
	GameVersionID int64
	Capacity      int
	MetadataJSON  string
}

// Backend is the storage contract. Every method is safe for concurrent
// use. Implementations: sqlitestore (durable), the RPC Client
// (delegating to a remote Backend), and test fakes.
type Backend interface {
	// Player accounts.
	PlayerCreate(ctx context.Context, username, passwordHash, displayName string) (PlayerAccount, error)
	PlayerByID(ctx context.Context, id int64) (PlayerAccount, error)
	PlayerByUsername(ctx context.Context, username string) (PlayerAccount, error)
	PlayerTouchLogin(ctx context.Context, id int64) error

	// Game catalog (read-only from the lobby's perspective).
	GameByID(ctx context.Context, id int64) (Game, error)
	GamesPublished(ctx context.Context) ([]Game, error)
	VersionByID(ctx context.Context, id int64) (GameVersion, error)
	VersionsByGame(ctx context.Context, gameID int64) ([]GameVersion, error)

	// Rooms.
	RoomCreate(ctx context.Context, room NewRoom) (Room, error)
	RoomByID(ctx context.Context, id int64) (Room, error)
	RoomByCode(ctx context.Context, code string) (Room, error)
	RoomsOpen(ctx context.Context) ([]Room, error)
	RoomsByOwner(ctx context.Context, ownerID int64) ([]Room, error)
	RoomSetStatus(ctx context.Context, id int64, status string) error
	// RoomDelete removes the room row. Reports false when the room was
	// already gone, letting idempotent cleanup distinguish "deleted
	// now" from "someone beat us to it".
	RoomDelete(ctx context.Context, id int64) (bool, error)

	// Memberships.
	// MemberAdd inserts the player atomically against the room's
	// capacity: ErrCapacity when the room is full, ErrConflict for a
	// duplicate member, ErrNotFound when the room does not exist.
	MemberAdd(ctx context.Context, roomID, playerID int64) error
	MemberRemove(ctx context.Context, roomID, playerID int64) error
	MembersByRoom(ctx context.Context, roomID int64) ([]RoomMember, error)
	MembersClearRoom(ctx context.Context, roomID int64) error
	MembersDeleteByPlayer(ctx context.Context, playerID int64) error
	// MemberRoomOf returns the open room the player currently occupies
	// (ErrNotFound when idle).
	MemberRoomOf(ctx context.Context, playerID int64) (Room, error)

	// Invites.
	InviteCreate(ctx context.Context, roomID, fromPlayerID, toPlayerID int64) (Invite, error)
	InviteByID(ctx context.Context, id int64) (Invite, error)
	InvitesToPlayer(ctx context.Context, playerID int64) ([]Invite, error)
	InviteSetStatus(ctx context.Context, id int64, status string) error
	InvitesDeleteByRoom(ctx context.Context, roomID int64) error
	InvitesDeleteByPlayer(ctx context.Context, playerID int64) error

	// Reviews, downloads, chat.
	ReviewUpsert(ctx context.Context, review GameReview) (GameReview, error)
	ReviewsByGame(ctx context.Context, gameID int64) ([]GameReview, error)
	DownloadRecord(ctx context.Context, playerID, versionID int64) error
	DownloadsByPlayer(ctx context.Context, playerID int64) ([]PlayerDownload, error)
	ChatAdd(ctx context.Context, roomID, playerID int64, message string) (ChatMessage, error)
	ChatHistory(ctx context.Context, roomID int64, limit int) ([]ChatMessage, error)
}
