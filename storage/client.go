// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/parlor-games/parlor/lib/wire"
)

// dialTimeout caps the connect phase of one RPC.
const dialTimeout = 5 * time.Second

// callTimeout is the default per-call deadline when the caller's
// context carries none.
const callTimeout = 30 * time.Second

// RPCError is returned by Call when the storage daemon responds with
// ok=false for a reason other than the mapped sentinel conditions.
type RPCError struct {
	Entity  string
	Action  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("storage rpc %s.%s: %s", e.Entity, e.Action, e.Message)
}

// Client is the Storage Facade: a Backend implementation that sends
// every call as one entity/action RPC over a fresh TCP connection,
// matching the daemon's one-request-per-connection model. Safe for
// concurrent use.
type Client struct {
	addr string
}

// NewClient returns a facade for the storage daemon at addr.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// request is the entity/action envelope.
type request struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	Data   any    `json:"data"`
}

type response struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Call performs one entity/action RPC. data is marshaled as the "data"
// object; a non-nil result receives the decoded "result" value. Failure
// responses with a sentinel code map back to the package sentinels
// (ErrNotFound, ErrConflict, ErrCapacity) so callers can errors.Is
// across the wire.
func (c *Client) Call(ctx context.Context, entity, action string, data any, result any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("storage rpc %s.%s: dialing %s: %w", entity, action, c.addr, err)
	}
	defer netConn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		netConn.SetDeadline(deadline)
	}

	conn := wire.NewConn(netConn, wire.MaxPackageFrame)
	if err := conn.Send(request{Entity: entity, Action: action, Data: data}); err != nil {
		return fmt.Errorf("storage rpc %s.%s: %w", entity, action, err)
	}
	var resp response
	if err := conn.Recv(&resp); err != nil {
		return fmt.Errorf("storage rpc %s.%s: %w", entity, action, err)
	}
	if !resp.OK {
		switch resp.Code {
		case codeNotFound:
			return fmt.Errorf("storage rpc %s.%s: %w", entity, action, ErrNotFound)
		case codeConflict:
			return fmt.Errorf("storage rpc %s.%s: %w", entity, action, ErrConflict)
		case codeCapacity:
			return fmt.Errorf("storage rpc %s.%s: %w", entity, action, ErrCapacity)
		}
		return &RPCError{Entity: entity, Action: action, Message: resp.Error}
	}
	if result != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("storage rpc %s.%s: decoding result: %w", entity, action, err)
		}
	}
	return nil
}

// The typed Backend surface, one thin wrapper per contract method.

func (c *Client) PlayerCreate(ctx context.Context, username, passwordHash, displayName string) (PlayerAccount, error) {
	var account PlayerAccount
	err := c.Call(ctx, "PlayerAccount", "create", map[string]any{
		"username": username, "passwordHash": passwordHash, "displayName": displayName,
	}, &account)
	return account, err
}

func (c *Client) PlayerByID(ctx context.Context, id int64) (PlayerAccount, error) {
	var account PlayerAccount
	err := c.Call(ctx, "PlayerAccount", "read", map[string]any{"id": id}, &account)
	return account, err
}

func (c *Client) PlayerByUsername(ctx context.Context, username string) (PlayerAccount, error) {
	var account PlayerAccount
	err := c.Call(ctx, "PlayerAccount", "read_by_username", map[string]any{"username": username}, &account)
	return account, err
}

func (c *Client) PlayerTouchLogin(ctx context.Context, id int64) error {
	return c.Call(ctx, "PlayerAccount", "set_last_login", map[string]any{"id": id}, nil)
}

func (c *Client) GameByID(ctx context.Context, id int64) (Game, error) {
	var game Game
	err := c.Call(ctx, "Game", "read", map[string]any{"id": id}, &game)
	return game, err
}

func (c *Client) GamesPublished(ctx context.Context) ([]Game, error) {
	var games []Game
	err := c.Call(ctx, "Game", "list_published", map[string]any{}, &games)
	return games, err
}

func (c *Client) VersionByID(ctx context.Context, id int64) (GameVersion, error) {
	var version GameVersion
	err := c.Call(ctx, "GameVersion", "read", map[string]any{"id": id}, &version)
	return version, err
}

func (c *Client) VersionsByGame(ctx context.Context, gameID int64) ([]GameVersion, error) {
	var versions []GameVersion
	err := c.Call(ctx, "GameVersion", "list_by_game", map[string]any{"gameId": gameID}, &versions)
	return versions, err
}

func (c *Client) RoomCreate(ctx context.Context, room NewRoom) (Room, error) {
	var created Room
	err := c.Call(ctx, "Room", "create", map[string]any{
		"code":          room.Code,
		"ownerPlayerId": room.OwnerPlayerID,
		"gameId":        room.GameID,
		"gameVersionId": room.GameVersionID,
		"capacity":      room.Capacity,
		"metadataJson":  room.MetadataJSON,
	}, &created)
	return created, err
}

func (c *Client) RoomByID(ctx context.Context, id int64) (Room, error) {
	var room Room
	err := c.Call(ctx, "Room", "read", map[string]any{"id": id}, &room)
	return room, err
}

func (c *Client) RoomByCode(ctx context.Context, code string) (Room, error) {
	var room Room
	err := c.Call(ctx, "Room", "read_by_code", map[string]any{"code": code}, &room)
	return room, err
}

func (c *Client) RoomsOpen(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := c.Call(ctx, "Room", "list_open", map[string]any{}, &rooms)
	return rooms, err
}

func (c *Client) RoomsByOwner(ctx context.Context, ownerID int64) ([]Room, error) {
	var rooms []Room
	err := c.Call(ctx, "Room", "list_by_owner", map[string]any{"ownerId": ownerID}, &rooms)
	return rooms, err
}

func (c *Client) RoomSetStatus(ctx context.Context, id int64, status string) error {
	return c.Call(ctx, "Room", "update_status", map[string]any{"id": id, "status": status}, nil)
}

func (c *Client) RoomDelete(ctx context.Context, id int64) (bool, error) {
	var result struct {
		Deleted bool `json:"deleted"`
	}
	err := c.Call(ctx, "Room", "delete", map[string]any{"id": id}, &result)
	return result.Deleted, err
}

func (c *Client) MemberAdd(ctx context.Context, roomID, playerID int64) error {
	return c.Call(ctx, "RoomMember", "add", map[string]any{"roomId": roomID, "playerId": playerID}, nil)
}

func (c *Client) MemberRemove(ctx context.Context, roomID, playerID int64) error {
	return c.Call(ctx, "RoomMember", "remove", map[string]any{"roomId": roomID, "playerId": playerID}, nil)
}

func (c *Client) MembersByRoom(ctx context.Context, roomID int64) ([]RoomMember, error) {
	var members []RoomMember
	err := c.Call(ctx, "RoomMember", "list", map[string]any{"roomId": roomID}, &members)
	return members, err
}

func (c *Client) MembersClearRoom(ctx context.Context, roomID int64) error {
	return c.Call(ctx, "RoomMember", "clear_room", map[string]any{"roomId": roomID}, nil)
}

func (c *Client) MembersDeleteByPlayer(ctx context.Context, playerID int64) error {
	return c.Call(ctx, "RoomMember", "delete_by_player", map[string]any{"playerId": playerID}, nil)
}

func (c *Client) MemberRoomOf(ctx context.Context, playerID int64) (Room, error) {
	var room Room
	err := c.Call(ctx, "RoomMember", "find_player_room", map[string]any{"playerId": playerID}, &room)
	return room, err
}

func (c *Client) InviteCreate(ctx context.Context, roomID, fromPlayerID, toPlayerID int64) (Invite, error) {
	var invite Invite
	err := c.Call(ctx, "Invite", "create", map[string]any{
		"roomId": roomID, "fromPlayerId": fromPlayerID, "toPlayerId": toPlayerID,
	}, &invite)
	return invite, err
}

func (c *Client) InviteByID(ctx context.Context, id int64) (Invite, error) {
	var invite Invite
	err := c.Call(ctx, "Invite", "read", map[string]any{"id": id}, &invite)
	return invite, err
}

func (c *Client) InvitesToPlayer(ctx context.Context, playerID int64) ([]Invite, error) {
	var invites []Invite
	err := c.Call(ctx, "Invite", "list_by_player", map[string]any{"playerId": playerID}, &invites)
	return invites, err
}

func (c *Client) InviteSetStatus(ctx context.Context, id int64, status string) error {
	return c.Call(ctx, "Invite", "update_status", map[string]any{"id": id, "status": status}, nil)
}

func (c *Client) InvitesDeleteByRoom(ctx context.Context, roomID int64) error {
	return c.Call(ctx, "Invite", "delete_by_room", map[string]any{"roomId": roomID}, nil)
}

func (c *Client) InvitesDeleteByPlayer(ctx context.Context, playerID int64) error {
	return c.Call(ctx, "Invite", "delete_by_player", map[string]any{"playerId": playerID}, nil)
}

func (c *Client) ReviewUpsert(ctx context.Context, review GameReview) (GameReview, error) {
	var stored GameReview
	err := c.Call(ctx, "GameReview", "upsert", map[string]any{
		"gameId": review.GameID, "playerId": review.PlayerID,
		"rating": review.Rating, "comment": review.Comment,
	}, &stored)
	return stored, err
}

func (c *Client) ReviewsByGame(ctx context.Context, gameID int64) ([]GameReview, error) {
	var reviews []GameReview
	err := c.Call(ctx, "GameReview", "list_by_game", map[string]any{"gameId": gameID}, &reviews)
	return reviews, err
}

func (c *Client) DownloadRecord(ctx context.Context, playerID, versionID int64) error {
	return c.Call(ctx, "PlayerDownload", "record", map[string]any{
		"playerId": playerID, "gameVersionId": versionID,
	}, nil)
}

func (c *Client) DownloadsByPlayer(ctx context.Context, playerID int64) ([]PlayerDownload, error) {
	var downloads []PlayerDownload
	err := c.Call(ctx, "PlayerDownload", "list_versions", map[string]any{"playerId": playerID}, &downloads)
	return downloads, err
}

func (c *Client) ChatAdd(ctx context.Context, roomID, playerID int64, message string) (ChatMessage, error) {
	var stored ChatMessage
	err := c.Call(ctx, "RoomChat", "create", map[string]any{
		"roomId": roomID, "playerId": playerID, "message": message,
	}, &stored)
	return stored, err
}

func (c *Client) ChatHistory(ctx context.Context, roomID int64, limit int) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := c.Call(ctx, "RoomChat", "list", map[string]any{"roomId": roomID, "limit": limit}, &messages)
	return messages, err
}

// Compile-time check that the facade satisfies the contract.
var _ Backend = (*Client)(nil)
