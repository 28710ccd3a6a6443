// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/parlor-games/parlor/lib/wire"
)

// Sentinel codes carried in failure responses so typed errors survive
// the RPC boundary.
const (
	codeNotFound = "not_found"
	codeConflict = "conflict"
	codeCapacity = "capacity"
)

// requestTimeout bounds one request/response cycle on the server side.
const requestTimeout = 30 * time.Second

// Server exposes a Backend over the entity/action RPC contract. Each
// connection carries exactly one request and one response, mirroring
// the client. Unknown entity/action pairs receive a failure response.
type Server struct {
	backend Backend
	logger  *slog.Logger

	// active tracks in-flight handlers so Serve can drain before
	// returning.
	active sync.WaitGroup
}

// NewServer wraps backend for serving. A nil logger discards.
func NewServer(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{backend: backend, logger: logger}
}

// Serve accepts connections on listener until ctx is cancelled, then
// stops accepting and waits for in-flight requests to drain. The
// listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("storage server listening", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	netConn.SetDeadline(time.Now().Add(requestTimeout))
	conn := wire.NewConn(netConn, wire.MaxPackageFrame)

	var req request
	var raw struct {
		Entity string          `json:"entity"`
		Action string          `json:"action"`
		Data   json.RawMessage `json:"data"`
	}
	if err := conn.Recv(&raw); err != nil {
		// Framing violations and truncated requests: nothing sane to
		// respond to, drop the connection.
		s.logger.Warn("dropping malformed request", "remote", netConn.RemoteAddr().String(), "error", err)
		return
	}
	req.Entity, req.Action = raw.Entity, raw.Action

	result, err := s.dispatch(ctx, raw.Entity, raw.Action, raw.Data)
	if err != nil {
		envelope := wire.Fail(err.Error())
		switch {
		case errors.Is(err, ErrNotFound):
			envelope["code"] = codeNotFound
		case errors.Is(err, ErrConflict):
			envelope["code"] = codeConflict
		case errors.Is(err, ErrCapacity):
			envelope["code"] = codeCapacity
		}
		if sendErr := conn.Send(envelope); sendErr != nil {
			s.logger.Warn("writing failure response", "error", sendErr)
		}
		return
	}
	if sendErr := conn.Send(map[string]any{"ok": true, "result": result}); sendErr != nil {
		s.logger.Warn("writing response", "entity", raw.Entity, "action", raw.Action, "error", sendErr)
	}
}

// decode unmarshals the request's data object into params.
func decode(data json.RawMessage, params any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, params); err != nil {
		return fmt.Errorf("invalid data object: %w", err)
	}
	return nil
}

// dispatch maps one entity/action pair onto the Backend. The vocabulary
// is the storage contract; additions are backward compatible, renames
// are not.
func (s *Server) dispatch(ctx context.Context, entity, action string, data json.RawMessage) (any, error) {
	switch entity + "." + action {
	case "PlayerAccount.create":
		var p struct {
			Username     string `json:"username"`
			PasswordHash string `json:"passwordHash"`
			DisplayName  string `json:"displayName"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.PlayerCreate(ctx, p.Username, p.PasswordHash, p.DisplayName)
	case "PlayerAccount.read":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.PlayerByID(ctx, p.ID)
	case "PlayerAccount.read_by_username":
		var p struct {
			Username string `json:"username"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.PlayerByUsername(ctx, p.Username)
	case "PlayerAccount.set_last_login":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.PlayerTouchLogin(ctx, p.ID)

	case "Game.read":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.GameByID(ctx, p.ID)
	case "Game.list_published":
		return s.backend.GamesPublished(ctx)
	case "GameVersion.read":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.VersionByID(ctx, p.ID)
	case "GameVersion.list_by_game":
		var p struct {
			GameID int64 `json:"gameId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.VersionsByGame(ctx, p.GameID)

	case "Room.create":
		var p struct {
			Code          string `json:"code"`
			OwnerPlayerID int64  `json:"ownerPlayerId"`
			GameID        int64  `json:"gameId"`
			GameVersionID int64  `json:"gameVersionId"`
			Capacity      int    `json:"capacity"`
			MetadataJSON  string `json:"metadataJson"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.RoomCreate(ctx, NewRoom{
			Code:          p.Code,
			OwnerPlayerID: p.OwnerPlayerID,
			GameID:        p.GameID,
			GameVersionID: p.GameVersionID,
			Capacity:      p.Capacity,
			MetadataJSON:  p.MetadataJSON,
		})
	case "Room.read":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.RoomByID(ctx, p.ID)
	case "Room.read_by_code":
		var p struct {
			Code string `json:"code"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.RoomByCode(ctx, p.Code)
	case "Room.list_open":
		return s.backend.RoomsOpen(ctx)
	case "Room.list_by_owner":
		var p struct {
			OwnerID int64 `json:"ownerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.RoomsByOwner(ctx, p.OwnerID)
	case "Room.update_status":
		var p struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.RoomSetStatus(ctx, p.ID, p.Status)
	case "Room.delete":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		deleted, err := s.backend.RoomDelete(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"deleted": deleted}, nil

	case "RoomMember.add":
		var p struct {
			RoomID   int64 `json:"roomId"`
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.MemberAdd(ctx, p.RoomID, p.PlayerID)
	case "RoomMember.remove":
		var p struct {
			RoomID   int64 `json:"roomId"`
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.MemberRemove(ctx, p.RoomID, p.PlayerID)
	case "RoomMember.list":
		var p struct {
			RoomID int64 `json:"roomId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.MembersByRoom(ctx, p.RoomID)
	case "RoomMember.clear_room":
		var p struct {
			RoomID int64 `json:"roomId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.MembersClearRoom(ctx, p.RoomID)
	case "RoomMember.delete_by_player":
		var p struct {
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.MembersDeleteByPlayer(ctx, p.PlayerID)
	case "RoomMember.find_player_room":
		var p struct {
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.MemberRoomOf(ctx, p.PlayerID)

	case "Invite.create":
		var p struct {
			RoomID       int64 `json:"roomId"`
			FromPlayerID int64 `json:"fromPlayerId"`
			ToPlayerID   int64 `json:"toPlayerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.InviteCreate(ctx, p.RoomID, p.FromPlayerID, p.ToPlayerID)
	case "Invite.read":
		var p struct {
			ID int64 `json:"id"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.InviteByID(ctx, p.ID)
	case "Invite.list_by_player":
		var p struct {
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.InvitesToPlayer(ctx, p.PlayerID)
	case "Invite.update_status":
		var p struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.InviteSetStatus(ctx, p.ID, p.Status)
	case "Invite.delete_by_room":
		var p struct {
			RoomID int64 `json:"roomId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.InvitesDeleteByRoom(ctx, p.RoomID)
	case "Invite.delete_by_player":
		var p struct {
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.InvitesDeleteByPlayer(ctx, p.PlayerID)

	case "GameReview.upsert":
		var p struct {
			GameID   int64   `json:"gameId"`
			PlayerID int64   `json:"playerId"`
			Rating   float64 `json:"rating"`
			Comment  string  `json:"comment"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.ReviewUpsert(ctx, GameReview{
			GameID: p.GameID, PlayerID: p.PlayerID, Rating: p.Rating, Comment: p.Comment,
		})
	case "GameReview.list_by_game":
		var p struct {
			GameID int64 `json:"gameId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.ReviewsByGame(ctx, p.GameID)

	case "PlayerDownload.record":
		var p struct {
			PlayerID      int64 `json:"playerId"`
			GameVersionID int64 `json:"gameVersionId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return nil, s.backend.DownloadRecord(ctx, p.PlayerID, p.GameVersionID)
	case "PlayerDownload.list_versions":
		var p struct {
			PlayerID int64 `json:"playerId"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.DownloadsByPlayer(ctx, p.PlayerID)

	case "RoomChat.create":
		var p struct {
			RoomID   int64  `json:"roomId"`
			PlayerID int64  `json:"playerId"`
			Message  string `json:"message"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.ChatAdd(ctx, p.RoomID, p.PlayerID, p.Message)
	case "RoomChat.list":
		var p struct {
			RoomID int64 `json:"roomId"`
			Limit  int   `json:"limit"`
		}
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		return s.backend.ChatHistory(ctx, p.RoomID, p.Limit)
	}
	return nil, fmt.Errorf("unknown entity/action %s.%s", entity, action)
}
