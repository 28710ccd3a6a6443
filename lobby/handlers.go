// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/parlor-games/parlor/gamepack"
	"github.com/parlor-games/parlor/lib/token"
	"github.com/parlor-games/parlor/lib/wire"
	"github.com/parlor-games/parlor/storage"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const maxChatMessageLength = 500

// downloadFrameSlack reserves room in a package frame for the envelope
// fields travelling alongside the base64 payload.
const downloadFrameSlack = 4096

// generateRoomCode draws 6-character codes until one is free among
// open rooms.
func (s *Server) generateRoomCode(ctx context.Context) (string, error) {
	buf := make([]byte, 6)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating room code: %w", err)
		}
		for i := range buf {
			buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(buf)
		_, err := s.backend.RoomByCode(ctx, code)
		if errors.Is(err, storage.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking room code: %w", err)
		}
	}
}

func (s *Server) handleRegister(ctx context.Context, req *request) (map[string]any, error) {
	if req.Username == "" || req.PasswordHash == "" {
		return nil, validationErrorf("missing username/password")
	}
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}
	account, err := s.backend.PlayerCreate(ctx, req.Username, req.PasswordHash, displayName)
	if errors.Is(err, storage.ErrConflict) {
		return nil, validationErrorf("username already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	s.logger.Info("player registered", "player", account.Username, "playerId", account.ID)
	return map[string]any{"playerId": account.ID}, nil
}

func (s *Server) handleLogin(ctx context.Context, state *connState, req *request) (map[string]any, error) {
	account, err := s.backend.PlayerByUsername(ctx, req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, authErrorf("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if account.PasswordHash != req.PasswordHash {
		return nil, authErrorf("invalid credentials")
	}

	tokenID, err := token.Opaque("ps")
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}
	now := s.clock.Now().Unix()
	sessionToken, err := token.Mint(token.Session{
		PlayerID: account.ID,
		Username: account.Username,
		IssuedAt: now,
		ID:       tokenID,
	}, s.sessionKey)
	if err != nil {
		return nil, fmt.Errorf("signing session token: %w", err)
	}
	session := &Session{
		PlayerID:    account.ID,
		Username:    account.Username,
		DisplayName: account.DisplayName,
		Token:       sessionToken,
		LoggedInAt:  now,
	}
	if err := s.reg.login(state, session); err != nil {
		return nil, err
	}
	if err := s.backend.PlayerTouchLogin(ctx, account.ID); err != nil {
		s.logger.Warn("recording login time", "playerId", account.ID, "error", err)
	}
	s.logger.Info("player logged in", "player", account.Username, "playerId", account.ID)
	return map[string]any{
		"token": session.Token,
		"player": map[string]any{
			"id":          account.ID,
			"username":    account.Username,
			"displayName": account.DisplayName,
		},
	}, nil
}

func (s *Server) handleLogout(ctx context.Context, state *connState) (map[string]any, error) {
	session := s.reg.logout(state)
	if session != nil {
		s.logger.Info("player logged out", "player", session.Username)
		s.cleanupUser(ctx, session.PlayerID)
	}
	return nil, nil
}

func (s *Server) handleListGames(ctx context.Context) (map[string]any, error) {
	games, err := s.backend.GamesPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	return map[string]any{"games": games}, nil
}

func (s *Server) handleGameDetails(ctx context.Context, req *request) (map[string]any, error) {
	game, err := s.backend.GameByID(ctx, req.GameID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("Game not found")
	}
	if err != nil {
		return nil, fmt.Errorf("reading game: %w", err)
	}
	versions, err := s.backend.VersionsByGame(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	reviews, err := s.backend.ReviewsByGame(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	return map[string]any{"game": game, "versions": versions, "reviews": reviews}, nil
}

// resolveDownloadable returns the published game and the requested (or
// latest) version, rejecting unavailable catalog states with the
// caller-facing reason.
func (s *Server) resolveDownloadable(ctx context.Context, gameID, versionID int64) (storage.Game, storage.GameVersion, error) {
	game, err := s.backend.GameByID(ctx, gameID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Game{}, storage.GameVersion{}, validationErrorf("game not found")
	}
	if err != nil {
		return storage.Game{}, storage.GameVersion{}, fmt.Errorf("reading game: %w", err)
	}
	if game.Status != storage.GamePublished {
		switch game.Status {
		case storage.GameRetired:
			return storage.Game{}, storage.GameVersion{}, validationErrorf(
				fmt.Sprintf("'%s' has been retired and is no longer available", game.Title))
		case storage.GameDraft:
			return storage.Game{}, storage.GameVersion{}, validationErrorf(
				fmt.Sprintf("'%s' is not published yet", game.Title))
		default:
			return storage.Game{}, storage.GameVersion{}, validationErrorf(
				fmt.Sprintf("game is not available (status: %s)", game.Status))
		}
	}
	if versionID == 0 {
		versionID = game.LatestVersionID
		if versionID == 0 {
			return storage.Game{}, storage.GameVersion{}, validationErrorf("no published version")
		}
	}
	version, err := s.backend.VersionByID(ctx, versionID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Game{}, storage.GameVersion{}, validationErrorf("version not found")
	}
	if err != nil {
		return storage.Game{}, storage.GameVersion{}, fmt.Errorf("reading version: %w", err)
	}
	return game, version, nil
}

func (s *Server) handleDownload(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	game, version, err := s.resolveDownloadable(ctx, req.GameID, req.VersionID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(version.PackagePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, resourceErrorf("package missing")
	}
	if err != nil {
		return nil, fmt.Errorf("reading package: %w", err)
	}
	if base64.StdEncoding.EncodedLen(len(raw)) > wire.MaxPackageFrame-downloadFrameSlack {
		return nil, resourceErrorf("package too large to download over this connection")
	}
	if err := s.backend.DownloadRecord(ctx, session.PlayerID, version.ID); err != nil {
		return nil, fmt.Errorf("recording download: %w", err)
	}
	return map[string]any{
		"game":    game,
		"version": version,
		"package": base64.StdEncoding.EncodeToString(raw),
		"sha256":  gamepack.SHA256Hex(raw),
		"blake3":  gamepack.Blake3Hex(raw),
	}, nil
}

func (s *Server) handleListRooms(ctx context.Context) (map[string]any, error) {
	rooms, err := s.backend.RoomsOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	enriched := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		members, err := s.backend.MembersByRoom(ctx, room.ID)
		if err != nil {
			return nil, fmt.Errorf("listing members of room %d: %w", room.ID, err)
		}
		enriched = append(enriched, map[string]any{"room": room, "members": members})
	}
	return map[string]any{"rooms": enriched}, nil
}

func (s *Server) handleCreateRoom(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	s.membershipMu.Lock()
	defer s.membershipMu.Unlock()

	existing, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
	if err == nil {
		return nil, validationErrorf(fmt.Sprintf("You are already in room %s. Leave it first.", existing.Code))
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking membership: %w", err)
	}

	game, version, err := s.resolveDownloadable(ctx, req.GameID, req.VersionID)
	if err != nil {
		return nil, err
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = 4
	}
	if capacity < game.MinPlayers {
		return nil, validationErrorf(fmt.Sprintf("capacity below the game's minimum of %d players", game.MinPlayers))
	}
	if game.MaxPlayers > 0 && capacity > game.MaxPlayers {
		capacity = game.MaxPlayers
	}

	metadata := "{}"
	if len(req.Metadata) > 0 {
		metadata = string(req.Metadata)
	}

	code, err := s.generateRoomCode(ctx)
	if err != nil {
		return nil, err
	}
	room, err := s.backend.RoomCreate(ctx, storage.NewRoom{
		Code:          code,
		OwnerPlayerID: session.PlayerID,
		GameID:        game.ID,
		GameVersionID: version.ID,
		Capacity:      capacity,
		MetadataJSON:  metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	if err := s.backend.MemberAdd(ctx, room.ID, session.PlayerID); err != nil {
		return nil, fmt.Errorf("adding owner to room: %w", err)
	}
	s.logger.Info("room created", "player", session.Username, "code", code, "roomId", room.ID)
	return map[string]any{"roomId": room.ID, "roomCode": code}, nil
}

func (s *Server) handleJoinRoom(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	s.membershipMu.Lock()
	defer s.membershipMu.Unlock()

	existing, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
	if err == nil {
		if req.RoomID != 0 && existing.ID == req.RoomID {
			return map[string]any{"roomId": req.RoomID, "message": "Already in this room"}, nil
		}
		return nil, validationErrorf(fmt.Sprintf("You are already in room %s. Leave it first.", existing.Code))
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking membership: %w", err)
	}

	var room storage.Room
	switch {
	case req.RoomID != 0:
		room, err = s.backend.RoomByID(ctx, req.RoomID)
	case req.RoomCode != "":
		room, err = s.backend.RoomByCode(ctx, strings.ToUpper(req.RoomCode))
	default:
		return nil, validationErrorf("missing room identifier")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}

	if room.Status != storage.RoomWaiting {
		return nil, validationErrorf(fmt.Sprintf("cannot join room (status: %s)", room.Status))
	}
	err = s.backend.MemberAdd(ctx, room.ID, session.PlayerID)
	switch {
	case errors.Is(err, storage.ErrCapacity):
		return nil, validationErrorf("room full")
	case errors.Is(err, storage.ErrNotFound):
		return nil, validationErrorf("room not found")
	case err != nil && !errors.Is(err, storage.ErrConflict):
		return nil, fmt.Errorf("joining room: %w", err)
	}
	s.logger.Info("player joined room", "player", session.Username, "code", room.Code, "roomId", room.ID)
	return map[string]any{"roomId": room.ID}, nil
}

func (s *Server) handleLeaveRoom(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 {
		return nil, validationErrorf("missing roomId")
	}
	room, err := s.backend.RoomByID(ctx, req.RoomID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if err := s.backend.MemberRemove(ctx, req.RoomID, session.PlayerID); err != nil {
		return nil, fmt.Errorf("leaving room: %w", err)
	}
	s.logger.Info("player left room", "player", session.Username, "roomId", req.RoomID)
	if room.ID != 0 && room.OwnerPlayerID == session.PlayerID {
		s.logger.Info("room closed, host left", "code", room.Code, "roomId", room.ID)
		s.cleanupRoom(ctx, room.ID)
	}
	return nil, nil
}

func (s *Server) handleRoomDetails(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 {
		return nil, validationErrorf("missing roomId")
	}
	room, err := s.backend.RoomByID(ctx, req.RoomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	members, err := s.backend.MembersByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	if !memberOf(members, session.PlayerID) {
		return nil, validationErrorf("not in room")
	}
	fields := map[string]any{"room": room, "members": members}
	if launch := s.reg.launchOf(room.ID); launch != nil {
		fields["activeLaunch"] = s.launchInfo(launch)
		fields["startedAt"] = launch.StartedAt
	}
	return fields, nil
}

func (s *Server) handleGetGame(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 {
		return nil, validationErrorf("missing roomId")
	}
	launch := s.reg.launchOf(req.RoomID)
	if launch == nil {
		return nil, validationErrorf("no active game")
	}
	members, err := s.backend.MembersByRoom(ctx, req.RoomID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	if !memberOf(members, session.PlayerID) {
		return nil, validationErrorf("not in room")
	}
	return map[string]any{"launch": s.launchInfo(launch)}, nil
}

func (s *Server) handleSubmitReview(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.GameID == 0 {
		return nil, validationErrorf("missing gameId")
	}
	if _, err := s.backend.GameByID(ctx, req.GameID); errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("game not found")
	} else if err != nil {
		return nil, fmt.Errorf("reading game: %w", err)
	}
	if req.Rating < 1.0 || req.Rating > 5.0 {
		return nil, validationErrorf("rating must be between 1.0 and 5.0")
	}
	if len(req.Comment) > 1000 {
		return nil, validationErrorf("comment too long (max 1000 chars)")
	}

	downloads, err := s.backend.DownloadsByPlayer(ctx, session.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("checking downloads: %w", err)
	}
	versions, err := s.backend.VersionsByGame(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	played := false
	for _, download := range downloads {
		for _, version := range versions {
			if download.GameVersionID == version.ID {
				played = true
			}
		}
	}
	if !played {
		return nil, validationErrorf("you have not played this game yet")
	}

	review, err := s.backend.ReviewUpsert(ctx, storage.GameReview{
		GameID:   req.GameID,
		PlayerID: session.PlayerID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		return nil, fmt.Errorf("saving review: %w", err)
	}
	return map[string]any{"review": review}, nil
}

func (s *Server) handleListActivePlayers(ctx context.Context) (map[string]any, error) {
	sessions := s.reg.liveSessions()
	players := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		state := "Idle"
		room, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
		switch {
		case err == nil && room.Status == storage.RoomPlaying:
			state = "In Game"
		case err == nil:
			state = "In Room"
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("resolving player room: %w", err)
		}
		players = append(players, map[string]any{
			"id":          session.PlayerID,
			"username":    session.Username,
			"displayName": session.DisplayName,
			"loggedInAt":  session.LoggedInAt,
			"state":       state,
		})
	}
	return map[string]any{"players": players}, nil
}

func (s *Server) handleInvite(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 || req.ToPlayerID == 0 {
		return nil, validationErrorf("missing roomId or toPlayerId")
	}
	if req.ToPlayerID == session.PlayerID {
		return nil, validationErrorf("cannot invite yourself")
	}
	if _, err := s.backend.PlayerByID(ctx, req.ToPlayerID); errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("player not found")
	} else if err != nil {
		return nil, fmt.Errorf("reading player: %w", err)
	}
	room, err := s.backend.RoomByID(ctx, req.RoomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if room.OwnerPlayerID != session.PlayerID {
		return nil, validationErrorf("only host can invite")
	}
	if room.Status != storage.RoomWaiting {
		return nil, validationErrorf("room is not waiting for players")
	}
	members, err := s.backend.MembersByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	if len(members) >= room.Capacity {
		return nil, validationErrorf("room is full")
	}
	if memberOf(members, req.ToPlayerID) {
		return nil, validationErrorf("player is already in this room")
	}
	invite, err := s.backend.InviteCreate(ctx, room.ID, session.PlayerID, req.ToPlayerID)
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}
	return map[string]any{"inviteId": invite.ID}, nil
}

func (s *Server) handleListInvites(ctx context.Context, session *Session) (map[string]any, error) {
	invites, err := s.backend.InvitesToPlayer(ctx, session.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return map[string]any{"invites": invites}, nil
}

func (s *Server) handleAcceptInvite(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.InviteID == 0 {
		return nil, validationErrorf("missing inviteId")
	}
	s.membershipMu.Lock()
	defer s.membershipMu.Unlock()

	existing, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
	if err == nil {
		return nil, validationErrorf(fmt.Sprintf("You are already in room %s. Leave it first.", existing.Code))
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking membership: %w", err)
	}

	invite, err := s.backend.InviteByID(ctx, req.InviteID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("invalid invite")
	}
	if err != nil {
		return nil, fmt.Errorf("reading invite: %w", err)
	}
	if invite.ToPlayerID != session.PlayerID || invite.Status != storage.InvitePending {
		return nil, validationErrorf("invalid invite")
	}

	room, err := s.backend.RoomByID(ctx, invite.RoomID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := s.backend.InvitesDeleteByRoom(ctx, invite.RoomID); err != nil {
			s.logger.Warn("pruning invites for missing room", "roomId", invite.RoomID, "error", err)
		}
		return nil, validationErrorf("room not found")
	}
	if err != nil {
		return nil, fmt.Errorf("reading room: %w", err)
	}
	if room.Status != storage.RoomWaiting {
		return nil, validationErrorf("room not waiting")
	}
	err = s.backend.MemberAdd(ctx, room.ID, session.PlayerID)
	switch {
	case errors.Is(err, storage.ErrCapacity):
		return nil, validationErrorf("room full")
	case errors.Is(err, storage.ErrNotFound):
		return nil, validationErrorf("room not found")
	case err != nil && !errors.Is(err, storage.ErrConflict):
		return nil, fmt.Errorf("joining room: %w", err)
	}
	if err := s.backend.InviteSetStatus(ctx, invite.ID, storage.InviteAccepted); err != nil {
		s.logger.Warn("marking invite accepted", "inviteId", invite.ID, "error", err)
	}
	return map[string]any{"roomId": room.ID}, nil
}

func (s *Server) handleRoomChat(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 {
		return nil, validationErrorf("missing roomId")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, validationErrorf("empty message")
	}
	if len(message) > maxChatMessageLength {
		return nil, validationErrorf(fmt.Sprintf("message too long (max %d chars)", maxChatMessageLength))
	}
	room, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && room.ID != req.RoomID) {
		return nil, validationErrorf("you are not in this room")
	}
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	if _, err := s.backend.ChatAdd(ctx, req.RoomID, session.PlayerID, message); err != nil {
		return nil, fmt.Errorf("saving chat message: %w", err)
	}
	return nil, nil
}

func (s *Server) handleChatHistory(ctx context.Context, session *Session, req *request) (map[string]any, error) {
	if req.RoomID == 0 {
		return nil, validationErrorf("missing roomId")
	}
	room, err := s.backend.MemberRoomOf(ctx, session.PlayerID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && room.ID != req.RoomID) {
		return nil, validationErrorf("you are not in this room")
	}
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	messages, err := s.backend.ChatHistory(ctx, req.RoomID, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("reading chat history: %w", err)
	}
	return map[string]any{"messages": messages}, nil
}

func memberOf(members []storage.RoomMember, playerID int64) bool {
	for _, member := range members {
		if member.PlayerID == playerID {
			return true
		}
	}
	return false
}
