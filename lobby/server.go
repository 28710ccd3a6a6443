// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package lobby implements the room and session orchestration engine.
// Each client connection runs a synchronous request/response loop over
// length-prefixed JSON frames; the server tracks sessions, drives the
// room lifecycle, and launches one game server process per playing
// room.
package lobby

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/parlor-games/parlor/lib/clock"
	"github.com/parlor-games/parlor/lib/config"
	"github.com/parlor-games/parlor/lib/ports"
	"github.com/parlor-games/parlor/lib/wire"
	"github.com/parlor-games/parlor/storage"
)

// Server is the lobby daemon. One instance serves all connections.
type Server struct {
	cfg     config.Config
	backend storage.Backend
	logger  *slog.Logger
	clock   clock.Clock
	ports   *ports.Allocator
	reg     *registry

	// sessionKey signs session tokens. Generated fresh per run, so a
	// restart invalidates every outstanding token.
	sessionKey ed25519.PrivateKey

	// membershipMu serializes the check-then-insert membership paths
	// (create, join, accept invite) so a player ends up in at most one
	// open room even under concurrent requests. Capacity itself is
	// enforced atomically by the backend's MemberAdd.
	membershipMu sync.Mutex

	// listenHost and listenPort are the split cfg.Listen, reused in
	// the worker environment contract.
	listenHost string
	listenPort int

	connections sync.WaitGroup
	monitors    sync.WaitGroup
}

// New builds a Server from validated configuration. The runtime root
// is created if missing, and launch state left behind by a previous
// run is swept.
func New(cfg config.Config, backend storage.Backend, logger *slog.Logger, clk clock.Clock) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	host, portStr, err := net.SplitHostPort(cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("parsing listen address %q: %w", cfg.Listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parsing listen port %q: %w", portStr, err)
	}
	if err := os.MkdirAll(cfg.RuntimeRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating runtime root: %w", err)
	}
	_, sessionKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		backend:    backend,
		logger:     logger,
		clock:      clk,
		ports:      ports.NewAllocator(host, cfg.Ports.Start, cfg.Ports.End),
		reg:        newRegistry(),
		sessionKey: sessionKey,
		listenHost: host,
		listenPort: port,
	}
	if err := s.sweepStaleLaunches(); err != nil {
		logger.Warn("sweeping stale launch state", "error", err)
	}
	return s, nil
}

// publicHost is the address advertised to game clients.
func (s *Server) publicHost() string {
	if s.cfg.PublicHost != "" {
		return s.cfg.PublicHost
	}
	return s.listenHost
}

// Serve accepts connections until ctx is cancelled, then terminates
// every active launch and drains connection and monitor goroutines.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("lobby listening", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		listener.Close()
		s.reg.closeConns()
	}()

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.connections.Add(1)
		go func() {
			defer s.connections.Done()
			s.handleConnection(ctx, netConn)
		}()
	}

	s.connections.Wait()
	s.terminateLaunches()
	s.monitors.Wait()
	s.logger.Info("lobby stopped")
	return nil
}

// connState identifies one client connection in the registry.
type connState struct {
	conn    *wire.Conn
	netConn net.Conn
	remote  string
}

func (s *Server) handleConnection(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	state := &connState{
		conn:    wire.NewConn(netConn, wire.MaxPackageFrame),
		netConn: netConn,
		remote:  netConn.RemoteAddr().String(),
	}
	if !s.reg.bindConn(state) {
		return
	}
	defer s.disconnect(ctx, state)

	s.logger.Info("client connected", "remote", state.remote)
	for {
		raw, err := state.conn.RecvRaw()
		if err != nil {
			var protoErr *wire.ProtocolError
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				s.logger.Info("client disconnected", "remote", state.remote)
			case errors.As(err, &protoErr):
				s.logger.Warn("protocol violation", "remote", state.remote, "reason", protoErr.Reason)
			default:
				s.logger.Warn("connection read failed", "remote", state.remote, "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			s.logger.Warn("malformed request body", "remote", state.remote, "error", err)
			return
		}

		fields, err := s.dispatch(ctx, state, &req)
		var response map[string]any
		if err != nil {
			message, expected := userMessage(err)
			if !expected {
				s.logger.Error("request failed", "remote", state.remote, "type", req.Type, "error", err)
			}
			response = wire.Fail(message)
		} else {
			response = wire.OK(fields)
		}
		if err := state.conn.Send(response); err != nil {
			s.logger.Warn("sending response", "remote", state.remote, "error", err)
			return
		}
	}
}

// disconnect runs the guaranteed cleanup path for a closing
// connection. It is safe to race with an explicit LOGOUT.
func (s *Server) disconnect(ctx context.Context, state *connState) {
	session := s.reg.dropConn(state)
	if session == nil {
		return
	}
	s.logger.Info("session ended", "player", session.Username, "playerId", session.PlayerID)
	s.cleanupUser(ctx, session.PlayerID)
}

// request is the union of every field the protocol carries. The type
// field discriminates.
type request struct {
	Type string `json:"type"`

	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	DisplayName  string `json:"displayName"`

	GameID    int64 `json:"gameId"`
	VersionID int64 `json:"versionId"`

	RoomID   int64           `json:"roomId"`
	RoomCode string          `json:"roomCode"`
	Capacity int             `json:"capacity"`
	Metadata json.RawMessage `json:"metadata"`

	ToPlayerID int64 `json:"toPlayerId"`
	InviteID   int64 `json:"inviteId"`

	Rating  float64 `json:"rating"`
	Comment string  `json:"comment"`

	Message string `json:"message"`
	Limit   int    `json:"limit"`
}

func (s *Server) dispatch(ctx context.Context, state *connState, req *request) (map[string]any, error) {
	switch req.Type {
	case "PING":
		return nil, nil
	case "REGISTER":
		return s.handleRegister(ctx, req)
	case "LOGIN":
		return s.handleLogin(ctx, state, req)
	}

	session := s.reg.sessionOf(state)
	if session == nil {
		return nil, authErrorf("not authenticated")
	}

	switch req.Type {
	case "LOGOUT":
		return s.handleLogout(ctx, state)
	case "LIST_GAMES":
		return s.handleListGames(ctx)
	case "GET_GAME_DETAILS":
		return s.handleGameDetails(ctx, req)
	case "DOWNLOAD_GAME":
		return s.handleDownload(ctx, session, req)
	case "LIST_ROOMS":
		return s.handleListRooms(ctx)
	case "CREATE_ROOM":
		return s.handleCreateRoom(ctx, session, req)
	case "JOIN_ROOM":
		return s.handleJoinRoom(ctx, session, req)
	case "LEAVE_ROOM":
		return s.handleLeaveRoom(ctx, session, req)
	case "GET_ROOM_DETAILS":
		return s.handleRoomDetails(ctx, session, req)
	case "START_GAME":
		return s.handleStartGame(ctx, session, req)
	case "GET_GAME":
		return s.handleGetGame(ctx, session, req)
	case "SUBMIT_REVIEW":
		return s.handleSubmitReview(ctx, session, req)
	case "LIST_ACTIVE_PLAYERS":
		return s.handleListActivePlayers(ctx)
	case "INVITE":
		return s.handleInvite(ctx, session, req)
	case "LIST_INVITES":
		return s.handleListInvites(ctx, session)
	case "ACCEPT_INVITE":
		return s.handleAcceptInvite(ctx, session, req)
	case "ROOM_CHAT":
		return s.handleRoomChat(ctx, session, req)
	case "GET_ROOM_CHAT_HISTORY":
		return s.handleChatHistory(ctx, session, req)
	}
	return nil, validationErrorf("unknown action")
}
