// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/parlor-games/parlor/gameenv"
	"github.com/parlor-games/parlor/gamepack"
	"github.com/parlor-games/parlor/lib/ports"
	"github.com/parlor-games/parlor/lib/token"
	"github.com/parlor-games/parlor/storage"
)

// entrypointMetachars are rejected outright. Entrypoints are spawned
// with explicit argv and no shell, so none of these can ever mean
// anything.
const entrypointMetachars = ";|&<>$`()\"'\\*?{}[]~#\n"

// splitEntrypoint turns a stored entrypoint string into argv.
func splitEntrypoint(entrypoint string) ([]string, error) {
	if strings.ContainsAny(entrypoint, entrypointMetachars) {
		return nil, validationErrorf("entrypoint contains forbidden characters")
	}
	argv := strings.Fields(entrypoint)
	if len(argv) == 0 {
		return nil, validationErrorf("empty entrypoint")
	}
	return argv, nil
}

func (s *Server) handleStartGame(ctx context.Context, session *Session, req *request) (map[string]any, error) {
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
	if room.OwnerPlayerID != session.PlayerID {
		return nil, validationErrorf("only host can start")
	}
	if room.Status != storage.RoomWaiting {
		return nil, validationErrorf(fmt.Sprintf("cannot start game (room status: %s)", room.Status))
	}
	version, err := s.backend.VersionByID(ctx, room.GameVersionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, validationErrorf("version missing")
	}
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	members, err := s.backend.MembersByRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}

	minPlayers := 1
	if game, err := s.backend.GameByID(ctx, room.GameID); err == nil && game.MinPlayers > 0 {
		minPlayers = game.MinPlayers
	}
	if len(members) < minPlayers {
		return nil, validationErrorf(
			fmt.Sprintf("need at least %d player(s) to start (currently %d)", minPlayers, len(members)))
	}

	launch, err := s.launchGameInstance(ctx, room, version, members)
	if err != nil {
		return nil, err
	}
	if err := s.reg.recordLaunch(launch); err != nil {
		s.abortLaunch(launch)
		return nil, err
	}

	if err := s.backend.RoomSetStatus(ctx, room.ID, storage.RoomPlaying); err != nil {
		s.reg.takeLaunch(room.ID)
		s.abortLaunch(launch)
		return nil, fmt.Errorf("marking room playing: %w", err)
	}

	s.monitors.Add(1)
	go func() {
		defer s.monitors.Done()
		s.monitorLaunch(launch)
	}()
	s.persistLaunchState()

	s.logger.Info("game started",
		"code", room.Code, "roomId", room.ID, "port", launch.Port, "players", len(members))
	return map[string]any{"launch": s.launchInfo(launch)}, nil
}

// launchGameInstance materializes the runtime directory, allocates a
// port, and spawns the worker process. On any failure it releases
// everything it acquired and leaves no partial state.
func (s *Server) launchGameInstance(ctx context.Context, room storage.Room, version storage.GameVersion, members []storage.RoomMember) (launch *ActiveLaunch, err error) {
	argv, err := splitEntrypoint(version.ServerEntrypoint)
	if err != nil {
		return nil, err
	}

	runtimeDir, err := s.prepareRuntime(ctx, room.ID, version)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(runtimeDir)
		}
	}()

	port, err := s.ports.Allocate()
	if errors.Is(err, ports.ErrExhausted) {
		return nil, resourceErrorf("no free port available")
	}
	if err != nil {
		return nil, fmt.Errorf("allocating port: %w", err)
	}
	defer func() {
		if err != nil {
			s.ports.Release(port)
		}
	}()

	roomToken, err := token.Opaque("rt")
	if err != nil {
		return nil, fmt.Errorf("issuing room token: %w", err)
	}

	players := make([]gameenv.Player, 0, len(members))
	for i, member := range members {
		username := member.Username
		if username == "" {
			username = fmt.Sprintf("Player%d", i+1)
		}
		players = append(players, gameenv.Player{ID: member.PlayerID, Username: username, Slot: i + 1})
	}
	playersJSON, err := gameenv.EncodePlayers(players)
	if err != nil {
		return nil, err
	}

	contract := gameenv.Contract{
		ServerHost:   s.listenHost,
		ServerPort:   port,
		RoomID:       room.ID,
		RoomToken:    roomToken,
		VersionID:    version.ID,
		LobbyHost:    s.listenHost,
		LobbyPort:    s.listenPort,
		PlayersJSON:  playersJSON,
		MetadataJSON: room.MetadataJSON,
	}

	cmd := exec.Command(resolveArgv0(runtimeDir, argv[0]), argv[1:]...)
	cmd.Dir = runtimeDir
	cmd.Env = append(contract.Environ(), "PATH="+os.Getenv("PATH"), "HOME="+os.Getenv("HOME"))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, resourceErrorf(fmt.Sprintf("starting game server: %v", err))
	}

	return &ActiveLaunch{
		RoomID:     room.ID,
		GameID:     room.GameID,
		VersionID:  version.ID,
		Port:       port,
		RoomToken:  roomToken,
		RuntimeDir: runtimeDir,
		ClientMode: version.ClientMode,
		Players:    players,
		StartedAt:  s.clock.Now().Unix(),
		cmd:        cmd,
	}, nil
}

// resolveArgv0 anchors a relative command path in the runtime
// directory so exec never consults the lobby's own cwd.
func resolveArgv0(runtimeDir, argv0 string) string {
	if filepath.IsAbs(argv0) || !strings.Contains(argv0, string(filepath.Separator)) {
		return argv0
	}
	return filepath.Join(runtimeDir, argv0)
}

// prepareRuntime extracts the version's package into a fresh
// collision-free directory under the runtime root. Extraction runs
// under the configured launch deadline.
func (s *Server) prepareRuntime(ctx context.Context, roomID int64, version storage.GameVersion) (string, error) {
	if _, err := os.Stat(version.PackagePath); errors.Is(err, os.ErrNotExist) {
		return "", resourceErrorf("package missing")
	} else if err != nil {
		return "", fmt.Errorf("checking package: %w", err)
	}

	dir := filepath.Join(s.cfg.RuntimeRoot,
		fmt.Sprintf("room_%d_%d_%d", roomID, version.ID, s.clock.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating runtime directory: %w", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.LaunchTimeout)
	defer cancel()
	if err := gamepack.Extract(extractCtx, version.PackagePath, dir); err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", resourceErrorf("package extraction timed out")
		}
		return "", resourceErrorf(fmt.Sprintf("extracting package: %v", err))
	}
	return dir, nil
}

// abortLaunch kills and reclaims a launch that never made it into the
// registry. Its monitor goroutine does not exist yet.
func (s *Server) abortLaunch(launch *ActiveLaunch) {
	terminateProcess(launch.cmd)
	launch.cmd.Wait()
	os.RemoveAll(launch.RuntimeDir)
	s.ports.Release(launch.Port)
}

// launchInfo renders the connection details shared with every room
// member.
func (s *Server) launchInfo(launch *ActiveLaunch) map[string]any {
	return map[string]any{
		"host":          s.publicHost(),
		"port":          launch.Port,
		"roomId":        launch.RoomID,
		"roomToken":     launch.RoomToken,
		"gameId":        launch.GameID,
		"gameVersionId": launch.VersionID,
		"clientMode":    launch.ClientMode,
		"players":       launch.Players,
	}
}
