// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/parlor-games/parlor/storage"
)

// monitorLaunch blocks on the worker's exit without holding any lock,
// then reclaims resources and reconciles room status. It is safe to
// race with cleanupRoom: whoever removes the launch from the registry
// owns teardown.
func (s *Server) monitorLaunch(launch *ActiveLaunch) {
	err := launch.cmd.Wait()
	s.logger.Info("game server exited", "roomId", launch.RoomID, "error", err)

	taken := s.reg.takeLaunch(launch.RoomID)
	if taken == nil {
		return
	}
	s.teardownLaunch(taken)
	s.reconcileRoom(context.Background(), taken.RoomID)
}

// teardownLaunch frees a launch's runtime directory and port. Both
// operations are no-ops when already freed.
func (s *Server) teardownLaunch(launch *ActiveLaunch) {
	if err := os.RemoveAll(launch.RuntimeDir); err != nil {
		s.logger.Warn("removing runtime directory", "dir", launch.RuntimeDir, "error", err)
	}
	s.ports.Release(launch.Port)
	s.persistLaunchState()
}

// reconcileRoom applies the post-exit transition: back to waiting if
// any member is still online, otherwise the room is torn down.
func (s *Server) reconcileRoom(ctx context.Context, roomID int64) {
	room, err := s.backend.RoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("reconciling room", "roomId", roomID, "error", err)
		return
	}
	if room.Status == storage.RoomClosed {
		return
	}

	members, err := s.backend.MembersByRoom(ctx, roomID)
	if err != nil {
		s.logger.Warn("listing members during reconcile", "roomId", roomID, "error", err)
		return
	}
	online := s.reg.onlinePlayerIDs()
	anyOnline := false
	for _, member := range members {
		if online[member.PlayerID] {
			anyOnline = true
			break
		}
	}

	if anyOnline {
		if err := s.backend.RoomSetStatus(ctx, roomID, storage.RoomWaiting); err != nil {
			s.logger.Warn("resetting room to waiting", "roomId", roomID, "error", err)
			return
		}
		s.logger.Info("game ended, room reset to waiting", "roomId", roomID)
		return
	}
	s.logger.Info("game ended with no online members, cleaning up", "roomId", roomID)
	s.cleanupRoom(ctx, roomID)
}

// cleanupRoom tears down a room completely: the launch if one is
// live, then invites, memberships, and the room record itself. Every
// step tolerates already-removed state.
func (s *Server) cleanupRoom(ctx context.Context, roomID int64) {
	if launch := s.reg.takeLaunch(roomID); launch != nil {
		terminateProcess(launch.cmd)
		s.teardownLaunch(launch)
	}

	if err := s.backend.InvitesDeleteByRoom(ctx, roomID); err != nil {
		s.logger.Warn("deleting room invites", "roomId", roomID, "error", err)
	}
	if err := s.backend.MembersClearRoom(ctx, roomID); err != nil {
		s.logger.Warn("clearing room members", "roomId", roomID, "error", err)
	}
	deleted, err := s.backend.RoomDelete(ctx, roomID)
	if err != nil {
		s.logger.Warn("deleting room", "roomId", roomID, "error", err)
		return
	}
	if !deleted {
		if err := s.backend.RoomSetStatus(ctx, roomID, storage.RoomClosed); err != nil &&
			!errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("closing room", "roomId", roomID, "error", err)
		}
	}
}

// cleanupUser reclaims everything tied to an account going offline:
// rooms it owns, memberships elsewhere, and invites in either
// direction. Invoked from logout and from connection loss; running
// twice is harmless.
func (s *Server) cleanupUser(ctx context.Context, playerID int64) {
	rooms, err := s.backend.RoomsByOwner(ctx, playerID)
	if err != nil {
		s.logger.Warn("listing owned rooms during cleanup", "playerId", playerID, "error", err)
	}
	for _, room := range rooms {
		s.cleanupRoom(ctx, room.ID)
	}
	if err := s.backend.MembersDeleteByPlayer(ctx, playerID); err != nil {
		s.logger.Warn("removing memberships during cleanup", "playerId", playerID, "error", err)
	}
	if err := s.backend.InvitesDeleteByPlayer(ctx, playerID); err != nil {
		s.logger.Warn("removing invites during cleanup", "playerId", playerID, "error", err)
	}
}

// terminateLaunches kills every live worker at shutdown. The monitors
// observe the exits and finish teardown.
func (s *Server) terminateLaunches() {
	for _, launch := range s.reg.launchSnapshot() {
		s.logger.Info("terminating game server", "roomId", launch.RoomID)
		terminateProcess(launch.cmd)
	}
}

// terminateProcess signals the worker's whole process group.
func terminateProcess(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		cmd.Process.Kill()
	}
}
