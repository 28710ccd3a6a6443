// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"os/exec"
	"sync"

	"github.com/parlor-games/parlor/gameenv"
)

// Session is one authenticated connection. It exists from a
// successful LOGIN until logout or connection loss.
type Session struct {
	PlayerID    int64
	Username    string
	DisplayName string
	Token       string
	LoggedInAt  int64
}

// ActiveLaunch is the live binding between a playing room and its
// spawned game server process.
type ActiveLaunch struct {
	RoomID     int64
	GameID     int64
	VersionID  int64
	Port       int
	RoomToken  string
	RuntimeDir string
	ClientMode string
	Players    []gameenv.Player
	StartedAt  int64

	cmd *exec.Cmd
}

// registry holds every piece of shared mutable lobby state under one
// mutex. Socket I/O never happens while it is held.
type registry struct {
	mu       sync.Mutex
	closed   bool
	sessions map[*connState]*Session
	launches map[int64]*ActiveLaunch
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[*connState]*Session),
		launches: make(map[int64]*ActiveLaunch),
	}
}

// bindConn registers a connection with no session yet. It reports
// false once closeConns has run; the caller must drop the connection.
func (r *registry) bindConn(state *connState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.sessions[state] = nil
	return true
}

// closeConns closes every bound connection and refuses new ones, so
// that blocked reads return and the serve loop can drain.
func (r *registry) closeConns() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for state := range r.sessions {
		state.netConn.Close()
	}
}

// dropConn removes the connection and returns its session, if any.
func (r *registry) dropConn(state *connState) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.sessions[state]
	delete(r.sessions, state)
	return session
}

// login installs a session for the connection unless the account
// already has a live session somewhere.
func (r *registry) login(state *connState, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing != nil && existing.PlayerID == session.PlayerID {
			return authErrorf("This account is already logged in from another session")
		}
	}
	r.sessions[state] = session
	return nil
}

// logout clears the connection's session and returns it.
func (r *registry) logout(state *connState) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	session := r.sessions[state]
	r.sessions[state] = nil
	return session
}

func (r *registry) sessionOf(state *connState) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[state]
}

// onlinePlayerIDs snapshots the set of logged-in accounts.
func (r *registry) onlinePlayerIDs() map[int64]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	online := make(map[int64]bool, len(r.sessions))
	for _, session := range r.sessions {
		if session != nil {
			online[session.PlayerID] = true
		}
	}
	return online
}

// liveSessions snapshots all sessions for listing.
func (r *registry) liveSessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		if session != nil {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// recordLaunch installs the launch for its room. It fails if the room
// already has one; launches and playing rooms stay in bijection.
func (r *registry) recordLaunch(launch *ActiveLaunch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.launches[launch.RoomID]; exists {
		return validationErrorf("game already running for this room")
	}
	r.launches[launch.RoomID] = launch
	return nil
}

func (r *registry) launchOf(roomID int64) *ActiveLaunch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.launches[roomID]
}

// takeLaunch removes and returns the room's launch. The caller owns
// resource teardown; a nil return means another path already took it.
func (r *registry) takeLaunch(roomID int64) *ActiveLaunch {
	r.mu.Lock()
	defer r.mu.Unlock()
	launch := r.launches[roomID]
	delete(r.launches, roomID)
	return launch
}

func (r *registry) launchSnapshot() []*ActiveLaunch {
	r.mu.Lock()
	defer r.mu.Unlock()
	launches := make([]*ActiveLaunch, 0, len(r.launches))
	for _, launch := range r.launches {
		launches = append(launches, launch)
	}
	return launches
}
