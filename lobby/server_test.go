// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package lobby

import (
	"archive/zip"
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parlor-games/parlor/lib/config"
	"github.com/parlor-games/parlor/lib/testutil"
	"github.com/parlor-games/parlor/lib/token"
	"github.com/parlor-games/parlor/lib/wire"
	"github.com/parlor-games/parlor/storage"
	"github.com/parlor-games/parlor/storage/memstore"
)

// testLobby wires a Server to a loopback listener over a memstore
// backend, with one seeded published game.
type testLobby struct {
	t       *testing.T
	server  *Server
	backend *memstore.Store
	addr    string
	game    storage.Game
	version storage.GameVersion
	conns   map[*wire.Conn]net.Conn
}

// startTestLobby seeds a two-to-four player game whose server command
// is the given entrypoint and starts serving.
func startTestLobby(t *testing.T, entrypoint string) *testLobby {
	t.Helper()

	tmp := t.TempDir()
	packagePath := writeTestPackage(t, tmp)

	backend := memstore.New(nil)
	game, version := backend.AddGame(
		storage.Game{Title: "Trellis", Status: storage.GamePublished, MinPlayers: 2, MaxPlayers: 4},
		storage.GameVersion{
			Version:          "1.0.0",
			PackagePath:      packagePath,
			ServerEntrypoint: entrypoint,
			ClientMode:       "gui",
		})

	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.RuntimeRoot = filepath.Join(tmp, "runtime")
	cfg.LaunchStateFile = filepath.Join(tmp, "launches.state")
	cfg.Ports = config.PortRange{Start: 25000, End: 25999}
	cfg.LaunchTimeout = 10 * time.Second

	server, err := New(cfg, backend, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatalf("building server: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 30*time.Second, "lobby shutdown"); err != nil {
			t.Errorf("server exited with error: %v", err)
		}
	})

	return &testLobby{
		t:       t,
		server:  server,
		backend: backend,
		addr:    listener.Addr().String(),
		game:    game,
		version: version,
		conns:   make(map[*wire.Conn]net.Conn),
	}
}

// writeTestPackage builds a minimal zip archive standing in for a game
// package.
func writeTestPackage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "trellis-1.0.0.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating package: %v", err)
	}
	zw := zip.NewWriter(f)
	entry, err := zw.Create("README")
	if err != nil {
		t.Fatalf("adding package entry: %v", err)
	}
	if _, err := entry.Write([]byte("game assets\n")); err != nil {
		t.Fatalf("writing package entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing package: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing package file: %v", err)
	}
	return path
}

func (l *testLobby) dial() *wire.Conn {
	l.t.Helper()
	netConn, err := net.Dial("tcp", l.addr)
	if err != nil {
		l.t.Fatalf("dialing lobby: %v", err)
	}
	l.t.Cleanup(func() { netConn.Close() })
	conn := wire.NewConn(netConn, wire.MaxPackageFrame)
	l.conns[conn] = netConn
	return conn
}

// closeConn drops a client's TCP connection, simulating an abrupt
// disconnect.
func (l *testLobby) closeConn(conn *wire.Conn) {
	l.t.Helper()
	if netConn, ok := l.conns[conn]; ok {
		netConn.Close()
		delete(l.conns, conn)
	}
}

func (l *testLobby) call(conn *wire.Conn, req map[string]any) map[string]any {
	l.t.Helper()
	if err := conn.Send(req); err != nil {
		l.t.Fatalf("sending %v: %v", req["type"], err)
	}
	var resp map[string]any
	if err := conn.Recv(&resp); err != nil {
		l.t.Fatalf("receiving %v response: %v", req["type"], err)
	}
	return resp
}

func (l *testLobby) mustOK(conn *wire.Conn, req map[string]any) map[string]any {
	l.t.Helper()
	resp := l.call(conn, req)
	if resp["ok"] != true {
		l.t.Fatalf("%v failed: %v", req["type"], resp["error"])
	}
	return resp
}

// loginAs registers (if needed) and logs in on a fresh connection.
func (l *testLobby) loginAs(username string) *wire.Conn {
	l.t.Helper()
	conn := l.dial()
	resp := l.call(conn, map[string]any{
		"type": "REGISTER", "username": username, "passwordHash": "hash-" + username,
	})
	if resp["ok"] != true && resp["error"] != "username already exists" {
		l.t.Fatalf("REGISTER %s failed: %v", username, resp["error"])
	}
	l.mustOK(conn, map[string]any{
		"type": "LOGIN", "username": username, "passwordHash": "hash-" + username,
	})
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSecondLoginWhileFirstLiveFails(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	lobby.loginAs("alice")

	second := lobby.dial()
	resp := lobby.call(second, map[string]any{
		"type": "LOGIN", "username": "alice", "passwordHash": "hash-alice",
	})
	if resp["ok"] != false {
		t.Fatal("second LOGIN for a live account succeeded")
	}
	msg, _ := resp["error"].(string)
	if !strings.Contains(msg, "already logged in") {
		t.Errorf("error = %q, want mention of a duplicate session", msg)
	}
}

func TestLoginTokenVerifiesUnderServerKey(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	conn := lobby.dial()
	lobby.mustOK(conn, map[string]any{
		"type": "REGISTER", "username": "alice", "passwordHash": "hash-alice",
	})
	resp := lobby.mustOK(conn, map[string]any{
		"type": "LOGIN", "username": "alice", "passwordHash": "hash-alice",
	})

	encoded, _ := resp["token"].(string)
	if encoded == "" {
		t.Fatal("LOGIN returned no token")
	}
	public := lobby.server.sessionKey.Public().(ed25519.PublicKey)
	session, err := token.Verify(encoded, public)
	if err != nil {
		t.Fatalf("verifying session token: %v", err)
	}
	if session.Username != "alice" {
		t.Errorf("token username = %q, want %q", session.Username, "alice")
	}
	if session.PlayerID <= 0 {
		t.Errorf("token player id = %d, want positive", session.PlayerID)
	}

	otherPublic, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generating foreign key: %v", err)
	}
	if _, err := token.Verify(encoded, otherPublic); err == nil {
		t.Error("token verified under a foreign key")
	}
}

func TestRoomCapacityEnforced(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 2,
	})
	roomCode := created["roomCode"].(string)

	bob := lobby.loginAs("bob")
	lobby.mustOK(bob, map[string]any{"type": "JOIN_ROOM", "roomCode": roomCode})

	carol := lobby.loginAs("carol")
	resp := lobby.call(carol, map[string]any{"type": "JOIN_ROOM", "roomCode": roomCode})
	if resp["ok"] != false {
		t.Fatal("third join into a capacity-2 room succeeded")
	}
	if resp["error"] != "room full" {
		t.Errorf("error = %q, want %q", resp["error"], "room full")
	}
}

func TestStartGameAndLaunchConsistency(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	member := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))
	lobby.mustOK(member, map[string]any{"type": "JOIN_ROOM", "roomId": roomID})

	started := lobby.mustOK(owner, map[string]any{"type": "START_GAME", "roomId": roomID})
	launch := started["launch"].(map[string]any)
	if launch["roomToken"] == "" {
		t.Error("launch is missing a room token")
	}

	// The room is playing and a launch exists for it: the bijection.
	room, err := lobby.backend.RoomByID(t.Context(), roomID)
	if err != nil {
		t.Fatalf("reading room: %v", err)
	}
	if room.Status != storage.RoomPlaying {
		t.Errorf("room status = %q, want %q", room.Status, storage.RoomPlaying)
	}
	if lobby.server.reg.launchOf(roomID) == nil {
		t.Error("playing room has no registered launch")
	}

	// Every member polls the same connection details.
	ownerView := lobby.mustOK(owner, map[string]any{"type": "GET_GAME", "roomId": roomID})["launch"].(map[string]any)
	memberView := lobby.mustOK(member, map[string]any{"type": "GET_GAME", "roomId": roomID})["launch"].(map[string]any)
	for _, key := range []string{"host", "port", "roomToken"} {
		if ownerView[key] != memberView[key] {
			t.Errorf("launch %s differs between members: %v vs %v", key, ownerView[key], memberView[key])
		}
		if ownerView[key] != launch[key] {
			t.Errorf("launch %s differs from START_GAME response: %v vs %v", key, ownerView[key], launch[key])
		}
	}

	// A second start on a playing room is rejected.
	resp := lobby.call(owner, map[string]any{"type": "START_GAME", "roomId": roomID})
	if resp["ok"] != false {
		t.Fatal("START_GAME on a playing room succeeded")
	}
}

func TestWorkerExitReturnsRoomToWaiting(t *testing.T) {
	lobby := startTestLobby(t, "/bin/false")
	owner := lobby.loginAs("alice")
	member := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))
	lobby.mustOK(member, map[string]any{"type": "JOIN_ROOM", "roomId": roomID})
	lobby.mustOK(owner, map[string]any{"type": "START_GAME", "roomId": roomID})

	// The worker exits immediately with a nonzero code; members are
	// still online, so the room resets to waiting.
	waitFor(t, "room back to waiting", func() bool {
		room, err := lobby.backend.RoomByID(context.Background(), roomID)
		return err == nil && room.Status == storage.RoomWaiting
	})
	if lobby.server.reg.launchOf(roomID) != nil {
		t.Error("launch entry survived the worker exit")
	}
	waitFor(t, "runtime directory removal", func() bool {
		entries, err := os.ReadDir(lobby.server.cfg.RuntimeRoot)
		return err == nil && len(entries) == 0
	})
}

func TestOwnerDisconnectRemovesRoom(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	member := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomCode := created["roomCode"].(string)

	// Drop the owner's TCP connection without a LOGOUT.
	lobby.closeConn(owner)
	waitFor(t, "room cleanup after owner disconnect", func() bool {
		_, err := lobby.backend.RoomByCode(context.Background(), roomCode)
		return err != nil
	})

	resp := lobby.call(member, map[string]any{"type": "JOIN_ROOM", "roomCode": roomCode})
	if resp["ok"] != false {
		t.Fatal("JOIN_ROOM with a stale code succeeded")
	}
	if resp["error"] != "room not found" {
		t.Errorf("error = %q, want %q", resp["error"], "room not found")
	}
}

func TestOversizeFrameClosesOnlyOneConnection(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	healthy := lobby.loginAs("alice")

	hostile, err := net.Dial("tcp", lobby.addr)
	if err != nil {
		t.Fatalf("dialing lobby: %v", err)
	}
	defer hostile.Close()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 0xFFFFFFFF)
	if _, err := hostile.Write(header[:]); err != nil {
		t.Fatalf("writing hostile header: %v", err)
	}

	// The hostile connection is torn down without reading a body.
	hostile.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := hostile.Read(make([]byte, 1)); err == nil {
		t.Error("hostile connection still open after oversize header")
	}

	// The healthy session is unaffected.
	lobby.mustOK(healthy, map[string]any{"type": "PING"})
}

func TestConcurrentLaunchesUseDistinctPorts(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")

	type seat struct {
		owner  *wire.Conn
		roomID int64
	}
	prepareRoom := func(owner, member string) seat {
		ownerConn := lobby.loginAs(owner)
		memberConn := lobby.loginAs(member)
		created := lobby.mustOK(ownerConn, map[string]any{
			"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
		})
		roomID := int64(created["roomId"].(float64))
		lobby.mustOK(memberConn, map[string]any{"type": "JOIN_ROOM", "roomId": roomID})
		return seat{owner: ownerConn, roomID: roomID}
	}
	first := prepareRoom("alice", "bob")
	second := prepareRoom("carol", "dave")

	type launchResult struct {
		resp map[string]any
		err  error
	}
	results := make(chan launchResult, 2)
	start := func(s seat) {
		if err := s.owner.Send(map[string]any{"type": "START_GAME", "roomId": s.roomID}); err != nil {
			results <- launchResult{err: err}
			return
		}
		var resp map[string]any
		err := s.owner.Recv(&resp)
		results <- launchResult{resp: resp, err: err}
	}
	go start(first)
	go start(second)

	seen := make(map[float64]bool)
	for i := 0; i < 2; i++ {
		result := testutil.RequireReceive(t, results, 30*time.Second, "concurrent START_GAME")
		if result.err != nil {
			t.Fatalf("START_GAME round trip: %v", result.err)
		}
		if result.resp["ok"] != true {
			t.Fatalf("START_GAME failed: %v", result.resp["error"])
		}
		seen[result.resp["launch"].(map[string]any)["port"].(float64)] = true
	}
	if len(seen) != 2 {
		t.Fatalf("concurrent launches shared a port: %v", seen)
	}
}

func TestShutdownCompletesWithIdleClient(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.RuntimeRoot = filepath.Join(tmp, "runtime")
	cfg.LaunchStateFile = ""

	server, err := New(cfg, memstore.New(nil), slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatalf("building server: %v", err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	netConn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("dialing lobby: %v", err)
	}
	t.Cleanup(func() { netConn.Close() })
	conn := wire.NewConn(netConn, wire.MaxControlFrame)
	if err := conn.Send(map[string]any{"type": "PING"}); err != nil {
		t.Fatalf("sending PING: %v", err)
	}
	var resp map[string]any
	if err := conn.Recv(&resp); err != nil {
		t.Fatalf("receiving PING response: %v", err)
	}

	// The client now sits idle in the server's read loop.
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Serve return with an idle client connected"); err != nil {
		t.Errorf("server exited with error: %v", err)
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 2,
	})
	roomID := int64(created["roomId"].(float64))

	joiners := []*wire.Conn{
		lobby.loginAs("bob"),
		lobby.loginAs("carol"),
		lobby.loginAs("dave"),
		lobby.loginAs("erin"),
	}

	type joinResult struct {
		resp map[string]any
		err  error
	}
	results := make(chan joinResult, len(joiners))
	for _, conn := range joiners {
		go func(conn *wire.Conn) {
			if err := conn.Send(map[string]any{"type": "JOIN_ROOM", "roomId": roomID}); err != nil {
				results <- joinResult{err: err}
				return
			}
			var resp map[string]any
			err := conn.Recv(&resp)
			results <- joinResult{resp: resp, err: err}
		}(conn)
	}

	admitted := 0
	for range joiners {
		result := testutil.RequireReceive(t, results, 10*time.Second, "concurrent JOIN_ROOM")
		if result.err != nil {
			t.Fatalf("JOIN_ROOM round trip: %v", result.err)
		}
		if result.resp["ok"] == true {
			admitted++
			continue
		}
		if msg, _ := result.resp["error"].(string); msg != "room full" {
			t.Errorf("rejected join error = %q, want %q", msg, "room full")
		}
	}
	if admitted != 1 {
		t.Errorf("admitted = %d joiners into the single free slot, want 1", admitted)
	}

	members, err := lobby.backend.MembersByRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("MembersByRoom: %v", err)
	}
	if len(members) > 2 {
		t.Fatalf("room holds %d members, capacity 2", len(members))
	}
}

func TestDownloadRejectsOversizePackage(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")

	bigPath := filepath.Join(t.TempDir(), "leviathan-1.0.0.zip")
	if err := os.WriteFile(bigPath, make([]byte, 3<<20+1<<16), 0o644); err != nil {
		t.Fatalf("writing oversize package: %v", err)
	}
	game, _ := lobby.backend.AddGame(
		storage.Game{Title: "Leviathan", Status: storage.GamePublished, MinPlayers: 2, MaxPlayers: 4},
		storage.GameVersion{
			Version:          "1.0.0",
			PackagePath:      bigPath,
			ServerEntrypoint: "/bin/sleep 30",
			ClientMode:       "gui",
		})

	conn := lobby.loginAs("alice")
	resp := lobby.call(conn, map[string]any{"type": "DOWNLOAD_GAME", "gameId": game.ID})
	if resp["ok"] != false {
		t.Fatal("oversize DOWNLOAD_GAME succeeded")
	}
	msg, _ := resp["error"].(string)
	if !strings.Contains(msg, "too large") {
		t.Errorf("error = %q, want a too-large rejection", msg)
	}

	// The rejection is request-fatal, not connection-fatal.
	lobby.mustOK(conn, map[string]any{"type": "PING"})
}

func TestRejoinIsNoOp(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 2,
	})
	roomID := int64(created["roomId"].(float64))

	resp := lobby.mustOK(owner, map[string]any{"type": "JOIN_ROOM", "roomId": roomID})
	if int64(resp["roomId"].(float64)) != roomID {
		t.Errorf("rejoin returned room %v, want %d", resp["roomId"], roomID)
	}
}

func TestStartGameBelowMinimumPlayers(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))

	resp := lobby.call(owner, map[string]any{"type": "START_GAME", "roomId": roomID})
	if resp["ok"] != false {
		t.Fatal("START_GAME below the minimum player count succeeded")
	}
	msg, _ := resp["error"].(string)
	if !strings.Contains(msg, "need at least 2") {
		t.Errorf("error = %q, want the minimum player message", msg)
	}
}

func TestStartGameByNonOwnerRejected(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	member := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))
	lobby.mustOK(member, map[string]any{"type": "JOIN_ROOM", "roomId": roomID})

	resp := lobby.call(member, map[string]any{"type": "START_GAME", "roomId": roomID})
	if resp["error"] != "only host can start" {
		t.Errorf("error = %q, want %q", resp["error"], "only host can start")
	}
}

func TestInviteFlow(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	guest := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))

	bobAccount, err := lobby.backend.PlayerByUsername(t.Context(), "bob")
	if err != nil {
		t.Fatalf("reading bob: %v", err)
	}
	invited := lobby.mustOK(owner, map[string]any{
		"type": "INVITE", "roomId": roomID, "toPlayerId": bobAccount.ID,
	})
	inviteID := int64(invited["inviteId"].(float64))

	listed := lobby.mustOK(guest, map[string]any{"type": "LIST_INVITES"})
	invites := listed["invites"].([]any)
	if len(invites) != 1 {
		t.Fatalf("LIST_INVITES returned %d invites, want 1", len(invites))
	}

	accepted := lobby.mustOK(guest, map[string]any{"type": "ACCEPT_INVITE", "inviteId": inviteID})
	if int64(accepted["roomId"].(float64)) != roomID {
		t.Errorf("ACCEPT_INVITE joined room %v, want %d", accepted["roomId"], roomID)
	}

	members, err := lobby.backend.MembersByRoom(t.Context(), roomID)
	if err != nil {
		t.Fatalf("listing members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("room has %d members after accept, want 2", len(members))
	}
}

func TestRoomChatRequiresMembership(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	owner := lobby.loginAs("alice")
	outsider := lobby.loginAs("bob")

	created := lobby.mustOK(owner, map[string]any{
		"type": "CREATE_ROOM", "gameId": lobby.game.ID, "capacity": 4,
	})
	roomID := int64(created["roomId"].(float64))

	lobby.mustOK(owner, map[string]any{"type": "ROOM_CHAT", "roomId": roomID, "message": "hello"})

	resp := lobby.call(outsider, map[string]any{"type": "ROOM_CHAT", "roomId": roomID, "message": "hi"})
	if resp["error"] != "you are not in this room" {
		t.Errorf("error = %q, want %q", resp["error"], "you are not in this room")
	}

	history := lobby.mustOK(owner, map[string]any{"type": "GET_ROOM_CHAT_HISTORY", "roomId": roomID})
	messages := history["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("chat history has %d messages, want 1", len(messages))
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	lobby := startTestLobby(t, "/bin/sleep 30")
	conn := lobby.dial()

	resp := lobby.call(conn, map[string]any{"type": "LIST_ROOMS"})
	if resp["error"] != "not authenticated" {
		t.Errorf("error = %q, want %q", resp["error"], "not authenticated")
	}

	// PING stays open to unauthenticated probes.
	lobby.mustOK(conn, map[string]any{"type": "PING"})
}

func TestSplitEntrypoint(t *testing.T) {
	tests := []struct {
		entrypoint string
		wantArgv   []string
		wantErr    bool
	}{
		{"bin/server --mode ranked", []string{"bin/server", "--mode", "ranked"}, false},
		{"/usr/bin/game-server", []string{"/usr/bin/game-server"}, false},
		{"", nil, true},
		{"   ", nil, true},
		{"sh -c 'rm -rf /'", nil, true},
		{"server; curl evil", nil, true},
		{"server $(whoami)", nil, true},
		{"server > /tmp/out", nil, true},
		{"server | tee log", nil, true},
	}
	for _, tt := range tests {
		argv, err := splitEntrypoint(tt.entrypoint)
		if tt.wantErr {
			if err == nil {
				t.Errorf("splitEntrypoint(%q) accepted a forbidden entrypoint", tt.entrypoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("splitEntrypoint(%q): %v", tt.entrypoint, err)
			continue
		}
		if len(argv) != len(tt.wantArgv) {
			t.Errorf("splitEntrypoint(%q) = %v, want %v", tt.entrypoint, argv, tt.wantArgv)
			continue
		}
		for i := range argv {
			if argv[i] != tt.wantArgv[i] {
				t.Errorf("splitEntrypoint(%q)[%d] = %q, want %q", tt.entrypoint, i, argv[i], tt.wantArgv[i])
			}
		}
	}
}
