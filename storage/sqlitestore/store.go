// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore implements the storage Backend on SQLite. It is
// the durable half of the storage daemon; the lobby never imports it
// directly.
package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/parlor-games/parlor/lib/clock"
	"github.com/parlor-games/parlor/lib/sqlitepool"
	"github.com/parlor-games/parlor/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS player_accounts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_login_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('draft','published','retired')),
	min_players INTEGER NOT NULL DEFAULT 2,
	max_players INTEGER NOT NULL DEFAULT 2,
	latest_version_id INTEGER
);

CREATE TABLE IF NOT EXISTS game_versions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id INTEGER NOT NULL REFERENCES games(id),
	version_label TEXT NOT NULL,
	package_path TEXT NOT NULL,
	package_hash TEXT NOT NULL DEFAULT '',
	server_entrypoint TEXT NOT NULL,
	client_mode TEXT NOT NULL DEFAULT 'gui'
);

CREATE TABLE IF NOT EXISTS rooms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL,
	owner_player_id INTEGER NOT NULL,
	game_id INTEGER NOT NULL,
	game_version_id INTEGER NOT NULL,
	capacity INTEGER NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('waiting','playing','closed')),
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);

-- Join codes are unique among open rooms only; a closed room's code is
-- free for reuse.
CREATE UNIQUE INDEX IF NOT EXISTS rooms_open_code
	ON rooms(code) WHERE status != 'closed';

CREATE TABLE IF NOT EXISTS room_members (
	room_id INTEGER NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	player_id INTEGER NOT NULL,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, player_id)
);

CREATE TABLE IF NOT EXISTS invites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL,
	from_player_id INTEGER NOT NULL,
	to_player_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS game_reviews (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id INTEGER NOT NULL,
	player_id INTEGER NOT NULL,
	rating REAL NOT NULL CHECK(rating BETWEEN 1.0 AND 5.0),
	comment TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL,
	UNIQUE (game_id, player_id)
);

CREATE TABLE IF NOT EXISTS player_downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	player_id INTEGER NOT NULL,
	game_version_id INTEGER NOT NULL,
	downloaded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS room_chat (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id INTEGER NOT NULL,
	player_id INTEGER NOT NULL,
	message TEXT NOT NULL,
	sent_at INTEGER NOT NULL
);
`

// Store implements storage.Backend on a SQLite database.
type Store struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// Options configures Open beyond the database path.
type Options struct {
	// PoolSize is passed through to sqlitepool.
	PoolSize int

	// Logger receives pool lifecycle messages. Nil discards.
	Logger *slog.Logger

	// Clock stamps created_at/joined_at columns. Nil means Real.
	Clock clock.Clock
}

// Open opens (and if necessary creates) the database at path.
func Open(path string, opts Options) (*Store, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     path,
		PoolSize: opts.PoolSize,
		Logger:   opts.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, clock: clk}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// withConn borrows a connection for the duration of fn.
func (s *Store) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)
	return fn(conn)
}

// mapConstraint converts SQLite uniqueness violations into the
// contract's ErrConflict.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintUnique, sqlite.ResultConstraintPrimaryKey:
		return storage.ErrConflict
	}
	return err
}

func (s *Store) PlayerCreate(ctx context.Context, username, passwordHash, displayName string) (storage.PlayerAccount, error) {
	var account storage.PlayerAccount
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		now := s.clock.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO player_accounts (username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{username, displayName, passwordHash, now}})
		if err != nil {
			return mapConstraint(err)
		}
		account = storage.PlayerAccount{
			ID:           conn.LastInsertRowID(),
			Username:     username,
			DisplayName:  displayName,
			PasswordHash: passwordHash,
			CreatedAt:    now,
		}
		return nil
	})
	return account, err
}

func scanPlayer(stmt *sqlite.Stmt) storage.PlayerAccount {
	return storage.PlayerAccount{
		ID:           stmt.GetInt64("id"),
		Username:     stmt.GetText("username"),
		DisplayName:  stmt.GetText("display_name"),
		PasswordHash: stmt.GetText("password_hash"),
		CreatedAt:    stmt.GetInt64("created_at"),
		LastLoginAt:  stmt.GetInt64("last_login_at"),
	}
}

const playerColumns = `id, username, display_name, password_hash, created_at, last_login_at`

func (s *Store) PlayerByID(ctx context.Context, id int64) (storage.PlayerAccount, error) {
	var account storage.PlayerAccount
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+playerColumns+` FROM player_accounts WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}, ResultFunc: func(stmt *sqlite.Stmt) error {
				account = scanPlayer(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.PlayerAccount{}, err
	}
	if !found {
		return storage.PlayerAccount{}, storage.ErrNotFound
	}
	return account, nil
}

func (s *Store) PlayerByUsername(ctx context.Context, username string) (storage.PlayerAccount, error) {
	var account storage.PlayerAccount
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+playerColumns+` FROM player_accounts WHERE username = ?`,
			&sqlitex.ExecOptions{Args: []any{username}, ResultFunc: func(stmt *sqlite.Stmt) error {
				account = scanPlayer(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.PlayerAccount{}, err
	}
	if !found {
		return storage.PlayerAccount{}, storage.ErrNotFound
	}
	return account, nil
}

func (s *Store) PlayerTouchLogin(ctx context.Context, id int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE player_accounts SET last_login_at = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{s.clock.Now().Unix(), id}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func scanGame(stmt *sqlite.Stmt) storage.Game {
	return storage.Game{
		ID:              stmt.GetInt64("id"),
		OwnerID:         stmt.GetInt64("owner_id"),
		Title:           stmt.GetText("title"),
		Status:          stmt.GetText("status"),
		MinPlayers:      int(stmt.GetInt64("min_players")),
		MaxPlayers:      int(stmt.GetInt64("max_players")),
		LatestVersionID: stmt.GetInt64("latest_version_id"),
	}
}

const gameColumns = `id, owner_id, title, status, min_players, max_players, latest_version_id`

func (s *Store) GameByID(ctx context.Context, id int64) (storage.Game, error) {
	var game storage.Game
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+gameColumns+` FROM games WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}, ResultFunc: func(stmt *sqlite.Stmt) error {
				game = scanGame(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.Game{}, err
	}
	if !found {
		return storage.Game{}, storage.ErrNotFound
	}
	return game, nil
}

func (s *Store) GamesPublished(ctx context.Context) ([]storage.Game, error) {
	games := []storage.Game{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+gameColumns+` FROM games WHERE status = 'published' ORDER BY title`,
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				games = append(games, scanGame(stmt))
				return nil
			}})
	})
	return games, err
}

func scanVersion(stmt *sqlite.Stmt) storage.GameVersion {
	return storage.GameVersion{
		ID:               stmt.GetInt64("id"),
		GameID:           stmt.GetInt64("game_id"),
		Version:          stmt.GetText("version_label"),
		PackagePath:      stmt.GetText("package_path"),
		PackageHash:      stmt.GetText("package_hash"),
		ServerEntrypoint: stmt.GetText("server_entrypoint"),
		ClientMode:       stmt.GetText("client_mode"),
	}
}

const versionColumns = `id, game_id, version_label, package_path, package_hash, server_entrypoint, client_mode`

func (s *Store) VersionByID(ctx context.Context, id int64) (storage.GameVersion, error) {
	var version storage.GameVersion
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+versionColumns+` FROM game_versions WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}, ResultFunc: func(stmt *sqlite.Stmt) error {
				version = scanVersion(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.GameVersion{}, err
	}
	if !found {
		return storage.GameVersion{}, storage.ErrNotFound
	}
	return version, nil
}

func (s *Store) VersionsByGame(ctx context.Context, gameID int64) ([]storage.GameVersion, error) {
	versions := []storage.GameVersion{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+versionColumns+` FROM game_versions WHERE game_id = ? ORDER BY id`,
			&sqlitex.ExecOptions{Args: []any{gameID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				versions = append(versions, scanVersion(stmt))
				return nil
			}})
	})
	return versions, err
}

func scanRoom(stmt *sqlite.Stmt) storage.Room {
	return storage.Room{
		ID:            stmt.GetInt64("id"),
		Code:          stmt.GetText("code"),
		OwnerPlayerID: stmt.GetInt64("owner_player_id"),
		GameID:        stmt.GetInt64("game_id"),
		GameVersionID: stmt.GetInt64("game_version_id"),
		Capacity:      int(stmt.GetInt64("capacity")),
		Status:        stmt.GetText("status"),
		MetadataJSON:  stmt.GetText("metadata_json"),
		CreatedAt:     stmt.GetInt64("created_at"),
	}
}

const roomColumns = `id, code, owner_player_id, game_id, game_version_id, capacity, status, metadata_json, created_at`

func (s *Store) RoomCreate(ctx context.Context, room storage.NewRoom) (storage.Room, error) {
	var created storage.Room
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		now := s.clock.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO rooms (code, owner_player_id, game_id, game_version_id, capacity, status, metadata_json, created_at)
			 VALUES (?, ?, ?, ?, ?, 'waiting', ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				room.Code, room.OwnerPlayerID, room.GameID, room.GameVersionID,
				room.Capacity, room.MetadataJSON, now,
			}})
		if err != nil {
			return mapConstraint(err)
		}
		created = storage.Room{
			ID:            conn.LastInsertRowID(),
			Code:          room.Code,
			OwnerPlayerID: room.OwnerPlayerID,
			GameID:        room.GameID,
			GameVersionID: room.GameVersionID,
			Capacity:      room.Capacity,
			Status:        storage.RoomWaiting,
			MetadataJSON:  room.MetadataJSON,
			CreatedAt:     now,
		}
		return nil
	})
	return created, err
}

func (s *Store) RoomByID(ctx context.Context, id int64) (storage.Room, error) {
	var room storage.Room
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+roomColumns+` FROM rooms WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}, ResultFunc: func(stmt *sqlite.Stmt) error {
				room = scanRoom(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.Room{}, err
	}
	if !found {
		return storage.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (s *Store) RoomByCode(ctx context.Context, code string) (storage.Room, error) {
	var room storage.Room
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+roomColumns+` FROM rooms WHERE code = ? AND status != 'closed'`,
			&sqlitex.ExecOptions{Args: []any{code}, ResultFunc: func(stmt *sqlite.Stmt) error {
				room = scanRoom(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.Room{}, err
	}
	if !found {
		return storage.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (s *Store) RoomsOpen(ctx context.Context) ([]storage.Room, error) {
	rooms := []storage.Room{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+roomColumns+` FROM rooms WHERE status != 'closed' ORDER BY id`,
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				rooms = append(rooms, scanRoom(stmt))
				return nil
			}})
	})
	return rooms, err
}

func (s *Store) RoomsByOwner(ctx context.Context, ownerID int64) ([]storage.Room, error) {
	rooms := []storage.Room{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+roomColumns+` FROM rooms WHERE owner_player_id = ? AND status != 'closed' ORDER BY id`,
			&sqlitex.ExecOptions{Args: []any{ownerID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				rooms = append(rooms, scanRoom(stmt))
				return nil
			}})
	})
	return rooms, err
}

func (s *Store) RoomSetStatus(ctx context.Context, id int64, status string) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE rooms SET status = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{status, id}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) RoomDelete(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`DELETE FROM rooms WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}})
		if err != nil {
			return err
		}
		deleted = conn.Changes() > 0
		return nil
	})
	return deleted, err
}

// MemberAdd inserts the membership only while the room has a free
// slot. The count-versus-capacity comparison rides in the INSERT
// itself, so concurrent joins cannot both pass a stale count.
func (s *Store) MemberAdd(ctx context.Context, roomID, playerID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO room_members (room_id, player_id, joined_at)
			 SELECT ?1, ?2, ?3
			 WHERE (SELECT COUNT(*) FROM room_members WHERE room_id = ?1) <
			       (SELECT capacity FROM rooms WHERE id = ?1)`,
			&sqlitex.ExecOptions{Args: []any{roomID, playerID, s.clock.Now().Unix()}})
		if err != nil {
			return mapConstraint(err)
		}
		if conn.Changes() == 0 {
			member := false
			err := sqlitex.Execute(conn,
				`SELECT 1 FROM room_members WHERE room_id = ? AND player_id = ?`,
				&sqlitex.ExecOptions{
					Args:       []any{roomID, playerID},
					ResultFunc: func(*sqlite.Stmt) error { member = true; return nil },
				})
			if err != nil {
				return err
			}
			if member {
				return storage.ErrConflict
			}
			exists := false
			err = sqlitex.Execute(conn,
				`SELECT 1 FROM rooms WHERE id = ?`,
				&sqlitex.ExecOptions{
					Args:       []any{roomID},
					ResultFunc: func(*sqlite.Stmt) error { exists = true; return nil },
				})
			if err != nil {
				return err
			}
			if !exists {
				return storage.ErrNotFound
			}
			return storage.ErrCapacity
		}
		return nil
	})
}

func (s *Store) MemberRemove(ctx context.Context, roomID, playerID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM room_members WHERE room_id = ? AND player_id = ?`,
			&sqlitex.ExecOptions{Args: []any{roomID, playerID}})
	})
}

func (s *Store) MembersByRoom(ctx context.Context, roomID int64) ([]storage.RoomMember, error) {
	members := []storage.RoomMember{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT m.room_id, m.player_id, m.joined_at, p.username
			 FROM room_members m JOIN player_accounts p ON p.id = m.player_id
			 WHERE m.room_id = ? ORDER BY m.joined_at, m.player_id`,
			&sqlitex.ExecOptions{Args: []any{roomID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				members = append(members, storage.RoomMember{
					RoomID:   stmt.GetInt64("room_id"),
					PlayerID: stmt.GetInt64("player_id"),
					JoinedAt: stmt.GetInt64("joined_at"),
					Username: stmt.GetText("username"),
				})
				return nil
			}})
	})
	return members, err
}

func (s *Store) MembersClearRoom(ctx context.Context, roomID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM room_members WHERE room_id = ?`,
			&sqlitex.ExecOptions{Args: []any{roomID}})
	})
}

func (s *Store) MembersDeleteByPlayer(ctx context.Context, playerID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM room_members WHERE player_id = ?`,
			&sqlitex.ExecOptions{Args: []any{playerID}})
	})
}

func (s *Store) MemberRoomOf(ctx context.Context, playerID int64) (storage.Room, error) {
	var room storage.Room
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT r.id, r.code, r.owner_player_id, r.game_id, r.game_version_id,
			        r.capacity, r.status, r.metadata_json, r.created_at
			 FROM rooms r JOIN room_members m ON m.room_id = r.id
			 WHERE m.player_id = ? AND r.status != 'closed' LIMIT 1`,
			&sqlitex.ExecOptions{Args: []any{playerID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				room = scanRoom(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.Room{}, err
	}
	if !found {
		return storage.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func scanInvite(stmt *sqlite.Stmt) storage.Invite {
	return storage.Invite{
		ID:           stmt.GetInt64("id"),
		RoomID:       stmt.GetInt64("room_id"),
		FromPlayerID: stmt.GetInt64("from_player_id"),
		ToPlayerID:   stmt.GetInt64("to_player_id"),
		Status:       stmt.GetText("status"),
		CreatedAt:    stmt.GetInt64("created_at"),
	}
}

const inviteColumns = `id, room_id, from_player_id, to_player_id, status, created_at`

func (s *Store) InviteCreate(ctx context.Context, roomID, fromPlayerID, toPlayerID int64) (storage.Invite, error) {
	var invite storage.Invite
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		now := s.clock.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO invites (room_id, from_player_id, to_player_id, status, created_at)
			 VALUES (?, ?, ?, 'pending', ?)`,
			&sqlitex.ExecOptions{Args: []any{roomID, fromPlayerID, toPlayerID, now}})
		if err != nil {
			return err
		}
		invite = storage.Invite{
			ID:           conn.LastInsertRowID(),
			RoomID:       roomID,
			FromPlayerID: fromPlayerID,
			ToPlayerID:   toPlayerID,
			Status:       storage.InvitePending,
			CreatedAt:    now,
		}
		return nil
	})
	return invite, err
}

func (s *Store) InviteByID(ctx context.Context, id int64) (storage.Invite, error) {
	var invite storage.Invite
	found := false
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+inviteColumns+` FROM invites WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}, ResultFunc: func(stmt *sqlite.Stmt) error {
				invite = scanInvite(stmt)
				found = true
				return nil
			}})
	})
	if err != nil {
		return storage.Invite{}, err
	}
	if !found {
		return storage.Invite{}, storage.ErrNotFound
	}
	return invite, nil
}

func (s *Store) InvitesToPlayer(ctx context.Context, playerID int64) ([]storage.Invite, error) {
	invites := []storage.Invite{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+inviteColumns+` FROM invites WHERE to_player_id = ? AND status = 'pending' ORDER BY id`,
			&sqlitex.ExecOptions{Args: []any{playerID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				invites = append(invites, scanInvite(stmt))
				return nil
			}})
	})
	return invites, err
}

func (s *Store) InviteSetStatus(ctx context.Context, id int64, status string) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`UPDATE invites SET status = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{status, id}})
		if err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) InvitesDeleteByRoom(ctx context.Context, roomID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM invites WHERE room_id = ?`,
			&sqlitex.ExecOptions{Args: []any{roomID}})
	})
}

func (s *Store) InvitesDeleteByPlayer(ctx context.Context, playerID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`DELETE FROM invites WHERE to_player_id = ? OR from_player_id = ?`,
			&sqlitex.ExecOptions{Args: []any{playerID, playerID}})
	})
}

func (s *Store) ReviewUpsert(ctx context.Context, review storage.GameReview) (storage.GameReview, error) {
	var stored storage.GameReview
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		now := s.clock.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO game_reviews (game_id, player_id, rating, comment, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(game_id, player_id)
			 DO UPDATE SET rating = excluded.rating, comment = excluded.comment, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{review.GameID, review.PlayerID, review.Rating, review.Comment, now}})
		if err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`SELECT id, game_id, player_id, rating, comment, updated_at
			 FROM game_reviews WHERE game_id = ? AND player_id = ?`,
			&sqlitex.ExecOptions{Args: []any{review.GameID, review.PlayerID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				stored = storage.GameReview{
					ID:        stmt.GetInt64("id"),
					GameID:    stmt.GetInt64("game_id"),
					PlayerID:  stmt.GetInt64("player_id"),
					Rating:    stmt.GetFloat("rating"),
					Comment:   stmt.GetText("comment"),
					UpdatedAt: stmt.GetInt64("updated_at"),
				}
				return nil
			}})
	})
	return stored, err
}

func (s *Store) ReviewsByGame(ctx context.Context, gameID int64) ([]storage.GameReview, error) {
	reviews := []storage.GameReview{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, game_id, player_id, rating, comment, updated_at
			 FROM game_reviews WHERE game_id = ? ORDER BY updated_at DESC`,
			&sqlitex.ExecOptions{Args: []any{gameID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				reviews = append(reviews, storage.GameReview{
					ID:        stmt.GetInt64("id"),
					GameID:    stmt.GetInt64("game_id"),
					PlayerID:  stmt.GetInt64("player_id"),
					Rating:    stmt.GetFloat("rating"),
					Comment:   stmt.GetText("comment"),
					UpdatedAt: stmt.GetInt64("updated_at"),
				})
				return nil
			}})
	})
	return reviews, err
}

func (s *Store) DownloadRecord(ctx context.Context, playerID, versionID int64) error {
	return s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO player_downloads (player_id, game_version_id, downloaded_at) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{playerID, versionID, s.clock.Now().Unix()}})
	})
}

func (s *Store) DownloadsByPlayer(ctx context.Context, playerID int64) ([]storage.PlayerDownload, error) {
	downloads := []storage.PlayerDownload{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, player_id, game_version_id, downloaded_at
			 FROM player_downloads WHERE player_id = ? ORDER BY id`,
			&sqlitex.ExecOptions{Args: []any{playerID}, ResultFunc: func(stmt *sqlite.Stmt) error {
				downloads = append(downloads, storage.PlayerDownload{
					ID:            stmt.GetInt64("id"),
					PlayerID:      stmt.GetInt64("player_id"),
					GameVersionID: stmt.GetInt64("game_version_id"),
					DownloadedAt:  stmt.GetInt64("downloaded_at"),
				})
				return nil
			}})
	})
	return downloads, err
}

func (s *Store) ChatAdd(ctx context.Context, roomID, playerID int64, message string) (storage.ChatMessage, error) {
	var stored storage.ChatMessage
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		now := s.clock.Now().Unix()
		err := sqlitex.Execute(conn,
			`INSERT INTO room_chat (room_id, player_id, message, sent_at) VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{roomID, playerID, message, now}})
		if err != nil {
			return err
		}
		stored = storage.ChatMessage{
			ID:       conn.LastInsertRowID(),
			RoomID:   roomID,
			PlayerID: playerID,
			Message:  message,
			SentAt:   now,
		}
		return nil
	})
	return stored, err
}

func (s *Store) ChatHistory(ctx context.Context, roomID int64, limit int) ([]storage.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	messages := []storage.ChatMessage{}
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT c.id, c.room_id, c.player_id, c.message, c.sent_at, p.username
			 FROM room_chat c LEFT JOIN player_accounts p ON p.id = c.player_id
			 WHERE c.room_id = ?
			 ORDER BY c.id DESC LIMIT ?`,
			&sqlitex.ExecOptions{Args: []any{roomID, limit}, ResultFunc: func(stmt *sqlite.Stmt) error {
				messages = append(messages, storage.ChatMessage{
					ID:       stmt.GetInt64("id"),
					RoomID:   stmt.GetInt64("room_id"),
					PlayerID: stmt.GetInt64("player_id"),
					Message:  stmt.GetText("message"),
					SentAt:   stmt.GetInt64("sent_at"),
					Username: stmt.GetText("username"),
				})
				return nil
			}})
	})
	if err != nil {
		return nil, err
	}
	// Stored newest-first for the LIMIT; callers read oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SeedGame inserts a game and one version, returning both records.
// Intended for the storage daemon's bootstrap path and tests; the
// lobby has no write path into the catalog.
func (s *Store) SeedGame(ctx context.Context, game storage.Game, version storage.GameVersion) (storage.Game, storage.GameVersion, error) {
	err := s.withConn(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn,
			`INSERT INTO games (owner_id, title, status, min_players, max_players) VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{game.OwnerID, game.Title, game.Status, game.MinPlayers, game.MaxPlayers}})
		if err != nil {
			return err
		}
		game.ID = conn.LastInsertRowID()

		err = sqlitex.Execute(conn,
			`INSERT INTO game_versions (game_id, version_label, package_path, package_hash, server_entrypoint, client_mode)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				game.ID, version.Version, version.PackagePath, version.PackageHash,
				version.ServerEntrypoint, version.ClientMode,
			}})
		if err != nil {
			return err
		}
		version.ID = conn.LastInsertRowID()
		version.GameID = game.ID

		err = sqlitex.Execute(conn,
			`UPDATE games SET latest_version_id = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{version.ID, game.ID}})
		if err != nil {
			return err
		}
		game.LatestVersionID = version.ID
		return nil
	})
	if err != nil {
		return storage.Game{}, storage.GameVersion{}, fmt.Errorf("seeding game %q: %w", game.Title, err)
	}
	return game, version, nil
}

var _ storage.Backend = (*Store)(nil)
