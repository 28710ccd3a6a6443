// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

package storage

// Room lifecycle statuses. A room is "open" while waiting or playing;
// closed rooms free their join code for reuse.
const (
	RoomWaiting = "waiting"
	RoomPlaying = "playing"
	RoomClosed  = "closed"
)

// Game catalog statuses. Only published games can be downloaded or
// hosted in rooms.
const (
	GameDraft     = "draft"
	GamePublished = "published"
	GameRetired   = "retired"
)

// Invite statuses.
const (
	InvitePending  = "pending"
	InviteAccepted = "accepted"
)

// PlayerAccount is a registered player. PasswordHash is the opaque
// hash the client submits at registration; the lobby only ever
// compares it for equality.
type PlayerAccount struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	DisplayName  string `json:"display_name"`
	CreatedAt    int64  `json:"created_at"`
	LastLoginAt  int64  `json:"last_login_at"`
}

// Game is a catalog entry.
type Game struct {
	ID              int64  `json:"id"`
	OwnerID         int64  `json:"owner_id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	MinPlayers      int    `json:"min_players"`
	MaxPlayers      int    `json:"max_players"`
	LatestVersionID int64  `json:"latest_version_id"`
}

// GameVersion is one uploaded package of a game. ServerEntrypoint is
// the developer-supplied command line for the game server process —
// untrusted input, validated and split into argv at launch time, never
// passed to a shell.
type GameVersion struct {
	ID               int64  `json:"id"`
	GameID           int64  `json:"game_id"`
	Version          string `json:"version"`
	PackagePath      string `json:"package_path"`
	PackageHash      string `json:"package_hash"`
	ServerEntrypoint string `json:"server_entrypoint"`
	ClientMode       string `json:"client_mode"`
}

// Room is a matchmaking unit. MetadataJSON is an opaque JSON object
// set at creation and handed verbatim to the game server.
type Room struct {
	ID            int64  `json:"id"`
	Code          string `json:"code"`
	OwnerPlayerID int64  `json:"owner_player_id"`
	GameID        int64  `json:"game_id"`
	GameVersionID int64  `json:"game_version_id"`
	Capacity      int    `json:"capacity"`
	Status        string `json:"status"`
	MetadataJSON  string `json:"metadata_json"`
	CreatedAt     int64  `json:"created_at"`
}

// RoomMember is a (room, player) pair. Username is denormalized from
// the player account so rosters need no extra lookups.
type RoomMember struct {
	RoomID   int64  `json:"room_id"`
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
	JoinedAt int64  `json:"joined_at"`
}

// Invite asks a player to join a room.
type Invite struct {
	ID           int64  `json:"id"`
	RoomID       int64  `json:"room_id"`
	FromPlayerID int64  `json:"from_player_id"`
	ToPlayerID   int64  `json:"to_player_id"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

// GameReview is a player's rating of a game, one per (game, player).
type GameReview struct {
	ID        int64   `json:"id"`
	GameID    int64   `json:"game_id"`
	PlayerID  int64   `json:"player_id"`
	Rating    float64 `json:"rating"`
	Comment   string  `json:"comment"`
	UpdatedAt int64   `json:"updated_at"`
}

// PlayerDownload records that a player fetched a game version. Reviews
// require at least one download of the game being reviewed.
type PlayerDownload struct {
	ID            int64 `json:"id"`
	PlayerID      int64 `json:"player_id"`
	GameVersionID int64 `json:"game_version_id"`
	DownloadedAt  int64 `json:"downloaded_at"`
}

// ChatMessage is one room chat line.
type ChatMessage struct {
	ID       int64  `json:"id"`
	RoomID   int64  `json:"room_id"`
	PlayerID int64  `json:"player_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
	SentAt   int64  `json:"sent_at"`
}
