// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore implements the storage Backend in process memory.
// The storage daemon uses it for its --memory mode and tests use it
// wherever durability is not the point.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/parlor-games/parlor/lib/clock"
	"github.com/parlor-games/parlor/storage"
)

// Store holds every entity table under one mutex. Operations are
// simple map walks; nothing here is hot enough to shard.
type Store struct {
	clock clock.Clock

	mu        sync.Mutex
	nextID    int64
	players   map[int64]storage.PlayerAccount
	games     map[int64]storage.Game
	versions  map[int64]storage.GameVersion
	rooms     map[int64]storage.Room
	members   map[int64][]storage.RoomMember
	invites   map[int64]storage.Invite
	reviews   map[int64]storage.GameReview
	downloads []storage.PlayerDownload
	chat      map[int64][]storage.ChatMessage
}

// New returns an empty store. A nil clock means real time.
func New(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock:    clk,
		nextID:   1,
		players:  make(map[int64]storage.PlayerAccount),
		games:    make(map[int64]storage.Game),
		versions: make(map[int64]storage.GameVersion),
		rooms:    make(map[int64]storage.Room),
		members:  make(map[int64][]storage.RoomMember),
		invites:  make(map[int64]storage.Invite),
		reviews:  make(map[int64]storage.GameReview),
		chat:     make(map[int64][]storage.ChatMessage),
	}
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Store) now() int64 {
	return s.clock.Now().Unix()
}

// AddGame installs a game and its version directly, bypassing the
// Backend surface. Callers seed catalogs with it.
func (s *Store) AddGame(game storage.Game, version storage.GameVersion) (storage.Game, storage.GameVersion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if game.ID == 0 {
		game.ID = s.allocID()
	}
	if version.ID == 0 {
		version.ID = s.allocID()
	}
	version.GameID = game.ID
	game.LatestVersionID = version.ID
	s.games[game.ID] = game
	s.versions[version.ID] = version
	return game, version
}

func (s *Store) PlayerCreate(_ context.Context, username, passwordHash, displayName string) (storage.PlayerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.Username == username {
			return storage.PlayerAccount{}, storage.ErrConflict
		}
	}
	account := storage.PlayerAccount{
		ID:           s.allocID(),
		Username:     username,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    s.now(),
	}
	s.players[account.ID] = account
	return account, nil
}

func (s *Store) PlayerByID(_ context.Context, id int64) (storage.PlayerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.players[id]
	if !ok {
		return storage.PlayerAccount{}, storage.ErrNotFound
	}
	return account, nil
}

func (s *Store) PlayerByUsername(_ context.Context, username string) (storage.PlayerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.Username == username {
			return p, nil
		}
	}
	return storage.PlayerAccount{}, storage.ErrNotFound
}

func (s *Store) PlayerTouchLogin(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.players[id]
	if !ok {
		return storage.ErrNotFound
	}
	account.LastLoginAt = s.now()
	s.players[id] = account
	return nil
}

func (s *Store) GameByID(_ context.Context, id int64) (storage.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return storage.Game{}, storage.ErrNotFound
	}
	return game, nil
}

func (s *Store) GamesPublished(_ context.Context) ([]storage.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	games := []storage.Game{}
	for _, g := range s.games {
		if g.Status == storage.GamePublished {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Title < games[j].Title })
	return games, nil
}

func (s *Store) VersionByID(_ context.Context, id int64) (storage.GameVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version, ok := s.versions[id]
	if !ok {
		return storage.GameVersion{}, storage.ErrNotFound
	}
	return version, nil
}

func (s *Store) VersionsByGame(_ context.Context, gameID int64) ([]storage.GameVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := []storage.GameVersion{}
	for _, v := range s.versions {
		if v.GameID == gameID {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].ID < versions[j].ID })
	return versions, nil
}

func (s *Store) RoomCreate(_ context.Context, room storage.NewRoom) (storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Code == room.Code && r.Status != storage.RoomClosed {
			return storage.Room{}, storage.ErrConflict
		}
	}
	created := storage.Room{
		ID:            s.allocID(),
		Code:          room.Code,
		OwnerPlayerID: room.OwnerPlayerID,
		GameID:        room.GameID,
		GameVersionID: room.GameVersionID,
		Capacity:      room.Capacity,
		Status:        storage.RoomWaiting,
		MetadataJSON:  room.MetadataJSON,
		CreatedAt:     s.now(),
	}
	s.rooms[created.ID] = created
	return created, nil
}

func (s *Store) RoomByID(_ context.Context, id int64) (storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return storage.Room{}, storage.ErrNotFound
	}
	return room, nil
}

func (s *Store) RoomByCode(_ context.Context, code string) (storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		if r.Code == code && r.Status != storage.RoomClosed {
			return r, nil
		}
	}
	return storage.Room{}, storage.ErrNotFound
}

func (s *Store) RoomsOpen(_ context.Context) ([]storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := []storage.Room{}
	for _, r := range s.rooms {
		if r.Status != storage.RoomClosed {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (s *Store) RoomsByOwner(_ context.Context, ownerID int64) ([]storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := []storage.Room{}
	for _, r := range s.rooms {
		if r.OwnerPlayerID == ownerID && r.Status != storage.RoomClosed {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

func (s *Store) RoomSetStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return storage.ErrNotFound
	}
	room.Status = status
	s.rooms[id] = room
	return nil
}

func (s *Store) RoomDelete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return false, nil
	}
	delete(s.rooms, id)
	delete(s.members, id)
	return true, nil
}

func (s *Store) MemberAdd(_ context.Context, roomID, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, m := range s.members[roomID] {
		if m.PlayerID == playerID {
			return storage.ErrConflict
		}
	}
	if len(s.members[roomID]) >= room.Capacity {
		return storage.ErrCapacity
	}
	username := ""
	if p, ok := s.players[playerID]; ok {
		username = p.Username
	}
	s.members[roomID] = append(s.members[roomID], storage.RoomMember{
		RoomID:   roomID,
		PlayerID: playerID,
		Username: username,
		JoinedAt: s.now(),
	})
	return nil
}

func (s *Store) MemberRemove(_ context.Context, roomID, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.members[roomID][:0]
	for _, m := range s.members[roomID] {
		if m.PlayerID != playerID {
			kept = append(kept, m)
		}
	}
	s.members[roomID] = kept
	return nil
}

func (s *Store) MembersByRoom(_ context.Context, roomID int64) ([]storage.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]storage.RoomMember, len(s.members[roomID]))
	copy(members, s.members[roomID])
	return members, nil
}

func (s *Store) MembersClearRoom(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, roomID)
	return nil
}

func (s *Store) MembersDeleteByPlayer(_ context.Context, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID := range s.members {
		kept := s.members[roomID][:0]
		for _, m := range s.members[roomID] {
			if m.PlayerID != playerID {
				kept = append(kept, m)
			}
		}
		s.members[roomID] = kept
	}
	return nil
}

func (s *Store) MemberRoomOf(_ context.Context, playerID int64) (storage.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, members := range s.members {
		room, ok := s.rooms[roomID]
		if !ok || room.Status == storage.RoomClosed {
			continue
		}
		for _, m := range members {
			if m.PlayerID == playerID {
				return room, nil
			}
		}
	}
	return storage.Room{}, storage.ErrNotFound
}

func (s *Store) InviteCreate(_ context.Context, roomID, fromPlayerID, toPlayerID int64) (storage.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invite := storage.Invite{
		ID:           s.allocID(),
		RoomID:       roomID,
		FromPlayerID: fromPlayerID,
		ToPlayerID:   toPlayerID,
		Status:       storage.InvitePending,
		CreatedAt:    s.now(),
	}
	s.invites[invite.ID] = invite
	return invite, nil
}

func (s *Store) InviteByID(_ context.Context, id int64) (storage.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invite, ok := s.invites[id]
	if !ok {
		return storage.Invite{}, storage.ErrNotFound
	}
	return invite, nil
}

func (s *Store) InvitesToPlayer(_ context.Context, playerID int64) ([]storage.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invites := []storage.Invite{}
	for _, inv := range s.invites {
		if inv.ToPlayerID == playerID && inv.Status == storage.InvitePending {
			invites = append(invites, inv)
		}
	}
	sort.Slice(invites, func(i, j int) bool { return invites[i].ID < invites[j].ID })
	return invites, nil
}

func (s *Store) InviteSetStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	invite, ok := s.invites[id]
	if !ok {
		return storage.ErrNotFound
	}
	invite.Status = status
	s.invites[id] = invite
	return nil
}

func (s *Store) InvitesDeleteByRoom(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.invites {
		if inv.RoomID == roomID {
			delete(s.invites, id)
		}
	}
	return nil
}

func (s *Store) InvitesDeleteByPlayer(_ context.Context, playerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inv := range s.invites {
		if inv.ToPlayerID == playerID || inv.FromPlayerID == playerID {
			delete(s.invites, id)
		}
	}
	return nil
}

func (s *Store) ReviewUpsert(_ context.Context, review storage.GameReview) (storage.GameReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.reviews {
		if existing.GameID == review.GameID && existing.PlayerID == review.PlayerID {
			existing.Rating = review.Rating
			existing.Comment = review.Comment
			existing.UpdatedAt = s.now()
			s.reviews[id] = existing
			return existing, nil
		}
	}
	review.ID = s.allocID()
	review.UpdatedAt = s.now()
	s.reviews[review.ID] = review
	return review, nil
}

func (s *Store) ReviewsByGame(_ context.Context, gameID int64) ([]storage.GameReview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reviews := []storage.GameReview{}
	for _, r := range s.reviews {
		if r.GameID == gameID {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].UpdatedAt > reviews[j].UpdatedAt })
	return reviews, nil
}

func (s *Store) DownloadRecord(_ context.Context, playerID, versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloads = append(s.downloads, storage.PlayerDownload{
		ID:            s.allocID(),
		PlayerID:      playerID,
		GameVersionID: versionID,
		DownloadedAt:  s.now(),
	})
	return nil
}

func (s *Store) DownloadsByPlayer(_ context.Context, playerID int64) ([]storage.PlayerDownload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	downloads := []storage.PlayerDownload{}
	for _, d := range s.downloads {
		if d.PlayerID == playerID {
			downloads = append(downloads, d)
		}
	}
	return downloads, nil
}

func (s *Store) ChatAdd(_ context.Context, roomID, playerID int64, message string) (storage.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username := ""
	if p, ok := s.players[playerID]; ok {
		username = p.Username
	}
	entry := storage.ChatMessage{
		ID:       s.allocID(),
		RoomID:   roomID,
		PlayerID: playerID,
		Username: username,
		Message:  message,
		SentAt:   s.now(),
	}
	s.chat[roomID] = append(s.chat[roomID], entry)
	return entry, nil
}

func (s *Store) ChatHistory(_ context.Context, roomID int64, limit int) ([]storage.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.chat[roomID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	messages := make([]storage.ChatMessage, len(all))
	copy(messages, all)
	return messages, nil
}

var _ storage.Backend = (*Store)(nil)
