package store

import (
	"context"
	"strings"
	"sync"

	"github.com/geoduel/geoduel/internal/feed"
)

// Memory is an in-process Store used by tests and dev mode. It mimics
// the hosted backend closely enough to run multiple session
// controllers against one shared instance: every write is published to
// the broker after it commits.
type Memory struct {
	broker *feed.Broker

	roomsMu sync.RWMutex
	rooms   map[string]*Room

	playersMu sync.RWMutex
	players   []*RoomPlayer // insertion order, which is roster order

	statesMu sync.RWMutex
	states   map[string]*GameState // keyed by room id

	invitesMu sync.RWMutex
	invites   map[string]*RoomInvite

	profilesMu sync.RWMutex
	profiles   map[string]*Profile
}

func NewMemory(broker *feed.Broker) *Memory {
	return &Memory{
		broker:   broker,
		rooms:    make(map[string]*Room),
		states:   make(map[string]*GameState),
		invites:  make(map[string]*RoomInvite),
		profiles: make(map[string]*Profile),
	}
}

func (m *Memory) CreateRoom(_ context.Context, room *Room) error {
	m.roomsMu.Lock()
	cp := *room
	m.rooms[room.ID] = &cp
	m.roomsMu.Unlock()

	m.broker.Publish(feed.Change{Table: Room{}.TableName(), Type: feed.EventInsert, Row: cp})
	return nil
}

func (m *Memory) RoomByCode(_ context.Context, code string) (*Room, error) {
	m.roomsMu.RLock()
	defer m.roomsMu.RUnlock()
	for _, r := range m.rooms {
		if strings.EqualFold(r.Code, code) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdateRoomStatus(_ context.Context, roomID, status string) error {
	m.roomsMu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.roomsMu.Unlock()
		return ErrNotFound
	}
	old := *r
	r.Status = status
	cp := *r
	m.roomsMu.Unlock()

	m.broker.Publish(feed.Change{Table: Room{}.TableName(), Type: feed.EventUpdate, Row: cp, Old: old})
	return nil
}

func (m *Memory) CreatePlayer(_ context.Context, p *RoomPlayer) error {
	m.playersMu.Lock()
	cp := *p
	m.players = append(m.players, &cp)
	m.playersMu.Unlock()

	m.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventInsert, Row: cp})
	return nil
}

func (m *Memory) PlayerInRoom(_ context.Context, roomID, playerID string) (*RoomPlayer, error) {
	m.playersMu.RLock()
	defer m.playersMu.RUnlock()
	for _, p := range m.players {
		if p.RoomID == roomID && p.PlayerID == playerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpdatePlayer(_ context.Context, p *RoomPlayer) error {
	m.playersMu.Lock()
	var cur *RoomPlayer
	for _, existing := range m.players {
		if existing.ID == p.ID {
			cur = existing
			break
		}
	}
	if cur == nil {
		m.playersMu.Unlock()
		return ErrNotFound
	}
	old := *cur
	cur.Score = p.Score
	cur.Lives = p.Lives
	cur.IsReady = p.IsReady
	cp := *cur
	m.playersMu.Unlock()

	m.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventUpdate, Row: cp, Old: old})
	return nil
}

func (m *Memory) DeletePlayer(_ context.Context, id string) error {
	m.playersMu.Lock()
	idx := -1
	for i, p := range m.players {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.playersMu.Unlock()
		return ErrNotFound
	}
	old := *m.players[idx]
	m.players = append(m.players[:idx], m.players[idx+1:]...)
	m.playersMu.Unlock()

	m.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventDelete, Old: old})
	return nil
}

func (m *Memory) CountPlayers(_ context.Context, roomID string) (int, error) {
	m.playersMu.RLock()
	defer m.playersMu.RUnlock()
	n := 0
	for _, p := range m.players {
		if p.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) RoomPlayers(_ context.Context, roomID string) ([]RoomPlayerRow, error) {
	m.playersMu.RLock()
	defer m.playersMu.RUnlock()

	var rows []RoomPlayerRow
	for _, p := range m.players {
		if p.RoomID != roomID {
			continue
		}
		row := RoomPlayerRow{
			ID:       p.ID,
			RoomID:   p.RoomID,
			PlayerID: p.PlayerID,
			Score:    p.Score,
			Lives:    p.Lives,
			IsReady:  p.IsReady,
			JoinedAt: p.JoinedAt,
		}
		m.profilesMu.RLock()
		if prof, ok := m.profiles[p.PlayerID]; ok {
			row.Username = prof.Username
			row.AvatarURL = prof.AvatarURL
		}
		m.profilesMu.RUnlock()
		rows = append(rows, row)
	}
	return rows, nil
}

func (m *Memory) CreateGameState(_ context.Context, gs *GameState) error {
	m.statesMu.Lock()
	cp := *gs
	m.states[gs.RoomID] = &cp
	m.statesMu.Unlock()

	m.broker.Publish(feed.Change{Table: GameState{}.TableName(), Type: feed.EventInsert, Row: cp})
	return nil
}

func (m *Memory) GameStateByRoom(_ context.Context, roomID string) (*GameState, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	gs, ok := m.states[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *gs
	return &cp, nil
}

func (m *Memory) SaveGameState(_ context.Context, gs *GameState) error {
	m.statesMu.Lock()
	cur, ok := m.states[gs.RoomID]
	if !ok {
		m.statesMu.Unlock()
		return ErrNotFound
	}
	old := *cur
	cp := *gs
	m.states[gs.RoomID] = &cp
	m.statesMu.Unlock()

	m.broker.Publish(feed.Change{Table: GameState{}.TableName(), Type: feed.EventUpdate, Row: cp, Old: old})
	return nil
}

func (m *Memory) CreateInvite(_ context.Context, inv *RoomInvite) error {
	m.invitesMu.Lock()
	cp := *inv
	m.invites[inv.ID] = &cp
	m.invitesMu.Unlock()

	m.broker.Publish(feed.Change{Table: RoomInvite{}.TableName(), Type: feed.EventInsert, Row: cp})
	return nil
}

func (m *Memory) DeleteInvite(_ context.Context, id string) error {
	m.invitesMu.Lock()
	inv, ok := m.invites[id]
	if !ok {
		m.invitesMu.Unlock()
		return ErrNotFound
	}
	old := *inv
	delete(m.invites, id)
	m.invitesMu.Unlock()

	m.broker.Publish(feed.Change{Table: RoomInvite{}.TableName(), Type: feed.EventDelete, Old: old})
	return nil
}

func (m *Memory) ProfileByID(_ context.Context, id string) (*Profile, error) {
	m.profilesMu.RLock()
	defer m.profilesMu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpsertProfile(_ context.Context, p *Profile) error {
	m.profilesMu.Lock()
	cp := *p
	m.profiles[p.ID] = &cp
	m.profilesMu.Unlock()
	return nil
}
