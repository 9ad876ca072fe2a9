package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary. Implementations publish a feed
// change for every successful mutation, which is how remote clients
// learn about each other's writes.
type Store interface {
	CreateRoom(ctx context.Context, room *Room) error
	RoomByCode(ctx context.Context, code string) (*Room, error)
	UpdateRoomStatus(ctx context.Context, roomID, status string) error

	CreatePlayer(ctx context.Context, p *RoomPlayer) error
	PlayerInRoom(ctx context.Context, roomID, playerID string) (*RoomPlayer, error)
	UpdatePlayer(ctx context.Context, p *RoomPlayer) error
	DeletePlayer(ctx context.Context, id string) error
	CountPlayers(ctx context.Context, roomID string) (int, error)

	// RoomPlayers is the get_room_players aggregation: roster rows
	// pre-joined with profiles, in join order.
	RoomPlayers(ctx context.Context, roomID string) ([]RoomPlayerRow, error)

	CreateGameState(ctx context.Context, gs *GameState) error
	GameStateByRoom(ctx context.Context, roomID string) (*GameState, error)
	SaveGameState(ctx context.Context, gs *GameState) error

	CreateInvite(ctx context.Context, inv *RoomInvite) error
	DeleteInvite(ctx context.Context, id string) error

	ProfileByID(ctx context.Context, id string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
}
