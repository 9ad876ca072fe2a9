package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/geoduel/geoduel/internal/feed"
)

// Postgres backs the Store with gorm. Feed changes are published after
// each write returns, which matches the hosted backend's behavior of
// emitting realtime events on commit.
type Postgres struct {
	db     *gorm.DB
	broker *feed.Broker
}

func Open(dsn string, broker *feed.Broker) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Postgres{db: db, broker: broker}, nil
}

func (s *Postgres) AutoMigrate() error {
	return s.db.AutoMigrate(
		&Room{},
		&RoomPlayer{},
		&GameState{},
		&RoomInvite{},
		&Profile{},
	)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) CreateRoom(ctx context.Context, room *Room) error {
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: Room{}.TableName(), Type: feed.EventInsert, Row: *room})
	return nil
}

func (s *Postgres) RoomByCode(ctx context.Context, code string) (*Room, error) {
	var room Room
	err := s.db.WithContext(ctx).Where("upper(code) = upper(?)", code).First(&room).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (s *Postgres) UpdateRoomStatus(ctx context.Context, roomID, status string) error {
	var room Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return notFound(err)
	}
	old := room
	room.Status = status
	if err := s.db.WithContext(ctx).Save(&room).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: Room{}.TableName(), Type: feed.EventUpdate, Row: room, Old: old})
	return nil
}

func (s *Postgres) CreatePlayer(ctx context.Context, p *RoomPlayer) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventInsert, Row: *p})
	return nil
}

func (s *Postgres) PlayerInRoom(ctx context.Context, roomID, playerID string) (*RoomPlayer, error) {
	var p RoomPlayer
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND player_id = ?", roomID, playerID).
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Postgres) UpdatePlayer(ctx context.Context, p *RoomPlayer) error {
	var cur RoomPlayer
	if err := s.db.WithContext(ctx).First(&cur, "id = ?", p.ID).Error; err != nil {
		return notFound(err)
	}
	old := cur
	cur.Score = p.Score
	cur.Lives = p.Lives
	cur.IsReady = p.IsReady
	if err := s.db.WithContext(ctx).Save(&cur).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventUpdate, Row: cur, Old: old})
	return nil
}

func (s *Postgres) DeletePlayer(ctx context.Context, id string) error {
	var p RoomPlayer
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return notFound(err)
	}
	if err := s.db.WithContext(ctx).Delete(&RoomPlayer{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: RoomPlayer{}.TableName(), Type: feed.EventDelete, Old: p})
	return nil
}

func (s *Postgres) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&RoomPlayer{}).
		Where("room_id = ?", roomID).
		Count(&count).Error
	return int(count), err
}

func (s *Postgres) RoomPlayers(ctx context.Context, roomID string) ([]RoomPlayerRow, error) {
	var rows []RoomPlayerRow
	err := s.db.WithContext(ctx).Model(&RoomPlayer{}).
		Select("room_players.id, room_players.room_id, room_players.player_id, room_players.score, room_players.lives, room_players.is_ready, room_players.joined_at, profiles.username, profiles.avatar_url").
		Joins("LEFT JOIN profiles ON profiles.id = room_players.player_id").
		Where("room_players.room_id = ?", roomID).
		Order("room_players.joined_at ASC").
		Scan(&rows).Error
	return rows, err
}

func (s *Postgres) CreateGameState(ctx context.Context, gs *GameState) error {
	if err := s.db.WithContext(ctx).Create(gs).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: GameState{}.TableName(), Type: feed.EventInsert, Row: *gs})
	return nil
}

func (s *Postgres) GameStateByRoom(ctx context.Context, roomID string) (*GameState, error) {
	var gs GameState
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&gs).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &gs, nil
}

func (s *Postgres) SaveGameState(ctx context.Context, gs *GameState) error {
	var cur GameState
	if err := s.db.WithContext(ctx).Where("room_id = ?", gs.RoomID).First(&cur).Error; err != nil {
		return notFound(err)
	}
	old := cur
	gs.ID = cur.ID
	if err := s.db.WithContext(ctx).Save(gs).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: GameState{}.TableName(), Type: feed.EventUpdate, Row: *gs, Old: old})
	return nil
}

func (s *Postgres) CreateInvite(ctx context.Context, inv *RoomInvite) error {
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: RoomInvite{}.TableName(), Type: feed.EventInsert, Row: *inv})
	return nil
}

func (s *Postgres) DeleteInvite(ctx context.Context, id string) error {
	var inv RoomInvite
	if err := s.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return notFound(err)
	}
	if err := s.db.WithContext(ctx).Delete(&RoomInvite{}, "id = ?", id).Error; err != nil {
		return err
	}
	s.broker.Publish(feed.Change{Table: RoomInvite{}.TableName(), Type: feed.EventDelete, Old: inv})
	return nil
}

func (s *Postgres) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Postgres) UpsertProfile(ctx context.Context, p *Profile) error {
	return s.db.WithContext(ctx).Save(p).Error
}
