package store

import "time"

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"

	DefaultCapacity = 6
	DefaultLives    = 3
)

type Room struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Code      string    `gorm:"size:6;index" json:"code"`
	HostID    string    `gorm:"size:64;not null;index" json:"host_id"`
	Mode      string    `gorm:"size:20;not null" json:"mode"`
	Status    string    `gorm:"size:20;not null;default:'waiting'" json:"status"`
	Capacity  int       `gorm:"not null;default:6" json:"capacity"`
	CreatedAt time.Time `json:"created_at"`
}

func (Room) TableName() string { return "rooms" }

type RoomPlayer struct {
	ID       string    `gorm:"primaryKey;size:36" json:"id"`
	RoomID   string    `gorm:"size:36;not null;uniqueIndex:idx_room_player" json:"room_id"`
	PlayerID string    `gorm:"size:64;not null;uniqueIndex:idx_room_player" json:"player_id"`
	Score    int       `gorm:"not null;default:0" json:"score"`
	Lives    int       `gorm:"not null;default:3" json:"lives"`
	IsReady  bool      `gorm:"not null;default:false" json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

func (RoomPlayer) TableName() string { return "room_players" }

// GameState is the single active-turn record for a room. Question holds
// the current question payload as JSON; readers replace the whole row
// on every turn advance, no partial-field contract.
type GameState struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	RoomID      string `gorm:"size:36;not null;uniqueIndex" json:"room_id"`
	CurrentTurn string `gorm:"size:64;not null" json:"current_turn"`
	Question    string `gorm:"type:jsonb" json:"question"`
	Round       int    `gorm:"not null;default:1" json:"round"`
	TimeLeft    int    `gorm:"not null" json:"time_left"`
}

func (GameState) TableName() string { return "game_state" }

type RoomInvite struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	RoomID    string    `gorm:"size:36;not null;index" json:"room_id"`
	FromID    string    `gorm:"size:64;not null" json:"from_id"`
	ToID      string    `gorm:"size:64;not null;index" json:"to_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (RoomInvite) TableName() string { return "room_invites" }

// Profile is the denormalized display data owned by the auth side.
type Profile struct {
	ID        string `gorm:"primaryKey;size:64" json:"id"`
	Username  string `gorm:"size:100" json:"username"`
	AvatarURL string `gorm:"size:255" json:"avatar_url"`
}

func (Profile) TableName() string { return "profiles" }

// RoomPlayerRow is the flat row returned by the roster aggregation,
// one join instead of an N+1 profile lookup per player.
type RoomPlayerRow struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	PlayerID  string    `json:"player_id"`
	Score     int       `json:"score"`
	Lives     int       `json:"lives"`
	IsReady   bool      `json:"is_ready"`
	JoinedAt  time.Time `json:"joined_at"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
}
