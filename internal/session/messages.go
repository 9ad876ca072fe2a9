package session

import (
	"time"

	"github.com/geoduel/geoduel/internal/feed"
	"github.com/geoduel/geoduel/internal/game"
	"github.com/geoduel/geoduel/internal/store"
)

type Msg interface{ isSessionMsg() }

type CreateRoom struct {
	Mode  string
	Reply chan CreateResult
}

type CreateResult struct {
	Code string
	Err  error
}

type JoinRoom struct {
	Code  string
	Reply chan error
}

type LeaveRoom struct {
	Reply chan error
}

type SetReady struct {
	Ready bool
	Reply chan error
}

type StartGame struct {
	First game.Question
	Reply chan StartResult
}

// StartOutcome reports how far the two-phase start write got. The room
// status write and the game-state insert are separate calls with no
// transaction around them, so a failure in the second leg either rolls
// the first back or leaves the store inconsistent.
type StartOutcome int

const (
	StartNotApplied StartOutcome = iota
	StartApplied
	StartRolledBack
	StartInconsistent
)

type StartResult struct {
	Outcome StartOutcome
	Err     error
}

type SubmitAnswer struct {
	Correct bool
	Next    *game.Question // nil: answer without rotating the turn
	Reply   chan error
}

type SendInvite struct {
	To    string
	Reply chan error
}

type DeclineInvite struct {
	InviteID string
	Reply    chan error
}

type Watch struct {
	ClientID string
	Outbox   chan View // where this client wants to receive snapshots
}

type Unwatch struct{ ClientID string }

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

// feedEvent wraps a change-feed delivery so reconciliation runs on the
// same single-threaded loop as the operations.
type feedEvent struct {
	change feed.Change
}

func (CreateRoom) isSessionMsg()    {}
func (JoinRoom) isSessionMsg()      {}
func (LeaveRoom) isSessionMsg()     {}
func (SetReady) isSessionMsg()      {}
func (StartGame) isSessionMsg()     {}
func (SubmitAnswer) isSessionMsg()  {}
func (SendInvite) isSessionMsg()    {}
func (DeclineInvite) isSessionMsg() {}
func (Watch) isSessionMsg()         {}
func (Unwatch) isSessionMsg()       {}
func (GetState) isSessionMsg()      {}
func (Shutdown) isSessionMsg()      {}
func (feedEvent) isSessionMsg()     {}

// PlayerView is a roster entry with its display profile resolved.
type PlayerView struct {
	RowID      string    `json:"row_id"`
	PlayerID   string    `json:"player_id"`
	Score      int       `json:"score"`
	Lives      int       `json:"lives"`
	Eliminated bool      `json:"eliminated"`
	Ready      bool      `json:"ready"`
	JoinedAt   time.Time `json:"joined_at"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
}

type InviteView struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	FromID string `json:"from_id"`
}

// View is the local picture of the session, rebuilt from snapshot
// fetches and feed reconciliation.
type View struct {
	Version   int             `json:"version"`
	Room      *store.Room     `json:"room,omitempty"`
	Roster    []PlayerView    `json:"roster,omitempty"`
	Turn      *game.TurnState `json:"turn,omitempty"`
	Invites   []InviteView    `json:"invites,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}
