package game

import (
	"errors"
	"slices"
)

var ErrNotHost = errors.New("only the host can start")
var ErrNotAllReady = errors.New("not all players are ready")
var ErrEmptyRoster = errors.New("empty roster")
var ErrRoomNotFound = errors.New("room not found")
var ErrRoomFull = errors.New("room full")
var ErrNotInRoom = errors.New("not in a room")

// TurnSeconds is the countdown every turn starts from.
const TurnSeconds = 30

type QuestionType string

const (
	QuestionFindCountry QuestionType = "find_country"
	QuestionFlag        QuestionType = "flag"
	QuestionCapital     QuestionType = "capital"
)

// Question is the opaque payload shown to the current player: a type
// tag, the target country code, and optional choices.
type Question struct {
	Type    QuestionType `json:"type"`
	Target  string       `json:"target"`
	Options []string     `json:"options,omitempty"`
}

type TurnState struct {
	CurrentTurn string
	Question    Question
	Round       int
	TimeLeft    int
}

// Seat is a roster entry as the state machine sees it: identity plus
// the ready flag, in roster order.
type Seat struct {
	PlayerID string
	Ready    bool
}

// Start validates the start preconditions and returns the opening turn
// state: the host goes first, round 1, full clock.
func Start(hostID, callerID string, roster []Seat, first Question) (TurnState, error) {
	if callerID != hostID {
		return TurnState{}, ErrNotHost
	}
	if len(roster) == 0 {
		return TurnState{}, ErrEmptyRoster
	}
	for _, seat := range roster {
		if !seat.Ready {
			return TurnState{}, ErrNotAllReady
		}
	}
	return TurnState{
		CurrentTurn: hostID,
		Question:    first,
		Round:       1,
		TimeLeft:    TurnSeconds,
	}, nil
}

// ScoreAnswer applies one answer to a player's counters. Score only
// ever goes up, lives only ever go down (floored at zero).
func ScoreAnswer(score, lives int, correct bool) (int, int) {
	if correct {
		return score + 1, lives
	}
	if lives > 0 {
		lives--
	}
	return score, lives
}

// Advance rotates the turn to the next player in the roster order the
// deciding client holds at this moment. Round increments only when
// rotation wraps back to index 0. The returned state replaces the old
// one wholesale. An empty order returns the state unchanged.
func Advance(ts TurnState, order []string, next Question) TurnState {
	if len(order) == 0 {
		return ts
	}
	nextIdx := (slices.Index(order, ts.CurrentTurn) + 1) % len(order)
	round := ts.Round
	if nextIdx == 0 {
		round++
	}
	return TurnState{
		CurrentTurn: order[nextIdx],
		Question:    next,
		Round:       round,
		TimeLeft:    TurnSeconds,
	}
}

// Eliminated reports whether a player is out of the match.
func Eliminated(lives int) bool { return lives <= 0 }
