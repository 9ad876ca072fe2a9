package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyRoster(ids ...string) []Seat {
	seats := make([]Seat, 0, len(ids))
	for _, id := range ids {
		seats = append(seats, Seat{PlayerID: id, Ready: true})
	}
	return seats
}

func TestStart_Preconditions(t *testing.T) {
	q := Question{Type: QuestionFindCountry, Target: "FR"}

	tests := []struct {
		name    string
		caller  string
		roster  []Seat
		wantErr error
	}{
		{
			name:    "non-host caller",
			caller:  "bob",
			roster:  readyRoster("alice", "bob"),
			wantErr: ErrNotHost,
		},
		{
			name:    "empty roster",
			caller:  "alice",
			roster:  nil,
			wantErr: ErrEmptyRoster,
		},
		{
			name:   "one player not ready",
			caller: "alice",
			roster: []Seat{
				{PlayerID: "alice", Ready: true},
				{PlayerID: "bob", Ready: false},
			},
			wantErr: ErrNotAllReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Start("alice", tt.caller, tt.roster, q)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStart_OpensWithHostTurn(t *testing.T) {
	q := Question{Type: QuestionFlag, Target: "JP", Options: []string{"JP", "CN", "KR", "TH"}}

	ts, err := Start("alice", "alice", readyRoster("alice", "bob", "carol"), q)
	require.NoError(t, err)

	assert.Equal(t, "alice", ts.CurrentTurn)
	assert.Equal(t, 1, ts.Round)
	assert.Equal(t, TurnSeconds, ts.TimeLeft)
	assert.Equal(t, q, ts.Question)
}

func TestAdvance_RotatesInRosterOrder(t *testing.T) {
	order := []string{"a", "b", "c"}
	ts := TurnState{CurrentTurn: "a", Round: 1, TimeLeft: 12}

	ts = Advance(ts, order, Question{Target: "DE"})
	assert.Equal(t, "b", ts.CurrentTurn)
	assert.Equal(t, 1, ts.Round, "round must not increment mid-rotation")
	assert.Equal(t, TurnSeconds, ts.TimeLeft, "clock resets on every advance")

	ts = Advance(ts, order, Question{Target: "IT"})
	assert.Equal(t, "c", ts.CurrentTurn)
	assert.Equal(t, 1, ts.Round)

	// Wrap back to index 0: exactly one round increment.
	ts = Advance(ts, order, Question{Target: "ES"})
	assert.Equal(t, "a", ts.CurrentTurn)
	assert.Equal(t, 2, ts.Round)
	assert.Equal(t, "ES", ts.Question.Target)
}

func TestAdvance_EmptyOrderLeavesStateUnchanged(t *testing.T) {
	ts := TurnState{CurrentTurn: "a", Question: Question{Target: "FR"}, Round: 3, TimeLeft: 7}

	got := Advance(ts, nil, Question{Target: "DE"})
	assert.Equal(t, ts, got)
}

func TestScoreAnswer_Monotonic(t *testing.T) {
	score, lives := ScoreAnswer(2, 3, true)
	assert.Equal(t, 3, score, "correct answer increments score")
	assert.Equal(t, 3, lives, "correct answer never touches lives")

	score, lives = ScoreAnswer(2, 3, false)
	assert.Equal(t, 2, score, "wrong answer never touches score")
	assert.Equal(t, 2, lives, "wrong answer decrements lives")

	_, lives = ScoreAnswer(0, 0, false)
	assert.Equal(t, 0, lives, "lives never go negative")
}

func TestEliminated(t *testing.T) {
	assert.False(t, Eliminated(1))
	assert.True(t, Eliminated(0))
}
