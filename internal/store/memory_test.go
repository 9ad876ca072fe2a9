package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geoduel/geoduel/internal/feed"
)

func newMemory() (*Memory, *feed.Broker) {
	broker := feed.NewBroker(zap.NewNop())
	return NewMemory(broker), broker
}

func TestMemory_RoomLookupIsCaseInsensitive(t *testing.T) {
	m, _ := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateRoom(ctx, &Room{ID: "r1", Code: "AB12CD", HostID: "alice"}))

	room, err := m.RoomByCode(ctx, "ab12cd")
	require.NoError(t, err)
	assert.Equal(t, "r1", room.ID)

	_, err = m.RoomByCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpdateRoomStatusPublishesChange(t *testing.T) {
	m, broker := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateRoom(ctx, &Room{ID: "r1", Code: "AAAAAA", Status: StatusWaiting}))

	sub := broker.Subscribe(Room{}.TableName(), nil)
	defer sub.Cancel()

	require.NoError(t, m.UpdateRoomStatus(ctx, "r1", StatusPlaying))

	select {
	case ch := <-sub.C():
		assert.Equal(t, feed.EventUpdate, ch.Type)
		assert.Equal(t, StatusPlaying, ch.Row.(Room).Status)
		assert.Equal(t, StatusWaiting, ch.Old.(Room).Status)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no change published")
	}
}

func TestMemory_RosterAggregationJoinsProfiles(t *testing.T) {
	m, _ := newMemory()
	ctx := context.Background()

	require.NoError(t, m.UpsertProfile(ctx, &Profile{ID: "alice", Username: "wanderer", AvatarURL: "https://cdn/a.png"}))

	base := time.Now().UTC()
	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p1", RoomID: "r1", PlayerID: "alice", Lives: 3, JoinedAt: base}))
	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p2", RoomID: "r1", PlayerID: "bob", Lives: 3, JoinedAt: base.Add(time.Second)}))
	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p3", RoomID: "other", PlayerID: "eve", Lives: 3}))

	rows, err := m.RoomPlayers(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "wanderer", rows[0].Username, "profile joined into the flat row")
	assert.Equal(t, "https://cdn/a.png", rows[0].AvatarURL)
	assert.Empty(t, rows[1].Username, "no profile row, no username")

	n, err := m.CountPlayers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMemory_PlayerUpdateKeepsRosterOrder(t *testing.T) {
	m, _ := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p1", RoomID: "r1", PlayerID: "alice", Lives: 3}))
	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p2", RoomID: "r1", PlayerID: "bob", Lives: 3}))

	require.NoError(t, m.UpdatePlayer(ctx, &RoomPlayer{ID: "p1", Score: 4, Lives: 2, IsReady: true}))

	rows, err := m.RoomPlayers(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].PlayerID, "update must not reorder the roster")
	assert.Equal(t, 4, rows[0].Score)
	assert.Equal(t, 2, rows[0].Lives)
	assert.True(t, rows[0].IsReady)
}

func TestMemory_DeletePlayerPublishesOldRow(t *testing.T) {
	m, broker := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreatePlayer(ctx, &RoomPlayer{ID: "p1", RoomID: "r1", PlayerID: "alice", Lives: 3}))

	sub := broker.Subscribe(RoomPlayer{}.TableName(), nil)
	defer sub.Cancel()

	require.NoError(t, m.DeletePlayer(ctx, "p1"))
	assert.ErrorIs(t, m.DeletePlayer(ctx, "p1"), ErrNotFound)

	select {
	case ch := <-sub.C():
		assert.Equal(t, feed.EventDelete, ch.Type)
		assert.Equal(t, "p1", ch.Old.(RoomPlayer).ID)
		assert.Nil(t, ch.Row)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no delete published")
	}

	_, err := m.PlayerInRoom(ctx, "r1", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_GameStateReplacedWholesale(t *testing.T) {
	m, _ := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateGameState(ctx, &GameState{ID: "g1", RoomID: "r1", CurrentTurn: "alice", Round: 1, TimeLeft: 30}))

	next := &GameState{ID: "g2", RoomID: "r1", CurrentTurn: "bob", Round: 1, TimeLeft: 30, Question: `{"type":"flag","target":"JP"}`}
	require.NoError(t, m.SaveGameState(ctx, next))

	gs, err := m.GameStateByRoom(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "bob", gs.CurrentTurn)
	assert.Equal(t, `{"type":"flag","target":"JP"}`, gs.Question)

	_, err = m.GameStateByRoom(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_InviteLifecycle(t *testing.T) {
	m, _ := newMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateInvite(ctx, &RoomInvite{ID: "i1", RoomID: "r1", FromID: "alice", ToID: "bob"}))
	require.NoError(t, m.DeleteInvite(ctx, "i1"))
	assert.ErrorIs(t, m.DeleteInvite(ctx, "i1"), ErrNotFound)
}
