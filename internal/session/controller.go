package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geoduel/geoduel/internal/feed"
	"github.com/geoduel/geoduel/internal/game"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/store"
)

const placeholderUsername = "player"

// Controller runs one client's session: it issues writes against the
// store and folds feed events back into a local view. Operations and
// reconciliation share one inbox, so at most one handler runs at a
// time.
type Controller struct {
	inbox chan Msg

	me     identity.Identity
	store  store.Store
	broker *feed.Broker
	log    *zap.Logger

	room         *store.Room
	roster       []PlayerView
	turn         *game.TurnState
	invites      []InviteView
	lastErr      string
	version      int
	finishIssued bool

	rosterSub *feed.Subscription
	turnSub   *feed.Subscription
	roomSub   *feed.Subscription
	inviteSub *feed.Subscription

	watchers map[string]chan View

	ctx    context.Context
	cancel context.CancelFunc
}

func New(parent context.Context, src identity.Source, st store.Store, broker *feed.Broker, log *zap.Logger) (*Controller, error) {
	ctx, cancel := context.WithCancel(parent)

	me, err := src.Current(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	c := &Controller{
		inbox:    make(chan Msg, 64), // Small buffer
		me:       me,
		store:    st,
		broker:   broker,
		log:      log,
		watchers: make(map[string]chan View),
		ctx:      ctx,
		cancel:   cancel,
	}

	// Invites are keyed on the recipient, not on a room, so this
	// subscription lives as long as the session does.
	c.inviteSub = broker.Subscribe(store.RoomInvite{}.TableName(), func(ch feed.Change) bool {
		if inv, ok := ch.Row.(store.RoomInvite); ok {
			return inv.ToID == me.ID
		}
		if inv, ok := ch.Old.(store.RoomInvite); ok {
			return inv.ToID == me.ID
		}
		return false
	})
	go c.pump(c.inviteSub)

	go c.loop()
	return c, nil
}

// Expose the inbox so tests or the WS layer can send messages.
func (c *Controller) Inbox() chan<- Msg { return c.inbox }

func (c *Controller) Me() identity.Identity { return c.me }

func (c *Controller) loop() {
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				code, err := c.handleCreate(msg.Mode)
				msg.Reply <- CreateResult{Code: code, Err: err}

			case JoinRoom:
				msg.Reply <- c.handleJoin(msg.Code)

			case LeaveRoom:
				msg.Reply <- c.handleLeave()

			case SetReady:
				msg.Reply <- c.handleSetReady(msg.Ready)

			case StartGame:
				msg.Reply <- c.handleStart(msg.First)

			case SubmitAnswer:
				msg.Reply <- c.handleAnswer(msg.Correct, msg.Next)

			case SendInvite:
				msg.Reply <- c.handleSendInvite(msg.To)

			case DeclineInvite:
				msg.Reply <- c.handleDecline(msg.InviteID)

			case Watch:
				// Register watcher + send current snapshot immediately
				c.watchers[msg.ClientID] = msg.Outbox
				msg.Outbox <- c.view()

			case Unwatch:
				// Close the outbox so a ranging consumer terminates.
				if ch, ok := c.watchers[msg.ClientID]; ok {
					close(ch)
					delete(c.watchers, msg.ClientID)
				}

			case GetState:
				// test-only readback: reflect internal state without data races
				msg.Reply <- c.view()

			case feedEvent:
				if c.reconcile(msg.change) {
					c.bump()
				}

			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.teardownRoomSubs()
	c.inviteSub.Cancel()
	for id, ch := range c.watchers {
		close(ch)
		delete(c.watchers, id)
	}
	c.cancel()
}

func (c *Controller) pump(sub *feed.Subscription) {
	for ch := range sub.C() {
		select {
		case c.inbox <- feedEvent{change: ch}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) view() View {
	v := View{
		Version:   c.version,
		Roster:    append([]PlayerView(nil), c.roster...),
		Invites:   append([]InviteView(nil), c.invites...),
		LastError: c.lastErr,
	}
	if c.room != nil {
		room := *c.room
		v.Room = &room
	}
	if c.turn != nil {
		turn := *c.turn
		v.Turn = &turn
	}
	return v
}

// bump advances the view version and fans the snapshot out.
func (c *Controller) bump() {
	c.version++
	snap := c.view()
	for id, ch := range c.watchers {
		select {
		case ch <- snap:
			//ok
		default:
			// Watcher is slow/full - drop them.
			close(ch)
			delete(c.watchers, id)
		}
	}
}

// fail records err as the latest (and only) surfaced error and returns
// it. Local state is left exactly as it was.
func (c *Controller) fail(err error) error {
	c.lastErr = err.Error()
	c.bump()
	return err
}

// GenerateCode returns a random 6-character room code. Collisions are
// not retried; the space is large enough for casual use.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func (c *Controller) handleCreate(mode string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", c.fail(err)
	}

	room := store.Room{
		ID:        uuid.NewString(),
		Code:      code,
		HostID:    c.me.ID,
		Mode:      mode,
		Status:    store.StatusWaiting,
		Capacity:  store.DefaultCapacity,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateRoom(c.ctx, &room); err != nil {
		return "", c.fail(err)
	}

	p := store.RoomPlayer{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		PlayerID: c.me.ID,
		Lives:    store.DefaultLives,
		IsReady:  true,
		JoinedAt: time.Now().UTC(),
	}
	if err := c.store.CreatePlayer(c.ctx, &p); err != nil {
		return "", c.fail(err)
	}

	if err := c.enterRoom(&room); err != nil {
		return "", c.fail(err)
	}
	c.bump()
	return code, nil
}

func (c *Controller) handleJoin(code string) error {
	room, err := c.store.RoomByCode(c.ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.fail(game.ErrRoomNotFound)
		}
		return c.fail(err)
	}

	existing, err := c.store.PlayerInRoom(c.ctx, room.ID, c.me.ID)
	switch {
	case err == nil:
		// Rejoin: flip ready instead of inserting a duplicate.
		existing.IsReady = true
		if err := c.store.UpdatePlayer(c.ctx, existing); err != nil {
			return c.fail(err)
		}
	case errors.Is(err, store.ErrNotFound):
		count, err := c.store.CountPlayers(c.ctx, room.ID)
		if err != nil {
			return c.fail(err)
		}
		if count >= room.Capacity {
			return c.fail(game.ErrRoomFull)
		}
		p := store.RoomPlayer{
			ID:       uuid.NewString(),
			RoomID:   room.ID,
			PlayerID: c.me.ID,
			Lives:    store.DefaultLives,
			IsReady:  true,
			JoinedAt: time.Now().UTC(),
		}
		if err := c.store.CreatePlayer(c.ctx, &p); err != nil {
			return c.fail(err)
		}
	default:
		return c.fail(err)
	}

	if err := c.enterRoom(room); err != nil {
		return c.fail(err)
	}

	// Rejoin/refresh while a match is running: resync the turn record
	// instead of waiting for the next change event.
	if room.Status == store.StatusPlaying {
		c.resyncTurn()
	}
	c.bump()
	return nil
}

// enterRoom takes the authoritative roster snapshot and opens the
// room-scoped feed subscriptions.
func (c *Controller) enterRoom(room *store.Room) error {
	c.teardownRoomSubs()

	rows, err := c.store.RoomPlayers(c.ctx, room.ID)
	if err != nil {
		return err
	}

	cp := *room
	c.room = &cp
	c.turn = nil
	c.finishIssued = false
	c.roster = c.roster[:0]
	for _, row := range rows {
		c.roster = append(c.roster, rowToPlayer(row))
	}

	roomID := room.ID
	c.rosterSub = c.broker.Subscribe(store.RoomPlayer{}.TableName(), func(ch feed.Change) bool {
		return playerRoomID(ch) == roomID
	})
	c.turnSub = c.broker.Subscribe(store.GameState{}.TableName(), func(ch feed.Change) bool {
		return stateRoomID(ch) == roomID
	})
	c.roomSub = c.broker.Subscribe(store.Room{}.TableName(), func(ch feed.Change) bool {
		if r, ok := ch.Row.(store.Room); ok {
			return r.ID == roomID
		}
		return false
	})
	go c.pump(c.rosterSub)
	go c.pump(c.turnSub)
	go c.pump(c.roomSub)
	return nil
}

func (c *Controller) teardownRoomSubs() {
	for _, sub := range []*feed.Subscription{c.rosterSub, c.turnSub, c.roomSub} {
		if sub != nil {
			sub.Cancel()
		}
	}
	c.rosterSub, c.turnSub, c.roomSub = nil, nil, nil
}

func (c *Controller) handleLeave() error {
	if c.room == nil {
		return nil
	}

	var deleteErr error
	if mine := c.myEntry(); mine != nil {
		deleteErr = c.store.DeletePlayer(c.ctx, mine.RowID)
	}

	// Teardown happens regardless: in-flight writes may still land
	// remotely, but this client is done looking.
	c.teardownRoomSubs()
	c.room = nil
	c.roster = nil
	c.turn = nil
	c.lastErr = ""
	c.finishIssued = false
	c.bump()
	return deleteErr
}

func (c *Controller) myEntry() *PlayerView {
	for i := range c.roster {
		if c.roster[i].PlayerID == c.me.ID {
			return &c.roster[i]
		}
	}
	return nil
}

func (c *Controller) handleSetReady(ready bool) error {
	mine := c.myEntry()
	if c.room == nil || mine == nil {
		return c.fail(game.ErrNotInRoom)
	}

	p := store.RoomPlayer{
		ID:       mine.RowID,
		RoomID:   c.room.ID,
		PlayerID: mine.PlayerID,
		Score:    mine.Score,
		Lives:    mine.Lives,
		IsReady:  ready,
	}
	if err := c.store.UpdatePlayer(c.ctx, &p); err != nil {
		return c.fail(err)
	}
	mine.Ready = ready
	c.bump()
	return nil
}

func (c *Controller) handleStart(first game.Question) StartResult {
	if c.room == nil {
		return StartResult{Outcome: StartNotApplied, Err: c.fail(game.ErrNotInRoom)}
	}

	seats := make([]game.Seat, 0, len(c.roster))
	for _, p := range c.roster {
		seats = append(seats, game.Seat{PlayerID: p.PlayerID, Ready: p.Ready})
	}
	ts, err := game.Start(c.room.HostID, c.me.ID, seats, first)
	if err != nil {
		return StartResult{Outcome: StartNotApplied, Err: c.fail(err)}
	}

	// Two sequential writes, no transaction. Phase one: room status.
	if err := c.store.UpdateRoomStatus(c.ctx, c.room.ID, store.StatusPlaying); err != nil {
		return StartResult{Outcome: StartNotApplied, Err: c.fail(err)}
	}

	// Phase two: the turn record.
	gs, err := turnToRecord(c.room.ID, ts)
	if err == nil {
		err = c.store.CreateGameState(c.ctx, gs)
	}
	if err != nil {
		if revertErr := c.store.UpdateRoomStatus(c.ctx, c.room.ID, store.StatusWaiting); revertErr != nil {
			c.log.Error("start-game rollback failed, store left inconsistent",
				zap.String("room", c.room.ID), zap.Error(revertErr))
			return StartResult{Outcome: StartInconsistent, Err: c.fail(fmt.Errorf("create game state: %w", err))}
		}
		return StartResult{Outcome: StartRolledBack, Err: c.fail(fmt.Errorf("create game state: %w", err))}
	}

	c.room.Status = store.StatusPlaying
	c.turn = &ts
	c.bump()
	return StartResult{Outcome: StartApplied}
}

func (c *Controller) handleAnswer(correct bool, next *game.Question) error {
	mine := c.myEntry()
	if c.room == nil || mine == nil {
		return c.fail(game.ErrNotInRoom)
	}

	score, lives := game.ScoreAnswer(mine.Score, mine.Lives, correct)
	p := store.RoomPlayer{
		ID:       mine.RowID,
		RoomID:   c.room.ID,
		PlayerID: mine.PlayerID,
		Score:    score,
		Lives:    lives,
		IsReady:  mine.Ready,
	}
	if err := c.store.UpdatePlayer(c.ctx, &p); err != nil {
		return c.fail(err)
	}
	mine.Score = score
	mine.Lives = lives
	mine.Eliminated = game.Eliminated(lives)

	// Rotation happens only when a next question is supplied and the
	// caller actually holds the turn. Whose turn it is is taken on
	// trust from the caller's view; nothing here re-checks it
	// server-side.
	if next != nil && c.turn != nil && c.turn.CurrentTurn == c.me.ID {
		order := make([]string, 0, len(c.roster))
		for _, entry := range c.roster {
			order = append(order, entry.PlayerID)
		}
		ts := game.Advance(*c.turn, order, *next)
		gs, err := turnToRecord(c.room.ID, ts)
		if err == nil {
			err = c.store.SaveGameState(c.ctx, gs)
		}
		if err != nil {
			return c.fail(err)
		}
		c.turn = &ts
	}
	c.bump()
	return nil
}

func (c *Controller) handleSendInvite(to string) error {
	if c.room == nil {
		return c.fail(game.ErrNotInRoom)
	}
	inv := store.RoomInvite{
		ID:        uuid.NewString(),
		RoomID:    c.room.ID,
		FromID:    c.me.ID,
		ToID:      to,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateInvite(c.ctx, &inv); err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Controller) handleDecline(inviteID string) error {
	if err := c.store.DeleteInvite(c.ctx, inviteID); err != nil {
		return c.fail(err)
	}
	for i, inv := range c.invites {
		if inv.ID == inviteID {
			c.invites = append(c.invites[:i], c.invites[i+1:]...)
			break
		}
	}
	c.bump()
	return nil
}

// reconcile folds one feed change into the local view and reports
// whether anything was applied.
func (c *Controller) reconcile(ch feed.Change) bool {
	switch ch.Table {
	case store.RoomInvite{}.TableName():
		return c.reconcileInvite(ch)
	}

	if c.room == nil {
		// Room-scoped event left over from before a leave.
		return false
	}

	switch ch.Table {
	case store.RoomPlayer{}.TableName():
		if !c.reconcileRoster(ch) {
			return false
		}
	case store.Room{}.TableName():
		if !c.reconcileRoom(ch) {
			return false
		}
	case store.GameState{}.TableName():
		if !c.reconcileTurn(ch) {
			return false
		}
	default:
		return false
	}

	c.checkLastStanding()
	return true
}

func (c *Controller) reconcileRoster(ch feed.Change) bool {
	switch ch.Type {
	case feed.EventInsert:
		row, ok := ch.Row.(store.RoomPlayer)
		if !ok || row.RoomID != c.room.ID {
			return false
		}
		for _, p := range c.roster {
			if p.RowID == row.ID {
				return false // already known from the snapshot fetch
			}
		}
		entry := PlayerView{
			RowID:      row.ID,
			PlayerID:   row.PlayerID,
			Score:      row.Score,
			Lives:      row.Lives,
			Eliminated: game.Eliminated(row.Lives),
			Ready:      row.IsReady,
			JoinedAt:   row.JoinedAt,
			Username:   placeholderUsername,
		}
		// Best-effort enrichment; rapid joins can race this lookup.
		if prof, err := c.store.ProfileByID(c.ctx, row.PlayerID); err == nil {
			if prof.Username != "" {
				entry.Username = prof.Username
			}
			entry.AvatarURL = prof.AvatarURL
		}
		c.roster = append(c.roster, entry)
		return true

	case feed.EventUpdate:
		row, ok := ch.Row.(store.RoomPlayer)
		if !ok {
			return false
		}
		for i := range c.roster {
			if c.roster[i].RowID == row.ID {
				// Merge mutable fields only; the profile is never refetched.
				c.roster[i].Score = row.Score
				c.roster[i].Lives = row.Lives
				c.roster[i].Eliminated = game.Eliminated(row.Lives)
				c.roster[i].Ready = row.IsReady
				return true
			}
		}
		return false

	case feed.EventDelete:
		old, ok := ch.Old.(store.RoomPlayer)
		if !ok {
			return false
		}
		for i := range c.roster {
			if c.roster[i].RowID == old.ID {
				c.roster = append(c.roster[:i], c.roster[i+1:]...)
				return true
			}
		}
		return false
	}
	return false
}

func (c *Controller) reconcileRoom(ch feed.Change) bool {
	row, ok := ch.Row.(store.Room)
	if !ok || ch.Type != feed.EventUpdate || row.ID != c.room.ID {
		return false
	}
	cp := row
	c.room = &cp

	// Late-join recovery: playing room, no local turn record yet.
	if c.room.Status == store.StatusPlaying && c.turn == nil {
		c.resyncTurn()
	}
	return true
}

func (c *Controller) reconcileTurn(ch feed.Change) bool {
	row, ok := ch.Row.(store.GameState)
	if !ok || row.RoomID != c.room.ID {
		return false
	}
	switch ch.Type {
	case feed.EventInsert, feed.EventUpdate:
		ts, err := recordToTurn(row)
		if err != nil {
			c.log.Warn("malformed game state row", zap.String("room", row.RoomID), zap.Error(err))
			return false
		}
		c.turn = &ts
		return true
	}
	return false
}

func (c *Controller) reconcileInvite(ch feed.Change) bool {
	switch ch.Type {
	case feed.EventInsert:
		inv, ok := ch.Row.(store.RoomInvite)
		if !ok || inv.ToID != c.me.ID {
			return false
		}
		c.invites = append(c.invites, InviteView{ID: inv.ID, RoomID: inv.RoomID, FromID: inv.FromID})
		return true
	case feed.EventDelete:
		old, ok := ch.Old.(store.RoomInvite)
		if !ok {
			return false
		}
		for i, inv := range c.invites {
			if inv.ID == old.ID {
				c.invites = append(c.invites[:i], c.invites[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (c *Controller) resyncTurn() {
	gs, err := c.store.GameStateByRoom(c.ctx, c.room.ID)
	if err != nil {
		c.log.Warn("turn resync failed", zap.String("room", c.room.ID), zap.Error(err))
		return
	}
	ts, err := recordToTurn(*gs)
	if err != nil {
		c.log.Warn("malformed game state row", zap.String("room", c.room.ID), zap.Error(err))
		return
	}
	c.turn = &ts
}

// checkLastStanding finishes the match when one player remains. Only
// the host's client issues the write, so every other client observing
// the same condition stays quiet; the latch keeps the host from
// writing again on every subsequent event.
func (c *Controller) checkLastStanding() {
	if c.room == nil || c.room.Status != store.StatusPlaying {
		return
	}
	if len(c.roster) != 1 || c.me.ID != c.room.HostID || c.finishIssued {
		return
	}
	c.finishIssued = true
	if err := c.store.UpdateRoomStatus(c.ctx, c.room.ID, store.StatusFinished); err != nil {
		c.lastErr = err.Error()
		return
	}
	c.room.Status = store.StatusFinished
}

func rowToPlayer(row store.RoomPlayerRow) PlayerView {
	p := PlayerView{
		RowID:      row.ID,
		PlayerID:   row.PlayerID,
		Score:      row.Score,
		Lives:      row.Lives,
		Eliminated: game.Eliminated(row.Lives),
		Ready:      row.IsReady,
		JoinedAt:   row.JoinedAt,
		Username:   row.Username,
		AvatarURL:  row.AvatarURL,
	}
	if p.Username == "" {
		p.Username = placeholderUsername
	}
	return p
}

func turnToRecord(roomID string, ts game.TurnState) (*store.GameState, error) {
	q, err := json.Marshal(ts.Question)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}
	return &store.GameState{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		CurrentTurn: ts.CurrentTurn,
		Question:    string(q),
		Round:       ts.Round,
		TimeLeft:    ts.TimeLeft,
	}, nil
}

func recordToTurn(gs store.GameState) (game.TurnState, error) {
	var q game.Question
	if gs.Question != "" {
		if err := json.Unmarshal([]byte(gs.Question), &q); err != nil {
			return game.TurnState{}, fmt.Errorf("decode question: %w", err)
		}
	}
	return game.TurnState{
		CurrentTurn: gs.CurrentTurn,
		Question:    q,
		Round:       gs.Round,
		TimeLeft:    gs.TimeLeft,
	}, nil
}

// playerRoomID extracts the room id from a room_players change.
func playerRoomID(ch feed.Change) string {
	if p, ok := ch.Row.(store.RoomPlayer); ok {
		return p.RoomID
	}
	if p, ok := ch.Old.(store.RoomPlayer); ok {
		return p.RoomID
	}
	return ""
}

func stateRoomID(ch feed.Change) string {
	if gs, ok := ch.Row.(store.GameState); ok {
		return gs.RoomID
	}
	if gs, ok := ch.Old.(store.GameState); ok {
		return gs.RoomID
	}
	return ""
}
