package directory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/geoduel/geoduel/internal/feed"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/session"
	"github.com/geoduel/geoduel/internal/store"
)

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	broker := feed.NewBroker(zap.NewNop())
	return New(ctx, store.NewMemory(broker), broker, zap.NewNop())
}

func recvSession(t *testing.T, ch <-chan *session.Controller) *session.Controller {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session")
		return nil // unreachable
	}
}

func TestDirectory_Ensure_Get_SamePointer(t *testing.T) {
	d := newDirectory(t)
	reply := make(chan *session.Controller, 1)

	me := identity.Identity{ID: "alice", Email: "alice@example.com"}
	d.Inbox() <- EnsureSession{PlayerID: "alice", Identity: me, Reply: reply}
	c1 := recvSession(t, reply)

	d.Inbox() <- EnsureSession{PlayerID: "alice", Identity: me, Reply: reply}
	c2 := recvSession(t, reply)

	d.Inbox() <- GetSession{PlayerID: "alice", Reply: reply}
	c3 := recvSession(t, reply)

	if c1 == nil || c1 != c2 || c1 != c3 {
		t.Fatalf("expected same session pointer")
	}
	if c1.Me().ID != "alice" {
		t.Fatalf("session bound to wrong identity: %+v", c1.Me())
	}
}

func TestDirectory_Get_UnknownIsNil(t *testing.T) {
	d := newDirectory(t)
	reply := make(chan *session.Controller, 1)

	d.Inbox() <- GetSession{PlayerID: "ghost", Reply: reply}
	if c := recvSession(t, reply); c != nil {
		t.Fatalf("expected nil session for unknown player")
	}
}

func TestDirectory_RemoveDropsSession(t *testing.T) {
	d := newDirectory(t)
	reply := make(chan *session.Controller, 1)

	me := identity.Identity{ID: "bob"}
	d.Inbox() <- EnsureSession{PlayerID: "bob", Identity: me, Reply: reply}
	first := recvSession(t, reply)

	d.Inbox() <- RemoveSession{PlayerID: "bob"}

	d.Inbox() <- EnsureSession{PlayerID: "bob", Identity: me, Reply: reply}
	second := recvSession(t, reply)

	if first == second {
		t.Fatalf("expected a fresh session after remove")
	}
}
