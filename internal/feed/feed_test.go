package feed

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
)

// helper: receive one change with a timeout so tests never hang
func recvChange(t *testing.T, ch <-chan Change, within time.Duration) Change {
	t.Helper()
	select {
	case c, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return c
	case <-time.After(within):
		t.Fatalf("timed out waiting for change")
		return Change{} // unreachable
	}
}

func TestBroker_DeliversInPublishOrder(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Subscribe("rooms", nil)
	defer sub.Cancel()

	for i := 0; i < 10; i++ {
		b.Publish(Change{Table: "rooms", Type: EventInsert, Row: i})
	}
	for i := 0; i < 10; i++ {
		got := recvChange(t, sub.C(), 100*time.Millisecond)
		if got.Row.(int) != i {
			t.Fatalf("out of order: want %d, got %v", i, got.Row)
		}
	}
}

func TestBroker_FilterAndTableScoping(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Subscribe("room_players", func(ch Change) bool {
		return ch.Row.(string) == "room-1"
	})
	defer sub.Cancel()

	b.Publish(Change{Table: "rooms", Type: EventInsert, Row: "room-1"})        // wrong table
	b.Publish(Change{Table: "room_players", Type: EventInsert, Row: "room-2"}) // filtered out
	b.Publish(Change{Table: "room_players", Type: EventInsert, Row: "room-1"})

	got := recvChange(t, sub.C(), 100*time.Millisecond)
	if got.Row.(string) != "room-1" || got.Table != "room_players" {
		t.Fatalf("unexpected change: %+v", got)
	}

	select {
	case c := <-sub.C():
		t.Fatalf("expected no further change, got %+v", c)
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBroker_CancelClosesChannel(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Subscribe("rooms", nil)
	sub.Cancel()
	sub.Cancel() // idempotent

	if _, ok := <-sub.C(); ok {
		t.Fatalf("expected closed channel after cancel")
	}

	// Publishing after cancel must not panic or deliver.
	b.Publish(Change{Table: "rooms", Type: EventInsert})
}

func TestBroker_DropsSlowSubscriber(t *testing.T) {
	b := NewBroker(zap.NewNop())
	sub := b.Subscribe("rooms", nil)

	// Overflow the subscriber buffer without draining it.
	for i := 0; i < 70; i++ {
		b.Publish(Change{Table: "rooms", Type: EventInsert, Row: i})
	}

	// The channel was closed on drop: draining it terminates.
	n := 0
	for range sub.C() {
		n++
		if n > 64 {
			t.Fatalf("received more than the buffer size: %d", n)
		}
	}

	// A fresh subscriber still works.
	sub2 := b.Subscribe("rooms", nil)
	defer sub2.Cancel()
	b.Publish(Change{Table: "rooms", Type: EventInsert, Row: "after"})
	got := recvChange(t, sub2.C(), 100*time.Millisecond)
	if fmt.Sprint(got.Row) != "after" {
		t.Fatalf("unexpected row: %v", got.Row)
	}
}
