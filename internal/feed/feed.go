package feed

import (
	"sync"

	"go.uber.org/zap"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Change is one row-level mutation observed on a table. Row holds the
// new row for inserts/updates, Old the previous row for updates/deletes.
type Change struct {
	Table string
	Type  EventType
	Row   any
	Old   any
}

// Filter decides whether a subscriber receives a change. A nil filter
// receives everything on the table.
type Filter func(Change) bool

type Subscription struct {
	c      chan Change
	cancel func()
}

// C delivers changes in per-table commit order. Closed on Cancel or
// when the subscriber falls too far behind.
func (s *Subscription) C() <-chan Change { return s.c }

func (s *Subscription) Cancel() { s.cancel() }

type subscriber struct {
	out    chan Change
	filter Filter
}

// Broker fans row changes out to per-table subscribers. There is no
// replay: changes published while nobody is subscribed are gone.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	log  *zap.Logger
}

func NewBroker(log *zap.Logger) *Broker {
	return &Broker{
		subs: make(map[string]map[*subscriber]struct{}),
		log:  log,
	}
}

func (b *Broker) Subscribe(table string, filter Filter) *Subscription {
	sub := &subscriber{
		out:    make(chan Change, 64), // Small buffer
		filter: filter,
	}

	b.mu.Lock()
	if b.subs[table] == nil {
		b.subs[table] = make(map[*subscriber]struct{})
	}
	b.subs[table][sub] = struct{}{}
	b.mu.Unlock()

	return &Subscription{
		c: sub.out,
		cancel: func() {
			b.mu.Lock()
			if _, ok := b.subs[table][sub]; ok {
				delete(b.subs[table], sub)
				close(sub.out)
			}
			b.mu.Unlock()
		},
	}
}

// Publish delivers ch to every matching subscriber on ch.Table. The
// lock is held across delivery so each table's subscribers observe
// changes in publish order.
func (b *Broker) Publish(ch Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[ch.Table] {
		if sub.filter != nil && !sub.filter(ch) {
			continue
		}
		select {
		case sub.out <- ch:
			//ok
		default:
			// Subscriber is slow/full - drop them.
			b.log.Warn("dropping slow feed subscriber", zap.String("table", ch.Table))
			delete(b.subs[ch.Table], sub)
			close(sub.out)
		}
	}
}
