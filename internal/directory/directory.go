package directory

import (
	"context"

	"go.uber.org/zap"

	"github.com/geoduel/geoduel/internal/feed"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/session"
	"github.com/geoduel/geoduel/internal/store"
)

type DirMsg interface{ isDirMsg() }

type EnsureSession struct {
	PlayerID string
	Identity identity.Identity // only used if creation happens
	Reply    chan *session.Controller
}

type GetSession struct {
	PlayerID string
	Reply    chan *session.Controller
}

type RemoveSession struct {
	PlayerID string
}

type ShutdownAll struct{}

func (EnsureSession) isDirMsg() {}
func (GetSession) isDirMsg()    {}
func (RemoveSession) isDirMsg() {}
func (ShutdownAll) isDirMsg()   {}

// Directory owns the live session controllers in this process, one per
// signed-in player, so reconnecting clients get their existing session
// back.
type Directory struct {
	inbox    chan DirMsg
	sessions map[string]*session.Controller
	store    store.Store
	broker   *feed.Broker
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, st store.Store, broker *feed.Broker, log *zap.Logger) *Directory {
	ctx, cancel := context.WithCancel(parent)
	d := &Directory{
		inbox:    make(chan DirMsg, 64),
		sessions: make(map[string]*session.Controller),
		store:    st,
		broker:   broker,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go d.loop()
	return d
}

func (d *Directory) Inbox() chan<- DirMsg { return d.inbox }

func (d *Directory) loop() {
	for {
		select {
		case <-d.ctx.Done():
			return

		case m := <-d.inbox:
			switch msg := m.(type) {
			case EnsureSession:
				if c := d.sessions[msg.PlayerID]; c != nil {
					msg.Reply <- c
					break
				}
				c, err := session.New(d.ctx, identity.Static{Identity: msg.Identity}, d.store, d.broker, d.log)
				if err != nil {
					d.log.Error("failed to create session", zap.String("player", msg.PlayerID), zap.Error(err))
					msg.Reply <- nil
					break
				}
				d.sessions[msg.PlayerID] = c
				msg.Reply <- c

			case GetSession:
				msg.Reply <- d.sessions[msg.PlayerID] // May be nil

			case RemoveSession:
				if c := d.sessions[msg.PlayerID]; c != nil {
					c.Inbox() <- session.Shutdown{}
					delete(d.sessions, msg.PlayerID)
				}

			case ShutdownAll:
				for _, c := range d.sessions {
					c.Inbox() <- session.Shutdown{}
				}
				clear(d.sessions)
				d.cancel()
			}
		}
	}
}
