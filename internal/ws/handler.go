package ws

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/geoduel/geoduel/internal/directory"
	"github.com/geoduel/geoduel/internal/game"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/session"
)

var errUnknownType = errors.New("unknown type")
var errMissingQuestion = errors.New("missing question")

type ClientMessage struct {
	Type     string         `json:"type"`
	Mode     string         `json:"mode,omitempty"`
	Code     string         `json:"code,omitempty"`
	Ready    bool           `json:"ready,omitempty"`
	Correct  bool           `json:"correct,omitempty"`
	Question *game.Question `json:"question,omitempty"`
	To       string         `json:"to,omitempty"`
	InviteID string         `json:"invite_id,omitempty"`
}

type ServerMessage struct {
	Type  string        `json:"type"` // "StateSnapshot" | "Error"
	View  *session.View `json:"view,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Resolver turns an incoming request into the caller's identity.
type Resolver func(*http.Request) (identity.Identity, error)

func Handler(dir *directory.Directory, resolve Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := resolve(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		reply := make(chan *session.Controller, 1)
		dir.Inbox() <- directory.EnsureSession{PlayerID: me.ID, Identity: me, Reply: reply}
		sess := <-reply
		if sess == nil {
			http.Error(w, "failed to open session", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan session.View, 8)
		watcherID := randID(6)

		sess.Inbox() <- session.Watch{ClientID: watcherID, Outbox: out}
		defer func() { sess.Inbox() <- session.Unwatch{ClientID: watcherID} }()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for snap := range out {
				view := snap
				payload, _ := json.Marshal(ServerMessage{Type: "StateSnapshot", View: &view})
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var cm ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			if err := dispatch(sess, cm); err != nil {
				writeError(r.Context(), conn, err.Error())
			}
		}
	}
}

// dispatch sends one client op to the session and waits for its reply.
// Failures also land in the view's LastError; the direct Error message
// just gives the caller something to correlate with.
func dispatch(sess *session.Controller, cm ClientMessage) error {
	switch cm.Type {
	case "CreateRoom":
		reply := make(chan session.CreateResult, 1)
		sess.Inbox() <- session.CreateRoom{Mode: cm.Mode, Reply: reply}
		return (<-reply).Err

	case "JoinRoom":
		reply := make(chan error, 1)
		sess.Inbox() <- session.JoinRoom{Code: cm.Code, Reply: reply}
		return <-reply

	case "LeaveRoom":
		reply := make(chan error, 1)
		sess.Inbox() <- session.LeaveRoom{Reply: reply}
		return <-reply

	case "SetReady":
		reply := make(chan error, 1)
		sess.Inbox() <- session.SetReady{Ready: cm.Ready, Reply: reply}
		return <-reply

	case "StartGame":
		if cm.Question == nil {
			return errMissingQuestion
		}
		reply := make(chan session.StartResult, 1)
		sess.Inbox() <- session.StartGame{First: *cm.Question, Reply: reply}
		return (<-reply).Err

	case "SubmitAnswer":
		reply := make(chan error, 1)
		sess.Inbox() <- session.SubmitAnswer{Correct: cm.Correct, Next: cm.Question, Reply: reply}
		return <-reply

	case "SendInvite":
		reply := make(chan error, 1)
		sess.Inbox() <- session.SendInvite{To: cm.To, Reply: reply}
		return <-reply

	case "DeclineInvite":
		reply := make(chan error, 1)
		sess.Inbox() <- session.DeclineInvite{InviteID: cm.InviteID, Reply: reply}
		return <-reply

	default:
		return errUnknownType
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(ServerMessage{Type: "Error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
