package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/geoduel/geoduel/internal/directory"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/session"
)

var errNoToken = errors.New("missing token")

// BearerResolver reads the caller's identity from an Authorization
// bearer token or a ?token= query parameter (the websocket upgrade
// can't set headers from a browser).
func BearerResolver(tokens *identity.TokenSource) func(*http.Request) (identity.Identity, error) {
	return func(r *http.Request) (identity.Identity, error) {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			header := r.Header.Get("Authorization")
			if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
				raw = parts[1]
			}
		}
		if raw == "" {
			return identity.Identity{}, errNoToken
		}
		return tokens.Parse(raw)
	}
}

func CreateRoom(dir *directory.Directory, resolve func(*http.Request) (identity.Identity, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := resolve(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Controller, 1)
		dir.Inbox() <- directory.EnsureSession{PlayerID: me.ID, Identity: me, Reply: reply}
		sess := <-reply
		if sess == nil {
			http.Error(w, "failed to open session", http.StatusInternalServerError)
			return
		}

		res := make(chan session.CreateResult, 1)
		sess.Inbox() <- session.CreateRoom{Mode: body.Mode, Reply: res}
		created := <-res
		if created.Err != nil {
			http.Error(w, created.Err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(struct {
			Code string `json:"code"`
		}{Code: created.Code})
	}
}

// DevToken issues a signed token for an arbitrary player id. Mounted
// only when DEV_MODE is set; a real deployment gets tokens from the
// auth provider.
func DevToken(tokens *identity.TokenSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID string `json:"player_id"`
			Email    string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlayerID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		token, err := tokens.Sign(identity.Identity{ID: body.PlayerID, Email: body.Email})
		if err != nil {
			http.Error(w, "failed to sign token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Token string `json:"token"`
		}{Token: token})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
