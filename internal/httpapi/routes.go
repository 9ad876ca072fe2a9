package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geoduel/geoduel/internal/directory"
	"github.com/geoduel/geoduel/internal/identity"
	"github.com/geoduel/geoduel/internal/ws"
)

func SetupRoutes(dir *directory.Directory, tokens *identity.TokenSource, devMode bool) http.Handler {
	r := chi.NewRouter()
	resolve := BearerResolver(tokens)

	// Public routes
	r.Post("/rooms", CreateRoom(dir, resolve))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(dir, resolve))

	if devMode {
		r.Post("/dev/token", DevToken(tokens))
	}
	return r
}
