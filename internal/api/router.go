package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultlinks/internal/worker"
)

// NewRouter creates a chi router with the worker control routes. Mount it
// under /__worker.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(w *worker.Worker, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(w)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/state", h.State)
	r.Post("/message", h.Message)
	r.Post("/sync", h.Sync)
	r.Post("/push", h.Push)
	r.Post("/notificationclick", h.NotificationClick)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
