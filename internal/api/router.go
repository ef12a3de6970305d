package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nordmark/raido/internal/orchestrator"
	"github.com/nordmark/raido/internal/store"
	"github.com/nordmark/raido/internal/vault"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// mirror may be nil (task queries fall back to the in-memory snapshot).
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(orch *orchestrator.Orchestrator, provider vault.Provider, mirror *store.DB, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(orch, provider, mirror)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Tasks.
	r.Get("/tasks", h.ListTasks)
	r.Post("/tasks/toggle", h.ToggleTask)

	// Tags.
	r.Get("/tags", h.ListTags)

	// Notes.
	r.Get("/notes", h.NoteTree)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.SaveNote)

	// Backlinks.
	r.Get("/backlinks/*", h.Backlinks)

	// Manual reindex.
	r.Post("/refresh", h.Refresh)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
