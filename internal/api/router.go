package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pagetree/internal/exportservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *exportservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/groups", h.ListGroups)
	r.Get("/groups/{key}", h.GetGroup)
	r.Get("/groups/{key}/csv", h.GroupCSV)

	r.Get("/search", h.Search)
	r.Get("/duplicates", h.Duplicates)

	r.Get("/runs/latest", h.LatestRun)
	r.Post("/export", h.Export)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
