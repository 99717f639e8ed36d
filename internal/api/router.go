package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Unlock takes the passphrase, so it cannot require a token
		r.Post("/unlock", s.handleUnlock)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WebSocket works while locked so clients see the unlock
			r.Get("/ws", s.handleWebSocket)

			r.Route("/notes", func(r chi.Router) {
				r.Use(s.readyMiddleware)

				r.Get("/", s.handleListNotes)
				r.Post("/", s.handleCreateNote)
				r.Get("/search", s.handleSearchNotes)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetNote)
					r.Put("/", s.handleUpdateNote)
					r.Delete("/", s.handleDeleteNote)
				})
			})

			r.With(s.readyMiddleware).Get("/audit", s.handleListAudit)
		})
	})

	return r
}

// handleHealth returns the server and database status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := s.db.IsDatabaseReady(r.Context())

	status := "ok"
	if !ready {
		status = "locked"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": s.version,
		"database": map[string]any{
			"state":             s.db.State(),
			"ready":             ready,
			"extensions_loaded": s.db.ExtensionsLoaded(),
		},
		"auth_enabled":  s.authEnabled(),
		"vault_enabled": s.unlocker != nil,
	})
}
