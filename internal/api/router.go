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

	// Service descriptor
	r.Get("/", s.handleRoot)

	// REST API
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/publish", s.handlePublish)
		r.Get("/events", s.handleEvents)
	})

	// WebSocket endpoint
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleRoot returns the service descriptor.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Gray Serial Bridge",
		"version": s.version,
		"endpoints": map[string]string{
			"status":    "/api/status",
			"publish":   "/api/publish",
			"events":    "/api/events",
			"websocket": s.wsCfg.Path,
		},
	})
}
