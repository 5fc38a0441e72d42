package api

import (
	"net/http"
	"strconv"
)

// handleEvents returns recent serial link transitions, newest first.
//
// Accepts an optional ?limit= query parameter; the event store clamps it.
// Returns 503 when the event log is disabled in configuration.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeServiceUnavailable(w, "event log disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("querying link events failed", "error", err)
		writeInternalError(w, "failed to query events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
	})
}
