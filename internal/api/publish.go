package api

import (
	"encoding/json"
	"net/http"
)

// publishRequest is the body of POST /api/publish.
type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// handlePublish writes one message to the serial device.
//
// Responses:
//   - 200 with {"success":true,"topic":...} when the device write succeeded
//   - 400 for malformed JSON or a missing topic
//   - 503 when the serial link is down
//   - 500 when the write failed despite a connected link
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON format")
		return
	}
	if req.Topic == "" {
		writeBadRequest(w, "Topic is required")
		return
	}

	if !s.bridge.LinkConnected() {
		writeServiceUnavailable(w, "serial link not connected")
		return
	}

	if !s.bridge.Publish(req.Topic, req.Payload) {
		writeInternalError(w, "failed to write to serial device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"topic":   req.Topic,
		"payload": req.Payload,
	})
}
