package api

import "net/http"

// handleStatus returns the current serial link state and client count.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	env := s.bridge.StatusEnvelope()
	writeJSON(w, http.StatusOK, map[string]any{
		"serial": map[string]any{
			"connected": s.bridge.LinkConnected(),
			"port":      env.Details.SerialPort,
			"baudrate":  env.Details.BaudRate,
		},
		"clients":     s.registry.Count(),
		"max_clients": s.wsCfg.MaxConnections,
		"version":     s.version,
	})
}
