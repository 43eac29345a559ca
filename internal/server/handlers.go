package server

import (
	"encoding/json"
	"net/http"
)

// handleHealth reports liveness and whether the ledger can be read.
// An unreadable ledger answers 503 so load balancers stop routing to it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "sqlite"
	if s.container.LedgerPool != nil {
		backend = "postgres"
	}

	response := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"service": "tunefolio",
		"ledger":  backend,
	}

	if _, err := s.container.Ledger.Watermark(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("Health check could not read the ledger")
		response["status"] = "unhealthy"
		s.writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	s.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
