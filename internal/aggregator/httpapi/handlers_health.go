package httpapi

import (
	"net/http"
	"time"

	"vpnagg/internal/aggregator/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady probes the event log's writability the same way
// rest_endpoints.py's ready() does — append a synthetic ready_probe event.
// Readiness without a configured Store reports false: there is nothing to
// probe.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := s.store != nil
	if ready {
		s.store.Append(model.Event{
			Type: "ready_probe",
			Ts:   float64(time.Now().UnixNano()) / 1e9,
		})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}
