package httpapi

import (
	"net/http"
	"sort"
	"strconv"
)

// handleRuns lists recent merge runs. jobs.Manager is the Go equivalent of
// rest_endpoints.py's `run_store.tail_runs` — a background merge run IS a
// Job in this architecture, so there is no separate run-log module to
// ground this on beyond jobs.Manager.List itself.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	all := s.jobs.List()
	sort.Slice(all, func(i, j int) bool { return all[i].StartedAt.After(all[j].StartedAt) })
	if limit < len(all) {
		all = all[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": all})
}
