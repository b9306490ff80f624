package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"vpnagg/internal/aggregator/jobs"
)

var knownFormats = map[string]struct{}{
	"raw": {}, "base64": {}, "csv": {}, "singbox": {}, "clash": {}, "report": {},
}

// parseFormats splits a comma/space separated formats query value, lowercases
// each entry, and drops anything not in knownFormats — mirrors
// run_merge_endpoint's `formats.replace(",", " ").split()`.
func parseFormats(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, ",", " ")
	var out []string
	for _, f := range strings.Fields(raw) {
		f = strings.ToLower(f)
		if _, ok := knownFormats[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// handleRunMerge starts a background merge job and returns immediately
// (spec §6 "kicks off a background run").
func (s *Server) handleRunMerge(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}

	q := r.URL.Query()
	formats := parseFormats(q.Get("formats"))
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	job := s.jobs.Create(jobs.Spec{
		Limit:     limit,
		Formats:   formats,
		OutputDir: s.tenantOutputDir(r),
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"started": true,
		"job_id":  job.ID,
		"formats": formats,
		"limit":   limit,
	})
}
