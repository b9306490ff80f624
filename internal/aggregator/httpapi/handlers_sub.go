package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
)

// maxSubResponseBytes caps how much of a stored artifact is ever served in
// one response (spec-grounded on rest_endpoints.py's 5MB response cap).
const maxSubResponseBytes = 5_000_000

var subFilenames = map[string]string{
	"raw":     "vpn_subscription_raw.txt",
	"base64":  "vpn_subscription_base64.txt",
	"singbox": "vpn_singbox.json",
	"report":  "vpn_report.json",
}

// handleSub serves the tenant's latest merge artifact (spec §6 "GET
// /sub/raw|base64|singbox|report").
func (s *Server) handleSub(w http.ResponseWriter, r *http.Request) {
	if !s.requireToken(w, r) {
		return
	}
	if !s.allow(w, r) {
		return
	}

	format := mux.Vars(r)["format"]
	filename, ok := subFilenames[format]
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	base := s.tenantOutputDir(r)
	data, err := os.ReadFile(filepath.Join(base, filename))
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if len(data) > maxSubResponseBytes {
		data = data[:maxSubResponseBytes]
	}

	if format == "singbox" || format == "report" {
		var obj interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			obj = map[string]string{"raw": string(data)}
		}
		writeJSON(w, http.StatusOK, obj)
		return
	}
	writeText(w, http.StatusOK, string(data))
}
