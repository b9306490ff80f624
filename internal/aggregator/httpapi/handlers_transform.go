package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"vpnagg/internal/aggregator/model"
	"vpnagg/internal/aggregator/output"
	"vpnagg/internal/aggregator/vpnconfig"
)

type validatePayload struct {
	URLs     []string `json:"urls"`
	MinScore *float64 `json:"min_score"`
}

// handleValidate probes each caller-supplied URL and reports its
// reliability score, filtered to min_score (default 0.5) and up (spec §6
// "POST /validate {urls, min_score} -> {results: [[url, score], …]}").
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var payload validatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	minScore := 0.5
	if payload.MinScore != nil {
		minScore = *payload.MinScore
	}

	results := make([][2]interface{}, 0, len(payload.URLs))
	for _, u := range payload.URLs {
		vr := s.validator.Validate(r.Context(), u)
		if vr.ReliabilityScore >= minScore {
			results = append(results, [2]interface{}{u, vr.ReliabilityScore})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type linesPayload struct {
	Type    string   `json:"type"`
	Lines   []string `json:"lines"`
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
	Top     int      `json:"top"`
}

// syntheticConfigs builds VPNConfigurations directly from caller-supplied
// lines without Processor's dedup/accept gate, using vpnconfig.Describe for
// the protocol/host/port fields the CSV/sing-box/Clash renderers read.
func syntheticConfigs(lines []string) []*model.VPNConfiguration {
	out := make([]*model.VPNConfiguration, 0, len(lines))
	for _, line := range lines {
		protocol, host, port := vpnconfig.Describe(line)
		out = append(out, &model.VPNConfiguration{ConfigURI: line, Protocol: protocol, Host: host, Port: port})
	}
	return out
}

// handleFormat renders caller-supplied lines in the requested format (spec
// §6 "POST /format {type, lines} -> rendered text").
func (s *Server) handleFormat(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var payload linesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	t := strings.ToLower(payload.Type)
	if t == "" {
		t = "raw"
	}

	configs := syntheticConfigs(payload.Lines)

	var (
		text string
		err  error
	)
	switch t {
	case "base64":
		text = output.Base64(configs)
	case "csv":
		text, err = output.CSV(configs)
	case "singbox":
		text, err = output.Singbox(configs)
	case "clash":
		text, err = output.Clash(configs)
	default:
		text = output.Raw(configs)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeText(w, http.StatusOK, text)
}

// handleFilter keeps lines whose scheme passes an optional include
// allowlist and fails an exclude denylist (spec §6 "POST /filter {lines,
// include?, exclude?} -> filtered list").
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var payload linesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var include map[string]struct{}
	if len(payload.Include) > 0 {
		include = make(map[string]struct{}, len(payload.Include))
		for _, p := range payload.Include {
			include[strings.ToLower(p)] = struct{}{}
		}
	}
	exclude := make(map[string]struct{}, len(payload.Exclude))
	for _, p := range payload.Exclude {
		exclude[strings.ToLower(p)] = struct{}{}
	}

	out := make([]string, 0, len(payload.Lines))
	for _, line := range payload.Lines {
		proto := strings.ToLower(strings.SplitN(line, "://", 2)[0])
		if include != nil {
			if _, ok := include[proto]; !ok {
				continue
			}
		}
		if _, ok := exclude[proto]; ok {
			continue
		}
		out = append(out, line)
	}
	writeText(w, http.StatusOK, strings.Join(out, "\n"))
}

// handleScore sorts lines by vpnconfig.QualityScore, highest first,
// optionally truncated to the top N (spec §6 "POST /score {lines, top} ->
// quality-sorted, optionally truncated").
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	var payload linesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	type scored struct {
		line  string
		score float64
	}
	items := make([]scored, len(payload.Lines))
	for i, line := range payload.Lines {
		protocol, _, _ := vpnconfig.Describe(line)
		items[i] = scored{line: line, score: vpnconfig.QualityScore(line, protocol)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].score > items[j].score })

	top := payload.Top
	if top <= 0 {
		top = 100
	}
	if top > len(items) {
		top = len(items)
	}

	out := make([]string, top)
	for i := 0; i < top; i++ {
		out[i] = items[i].line
	}
	writeText(w, http.StatusOK, strings.Join(out, "\n"))
}
