package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"vpnagg/internal/aggregator/model"
)

// handleEvents returns recent events from the on-disk log (spec §6 "GET
// /events?limit=n").
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r) {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var evs []model.Event
	if s.store != nil {
		evs = s.store.Tail(limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evs})
}

// eventFilter matches a Listener event against the types/run_id query
// parameters spec §6 names for both the SSE and WS streams.
type eventFilter struct {
	types map[string]struct{}
	runID string
}

func parseEventFilter(r *http.Request) eventFilter {
	f := eventFilter{runID: r.URL.Query().Get("run_id")}
	if raw := r.URL.Query().Get("types"); raw != "" {
		raw = strings.ReplaceAll(raw, ",", " ")
		f.types = make(map[string]struct{})
		for _, t := range strings.Fields(raw) {
			f.types[t] = struct{}{}
		}
	}
	return f
}

func (f eventFilter) matches(ev model.Event) bool {
	if f.types != nil {
		if _, ok := f.types[ev.Type]; !ok {
			return false
		}
	}
	if f.runID != "" {
		runID, _ := ev.Data["run_id"].(string)
		if runID != f.runID {
			return false
		}
	}
	return true
}

// handleEventsStream serves a Server-Sent Events stream with keepalive,
// resuming from the Last-Event-ID header (spec §6 "GET /events/stream"),
// grounded on rest_endpoints.py's stream_events. An x-client-id header is
// not read and no per-client cursor is kept.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	if !requireQueryToken(s.apiToken, r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	filter := parseEventFilter(r)

	if lastID, ok := lastEventID(r); ok && s.store != nil {
		for _, ev := range s.store.Replay(lastID) {
			if filter.matches(ev) {
				writeSSE(w, ev)
			}
		}
		flusher.Flush()
	}

	if s.bus == nil {
		return
	}
	listener := s.bus.AddListener(0)
	defer s.bus.RemoveListener(listener)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-listener.Events():
			if !ok {
				return
			}
			if filter.matches(ev) {
				writeSSE(w, ev)
				flusher.Flush()
			}
		case <-ticker.C:
			fmt.Fprint(w, "retry: 3000\n: keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev model.Event) {
	data, err := jsonCompact(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "retry: 3000\nid: %v\ndata: %s\n\n", ev.Ts, data)
}

// lastEventID reads the Last-Event-ID header (the SSE reconnection
// protocol's own resume cursor), falling back to none.
func lastEventID(r *http.Request) (float64, bool) {
	hdr := r.Header.Get("Last-Event-ID")
	if hdr == "" {
		return 0, false
	}
	ts, err := strconv.ParseFloat(hdr, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}

func requireQueryToken(apiToken string, r *http.Request) bool {
	if apiToken == "" {
		return true
	}
	return r.URL.Query().Get("token") == apiToken
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventsWS upgrades to a WebSocket live event stream (spec §6 "WS
// /events/ws?types=&run_id=&token="), grounded on rest_endpoints.py's
// ws_events and the gorilla/websocket usage pattern in
// ava-labs-libevm's rpc route backend.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if !requireQueryToken(s.apiToken, r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if s.bus == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	filter := parseEventFilter(r)
	listener := s.bus.AddListener(0)
	defer s.bus.RemoveListener(listener)

	for ev := range listener.Events() {
		if !filter.matches(ev) {
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
