package events

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
)

// replayCap bounds how many events LastEventID-based replay returns before
// switching to live streaming (spec §4.6 "bounded replay cap, default
// 500").
const replayCap = 500

// Store is the on-disk EventStore: an append-only JSON-lines log with
// size-bounded rotation, grounded on
// original_source/vpn_merger/monitoring/event_store.py's
// append_event/tail_events/events_after trio. Appends are best-effort —
// a write failure increments Metrics.PersistenceErrors and is otherwise
// swallowed, matching the original's bare except around the file write.
type Store struct {
	mu      sync.Mutex
	writer  *lumberjack.Logger
	path    string
	metrics *metrics.Metrics
}

// StoreOptions configures rotation thresholds, mirroring the fields a
// caller would set on lumberjack.Logger directly.
type StoreOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func (o StoreOptions) withDefaults() StoreOptions {
	if o.Path == "" {
		o.Path = "output/events.log"
	}
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 100
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 5
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 28
	}
	return o
}

// NewStore constructs a Store. m may be nil.
func NewStore(opts StoreOptions, m *metrics.Metrics) *Store {
	opts = opts.withDefaults()
	return &Store{
		path: opts.Path,
		writer: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
		metrics: m,
	}
}

// Append writes ev as one JSON line. Failures are counted, never returned —
// callers must never let a persistence failure interrupt event dispatch.
func (s *Store) Append(ev model.Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		if s.metrics != nil {
			s.metrics.PersistenceErrors.Inc()
		}
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, err = s.writer.Write(line)
	s.mu.Unlock()

	if err != nil && s.metrics != nil {
		s.metrics.PersistenceErrors.Inc()
	}
}

// Close flushes and closes the underlying rotated file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

// Tail returns the last n events in the log, oldest first. Malformed lines
// are skipped rather than aborting the read.
func (s *Store) Tail(n int) []model.Event {
	all := s.readAll()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// After returns events with Ts > afterTS, optionally filtered by type, up
// to limit entries (limit <= 0 means no limit). Replay calls it with the
// subscriber's last-seen timestamp, replayCap and no type filter.
func (s *Store) After(afterTS float64, limit int, typeFilter string) []model.Event {
	all := s.readAll()
	var out []model.Event
	for _, ev := range all {
		if ev.Ts <= afterTS {
			continue
		}
		if typeFilter != "" && ev.Type != typeFilter {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Replay returns events after lastEventTS bounded by replayCap, for a
// reconnecting SSE/WS subscriber presenting a Last-Event-ID (spec §4.6).
func (s *Store) Replay(lastEventTS float64) []model.Event {
	return s.After(lastEventTS, replayCap, "")
}

func (s *Store) readAll() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev model.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out
}
