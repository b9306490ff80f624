package events

import (
	"path/filepath"
	"testing"

	"vpnagg/internal/aggregator/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(StoreOptions{Path: filepath.Join(dir, "events.log")}, nil)
}

func TestAppendAndTail(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.Append(model.Event{ID: "1", Type: "a", Ts: 1})
	s.Append(model.Event{ID: "2", Type: "b", Ts: 2})
	s.Append(model.Event{ID: "3", Type: "c", Ts: 3})

	tail := s.Tail(2)
	if len(tail) != 2 {
		t.Fatalf("expected 2 tailed events, got %d", len(tail))
	}
	if tail[0].ID != "2" || tail[1].ID != "3" {
		t.Fatalf("expected tail to preserve chronological order, got %+v", tail)
	}
}

func TestAfterFiltersByTimestampAndType(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	s.Append(model.Event{ID: "1", Type: "fetch_progress", Ts: 1})
	s.Append(model.Event{ID: "2", Type: "batch_complete", Ts: 2})
	s.Append(model.Event{ID: "3", Type: "fetch_progress", Ts: 3})

	got := s.After(1, 10, "fetch_progress")
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("expected only event 3, got %+v", got)
	}
}

func TestReplayBoundedByCap(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	for i := 0; i < replayCap+10; i++ {
		s.Append(model.Event{ID: "x", Type: "fetch_progress", Ts: float64(i + 1)})
	}

	got := s.Replay(0)
	if len(got) != replayCap {
		t.Fatalf("expected replay capped at %d, got %d", replayCap, len(got))
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.writer.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write malformed line: %v", err)
	}
	s.Append(model.Event{ID: "1", Type: "a", Ts: 1})

	got := s.Tail(10)
	if len(got) != 1 {
		t.Fatalf("expected 1 valid event, got %d", len(got))
	}
}

func TestTailOnMissingFileReturnsEmpty(t *testing.T) {
	s := NewStore(StoreOptions{Path: "/nonexistent/dir/events.log"}, nil)
	if got := s.Tail(10); len(got) != 0 {
		t.Fatalf("expected empty tail for a missing log file, got %d", len(got))
	}
}
