package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
)

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func TestPublishDispatchesTypeThenGlobal(t *testing.T) {
	b := New(newTestMetrics())

	var mu sync.Mutex
	var order []string

	b.Subscribe("run_started", func(ev model.Event) error {
		mu.Lock()
		order = append(order, "type")
		mu.Unlock()
		return nil
	})
	b.SubscribeGlobal(func(ev model.Event) error {
		mu.Lock()
		order = append(order, "global")
		mu.Unlock()
		return nil
	})

	b.Publish("run_started", nil, nil, "merger")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "type" || order[1] != "global" {
		t.Fatalf("expected type-specific handler before global, got %v", order)
	}
}

func TestPublishIsolatesHandlerErrors(t *testing.T) {
	b := New(newTestMetrics())

	var secondRan bool
	b.Subscribe("batch_complete", func(ev model.Event) error {
		return errors.New("boom")
	})
	b.Subscribe("batch_complete", func(ev model.Event) error {
		secondRan = true
		return nil
	})

	b.Publish("batch_complete", nil, nil, "merger")

	if !secondRan {
		t.Fatal("expected second handler to run despite first handler's error")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(newTestMetrics())

	calls := 0
	id := b.Subscribe("fetch_progress", func(ev model.Event) error {
		calls++
		return nil
	})
	b.Publish("fetch_progress", nil, nil, "merger")
	b.Unsubscribe("fetch_progress", id)
	b.Publish("fetch_progress", nil, nil, "merger")

	if calls != 1 {
		t.Fatalf("expected exactly 1 delivered call before unsubscribe, got %d", calls)
	}
}

func TestSetEnabledSkipsDisabledHandler(t *testing.T) {
	b := New(newTestMetrics())

	calls := 0
	id := b.Subscribe("run_done", func(ev model.Event) error {
		calls++
		return nil
	})
	b.SetEnabled("run_done", id, false)
	b.Publish("run_done", nil, nil, "merger")

	if calls != 0 {
		t.Fatalf("expected disabled handler not to fire, got %d calls", calls)
	}
}

func TestHistoryFiltersByTypeAndLimit(t *testing.T) {
	b := New(newTestMetrics())

	b.Publish("fetch_progress", nil, nil, "merger")
	b.Publish("batch_complete", nil, nil, "merger")
	b.Publish("fetch_progress", nil, nil, "merger")

	all := b.History("", 0)
	if len(all) != 3 {
		t.Fatalf("expected 3 events in unfiltered history, got %d", len(all))
	}

	filtered := b.History("fetch_progress", 0)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 fetch_progress events, got %d", len(filtered))
	}

	limited := b.History("", 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit=1 to return exactly 1 event, got %d", len(limited))
	}
	if limited[0].Type != "fetch_progress" {
		t.Fatalf("expected the most recent event (fetch_progress), got %s", limited[0].Type)
	}
}

func TestListenerOverflowDropsNewest(t *testing.T) {
	b := New(newTestMetrics())
	l := b.AddListener(2)

	b.Publish("fetch_progress", nil, nil, "merger")
	b.Publish("fetch_progress", nil, nil, "merger")
	b.Publish("fetch_progress", nil, nil, "merger") // should be dropped, channel full

	if len(l.Events()) != 2 {
		t.Fatalf("expected channel to hold exactly 2 buffered events, got %d", len(l.Events()))
	}
}

func TestRemoveListenerClosesChannel(t *testing.T) {
	b := New(newTestMetrics())
	l := b.AddListener(1)
	b.RemoveListener(l)

	_, ok := <-l.Events()
	if ok {
		t.Fatal("expected listener channel to be closed after RemoveListener")
	}
}

func TestPublishAttachesUUIDAndTimestamp(t *testing.T) {
	b := New(newTestMetrics())
	ev := b.Publish("run_started", nil, nil, "merger")

	if ev.ID == "" {
		t.Fatal("expected a non-empty event ID")
	}
	if ev.Ts <= 0 {
		t.Fatal("expected a positive timestamp")
	}
}
