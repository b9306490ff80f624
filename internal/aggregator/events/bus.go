// Package events implements EventBus and EventStore (spec §4.6): an
// in-process publish/subscribe hub plus an append-only JSON-lines log with
// bounded replay, grounded on original_source's
// vpn_merger/monitoring/event_store.py module-level functions.
package events

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
)


// Handler processes one Event. A non-nil error counts against
// Metrics.EventHandlerErrors but never stops dispatch to other handlers.
type Handler func(model.Event) error

type subscription struct {
	id      string
	handler Handler
	enabled bool
}

// Bus is the in-process EventBus: publish, per-type and global subscribe,
// and bounded in-memory history. A single mutex protects the handler lists
// and history buffer; handler invocations happen outside the lock so a slow
// or misbehaving handler cannot stall publishers (spec §5 "handler
// invocations occur outside the lock").
type Bus struct {
	mu           sync.Mutex
	byType       map[string][]*subscription
	global       []*subscription
	listeners    []*Listener
	history      []model.Event
	historyCap   int
	metrics      *metrics.Metrics
	store        *Store
	sampleRate   float64
	sampledTypes map[string]struct{}
}

// maxHistory bounds Bus.history — spec §4.6 get_history serves recent
// events from memory; the full record lives in the EventStore's log.
const maxHistory = 2000

// BusOption configures optional Bus behavior.
type BusOption func(*Bus)

// WithStore attaches an EventStore so every published event is also
// appended to the on-disk log.
func WithStore(s *Store) BusOption {
	return func(b *Bus) { b.store = s }
}

// WithSampleRate sets the fraction (0,1] of high-frequency events (by
// default only "fetch_progress") that are persisted to the store. Live
// listeners always receive every event regardless of sampling (spec §4.6
// "live listeners always receive them").
func WithSampleRate(rate float64, types ...string) BusOption {
	return func(b *Bus) {
		b.sampleRate = rate
		if len(types) == 0 {
			return
		}
		b.sampledTypes = make(map[string]struct{}, len(types))
		for _, t := range types {
			b.sampledTypes[t] = struct{}{}
		}
	}
}

// New constructs a Bus. m may be nil in tests that don't care about
// metrics.
func New(m *metrics.Metrics, opts ...BusOption) *Bus {
	b := &Bus{
		byType:     make(map[string][]*subscription),
		historyCap: maxHistory,
		metrics:    m,
		sampleRate: 1,
	}
	if len(b.sampledTypes) == 0 {
		b.sampledTypes = map[string]struct{}{"fetch_progress": {}}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish constructs an Event with a fresh UUID and monotonic timestamp,
// dispatches it to type-specific then global handlers, records it in
// history, and (sample rate permitting) appends it to the store.
func (b *Bus) Publish(eventType string, data, meta map[string]interface{}, source string) model.Event {
	ev := model.Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Ts:       nowSeconds(),
		Source:   source,
		Data:     data,
		Metadata: meta,
	}

	b.mu.Lock()
	handlers := make([]*subscription, 0, len(b.byType[eventType])+len(b.global))
	handlers = append(handlers, b.byType[eventType]...)
	handlers = append(handlers, b.global...)
	b.history = append(b.history, ev)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
	b.mu.Unlock()

	for _, sub := range handlers {
		if !sub.enabled {
			continue
		}
		if err := sub.handler(ev); err != nil {
			if b.metrics != nil {
				b.metrics.EventHandlerErrors.Inc()
			}
		}
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.Inc()
	}

	if b.store != nil {
		if b.shouldSample(eventType) {
			b.store.Append(ev)
		} else if b.metrics != nil {
			b.metrics.EventsSampledOut.Inc()
		}
	}

	b.broadcast(ev)

	return ev
}

// Listener is a bounded live-event channel for a single SSE/WS subscriber
// (spec §4.6 "broadcast to in-memory listener queues with bounded
// capacity; overflow drops newest for that listener"). Sampling never
// applies to listeners — only to what gets persisted.
type Listener struct {
	ch chan model.Event
}

// Events returns the channel a subscriber should range over.
func (l *Listener) Events() <-chan model.Event { return l.ch }

// AddListener registers a new bounded live-event channel. capacity <= 0
// defaults to 1000, matching event_store.py's register_listener default.
func (b *Bus) AddListener(capacity int) *Listener {
	if capacity <= 0 {
		capacity = 1000
	}
	l := &Listener{ch: make(chan model.Event, capacity)}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
	return l
}

// RemoveListener unregisters and closes a listener's channel.
func (b *Bus) RemoveListener(l *Listener) {
	b.mu.Lock()
	for i, existing := range b.listeners {
		if existing == l {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	close(l.ch)
}

// broadcast fans ev out to every registered listener. A full channel drops
// the new event for that listener rather than blocking the publisher.
func (b *Bus) broadcast(ev model.Event) {
	b.mu.Lock()
	listeners := append([]*Listener(nil), b.listeners...)
	b.mu.Unlock()

	for _, l := range listeners {
		select {
		case l.ch <- ev:
		default:
			if b.metrics != nil {
				b.metrics.EventsDropped.Inc()
			}
		}
	}
}

func (b *Bus) shouldSample(eventType string) bool {
	if b.sampleRate >= 1 {
		return true
	}
	if _, sampled := b.sampledTypes[eventType]; !sampled {
		return true
	}
	return rand.Float64() < b.sampleRate
}

// Subscribe registers handler for one event type, returning an ID usable
// with Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{id: uuid.NewString(), handler: handler, enabled: true}
	b.byType[eventType] = append(b.byType[eventType], sub)
	return sub.id
}

// SubscribeGlobal registers handler for every event type, fired after all
// type-specific handlers (spec §4.6 "type-specific handlers fire first,
// then global handlers").
func (b *Bus) SubscribeGlobal(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{id: uuid.NewString(), handler: handler, enabled: true}
	b.global = append(b.global, sub)
	return sub.id
}

// Unsubscribe removes a previously registered handler by type and ID. It is
// a no-op for an unknown id.
func (b *Bus) Unsubscribe(eventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[eventType] = removeSub(b.byType[eventType], id)
	b.global = removeSub(b.global, id)
}

// SetEnabled toggles whether a handler fires without removing it from the
// subscriber list.
func (b *Bus) SetEnabled(eventType, id string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.byType[eventType] {
		if sub.id == id {
			sub.enabled = enabled
		}
	}
	for _, sub := range b.global {
		if sub.id == id {
			sub.enabled = enabled
		}
	}
}

func removeSub(subs []*subscription, id string) []*subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// History returns up to limit most-recent events, optionally filtered by
// type. limit <= 0 means unbounded.
func (b *Bus) History(eventType string, limit int) []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []model.Event
	for i := len(b.history) - 1; i >= 0; i-- {
		ev := b.history[i]
		if eventType != "" && ev.Type != eventType {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

var timeNow = time.Now

func nowSeconds() float64 {
	return float64(timeNow().UnixNano()) / 1e9
}
