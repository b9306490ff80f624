// Package policy implements the per-host admission controls the Fetcher
// enforces before it is allowed to dial out: a sliding-window RateLimiter
// and a three-state CircuitBreaker (spec §4.1). Both types hold their own
// mutex-guarded state and are safe for concurrent use from many Merger
// workers sharing one host.
package policy

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultWindow      = 60 * time.Second
	defaultMaxRequests = 60
	defaultBurstWindow = 1 * time.Second
	defaultBurstMax    = 10

	// adaptive tuning
	defaultSlowThreshold = 1.0 * time.Second
	defaultMinRequests   = 10
	defaultMaxAdaptive   = 100

	pollInterval = 10 * time.Millisecond
)

// RateLimiterOptions configures a RateLimiter. Zero-value fields fall back
// to the spec §4.1 defaults.
type RateLimiterOptions struct {
	Window      time.Duration
	MaxRequests int
	BurstWindow time.Duration
	BurstMax    int

	// Adaptive enables response-time-driven adjustment of MaxRequests.
	Adaptive      bool
	SlowThreshold time.Duration
	MinRequests   int
	MaxAdaptive   int
}

func (o RateLimiterOptions) withDefaults() RateLimiterOptions {
	if o.Window <= 0 {
		o.Window = defaultWindow
	}
	if o.MaxRequests <= 0 {
		o.MaxRequests = defaultMaxRequests
	}
	if o.BurstWindow <= 0 {
		o.BurstWindow = defaultBurstWindow
	}
	if o.BurstMax <= 0 {
		o.BurstMax = defaultBurstMax
	}
	if o.SlowThreshold <= 0 {
		o.SlowThreshold = defaultSlowThreshold
	}
	if o.MinRequests <= 0 {
		o.MinRequests = defaultMinRequests
	}
	if o.MaxAdaptive <= 0 {
		o.MaxAdaptive = defaultMaxAdaptive
	}
	return o
}

// RateLimiter enforces a sliding-window request cap plus a tighter burst
// cap for a single host. All state is protected by mu; Allow/RecordResponse
// are the only mutators.
type RateLimiter struct {
	mu   sync.Mutex
	opts RateLimiterOptions

	window      *list.List // time.Time, oldest first
	burst       *list.List // time.Time, oldest first
	responses   *list.List // time.Time, oldest first — response latencies for adaptive tuning
	currentCap  int        // effective N_req when Adaptive is enabled
}

// NewRateLimiter constructs a RateLimiter with the given options (defaults
// applied for any zero fields).
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	opts = opts.withDefaults()
	return &RateLimiter{
		opts:       opts,
		window:     list.New(),
		burst:      list.New(),
		responses:  list.New(),
		currentCap: opts.MaxRequests,
	}
}

// responseSample records a response time for the adaptive limiter.
type responseSample struct {
	at       time.Time
	latency  time.Duration
}

func evictOlderThan(l *list.List, cutoff time.Time, extractTime func(interface{}) time.Time) {
	for l.Len() > 0 {
		front := l.Front()
		if extractTime(front.Value).Before(cutoff) {
			l.Remove(front)
			continue
		}
		break
	}
}

// Allow reports whether a request to this host is admitted right now,
// evicting expired entries from both deques and, if admitted, recording the
// attempt in both.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	evictOlderThan(r.window, now.Add(-r.opts.Window), func(v interface{}) time.Time { return v.(time.Time) })
	evictOlderThan(r.burst, now.Add(-r.opts.BurstWindow), func(v interface{}) time.Time { return v.(time.Time) })

	limit := r.opts.MaxRequests
	if r.opts.Adaptive {
		limit = r.currentCap
	}

	if r.window.Len() >= limit || r.burst.Len() >= r.opts.BurstMax {
		return false
	}

	r.window.PushBack(now)
	r.burst.PushBack(now)
	return true
}

// Wait blocks, polling at pollInterval granularity, until Allow returns
// true.
func (r *RateLimiter) Wait() {
	for !r.Allow() {
		time.Sleep(pollInterval)
	}
}

// RecordResponse feeds a completed request's latency into the adaptive
// limiter (spec §4.1 "adaptive variant"). No-op unless Adaptive is enabled.
func (r *RateLimiter) RecordResponse(latency time.Duration) {
	if !r.opts.Adaptive {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.responses.PushBack(responseSample{at: now, latency: latency})
	evictOlderThan(r.responses, now.Add(-r.opts.Window), func(v interface{}) time.Time {
		return v.(responseSample).at
	})

	if r.responses.Len() == 0 {
		return
	}
	var total time.Duration
	for e := r.responses.Front(); e != nil; e = e.Next() {
		total += e.Value.(responseSample).latency
	}
	mean := total / time.Duration(r.responses.Len())

	if mean > r.opts.SlowThreshold {
		next := int(float64(r.currentCap) * 0.8)
		if next < r.opts.MinRequests {
			next = r.opts.MinRequests
		}
		r.currentCap = next
	} else {
		next := int(float64(r.currentCap) * 1.1)
		if next > r.opts.MaxAdaptive {
			next = r.opts.MaxAdaptive
		}
		if next <= r.currentCap {
			next = r.currentCap + 1
			if next > r.opts.MaxAdaptive {
				next = r.opts.MaxAdaptive
			}
		}
		r.currentCap = next
	}
}

// Remaining reports how many more requests the sliding window currently
// admits, for the statistics surface.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	evictOlderThan(r.window, now.Add(-r.opts.Window), func(v interface{}) time.Time { return v.(time.Time) })

	limit := r.opts.MaxRequests
	if r.opts.Adaptive {
		limit = r.currentCap
	}
	remaining := limit - r.window.Len()
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
