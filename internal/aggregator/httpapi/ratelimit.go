package httpapi

import (
	"sync"
	"time"
)

// boundaryWindow and boundaryMax implement the REST surface's own sliding
// window (spec §6 "Per IP and per tenant: sliding window of 10s, 30
// requests max"), grounded on
// original_source/vpn_merger/api/rest_endpoints.py's `_allow` function.
// This is deliberately a separate, simpler mechanism from policy.RateLimiter
// (which governs outbound Fetcher calls, not inbound REST requests).
const (
	boundaryWindow = 10 * time.Second
	boundaryMax    = 30
)

type slidingWindowLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func newSlidingWindowLimiter() *slidingWindowLimiter {
	return &slidingWindowLimiter{
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records one request for key and reports whether it is within the
// window's quota.
func (l *slidingWindowLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-boundaryWindow)
	hist := l.history[key]

	i := 0
	for i < len(hist) && hist[i].Before(cutoff) {
		i++
	}
	hist = hist[i:]

	if len(hist) >= boundaryMax {
		l.history[key] = hist
		return false
	}

	hist = append(hist, now)
	l.history[key] = hist
	return true
}
