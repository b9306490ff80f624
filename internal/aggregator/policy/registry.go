package policy

import "sync"

// Registry lazily creates and holds one RateLimiter and one CircuitBreaker
// per host, using a "fast path: plain Load, allocate only on miss" shape.
type Registry struct {
	rateLimiters sync.Map // map[string]*RateLimiter
	breakers     sync.Map // map[string]*CircuitBreaker

	rlOpts RateLimiterOptions
	cbOpts CircuitBreakerOptions
}

// NewRegistry constructs a Registry that lazily creates per-host policies
// using the given defaults.
func NewRegistry(rlOpts RateLimiterOptions, cbOpts CircuitBreakerOptions) *Registry {
	return &Registry{rlOpts: rlOpts, cbOpts: cbOpts}
}

// RateLimiterFor returns the RateLimiter for host, creating it on first use.
func (r *Registry) RateLimiterFor(host string) *RateLimiter {
	if v, ok := r.rateLimiters.Load(host); ok {
		return v.(*RateLimiter)
	}
	rl := NewRateLimiter(r.rlOpts)
	actual, _ := r.rateLimiters.LoadOrStore(host, rl)
	return actual.(*RateLimiter)
}

// CircuitBreakerFor returns the CircuitBreaker for host, creating it on
// first use.
func (r *Registry) CircuitBreakerFor(host string) *CircuitBreaker {
	if v, ok := r.breakers.Load(host); ok {
		return v.(*CircuitBreaker)
	}
	cb := NewCircuitBreaker(r.cbOpts)
	actual, _ := r.breakers.LoadOrStore(host, cb)
	return actual.(*CircuitBreaker)
}

// ForEachHost iterates every host with a known breaker, for the statistics
// surface.
func (r *Registry) ForEachHost(f func(host string, rl *RateLimiter, cb *CircuitBreaker)) {
	r.breakers.Range(func(key, value interface{}) bool {
		host := key.(string)
		cb := value.(*CircuitBreaker)
		rl, _ := r.rateLimiters.Load(host)
		var rateLimiter *RateLimiter
		if rl != nil {
			rateLimiter = rl.(*RateLimiter)
		}
		f(host, rateLimiter, cb)
		return true
	})
}
