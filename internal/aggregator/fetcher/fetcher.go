// Package fetcher performs the aggregator's outbound HTTP GETs: a
// process-wide concurrency gate, per-host policy enforcement, and bounded
// retries with exponential backoff (spec §4.2).
package fetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"vpnagg/internal/aggregator/errkind"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/policy"
)

// Options configures a Fetcher. Zero fields fall back to spec §4.2 defaults.
type Options struct {
	MaxConcurrent   int
	MaxConnsPerHost int
	DNSCacheTTL     time.Duration
	RequestTimeout  time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
	UserAgent       string

	RateLimiterOptions    policy.RateLimiterOptions
	CircuitBreakerOptions policy.CircuitBreakerOptions
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 50
	}
	if o.MaxConnsPerHost <= 0 {
		o.MaxConnsPerHost = 10
	}
	if o.DNSCacheTTL <= 0 {
		o.DNSCacheTTL = 300 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 1 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = "vpnagg/1.0"
	}
	return o
}

// Fetcher performs GETs bounded by a global semaphore and per-host
// rate-limiter/circuit-breaker policy.
type Fetcher struct {
	opts     Options
	client   *http.Client
	sem      *semaphore.Weighted
	registry *policy.Registry
	metrics  *metrics.Metrics
	resolver *ttlResolver
}

// New constructs a Fetcher. metrics may be nil to disable statistics
// recording (used by tests that only exercise the retry/admission logic).
func New(opts Options, m *metrics.Metrics) *Fetcher {
	opts = opts.withDefaults()

	resolver := newTTLResolver(opts.DNSCacheTTL)
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		MaxIdleConnsPerHost: opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		DialContext:         resolver.dialContext,
	}

	return &Fetcher{
		opts:     opts,
		client:   &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		sem:      semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		registry: policy.NewRegistry(opts.RateLimiterOptions, opts.CircuitBreakerOptions),
		metrics:  m,
		resolver: resolver,
	}
}

// Fetch performs a single GET, returning the response body as text or an
// error wrapping one of errkind's sentinels. The contract mirrors spec §4.2:
// on CircuitOpen callers get errkind.ErrCircuitOpen without a request ever
// having been attempted; on exhausted retries callers get errkind.ErrTransport
// or errkind.ErrHTTP.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return "", err
	}

	if err := f.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.sem.Release(1)

	if f.metrics != nil {
		f.metrics.ActiveConnections.Inc()
		defer f.metrics.ActiveConnections.Dec()
	}

	rl := f.registry.RateLimiterFor(host)
	rl.Wait()

	cb := f.registry.CircuitBreakerFor(host)

	var body string
	callErr := cb.Call(func() error {
		start := time.Now()
		text, err := f.executeWithRetry(ctx, rawURL)
		if err != nil {
			return err
		}
		rl.RecordResponse(time.Since(start))
		body = text
		return nil
	})

	if f.metrics != nil {
		f.metrics.FetchTotal.Inc()
	}

	if callErr == policy.ErrCircuitOpen {
		if f.metrics != nil {
			f.metrics.CircuitBreakerTrips.Inc()
		}
		return "", errkind.ErrCircuitOpen
	}
	if callErr != nil {
		if f.metrics != nil {
			f.metrics.FetchFailedTotal.Inc()
		}
		return "", callErr
	}

	if f.metrics != nil {
		f.metrics.FetchSuccessTotal.Inc()
	}
	return body, nil
}

// Probe performs a single unpooled GET outside the circuit-breaker/rate-limiter/
// retry stack, returning the status code alongside the body and elapsed
// time. SourceValidator uses this instead of Fetch: original_source's
// UnifiedSourceValidator opens its own aiohttp session independent of the
// fetcher used for the main crawl, and a validation probe wants the real
// status code (including non-2xx) rather than Fetch's collapsed
// errkind.ErrHTTP.
func (f *Fetcher) Probe(ctx context.Context, rawURL string) (int, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, "", 0, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, "", elapsed, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", elapsed, err
	}
	return resp.StatusCode, string(buf), elapsed, nil
}

// executeWithRetry performs up to RetryAttempts+1 tries, sleeping
// RetryDelay*2^attempt between tries, per spec §4.2 step 5. A non-2xx
// response (errkind.ErrHTTP) is not retried; only transport-level failures
// are.
func (f *Fetcher) executeWithRetry(ctx context.Context, rawURL string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		text, err := f.executeOnce(ctx, rawURL)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, errkind.ErrHTTP) {
			return "", err
		}
		if f.metrics != nil && attempt < f.opts.RetryAttempts {
			f.metrics.RetryAttempts.Inc()
		}
		if attempt < f.opts.RetryAttempts {
			delay := f.opts.RetryDelay * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return "", lastErr
}

func (f *Fetcher) executeOnce(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", joinTransport(err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/plain, application/json, */*")
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", joinTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", errkind.ErrHTTP
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", joinTransport(err)
	}
	return string(buf), nil
}

func joinTransport(err error) error {
	return &transportError{cause: err}
}

type transportError struct{ cause error }

func (e *transportError) Error() string { return "transport error: " + e.cause.Error() }
func (e *transportError) Unwrap() error { return errkind.ErrTransport }

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", joinTransport(err)
	}
	host := u.Hostname()
	if host == "" {
		return "", joinTransport(errInvalidURL)
	}
	return strings.ToLower(host), nil
}

var errInvalidURL = &net.AddrError{Err: "no host in URL", Addr: ""}
