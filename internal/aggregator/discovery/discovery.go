// Package discovery implements DiscoveryManager (spec §4.5): finding new
// candidate sources from a built-in whitelist of public raw URLs and
// (budget permitting) external repository search APIs, validating every
// candidate structurally and by content before handing it back to the
// caller for ingestion into SourceManager.
package discovery

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vpnagg/internal/aggregator/model"
)

// discoveryInterval is D_interval: the minimum spacing between discovery
// runs (spec §4.5, default 6h).
const discoveryInterval = 6 * time.Hour

// wellKnownLists is the built-in whitelist of public raw subscription URLs,
// grounded on original_source's DiscoveryManager._discover_public_lists.
var wellKnownLists = []string{
	"https://raw.githubusercontent.com/freefq/free/master/v2",
	"https://raw.githubusercontent.com/Pawdroid/Free-servers/main/sub",
	"https://raw.githubusercontent.com/ermaozi/get_subscribe/main/subscribe/v2ray.txt",
	"https://raw.githubusercontent.com/vveg26/get_proxy/main/dist/v2ray.config.txt",
	"https://raw.githubusercontent.com/mianfeifq/share/main/data2023087.txt",
}

// searchAPI abstracts the external repository search used to find new
// candidate URLs beyond the built-in whitelist. A real implementation talks
// to GitHub/GitLab/Gitee's search endpoints; tests supply a fake.
type searchAPI interface {
	// Search returns candidate raw-content URLs for a query. The caller
	// has already cleared the query against the per-run budget.
	Search(ctx context.Context, query string) ([]string, error)
}

// Prober does a lightweight HEAD/GET existence and content check against a
// discovered URL. HTTPProbe builds the production implementation;
// discovery_test.go supplies a fake.
type Prober func(ctx context.Context, rawURL string) (exists bool, sample string, err error)

// Manager runs discovery on a schedule and de-duplicates against sources it
// has already surfaced, mirroring original_source's discovered_sources set
// plus should_discover/update_discovery_time pair.
type Manager struct {
	mu            sync.Mutex
	lastDiscovery time.Time
	discovered    map[string]struct{}
	budget        *rate.Limiter
	search        searchAPI
	probe         Prober
	searchQueries []string
}

// Option configures optional collaborators of a Manager.
type Option func(*Manager)

// WithSearchAPI installs a repository search backend. Without one, Manager
// only discovers from the built-in whitelist.
func WithSearchAPI(s searchAPI, queries []string) Option {
	return func(m *Manager) {
		m.search = s
		m.searchQueries = queries
	}
}

// New constructs a Manager. perRunBudget bounds how many search queries may
// be issued in a single Discover call (spec §4.5 "bounded per-run budget");
// it is enforced with a token-bucket rate.Limiter seeded with that many
// tokens and refilled one per minute, matching the "remaining quota"
// semantics of a remote search API rather than the dual-window admission
// limiter used for fetches (see policy.RateLimiter).
func New(perRunBudget int, probe Prober, opts ...Option) *Manager {
	if perRunBudget <= 0 {
		perRunBudget = 10
	}
	m := &Manager{
		lastDiscovery: time.Now(),
		discovered:    make(map[string]struct{}),
		budget:        rate.NewLimiter(rate.Every(time.Minute), perRunBudget),
		probe:         probe,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldDiscover reports whether at least D_interval has elapsed since the
// last Discover call, successful or not (or since New, before the first).
func (m *Manager) ShouldDiscover() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastDiscovery) >= discoveryInterval
}

// Discover runs one discovery pass: it gathers candidates from the built-in
// whitelist and (budget permitting) the search API, validates each
// structurally and by content, and returns the subset not previously
// surfaced. It always updates the last-discovery timestamp, successful or
// not, so a noisy search backend cannot cause Discover to be retried every
// call.
func (m *Manager) Discover(ctx context.Context) []string {
	defer m.updateDiscoveryTime()

	candidates := append([]string(nil), wellKnownLists...)
	candidates = append(candidates, m.searchCandidates(ctx)...)

	var fresh []string
	m.mu.Lock()
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		if _, already := m.discovered[c]; already {
			continue
		}
		fresh = append(fresh, c)
	}
	m.mu.Unlock()

	var validated []string
	for _, c := range fresh {
		if !structurallyValid(c) {
			continue
		}
		if m.probe != nil {
			exists, sample, err := m.probe(ctx, c)
			if err != nil || !exists || !containsProtocolScheme(sample) {
				continue
			}
		}
		validated = append(validated, c)
	}

	m.mu.Lock()
	for _, c := range validated {
		m.discovered[c] = struct{}{}
	}
	m.mu.Unlock()

	return validated
}

// searchCandidates queries the search API for each configured query,
// stopping early once the per-run budget is exhausted. A query that would
// block on the limiter is skipped rather than waited for — discovery is a
// best-effort background task, not one worth stalling on remote quota.
func (m *Manager) searchCandidates(ctx context.Context) []string {
	if m.search == nil {
		return nil
	}
	var out []string
	for _, q := range m.searchQueries {
		if !m.budget.Allow() {
			break
		}
		results, err := m.search.Search(ctx, q)
		if err != nil {
			continue
		}
		out = append(out, results...)
	}
	return out
}

func (m *Manager) updateDiscoveryTime() {
	m.mu.Lock()
	m.lastDiscovery = time.Now()
	m.mu.Unlock()
}

// DiscoveredSources returns every URL this Manager has ever surfaced.
func (m *Manager) DiscoveredSources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.discovered))
	for u := range m.discovered {
		out = append(out, u)
	}
	return out
}

// ClearDiscovered empties the de-duplication set, allowing previously
// surfaced URLs to be returned again on the next Discover call.
func (m *Manager) ClearDiscovered() {
	m.mu.Lock()
	m.discovered = make(map[string]struct{})
	m.mu.Unlock()
}

// structurallyValid implements spec §4.5's structural check: scheme must be
// http or https and the hostname must be non-empty.
func structurallyValid(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// containsProtocolScheme reports whether sample contains at least one
// recognized VPN proxy scheme, satisfying spec §4.5's content-screening
// requirement.
func containsProtocolScheme(sample string) bool {
	lower := strings.ToLower(sample)
	for _, scheme := range model.AllSchemes() {
		if strings.Contains(lower, scheme) {
			return true
		}
	}
	return false
}

// HTTPProbe builds a Prober backed by a plain *http.Client: HEAD first to
// confirm existence, then a bounded GET sample to content-screen. Discovery
// traffic does not go through the Fetcher's circuit breaker or rate
// limiter — it targets a different, much smaller set of hosts and a single
// miss here should not quarantine anything.
func HTTPProbe(client *http.Client) Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, rawURL string) (bool, string, error) {
		headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return false, "", err
		}
		headResp, err := client.Do(headReq)
		if err != nil {
			return false, "", err
		}
		headResp.Body.Close()
		if headResp.StatusCode != http.StatusOK {
			return false, "", nil
		}

		getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return true, "", err
		}
		getResp, err := client.Do(getReq)
		if err != nil {
			return true, "", err
		}
		defer getResp.Body.Close()

		buf := make([]byte, 4096)
		n, _ := getResp.Body.Read(buf)
		return true, string(buf[:n]), nil
	}
}
