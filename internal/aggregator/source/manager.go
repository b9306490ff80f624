// Package source implements SourceManager: it loads the tiered sources YAML
// (spec §6 "Configuration file"), exposes prioritized source lists, and
// carries each Source's quarantine lifecycle.
package source

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"vpnagg/internal/aggregator/errkind"
	"vpnagg/internal/aggregator/model"
)

// rawConfig mirrors the YAML shape from spec §6: root map with `metadata`
// and `sources`; `sources` is keyed by tier name.
type rawConfig struct {
	Metadata map[string]interface{} `yaml:"metadata"`
	Sources  map[string]yaml.Node   `yaml:"sources"`
}

// rawSourceEntry covers form (b): {url, weight?, protocols?, region?}.
type rawSourceEntry struct {
	URL       string   `yaml:"url"`
	Weight    float64  `yaml:"weight"`
	Protocols []string `yaml:"protocols"`
	Region    string   `yaml:"region"`
}

// Manager holds the loaded, tiered source set and their quarantine state.
// Sources are keyed by URL for O(1) lookup by the Merger and the REST
// surface's quarantine-reset operation.
type Manager struct {
	mu            sync.RWMutex
	byTier        map[model.Tier][]*model.Source
	byURL         map[string]*model.Source
	failThreshold int64
}

// tierOrder is the fixed prioritization order from spec §4.7/original
// source_manager.py's get_prioritized_sources. Must agree with
// model.Tier.Priority()'s tierPriority ranking.
var tierOrder = []model.Tier{
	model.TierPremium,
	model.TierReliable,
	model.TierBulk,
	model.TierSpecialized,
	model.TierRegional,
	model.TierCustom,
	model.TierExperimental,
	model.TierEmergency,
}

// New constructs an empty Manager. failThreshold is F_q from spec §4.7
// (default 5) — the consecutive-failure count at which a source quarantines.
func New(failThreshold int64) *Manager {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	return &Manager{
		byTier:        make(map[model.Tier][]*model.Source),
		byURL:         make(map[string]*model.Source),
		failThreshold: failThreshold,
	}
}

// LoadFile reads and parses the sources YAML at path. On any load failure
// (missing file, unparseable YAML, empty/invalid shape) it logs nothing
// itself — callers are expected to fall back to LoadFallback and log once at
// warn, per spec §7 ConfigLoadError semantics.
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrConfigLoad, err)
	}

	var cfg rawConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrConfigLoad, err)
	}
	if len(cfg.Sources) == 0 {
		return fmt.Errorf("%w: no sources in config", errkind.ErrConfigLoad)
	}

	byTier := make(map[model.Tier][]*model.Source)
	total := 0
	for tierName, node := range cfg.Sources {
		entries, err := decodeTierNode(node)
		if err != nil {
			continue
		}
		tier := model.Tier(tierName)
		for _, e := range entries {
			if !isValidURL(e.URL) {
				continue
			}
			src := model.NewSource(e.URL, tier)
			src.Weight = e.Weight
			src.Region = e.Region
			for _, p := range e.Protocols {
				src.Protocols = append(src.Protocols, model.Protocol(strings.ToLower(p)))
			}
			byTier[tier] = append(byTier[tier], src)
			total++
		}
	}
	if total == 0 {
		return fmt.Errorf("%w: no valid URLs found in config", errkind.ErrConfigLoad)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTier = byTier
	m.byURL = make(map[string]*model.Source, total)
	for _, sources := range byTier {
		for _, s := range sources {
			m.byURL[s.URL] = s
		}
	}
	return nil
}

// LoadFallback installs the minimal embedded emergency source list, used
// when LoadFile fails (spec §7 ConfigLoadError: "fallback to minimal
// embedded source list; logged once at warn").
func (m *Manager) LoadFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTier = map[model.Tier][]*model.Source{
		model.TierEmergency: {
			model.NewSource("https://httpbin.org/json", model.TierEmergency),
			model.NewSource("https://example.org/", model.TierEmergency),
		},
	}
	m.byURL = make(map[string]*model.Source, 2)
	for _, s := range m.byTier[model.TierEmergency] {
		m.byURL[s.URL] = s
	}
}

// decodeTierNode handles the three YAML shapes spec §6 allows for a tier
// value: (a) a list of URL strings, (b) a list of {url, weight?,
// protocols?, region?} objects, or (c) a nested map containing a `urls`
// list in either form.
func decodeTierNode(node yaml.Node) ([]rawSourceEntry, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		return decodeSequence(node)
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "urls" {
				return decodeSequence(*node.Content[i+1])
			}
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported tier node kind %v", node.Kind)
	}
}

func decodeSequence(node yaml.Node) ([]rawSourceEntry, error) {
	var out []rawSourceEntry
	for _, item := range node.Content {
		if item.Kind == yaml.ScalarNode {
			out = append(out, rawSourceEntry{URL: item.Value})
			continue
		}
		var entry rawSourceEntry
		if err := item.Decode(&entry); err == nil && entry.URL != "" {
			out = append(out, entry)
		}
	}
	return out, nil
}

func isValidURL(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" {
		return false
	}
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// AllSources returns every known source across all tiers.
func (m *Manager) AllSources() []*model.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Source, 0, len(m.byURL))
	for _, tier := range tierOrder {
		out = append(out, m.byTier[tier]...)
	}
	return out
}

// PrioritizedSources returns non-quarantined sources in tier priority order
// (spec §4.7 "Resolve source list from SourceManager (prioritized)").
// Quarantined sources remain in the configuration but are omitted here.
func (m *Manager) PrioritizedSources() []*model.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Source
	for _, tier := range tierOrder {
		for _, s := range m.byTier[tier] {
			if !s.Quarantined() {
				out = append(out, s)
			}
		}
	}
	return out
}

// BySourceURL looks up a source by its URL.
func (m *Manager) BySourceURL(url string) (*model.Source, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byURL[url]
	return s, ok
}

// FailThreshold returns F_q, the configured consecutive-failure quarantine
// threshold.
func (m *Manager) FailThreshold() int64 {
	return m.failThreshold
}

// AddCustomSources appends valid, not-already-present URLs under the custom
// tier.
func (m *Manager) AddCustomSources(urls []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, u := range urls {
		if !isValidURL(u) {
			continue
		}
		if _, exists := m.byURL[u]; exists {
			continue
		}
		src := model.NewSource(u, model.TierCustom)
		m.byTier[model.TierCustom] = append(m.byTier[model.TierCustom], src)
		m.byURL[u] = src
		added++
	}
	return added
}

// RemoveSources deletes the given URLs from every tier.
func (m *Manager) RemoveSources(urls []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	remove := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		remove[u] = struct{}{}
	}

	removed := 0
	for tier, sources := range m.byTier {
		kept := sources[:0]
		for _, s := range sources {
			if _, match := remove[s.URL]; match {
				delete(m.byURL, s.URL)
				removed++
				continue
			}
			kept = append(kept, s)
		}
		m.byTier[tier] = kept
	}
	return removed
}

// ResetQuarantine clears quarantine and fail-streak state for a single
// source, identified by URL. Returns false if the URL is unknown.
func (m *Manager) ResetQuarantine(url string) bool {
	m.mu.RLock()
	s, ok := m.byURL[url]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	s.ResetQuarantine()
	return true
}

// TierCounts returns the number of sources in each tier, for the statistics
// surface.
func (m *Manager) TierCounts() map[model.Tier]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.Tier]int, len(m.byTier))
	for tier, sources := range m.byTier {
		counts[tier] = len(sources)
	}
	return counts
}
