package source

import (
	"os"
	"path/filepath"
	"testing"

	"vpnagg/internal/aggregator/model"
)

const sampleYAML = `
metadata:
  version: 1
sources:
  tier_1_premium:
    - https://premium.example.com/sub1
    - url: https://premium.example.com/sub2
      weight: 0.9
      protocols: [vmess, vless]
  tier_3_bulk:
    urls:
      - https://bulk.example.com/a
      - url: https://bulk.example.com/b
  specialized:
    not-a-url
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadFileAllThreeShapes(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	m := New(5)
	if err := m.LoadFile(path); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	all := m.AllSources()
	if len(all) != 4 {
		t.Fatalf("expected 4 sources across tiers, got %d", len(all))
	}

	if src, ok := m.BySourceURL("https://premium.example.com/sub2"); !ok || src.Weight != 0.9 {
		t.Fatalf("expected weighted entry to decode, got %+v ok=%v", src, ok)
	}
}

func TestLoadFileMissingFallsBackToError(t *testing.T) {
	m := New(5)
	err := m.LoadFile("/nonexistent/path/sources.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadFallbackPopulatesEmergencyTier(t *testing.T) {
	m := New(5)
	m.LoadFallback()
	all := m.AllSources()
	if len(all) == 0 {
		t.Fatal("expected fallback sources to be non-empty")
	}
	for _, s := range all {
		if s.Tier != model.TierEmergency {
			t.Fatalf("expected fallback sources in emergency tier, got %s", s.Tier)
		}
	}
}

func TestPrioritizedSourcesOrderAndQuarantineExclusion(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	m := New(5)
	if err := m.LoadFile(path); err != nil {
		t.Fatalf("load error: %v", err)
	}

	prioritized := m.PrioritizedSources()
	if len(prioritized) == 0 {
		t.Fatal("expected at least one prioritized source")
	}
	if prioritized[0].Tier != model.TierPremium {
		t.Fatalf("expected tier_1_premium sources first, got %s", prioritized[0].Tier)
	}

	// Quarantine the premium source and confirm it drops from prioritization
	// but remains in AllSources (spec: "remain in the configuration but are
	// omitted from prioritization").
	target := prioritized[0]
	for i := int64(0); i < 5; i++ {
		target.RecordFailure(5)
	}
	if !target.Quarantined() {
		t.Fatal("expected source to be quarantined after 5 failures")
	}

	afterQuarantine := m.PrioritizedSources()
	for _, s := range afterQuarantine {
		if s.URL == target.URL {
			t.Fatal("expected quarantined source to be excluded from prioritization")
		}
	}

	stillPresent := false
	for _, s := range m.AllSources() {
		if s.URL == target.URL {
			stillPresent = true
		}
	}
	if !stillPresent {
		t.Fatal("expected quarantined source to remain in AllSources")
	}
}

func TestResetQuarantineLiftsExclusion(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	m := New(5)
	m.LoadFile(path)

	target := m.AllSources()[0]
	for i := 0; i < 5; i++ {
		target.RecordFailure(5)
	}
	if !target.Quarantined() {
		t.Fatal("expected quarantine")
	}

	if !m.ResetQuarantine(target.URL) {
		t.Fatal("expected ResetQuarantine to find the source")
	}
	if target.Quarantined() {
		t.Fatal("expected quarantine to be lifted")
	}
}

func TestAddAndRemoveCustomSources(t *testing.T) {
	m := New(5)
	m.LoadFallback()

	added := m.AddCustomSources([]string{"https://custom.example.com/a", "not-a-url", "https://custom.example.com/a"})
	if added != 1 {
		t.Fatalf("expected 1 new source added (dup + invalid rejected), got %d", added)
	}

	removed := m.RemoveSources([]string{"https://custom.example.com/a"})
	if removed != 1 {
		t.Fatalf("expected 1 source removed, got %d", removed)
	}
	if _, ok := m.BySourceURL("https://custom.example.com/a"); ok {
		t.Fatal("expected source to be gone after removal")
	}
}
