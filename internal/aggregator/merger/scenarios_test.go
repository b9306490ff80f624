package merger

import (
	"context"
	"testing"

	"vpnagg/internal/aggregator/model"
)

// TestScenarioHappyPathSingleSource matches the single-source happy path:
// one source returning two valid lines should yield both configurations,
// one vmess and one vless, with their original URIs.
func TestScenarioHappyPathSingleSource(t *testing.T) {
	sm := newTestSources(t, 1)
	accessible := map[string]bool{"https://example.com/s0": true}
	bodies := map[string]string{"https://example.com/s0": "vmess://A\nvless://B\n"}
	mg := New(sm, &fakeValidator{accessible: accessible}, &fakeFetcher{bodies: bodies}, nil, nil, Options{})

	result := mg.RunQuickMerge(context.Background(), 1, nil, nil)

	if len(result.Configurations) != 2 {
		t.Fatalf("expected 2 configurations, got %d", len(result.Configurations))
	}
	byProtocol := map[model.Protocol]*model.VPNConfiguration{}
	for _, c := range result.Configurations {
		byProtocol[c.Protocol] = c
	}
	vmess, ok := byProtocol[model.ProtocolVMess]
	if !ok {
		t.Fatal("expected a vmess configuration")
	}
	if vmess.ConfigURI != "vmess://A" {
		t.Fatalf("expected vmess://A, got %q", vmess.ConfigURI)
	}
	vless, ok := byProtocol[model.ProtocolVLess]
	if !ok {
		t.Fatal("expected a vless configuration")
	}
	if vless.ConfigURI != "vless://B" {
		t.Fatalf("expected vless://B, got %q", vless.ConfigURI)
	}
}

// TestScenarioDedupAcrossSources matches dedup-across-sources: two sources
// returning the same URI, one with surrounding whitespace, collapse to a
// single accepted configuration.
func TestScenarioDedupAcrossSources(t *testing.T) {
	sm := newTestSources(t, 2)
	accessible := map[string]bool{
		"https://example.com/s0": true,
		"https://example.com/s1": true,
	}
	bodies := map[string]string{
		"https://example.com/s0": "vmess://X\n",
		"https://example.com/s1": " vmess://X \n",
	}
	mg := New(sm, &fakeValidator{accessible: accessible}, &fakeFetcher{bodies: bodies}, nil, nil, Options{})

	result := mg.RunComprehensiveMerge(context.Background(), nil, nil)

	if len(result.Configurations) != 1 {
		t.Fatalf("expected exactly 1 accepted configuration, got %d", len(result.Configurations))
	}
}

// TestScenarioRejectsMalformedLine matches rejection-of-malformed-line: an
// empty-body scheme and a non-scheme line are both rejected, leaving only
// the one well-formed line.
func TestScenarioRejectsMalformedLine(t *testing.T) {
	sm := newTestSources(t, 1)
	accessible := map[string]bool{"https://example.com/s0": true}
	bodies := map[string]string{"https://example.com/s0": "vmess://\nvless://Y\n<script>\n"}
	mg := New(sm, &fakeValidator{accessible: accessible}, &fakeFetcher{bodies: bodies}, nil, nil, Options{})

	result := mg.RunQuickMerge(context.Background(), 1, nil, nil)

	if len(result.Configurations) != 1 {
		t.Fatalf("expected exactly 1 accepted configuration, got %d", len(result.Configurations))
	}
	if result.Configurations[0].ConfigURI != "vless://Y" {
		t.Fatalf("expected vless://Y to be the sole accepted line, got %q", result.Configurations[0].ConfigURI)
	}
}
