// Package vpnconfig implements ConfigurationProcessor: parsing a raw
// subscription line into a scored, deduplicated model.VPNConfiguration.
// It is a pure, CPU-bound leaf package with no network I/O, reused by
// higher-level orchestration packages.
package vpnconfig

import (
	"strings"
	"sync"

	"vpnagg/internal/aggregator/model"
)

const (
	minLineLength = 8
	maxLineLength = 10000
)

// qualityBase is the protocol-specific base score from spec §4.4.
var qualityBase = map[model.Protocol]float64{
	model.ProtocolVLess:        0.9,
	model.ProtocolTrojan:       0.85,
	model.ProtocolVMess:        0.8,
	model.ProtocolTUIC:         0.8,
	model.ProtocolHysteria:     0.75,
	model.ProtocolHysteria2:    0.75,
	model.ProtocolShadowsocks:  0.7,
	model.ProtocolShadowsocksR: 0.6,
}

const otherBaseScore = 0.5

// QualityScore is a pure function of (config_uri, protocol): base score from
// the protocol table plus a length bonus capped at 0.2, clamped to 1.0.
func QualityScore(configURI string, protocol model.Protocol) float64 {
	base, ok := qualityBase[protocol]
	if !ok {
		base = otherBaseScore
	}
	bonus := float64(len(configURI)) / 1000.0
	if bonus > 0.2 {
		bonus = 0.2
	}
	score := base + bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// Processor parses subscription lines into VPNConfigurations, deduplicating
// by the whitespace-stripped URI across the lifetime of the Processor.
// It is safe for concurrent use: the dedup set is a sync.Map so many Merger
// workers can share one Processor instance (spec §5: "insertion-and-test
// atomic").
type Processor struct {
	seen sync.Map // map[string]struct{}
}

// NewProcessor returns a Processor with an empty dedup set.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process validates, deduplicates, detects the protocol, and quality-scores
// a single raw line. Returns nil when the line is rejected (malformed,
// too short/long, unrecognized scheme, or a duplicate of an already-seen
// URI) — silently, per spec §7 ParseError semantics (no log spam).
func (p *Processor) Process(line string, sourceURL string) *model.VPNConfiguration {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < minLineLength || len(trimmed) > maxLineLength {
		return nil
	}

	prefix, ok := model.HasAcceptedPrefix(trimmed)
	if !ok {
		return nil
	}
	if len(trimmed) <= len(prefix) {
		// prefix-only, no content after the scheme
		return nil
	}

	if _, loaded := p.seen.LoadOrStore(trimmed, struct{}{}); loaded {
		return nil
	}

	protocol := model.DetectProtocol(trimmed)
	if protocol == model.ProtocolUnknown {
		// Totality invariant: nothing with protocol == unknown is ever
		// emitted. HasAcceptedPrefix already guarantees this in practice
		// since its prefix set is a subset of DetectProtocol's, but the
		// check is kept explicit because it is a load-bearing invariant
		// (spec §8 "protocol detection totality"), not an incidental one.
		p.seen.Delete(trimmed)
		return nil
	}

	host, port := parseHostPort(trimmed, protocol)

	return &model.VPNConfiguration{
		ConfigURI:    trimmed,
		Protocol:     protocol,
		Host:         host,
		Port:         port,
		SourceURL:    sourceURL,
		QualityScore: QualityScore(trimmed, protocol),
	}
}

// Reset clears the dedup set. Exposed for tests and for re-running a merge
// from scratch (idempotence scenarios operate on a fresh Processor).
func (p *Processor) Reset() {
	p.seen.Range(func(k, _ interface{}) bool {
		p.seen.Delete(k)
		return true
	})
}
