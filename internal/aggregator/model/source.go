package model

import (
	"sync/atomic"
	"time"
)

// Tier classifies a Source by how it was curated (spec §3).
type Tier string

const (
	TierPremium      Tier = "tier_1_premium"
	TierReliable     Tier = "tier_2_reliable"
	TierBulk         Tier = "tier_3_bulk"
	TierSpecialized  Tier = "specialized"
	TierRegional     Tier = "regional"
	TierExperimental Tier = "experimental"
	TierEmergency    Tier = "emergency_fallback"
	TierCustom       Tier = "custom"
)

// tierPriority ranks tiers from most to least preferred for prioritization.
// Lower value sorts first.
var tierPriority = map[Tier]int{
	TierPremium:      0,
	TierReliable:     1,
	TierBulk:         2,
	TierSpecialized:  3,
	TierRegional:     4,
	TierCustom:       5,
	TierExperimental: 6,
	TierEmergency:    7,
}

// Priority returns the tier's sort rank; unknown tiers sort last.
func (t Tier) Priority() int {
	if p, ok := tierPriority[t]; ok {
		return p
	}
	return len(tierPriority)
}

// Source is an HTTP(S) endpoint the aggregator crawls. It is identified by
// its absolute URL and is never mutated during a run except for its
// quarantine bookkeeping, which is maintained with atomics so concurrent
// Merger workers can update fail streaks without a source-wide lock.
type Source struct {
	URL       string
	Tier      Tier
	Weight    float64 // 0 when unset; callers treat 0 as "no declared weight"
	Protocols []Protocol
	Region    string

	failStreak  atomic.Int64
	quarantined atomic.Bool
}

// NewSource constructs a Source with default (non-quarantined) lifecycle
// state.
func NewSource(url string, tier Tier) *Source {
	return &Source{URL: url, Tier: tier}
}

// RecordFailure increments the fail streak and quarantines the source once
// it reaches failThreshold. Returns true if this call caused quarantine.
func (s *Source) RecordFailure(failThreshold int64) bool {
	n := s.failStreak.Add(1)
	if n >= failThreshold && s.quarantined.CompareAndSwap(false, true) {
		return true
	}
	return false
}

// RecordSuccess resets the fail streak. It does not automatically lift
// quarantine — per spec, quarantine is lifted only by an explicit reset.
func (s *Source) RecordSuccess() {
	s.failStreak.Store(0)
}

// Quarantined reports whether the source is currently excluded from
// prioritization.
func (s *Source) Quarantined() bool {
	return s.quarantined.Load()
}

// FailStreak returns the current consecutive-failure count.
func (s *Source) FailStreak() int64 {
	return s.failStreak.Load()
}

// ResetQuarantine manually clears quarantine and the fail streak.
func (s *Source) ResetQuarantine() {
	s.quarantined.Store(false)
	s.failStreak.Store(0)
}

// ValidationResult is the outcome of one SourceValidator probe (spec §3, §4.3).
type ValidationResult struct {
	URL              string
	Accessible       bool
	StatusCode       int
	ContentLength    int
	EstimatedConfigs int
	ProtocolsFound   map[Protocol]struct{}
	ReliabilityScore float64
	ResponseTime     time.Duration
	Error            string
	Timestamp        time.Time
}

// VPNConfiguration is a single extracted, scored proxy configuration
// (spec §3, §4.4).
type VPNConfiguration struct {
	ConfigURI    string
	Protocol     Protocol
	Host         string
	Port         int
	SourceURL    string
	QualityScore float64
	ErrorCount   int
	LastTested   *time.Time
	IsReachable  *bool
	PingMS       *int64 // round-trip latency in milliseconds; nil when untested
}
