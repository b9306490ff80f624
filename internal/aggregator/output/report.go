package output

import (
	"encoding/json"
	"time"

	"vpnagg/internal/aggregator/model"
)

// Report mirrors vpn_report.json's three top-level sections (spec §6).
type Report struct {
	GenerationInfo   GenerationInfo   `json:"generation_info"`
	Statistics       Statistics       `json:"statistics"`
	SourceCategories SourceCategories `json:"source_categories"`
}

type GenerationInfo struct {
	TimestampUTC          string  `json:"timestamp_utc"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

type Statistics struct {
	TotalConfigs     int `json:"total_configs"`
	ReachableConfigs int `json:"reachable_configs"`
	SourcesTotal     int `json:"sources_total"`
	SourcesOK        int `json:"sources_ok"`
	SourcesFailed    int `json:"sources_failed"`
}

type SourceCategories struct {
	TotalUniqueSources int            `json:"total_unique_sources"`
	ByTier             map[string]int `json:"by_tier"`
}

// BuildReport assembles a Report from a merge run's accepted configurations
// and per-tier source counts.
func BuildReport(configs []*model.VPNConfiguration, sourcesTotal, sourcesOK, sourcesFailed int, tierCounts map[model.Tier]int, processingTime time.Duration, generatedAt time.Time) Report {
	reachable := 0
	for _, c := range configs {
		if c.IsReachable != nil && *c.IsReachable {
			reachable++
		}
	}

	byTier := make(map[string]int, len(tierCounts))
	total := 0
	for tier, count := range tierCounts {
		byTier[string(tier)] = count
		total += count
	}

	return Report{
		GenerationInfo: GenerationInfo{
			TimestampUTC:          generatedAt.UTC().Format(time.RFC3339),
			ProcessingTimeSeconds: processingTime.Seconds(),
		},
		Statistics: Statistics{
			TotalConfigs:     len(configs),
			ReachableConfigs: reachable,
			SourcesTotal:     sourcesTotal,
			SourcesOK:        sourcesOK,
			SourcesFailed:    sourcesFailed,
		},
		SourceCategories: SourceCategories{
			TotalUniqueSources: total,
			ByTier:             byTier,
		},
	}
}

// JSON renders the report as indented JSON.
func (r Report) JSON() (string, error) {
	buf, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
