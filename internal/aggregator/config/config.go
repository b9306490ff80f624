// Package config loads the aggregator's environment-driven settings (spec
// §6 "Environment variables") through viper, paired with cobra for the CLI
// configuration surface. It never panics on a malformed value; Load returns
// errkind.ErrConfigLoad so callers can fall back the same way
// source.Manager falls back to its embedded source list.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"vpnagg/internal/aggregator/errkind"
)

// Config holds every environment-driven knob the boundary and job
// subsystem read at startup. Fields mirror spec §6's environment variable
// list verbatim; nothing here is populated from the sources YAML, which
// source.Manager.LoadFile loads separately.
type Config struct {
	SourcesFile string // path to the sources YAML; cmd/vpnagg flag, not an env var
	ListenAddr  string // HTTP listen address; cmd/vpnagg flag

	OutputDir       string // OUTPUT_DIR
	APIToken        string // API_TOKEN
	TenantTokensRaw string // TENANT_TOKENS
	RedisURL        string // REDIS_URL

	JobsTTL             time.Duration // derived from JOBS_TTL_DAYS
	JobsCleanupInterval time.Duration // derived from JOBS_CLEANUP_INTERVAL_SEC

	EventSampleRate float64 // EVENT_SAMPLE_RATE
}

const (
	defaultOutputDir       = "output"
	defaultJobsTTLDays     = 7
	defaultCleanupInterval = 600
	defaultSampleRate      = 1.0
)

// Load reads environment variables into a Config via viper, applying spec
// §6's defaults for anything unset. No config file is read. It validates shape rather than running
// arbitrary user code, returning errkind.ErrConfigLoad wrapped with context
// on an invalid value instead of panicking.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("OUTPUT_DIR", defaultOutputDir)
	v.SetDefault("API_TOKEN", "")
	v.SetDefault("TENANT_TOKENS", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JOBS_TTL_DAYS", defaultJobsTTLDays)
	v.SetDefault("JOBS_CLEANUP_INTERVAL_SEC", defaultCleanupInterval)
	v.SetDefault("EVENT_SAMPLE_RATE", defaultSampleRate)

	ttlDays := v.GetInt("JOBS_TTL_DAYS")
	if ttlDays <= 0 {
		return Config{}, fmt.Errorf("%w: JOBS_TTL_DAYS must be positive, got %d", errkind.ErrConfigLoad, ttlDays)
	}
	cleanupSec := v.GetInt("JOBS_CLEANUP_INTERVAL_SEC")
	if cleanupSec <= 0 {
		return Config{}, fmt.Errorf("%w: JOBS_CLEANUP_INTERVAL_SEC must be positive, got %d", errkind.ErrConfigLoad, cleanupSec)
	}
	sampleRate := v.GetFloat64("EVENT_SAMPLE_RATE")
	if sampleRate <= 0 || sampleRate > 1 {
		return Config{}, fmt.Errorf("%w: EVENT_SAMPLE_RATE must be in (0,1], got %v", errkind.ErrConfigLoad, sampleRate)
	}

	return Config{
		OutputDir:           v.GetString("OUTPUT_DIR"),
		APIToken:            v.GetString("API_TOKEN"),
		TenantTokensRaw:     v.GetString("TENANT_TOKENS"),
		RedisURL:            v.GetString("REDIS_URL"),
		JobsTTL:             time.Duration(ttlDays) * 24 * time.Hour,
		JobsCleanupInterval: time.Duration(cleanupSec) * time.Second,
		EventSampleRate:     sampleRate,
	}, nil
}

// JobsStoreAdapter picks "redis" when RedisURL is set, else "jsonfile",
// matching spec §6's "REDIS_URL — if set... else JSON file" fallback rule.
func (c Config) JobsStoreAdapter() string {
	if c.RedisURL != "" {
		return "redis"
	}
	return "jsonfile"
}

// JobsJSONPath is the JSON file fallback location when no REDIS_URL is
// set: <OUTPUT_DIR>/jobs.json, falling back further to data/jobs.json if
// OutputDir is somehow empty (spec §6).
func (c Config) JobsJSONPath() string {
	if c.OutputDir == "" {
		return "data/jobs.json"
	}
	return c.OutputDir + "/jobs.json"
}
