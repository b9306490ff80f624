package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vpnagg/internal/aggregator/config"
	"vpnagg/internal/aggregator/discovery"
	"vpnagg/internal/aggregator/events"
	"vpnagg/internal/aggregator/fetcher"
	"vpnagg/internal/aggregator/jobs"
	"vpnagg/internal/aggregator/merger"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/source"
	"vpnagg/internal/aggregator/validator"
)

// discoveryBudget is the per-run search-API query budget (spec §4.5
// "bounded per-run budget"); vpnagg ships with no search backend
// configured, so this only gates a future WithSearchAPI wiring.
const discoveryBudget = 5

// pipeline bundles every long-lived component a command wires together,
// the same grouping cmd/ratelimiter-api's main builds by hand before
// starting its server and worker.
type pipeline struct {
	cfg       config.Config
	logger    zerolog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	sources   *source.Manager
	fetcher   *fetcher.Fetcher
	validator *validator.Validator
	bus       *events.Bus
	store     *events.Store
	jobs      *jobs.Manager
	merger    *merger.Merger
	discovery *discovery.Manager
}

// newLogger builds the process-wide zerolog.Logger, constructor-injected
// into every component rather than reached for via a package-level
// global, in the style of sawpanic-cryptorun's and
// developingchet-cs-unifi-bouncer-pro's logger-carrying constructors.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// buildPipeline wires SourceManager, Fetcher, SourceValidator, EventBus/
// Store, JobManager and Merger together, falling back to the embedded
// source list (spec §7 ConfigLoadError) rather than aborting when
// sourcesFile can't be loaded.
func buildPipeline(sourcesFile, logLevel string) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(logLevel)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	sources := source.New(0)
	if err := sources.LoadFile(sourcesFile); err != nil {
		logger.Warn().Err(err).Str("file", sourcesFile).Msg("falling back to embedded source list")
		sources.LoadFallback()
	}

	f := fetcher.New(fetcher.Options{}, m)
	v := validator.New(f.Probe)

	store := events.NewStore(events.StoreOptions{
		Path: filepath.Join(cfg.OutputDir, "events.log"),
	}, m)
	bus := events.New(m, events.WithStore(store), events.WithSampleRate(cfg.EventSampleRate, "fetch_progress"))

	jobStore, err := jobs.BuildStore(cfg.JobsStoreAdapter(), jobs.StoreOptions{
		JSONPath: cfg.JobsJSONPath(),
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("build job store: %w", err)
	}

	mg := merger.New(sources, v, f, bus, m, merger.Options{})

	jm := jobs.New(jobStore, mg.AsRunner(), m, jobs.Options{
		TTL:             cfg.JobsTTL,
		CleanupInterval: cfg.JobsCleanupInterval,
	})

	dm := discovery.New(discoveryBudget, discovery.HTTPProbe(&http.Client{Timeout: 10 * time.Second}))

	return &pipeline{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		metrics:   m,
		sources:   sources,
		fetcher:   f,
		validator: v,
		bus:       bus,
		store:     store,
		jobs:      jm,
		merger:    mg,
		discovery: dm,
	}, nil
}
