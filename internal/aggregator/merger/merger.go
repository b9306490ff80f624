// Package merger implements the Merger orchestrator (spec §4.7): batching
// sources, driving SourceValidator and Fetcher per source, feeding accepted
// lines through ConfigurationProcessor, and publishing progress events.
// Grounded on original_source/src/vpn_merger/core/source_processor.py and
// .../core/processing/batch_processor.py.
package merger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vpnagg/internal/aggregator/events"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
	"vpnagg/internal/aggregator/source"
	"vpnagg/internal/aggregator/vpnconfig"
)

// Options configures batch size and per-batch concurrency (spec §4.7 "B
// default 10" / "max_concurrent default 50").
type Options struct {
	BatchSize     int
	MaxConcurrent int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 50
	}
	return o
}

// Fetcher is the subset of fetcher.Fetcher the Merger depends on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Validator is the subset of validator.Validator the Merger depends on.
type Validator interface {
	Validate(ctx context.Context, rawURL string) model.ValidationResult
}

// Merger drives one merge run at a time per instance; a new run resets
// dedup state so re-running with the same sources is idempotent (spec §4.7
// "Idempotence").
type Merger struct {
	sources   *source.Manager
	validator Validator
	fetcher   Fetcher
	bus       *events.Bus
	metrics   *metrics.Metrics
	opts      Options
}

// New constructs a Merger. bus may be nil to disable event publishing in
// tests that don't care about it.
func New(sources *source.Manager, v Validator, f Fetcher, bus *events.Bus, m *metrics.Metrics, opts Options) *Merger {
	return &Merger{
		sources:   sources,
		validator: v,
		fetcher:   f,
		bus:       bus,
		metrics:   m,
		opts:      opts.withDefaults(),
	}
}

// AsRunner adapts RunComprehensiveMerge/RunQuickMerge to jobs.Runner's
// signature, so a jobs.Manager can drive a Merger without this package
// importing jobs (jobs already imports nothing from merger, keeping the
// dependency one-directional). A job created with Limit > 0 runs as a
// quick merge capped at that many sources; Limit <= 0 runs comprehensive.
func (m *Merger) AsRunner() func(ctx context.Context, job *model.Job, report func(progress float64, totalConfigs, validConfigs int)) {
	return func(ctx context.Context, job *model.Job, report func(float64, int, int)) {
		start := time.Now()

		var result *Result
		if job.Limit > 0 {
			result = m.RunQuickMerge(ctx, job.Limit, job.CancelRequested, report)
		} else {
			result = m.RunComprehensiveMerge(ctx, job.CancelRequested, report)
		}

		if job.OutputDir == "" || len(job.Formats) == 0 {
			return
		}
		if err := m.WriteArtifacts(job.OutputDir, job.Formats, result, time.Since(start)); err != nil && m.metrics != nil {
			m.metrics.PersistenceErrors.Inc()
		}
	}
}

// Result summarizes one completed or cancelled run (spec §4.7 step 8 "On
// completion: publish run_done with summary counts").
type Result struct {
	RunID          string
	Configurations []*model.VPNConfiguration
	SourcesTotal   int
	SourcesOK      int
	SourcesFailed  int
	Cancelled      bool
}

// RunComprehensiveMerge processes every prioritized, non-quarantined source
// (spec §4.7 entry point `run_comprehensive_merge(max_concurrent?)`).
func (m *Merger) RunComprehensiveMerge(ctx context.Context, cancelRequested func() bool, report func(progress float64, totalConfigs, validConfigs int)) *Result {
	all := m.sources.PrioritizedSources()
	return m.run(ctx, all, cancelRequested, report)
}

// RunQuickMerge processes at most maxSources prioritized sources (spec
// §4.7 entry point `run_quick_merge(max_sources)`).
func (m *Merger) RunQuickMerge(ctx context.Context, maxSources int, cancelRequested func() bool, report func(progress float64, totalConfigs, validConfigs int)) *Result {
	all := m.sources.PrioritizedSources()
	if maxSources > 0 && maxSources < len(all) {
		all = all[:maxSources]
	}
	return m.run(ctx, all, cancelRequested, report)
}

// run implements spec §4.7's eight-step algorithm over srcs.
func (m *Merger) run(ctx context.Context, srcs []*model.Source, cancelRequested func() bool, report func(float64, int, int)) *Result {
	runID := uuid.NewString()
	processor := vpnconfig.NewProcessor()

	result := &Result{RunID: runID, SourcesTotal: len(srcs)}

	m.publish("run_started", map[string]interface{}{"run_id": runID, "total_sources": len(srcs)})

	var mu sync.Mutex
	done := 0

	batches := chunk(srcs, m.opts.BatchSize)
	for _, batch := range batches {
		if cancelRequested != nil && cancelRequested() {
			result.Cancelled = true
			break
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, m.opts.MaxConcurrent)

		for _, src := range batch {
			if cancelRequested != nil && cancelRequested() {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(src *model.Source) {
				defer wg.Done()
				defer func() { <-sem }()

				configs, ok := m.processSource(ctx, src, processor)

				mu.Lock()
				if ok {
					result.SourcesOK++
				} else {
					result.SourcesFailed++
				}
				result.Configurations = append(result.Configurations, configs...)
				done++
				progress := float64(done) / float64(maxInt(1, len(srcs)))
				total := len(result.Configurations)
				mu.Unlock()

				m.publish("fetch_progress", map[string]interface{}{
					"run_id": runID, "done": done, "total": len(srcs),
				})
				if report != nil {
					report(progress, total, total)
				}
			}(src)
		}
		wg.Wait()

		m.publish("batch_complete", map[string]interface{}{
			"run_id": runID, "batch_size": len(batch),
		})
	}

	m.publish("run_done", map[string]interface{}{
		"run_id":         runID,
		"sources_total":  result.SourcesTotal,
		"sources_ok":     result.SourcesOK,
		"sources_failed": result.SourcesFailed,
		"configs_total":  len(result.Configurations),
		"cancelled":      result.Cancelled,
	})

	return result
}

// processSource implements spec §4.7 steps 4-6 for one source: validate,
// update its fail streak/quarantine state, fetch on success, and process
// each candidate line.
func (m *Merger) processSource(ctx context.Context, src *model.Source, processor *vpnconfig.Processor) ([]*model.VPNConfiguration, bool) {
	validation := m.validator.Validate(ctx, src.URL)
	if m.metrics != nil {
		m.metrics.SourcesValidated.Inc()
	}

	if !validation.Accessible {
		src.RecordFailure(m.sources.FailThreshold())
		return nil, false
	}
	src.RecordSuccess()

	body, err := m.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		src.RecordFailure(m.sources.FailThreshold())
		return nil, false
	}

	var configs []*model.VPNConfiguration
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cfg := processor.Process(line, src.URL)
		if cfg == nil {
			if m.metrics != nil {
				m.metrics.ConfigsRejected.Inc()
			}
			continue
		}
		if m.metrics != nil {
			m.metrics.ConfigsProcessed.Inc()
		}
		configs = append(configs, cfg)
	}
	return configs, true
}

func (m *Merger) publish(eventType string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventType, data, nil, "merger")
}

func chunk(srcs []*model.Source, size int) [][]*model.Source {
	var out [][]*model.Source
	for i := 0; i < len(srcs); i += size {
		end := i + size
		if end > len(srcs) {
			end = len(srcs)
		}
		out = append(out, srcs[i:end])
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
