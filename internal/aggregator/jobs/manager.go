// Package jobs implements JobManager (spec §4.8): create/get/list/cancel/
// delete of background merge runs, backed by a pluggable Store, with TTL
// eviction on a periodic cleanup cycle. Grounded on
// original_source/src/vpn_merger/web/graphql/jobs.py's JobManager class.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
)

// Runner executes one job's sources to completion, reporting progress via
// report. It must return promptly after observing ctx cancellation or
// job.CancelRequested() — the Manager cannot force-stop a goroutine.
// Dependency-injected the same way validator.Validator takes a fetch func,
// so this package never imports the merger package that implements it.
type Runner func(ctx context.Context, job *model.Job, report func(progress float64, totalConfigs, validConfigs int))

// defaultTTL and defaultCleanupInterval mirror jobs.py's
// JOBS_TTL_DAYS=7 / JOBS_CLEANUP_INTERVAL_SEC=600 defaults.
const (
	defaultTTL              = 7 * 24 * time.Hour
	defaultCleanupInterval  = 600 * time.Second
	memoryReductionEveryNth = 10
)

// Manager owns the in-memory Job set, a background goroutine per running
// job, and a periodic cleanup loop.
type Manager struct {
	mu      sync.RWMutex
	jobList map[string]*model.Job
	cancels map[string]context.CancelFunc

	store           Store
	runner          Runner
	ttl             time.Duration
	cleanupInterval time.Duration
	metrics         *metrics.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup

	cleanupCycles int
}

// Options configures a Manager beyond its required Store/Runner.
type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	return o
}

// New constructs a Manager and loads any previously persisted, non-expired
// jobs from store.
func New(store Store, runner Runner, m *metrics.Metrics, opts Options) *Manager {
	opts = opts.withDefaults()
	mgr := &Manager{
		jobList:         make(map[string]*model.Job),
		cancels:         make(map[string]context.CancelFunc),
		store:           store,
		runner:          runner,
		ttl:             opts.TTL,
		cleanupInterval: opts.CleanupInterval,
		metrics:         m,
		stopCh:          make(chan struct{}),
	}
	mgr.loadFromStore()
	return mgr
}

func (m *Manager) loadFromStore() {
	loaded, err := m.store.LoadAll()
	if err != nil {
		return
	}
	now := time.Now()
	for _, j := range loaded {
		if isExpired(j, m.ttl, now) {
			continue
		}
		m.jobList[j.ID] = j
	}
}

// Start launches the background cleanup loop. Safe to call once.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.cleanupLoop()
	}()
}

// Stop halts the cleanup loop and waits for it, and for any in-flight job
// runs, to exit. It does not cancel those job runs.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupNow()
			m.cleanupCycles++
			if m.cleanupCycles%memoryReductionEveryNth == 0 {
				m.reduceMemory()
			}
		case <-m.stopCh:
			return
		}
	}
}

// reduceMemory sets Progress to 1.0 on every completed job — a completed
// job's report usually already does, so this only guards against a Runner
// that reported completion without a final 1.0 progress value. A cancelled job's Progress must stay
// below 1.0 (spec §8 scenario 6), so it is left untouched here. Kept as
// its own method (spec §4.8 "every 10th cycle performs an additional
// memory-reduction pass") so a future Job field added for live progress
// detail has an obvious place to be trimmed.
func (m *Manager) reduceMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobList {
		if j.Status == model.JobCompleted {
			j.Progress = 1.0
		}
	}
}

// Spec describes a new job's parameters. Limit <= 0 means "no limit" — the
// merger.Merger-backed Runner treats that as a full comprehensive run
// rather than a capped quick run. Formats/OutputDir are opaque to this
// package; they are only meaningful to a Runner that knows how to write
// artifacts (merger.Merger's does).
type Spec struct {
	Sources   []string
	Limit     int
	Formats   []string
	OutputDir string
}

// Create registers a new Job and starts its Runner in a background
// goroutine.
func (m *Manager) Create(spec Spec) *model.Job {
	job := &model.Job{
		ID:        uuid.NewString(),
		Sources:   spec.Sources,
		Limit:     spec.Limit,
		Formats:   spec.Formats,
		OutputDir: spec.OutputDir,
		Status:    model.JobPending,
		StartedAt: time.Now(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.jobList[job.ID] = job
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.persist()
	if m.metrics != nil {
		m.metrics.JobsStarted.Inc()
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, job)
	}()

	return job
}

func (m *Manager) run(ctx context.Context, job *model.Job) {
	m.mu.Lock()
	job.Status = model.JobRunning
	m.mu.Unlock()
	m.persist()

	report := func(progress float64, totalConfigs, validConfigs int) {
		m.mu.Lock()
		job.Progress = progress
		job.TotalConfigs = totalConfigs
		job.ValidConfigs = validConfigs
		m.mu.Unlock()
		m.persist()
	}

	m.runner(ctx, job, report)

	m.mu.Lock()
	if job.CancelRequested() {
		job.Status = model.JobCancelled
	} else {
		job.Status = model.JobCompleted
	}
	now := time.Now()
	job.FinishedAt = &now
	m.mu.Unlock()
	m.persist()

	if m.metrics != nil && job.Status == model.JobCompleted {
		m.metrics.JobsCompleted.Inc()
	}
}

// Get returns a defensive copy of a job by ID.
func (m *Manager) Get(id string) (*model.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobList[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// List returns defensive copies of every known job.
func (m *Manager) List() []*model.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Job, 0, len(m.jobList))
	for _, j := range m.jobList {
		out = append(out, j.Clone())
	}
	return out
}

// Cancel requests cooperative cancellation of a running job. Returns false
// if the job is unknown or already finished (spec §4.8).
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	j, ok := m.jobList[id]
	cancel, hasCancel := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if !j.RequestCancel() {
		return false
	}
	if hasCancel {
		cancel()
	}
	if m.metrics != nil {
		m.metrics.JobsCancelled.Inc()
	}
	return true
}

// Delete removes a job from memory and storage. Returns false if unknown.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	if _, ok := m.jobList[id]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.jobList, id)
	delete(m.cancels, id)
	m.mu.Unlock()

	m.store.Delete(id)
	m.persist()
	return true
}

// CleanupNow evicts expired jobs (status ∈ {completed, cancelled} and
// now − finished_at > TTL) and returns the count removed.
func (m *Manager) CleanupNow() int {
	now := time.Now()
	m.mu.Lock()
	var expired []string
	for id, j := range m.jobList {
		if isExpired(j, m.ttl, now) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(m.jobList, id)
		delete(m.cancels, id)
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.store.Delete(id)
	}
	if len(expired) > 0 {
		m.persist()
	}
	return len(expired)
}

func isExpired(j *model.Job, ttl time.Duration, now time.Time) bool {
	if j.Status != model.JobCompleted && j.Status != model.JobCancelled {
		return false
	}
	if j.FinishedAt == nil {
		return false
	}
	return now.Sub(*j.FinishedAt) > ttl
}

// persist is best-effort: a failed save increments PersistenceErrors and is
// otherwise swallowed (spec §4.8 "a failed save must not crash the run").
func (m *Manager) persist() {
	m.mu.RLock()
	snapshot := make([]*model.Job, 0, len(m.jobList))
	for _, j := range m.jobList {
		snapshot = append(snapshot, j.Clone())
	}
	m.mu.RUnlock()

	if err := m.store.SaveAll(snapshot); err != nil && m.metrics != nil {
		m.metrics.PersistenceErrors.Inc()
	}
}
