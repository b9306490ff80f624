package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
)

func newTestManager(t *testing.T, runner Runner) *Manager {
	t.Helper()
	dir := t.TempDir()
	store := NewJSONFileStore(filepath.Join(dir, "jobs.json"))
	m := metrics.New(prometheus.NewRegistry())
	return New(store, runner, m, Options{})
}

func blockingRunner(started, release chan struct{}) Runner {
	return func(ctx context.Context, job *model.Job, report func(float64, int, int)) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
}

func instantRunner(totalConfigs int) Runner {
	return func(ctx context.Context, job *model.Job, report func(float64, int, int)) {
		report(1.0, totalConfigs, totalConfigs)
	}
}

func TestCreateRunsToCompletion(t *testing.T) {
	mgr := newTestManager(t, instantRunner(5))
	job := mgr.Create(Spec{Sources: []string{"https://a"}})

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCompleted {
			if got.TotalConfigs != 5 {
				t.Fatalf("expected 5 total configs, got %d", got.TotalConfigs)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, status=%s", got.Status)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCancelStopsRunningJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mgr := newTestManager(t, blockingRunner(started, release))

	job := mgr.Create(Spec{Sources: []string{"https://a"}})
	<-started

	if !mgr.Cancel(job.ID) {
		t.Fatal("expected Cancel to succeed on a running job")
	}

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCancelled {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never cancelled, status=%s", got.Status)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestCancelOnCompletedJobReturnsFalse(t *testing.T) {
	mgr := newTestManager(t, instantRunner(1))
	job := mgr.Create(Spec{Sources: []string{"https://a"}})

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if mgr.Cancel(job.ID) {
		t.Fatal("expected Cancel on a completed job to return false")
	}
}

func TestCancelUnknownJobReturnsFalse(t *testing.T) {
	mgr := newTestManager(t, instantRunner(0))
	if mgr.Cancel("nonexistent") {
		t.Fatal("expected Cancel on an unknown job to return false")
	}
}

func TestDeleteRemovesJob(t *testing.T) {
	mgr := newTestManager(t, instantRunner(0))
	job := mgr.Create(Spec{Sources: []string{"https://a"}})

	if !mgr.Delete(job.ID) {
		t.Fatal("expected Delete to succeed")
	}
	if _, ok := mgr.Get(job.ID); ok {
		t.Fatal("expected job to be gone after Delete")
	}
	if mgr.Delete(job.ID) {
		t.Fatal("expected a second Delete to return false")
	}
}

func TestCleanupNowEvictsExpiredJobs(t *testing.T) {
	mgr := newTestManager(t, instantRunner(0))
	mgr.ttl = time.Millisecond

	job := mgr.Create(Spec{Sources: []string{"https://a"}})

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	time.Sleep(5 * time.Millisecond)
	removed := mgr.CleanupNow()
	if removed != 1 {
		t.Fatalf("expected 1 job evicted, got %d", removed)
	}
	if _, ok := mgr.Get(job.ID); ok {
		t.Fatal("expected expired job to be gone")
	}
}

func TestListReturnsDefensiveCopies(t *testing.T) {
	mgr := newTestManager(t, instantRunner(0))
	mgr.Create(Spec{Sources: []string{"https://a"}})
	mgr.Create(Spec{Sources: []string{"https://b"}})

	list := mgr.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}
	list[0].Sources[0] = "mutated"

	fresh, _ := mgr.Get(list[0].ID)
	if fresh.Sources[0] == "mutated" {
		t.Fatal("expected List's returned jobs to be defensive copies")
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")
	store := NewJSONFileStore(path)
	m := metrics.New(prometheus.NewRegistry())

	mgr := New(store, instantRunner(3), m, Options{})
	job := mgr.Create(Spec{Sources: []string{"https://a"}})

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	reloaded := New(store, instantRunner(0), m, Options{})
	got, ok := reloaded.Get(job.ID)
	if !ok {
		t.Fatal("expected job to survive a reload from the JSON store")
	}
	if got.TotalConfigs != 3 {
		t.Fatalf("expected reloaded job to keep its total configs, got %d", got.TotalConfigs)
	}
}

// TestScenarioCancelLargeJobAfterFirstBatch matches the 100-source job
// cancellation scenario: cancel once the first batch reports progress, and
// the persisted job ends up cancelled, timestamped, and short of 1.0.
func TestScenarioCancelLargeJobAfterFirstBatch(t *testing.T) {
	firstBatchReported := make(chan struct{})
	release := make(chan struct{})
	runner := func(ctx context.Context, job *model.Job, report func(float64, int, int)) {
		report(0.1, 10, 10)
		close(firstBatchReported)
		select {
		case <-release:
		case <-ctx.Done():
		}
	}
	dir := t.TempDir()
	store := NewJSONFileStore(filepath.Join(dir, "jobs.json"))
	m := metrics.New(prometheus.NewRegistry())
	mgr := New(store, runner, m, Options{})

	sources := make([]string, 100)
	for i := range sources {
		sources[i] = "https://example.com/s"
	}
	job := mgr.Create(Spec{Sources: sources})
	<-firstBatchReported

	if !mgr.Cancel(job.ID) {
		t.Fatal("expected Cancel to succeed after the first batch")
	}

	deadline := time.After(time.Second)
	for {
		got, _ := mgr.Get(job.ID)
		if got.Status == model.JobCancelled {
			if got.FinishedAt == nil {
				t.Fatal("expected FinishedAt to be set on cancellation")
			}
			if got.Progress >= 1.0 {
				t.Fatalf("expected progress < 1.0 on cancellation, got %v", got.Progress)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job never reached cancelled status, status=%s", got.Status)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
