package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"vpnagg/internal/aggregator/events"
	"vpnagg/internal/aggregator/jobs"
	"vpnagg/internal/aggregator/metrics"
	"vpnagg/internal/aggregator/model"
	"vpnagg/internal/aggregator/validator"
)

func noopRunner(ctx context.Context, job *model.Job, report func(float64, int, int)) {}

func newJobsManager(t *testing.T, m *metrics.Metrics) *jobs.Manager {
	t.Helper()
	store := jobs.NewJSONFileStore(filepath.Join(t.TempDir(), "jobs.json"))
	return jobs.New(store, noopRunner, m, jobs.Options{})
}

func newTestServer(t *testing.T) (*Server, *jobs.Manager) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	v := validator.New(func(ctx context.Context, url string) (int, string, time.Duration, error) {
		return 200, "vmess://stub\n", time.Millisecond, nil
	})
	bus := events.New(m)
	jm := newJobsManager(t, m)
	srv := New(v, jm, bus, nil, m, zerolog.Nop(), Options{})
	return srv, jm
}

func TestHealthReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %q, want ok", body["status"])
	}
}

func TestReadyWithoutStoreReportsFalse(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var body map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ready"] {
		t.Fatalf("ready = true with no store configured, want false")
	}
}

func TestRunMergeStartsJobAndReturnsAccepted(t *testing.T) {
	srv, jm := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/run/merge?formats=raw,csv&limit=3", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["started"] != true {
		t.Fatalf("started = %v, want true", body["started"])
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(jm.List()) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected a job to be registered")
}

func TestFormatRawJoinsLines(t *testing.T) {
	srv, _ := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{
		"type":  "raw",
		"lines": []string{"vmess://A", "vless://B"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/format", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "vmess://A\nvless://B" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestFilterExcludesScheme(t *testing.T) {
	srv, _ := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{
		"lines":   []string{"vmess://A", "vless://B"},
		"exclude": []string{"vless"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/filter", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if strings.TrimSpace(w.Body.String()) != "vmess://A" {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestScoreSortsDescendingByQuality(t *testing.T) {
	srv, _ := newTestServer(t)
	payload, _ := json.Marshal(map[string]interface{}{
		"lines": []string{"ss://short", "vless://much-longer-configuration-uri-value"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/score", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if lines[0] != "vless://much-longer-configuration-uri-value" {
		t.Fatalf("expected vless config first (higher base score), got %q", lines[0])
	}
}

func TestRunsListsRegisteredJobs(t *testing.T) {
	srv, jm := newTestServer(t)
	jm.Create(jobs.Spec{Limit: 1})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=10", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var body struct {
		Runs []map[string]interface{} `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) == 0 {
		t.Fatal("expected at least one run")
	}
}

func TestSubUnknownFormatIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sub/nonsense", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSubRequiresTokenWhenConfigured(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	v := validator.New(func(ctx context.Context, url string) (int, string, time.Duration, error) {
		return 200, "", 0, nil
	})
	jm := newJobsManager(t, m)
	srv := New(v, jm, nil, nil, m, zerolog.Nop(), Options{APIToken: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sub/raw", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
