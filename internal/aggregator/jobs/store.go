package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"

	"vpnagg/internal/aggregator/errkind"
	"vpnagg/internal/aggregator/model"
)

// Store persists the Job collection. Saves are best-effort from the
// caller's point of view (spec §4.8 "Saves are best-effort; a failed save
// must not crash the run") — Manager counts failures but never
// propagates them into a run's control flow.
type Store interface {
	SaveAll(jobs []*model.Job) error
	LoadAll() ([]*model.Job, error)
	Delete(id string) error
}

// BuildStore selects a persistence backend via a string selector plus
// options, returning an error for an unknown adapter rather than silently
// picking a default. "jsonfile" and "redis" mirror spec §4.8's "either a
// keyed key-value store... or a single JSON file" choice verbatim.
func BuildStore(adapter string, opts StoreOptions) (Store, error) {
	switch adapter {
	case "", "jsonfile":
		path := opts.JSONPath
		if path == "" {
			path = "data/jobs.json"
		}
		return NewJSONFileStore(path), nil
	case "redis":
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("%w: redis adapter selected without RedisURL", errkind.ErrConfigLoad)
		}
		redisOpts, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errkind.ErrConfigLoad, err)
		}
		return NewRedisStore(redis.NewClient(redisOpts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown job store adapter %q", errkind.ErrConfigLoad, adapter)
	}
}

// StoreOptions configures either backend; irrelevant fields are ignored.
type StoreOptions struct {
	JSONPath string
	RedisURL string
}

// JSONFileStore writes the entire job collection to one JSON file on every
// save, grounded directly on jobs.py's _save_job/_load_jobs JSON branch
// (the whole-collection rewrite, not an append log).
type JSONFileStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONFileStore constructs a JSONFileStore at path, creating its parent
// directory.
func NewJSONFileStore(path string) *JSONFileStore {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return &JSONFileStore{path: path}
}

type jsonFilePayload struct {
	Jobs []*model.Job `json:"jobs"`
}

func (s *JSONFileStore) SaveAll(jobs []*model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(jsonFilePayload{Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	return nil
}

func (s *JSONFileStore) LoadAll() ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	var payload jsonFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	return payload.Jobs, nil
}

// Delete on JSONFileStore is a no-op: Manager calls SaveAll with the
// already-reduced collection immediately after removing a job from memory,
// which achieves the same effect as the Python's rewrite-whole-file delete.
func (s *JSONFileStore) Delete(id string) error { return nil }

// RedisStore keeps one string key per job holding its JSON, grounded on jobs.py's
// `_redis.set(f"job:{id}", json.dumps(...))` / `_redis.keys("job:*")` /
// `_redis.delete(f"job:{id}")` trio, using the real go-redis/v9 client
// since job state needs a live backend rather than an in-process shim.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string { return "job:" + id }

func (s *RedisStore) SaveAll(jobsList []*model.Job) error {
	ctx := context.Background()
	pipe := s.client.Pipeline()
	for _, j := range jobsList {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
		}
		pipe.Set(ctx, jobKey(j.ID), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	return nil
}

func (s *RedisStore) LoadAll() ([]*model.Job, error) {
	ctx := context.Background()
	keys, err := s.client.Keys(ctx, jobKey("*")).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	out := make([]*model.Job, 0, len(keys))
	for _, k := range keys {
		data, err := s.client.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		var j model.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			continue
		}
		out = append(out, &j)
	}
	return out, nil
}

func (s *RedisStore) Delete(id string) error {
	ctx := context.Background()
	if err := s.client.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", errkind.ErrPersistence, err)
	}
	return nil
}
