package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Get(ctx context.Context, key string, dest interface{}) error {
	f.calls++
	return f.err
}

func (f *flakyStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.calls++
	return f.err
}

func (f *flakyStore) Delete(ctx context.Context, keys ...string) error {
	f.calls++
	return f.err
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuardedCache_HitsAndMisses(t *testing.T) {
	redisCache, _ := setupTestRedis(t)
	guarded := NewGuardedCache(redisCache, nil, quiet())
	ctx := context.Background()

	var got payload
	if err := guarded.Get(ctx, "task:1", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Expected miss, got %v", err)
	}

	if err := guarded.Set(ctx, "task:1", payload{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := guarded.Get(ctx, "task:1", &got); err != nil {
		t.Fatalf("Expected hit, got %v", err)
	}
	if err := guarded.Delete(ctx, "task:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	m := guarded.Metrics()
	if m.Hits != 1 || m.Misses != 1 || m.Sets != 1 || m.Deletes != 1 {
		t.Errorf("Unexpected metrics %+v", m)
	}
	if m.HitRate != 50 {
		t.Errorf("Expected hit rate 50, got %v", m.HitRate)
	}
	if _, ok := guarded.Stats()["redis"]; !ok {
		t.Error("Expected redis stats for a redis backed cache")
	}
}

func TestGuardedCache_MissesDoNotTripBreaker(t *testing.T) {
	store := &flakyStore{err: ErrCacheMiss}
	breaker, _ := newTestBreaker(1, 1)
	guarded := NewGuardedCache(store, breaker, quiet())

	for i := 0; i < 3; i++ {
		var v int
		guarded.Get(context.Background(), "k", &v)
	}
	if breaker.State() != BreakerClosed {
		t.Errorf("Expected breaker to stay closed on misses, got %v", breaker.State())
	}
}

func TestGuardedCache_OpensOnBackendErrors(t *testing.T) {
	store := &flakyStore{err: errors.New("connection refused")}
	breaker, _ := newTestBreaker(2, 1)
	guarded := NewGuardedCache(store, breaker, quiet())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := guarded.Set(ctx, "k", 1, time.Minute); !errors.Is(err, ErrCacheDown) {
			t.Errorf("Expected ErrCacheDown, got %v", err)
		}
	}

	if store.calls != 2 {
		t.Errorf("Expected the breaker to stop calls after 2 failures, got %d calls", store.calls)
	}
	m := guarded.Metrics()
	if m.Errors != 2 || m.Rejected != 2 {
		t.Errorf("Expected 2 errors and 2 rejections, got %+v", m)
	}
}
