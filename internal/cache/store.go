package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Store is the key/value backend wrapped by GuardedCache.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// GuardedCache puts a circuit breaker and counters in front of a Store so
// an unhealthy backend degrades reads to the database instead of failing
// requests.
type GuardedCache struct {
	store   Store
	breaker *CircuitBreaker
	metrics *CacheMetrics
	logger  *slog.Logger
}

func NewGuardedCache(store Store, breaker *CircuitBreaker, logger *slog.Logger) *GuardedCache {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedCache{
		store:   store,
		breaker: breaker,
		metrics: NewCacheMetrics(),
		logger:  logger.With("component", "cache"),
	}
}

func isMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func (g *GuardedCache) Get(ctx context.Context, key string, dest interface{}) error {
	err := g.breaker.Execute(func() error {
		return g.store.Get(ctx, key, dest)
	}, isMiss)

	switch {
	case err == nil:
		g.metrics.RecordHit()
	case isMiss(err):
		g.metrics.RecordMiss()
	default:
		g.observe(ctx, "get", key, err)
		return ErrCacheDown
	}
	return err
}

func (g *GuardedCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	err := g.breaker.Execute(func() error {
		return g.store.Set(ctx, key, value, ttl)
	})
	if err != nil {
		g.observe(ctx, "set", key, err)
		return ErrCacheDown
	}
	g.metrics.RecordSet()
	return nil
}

func (g *GuardedCache) Delete(ctx context.Context, keys ...string) error {
	err := g.breaker.Execute(func() error {
		return g.store.Delete(ctx, keys...)
	})
	if err != nil {
		g.observe(ctx, "delete", "", err, "keys", len(keys))
		return ErrCacheDown
	}
	g.metrics.RecordDelete()
	return nil
}

func (g *GuardedCache) observe(ctx context.Context, op, key string, err error, attrs ...any) {
	if errors.Is(err, ErrBreakerOpen) {
		g.metrics.RecordRejected()
		return
	}
	g.metrics.RecordError()
	g.logger.WarnContext(ctx, "cache operation failed",
		append([]any{"op", op, "key", key, "error", err, "breaker", g.breaker.State().String()}, attrs...)...)
}

func (g *GuardedCache) Metrics() MetricsSnapshot {
	return g.metrics.Snapshot()
}

func (g *GuardedCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"metrics": g.Metrics(),
		"breaker": g.breaker.Stats(),
	}
	if r, ok := g.store.(*RedisCache); ok {
		stats["redis"] = r.Stats()
	}
	return stats
}
