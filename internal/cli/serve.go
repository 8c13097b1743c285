package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"taskboard/internal/cache"
	"taskboard/internal/database"
	"taskboard/internal/events"
	"taskboard/internal/middleware"
	"taskboard/internal/monitoring"
	"taskboard/internal/server"
	"taskboard/internal/services"
	"taskboard/internal/worker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openDatabase()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer pool.Close()

	if cfg.Server.AutoMigrate {
		if err := pool.Migrate(); err != nil {
			return err
		}
	}

	metrics := monitoring.NewMetrics()
	metrics.WithComponent("database", pool.Stats)
	health := monitoring.NewHealthChecker(5 * time.Second)
	health.Register("database", func(ctx context.Context) error { return pool.Health() })

	direct := events.NewDirectSink(pool.DB, logger.With("component", "events"), metrics)
	var sink events.Sink = direct
	var taskCache services.Cache

	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(cache.ConfigFromRedis(cfg.Redis, cfg.GetRedisAddr()))
		defer redisCache.Close()
		health.Register("redis", redisCache.Health)

		if err := redisCache.Health(ctx); err != nil {
			logger.Warn("redis unreachable at startup", "addr", cfg.GetRedisAddr(), "error", err)
		}

		w := startWorker(pool, redisCache)
		defer w.Stop()

		queue := worker.NewJobQueue(redisCache.Client(), cfg.Worker.MaxTries)
		sink = events.NewQueueSink(queue, cfg.Worker.Queues[0], direct, logger.With("component", "outbox"))
		metrics.WithJobSizes(func(ctx context.Context) (map[string]int64, error) {
			return queue.Sizes(ctx, cfg.Worker.Queues)
		})

		if cfg.Cache.Enabled {
			cacheLogger := logger.With("component", "cache")
			breakerConfig := cache.DefaultBreakerConfig()
			breakerConfig.OnStateChange = func(from, to cache.BreakerState) {
				cacheLogger.Warn("task cache breaker changed state", "from", from.String(), "to", to.String())
			}
			guarded := cache.NewGuardedCache(redisCache, cache.NewCircuitBreaker(breakerConfig), logger)
			metrics.WithComponent("cache", guarded.Stats)
			purgeTaskSnapshots(ctx, redisCache, cacheLogger)
			taskCache = guarded
		}
	}

	svcs := server.NewServices(pool.DB, sink, taskCache, cfg, logger)
	created, err := svcs.Users.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	if created {
		logger.Info("bootstrap admin created", "email", cfg.Auth.AdminEmail)
	}

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize, cfg.RateLimit.CleanupInterval)
		go limiter.Run(ctx)
		metrics.WithComponent("rate_limiter", func() map[string]interface{} {
			return map[string]interface{}{"tracked_clients": limiter.Size()}
		})
	}

	router := server.NewRouter(server.RouterDeps{
		Config:      cfg,
		Logger:      logger,
		Services:    svcs,
		Metrics:     metrics,
		Health:      health,
		RateLimiter: limiter,
	})

	return server.New(cfg, router, logger).Run(ctx)
}

type patternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// purgeTaskSnapshots drops task snapshots cached by a previous process,
// whose payload shape may predate the current schema.
func purgeTaskSnapshots(ctx context.Context, store patternDeleter, logger *slog.Logger) {
	n, err := store.DeletePattern(ctx, services.TaskCachePrefix+"*")
	if err != nil {
		logger.Warn("failed to purge cached task snapshots", "error", err)
		return
	}
	if n > 0 {
		logger.Info("purged cached task snapshots", "count", n)
	}
}

func startWorker(pool *database.DatabasePool, redisCache *cache.RedisCache) *worker.Worker {
	w := worker.NewWorker(worker.WorkerConfig{
		RedisClient:  redisCache.Client(),
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		RetryBackoff: cfg.Worker.RetryBackoff,
		Queues:       cfg.Worker.Queues,
		Logger:       logger,
	})
	events.RegisterHandlers(w, pool.DB)
	w.Start(cfg.Worker.Concurrency)
	return w
}
