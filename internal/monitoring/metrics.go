package monitoring

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Metrics struct {
	mu              sync.RWMutex
	requestCount    int64
	activeRequests  int64
	errorCount      int64
	totalDuration   time.Duration
	statusCodes     map[int]int64
	endpoints       map[string]int64
	sideEffectFails map[string]int64
	jobs            func(ctx context.Context) (map[string]int64, error)
	components      map[string]func() map[string]interface{}
	startTime       time.Time
	lastRequest     time.Time
}

type MetricsSnapshot struct {
	RequestCount        int64            `json:"request_count"`
	AvgRequestDuration  float64          `json:"avg_request_duration_ms"`
	ActiveRequests      int64            `json:"active_requests"`
	ErrorCount          int64            `json:"error_count"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	Endpoints           map[string]int64 `json:"endpoint_calls"`
	SideEffectFailures  map[string]int64 `json:"side_effect_failures"`
	StartTime           time.Time        `json:"start_time"`
	LastRequest         time.Time        `json:"last_request"`
	JobQueues           map[string]int64 `json:"job_queues,omitempty"`
	JobQueueUnavailable string           `json:"job_queue_error,omitempty"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		statusCodes:     make(map[int]int64),
		endpoints:       make(map[string]int64),
		sideEffectFails: make(map[string]int64),
		components:      make(map[string]func() map[string]interface{}),
		startTime:       time.Now(),
	}
}

// WithJobSizes reports job queue depths alongside request metrics.
func (m *Metrics) WithJobSizes(sizes func(ctx context.Context) (map[string]int64, error)) *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = sizes
	return m
}

// WithComponent adds the stats of a dependency such as the database pool
// under name in the /metrics payload.
func (m *Metrics) WithComponent(name string, stats func() map[string]interface{}) *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = stats
	return m
}

// Components collects the registered dependency stats.
func (m *Metrics) Components() map[string]interface{} {
	m.mu.RLock()
	sources := make(map[string]func() map[string]interface{}, len(m.components))
	for name, fn := range m.components {
		sources[name] = fn
	}
	m.mu.RUnlock()

	out := make(map[string]interface{}, len(sources))
	for name, fn := range sources {
		out[name] = fn()
	}
	return out
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		m.mu.Lock()
		m.activeRequests++
		m.mu.Unlock()

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		endpoint := c.Request.Method + " " + c.FullPath()

		m.mu.Lock()
		defer m.mu.Unlock()
		m.requestCount++
		m.activeRequests--
		m.totalDuration += duration
		m.lastRequest = time.Now()
		if statusCode >= 500 {
			m.errorCount++
		}
		m.statusCodes[statusCode]++
		m.endpoints[endpoint]++
	}
}

// RecordSideEffectFailure counts activity or notification writes that were
// dropped after the primary mutation succeeded.
func (m *Metrics) RecordSideEffectFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sideEffectFails[kind]++
}

func (m *Metrics) Snapshot(ctx context.Context) MetricsSnapshot {
	m.mu.RLock()
	s := MetricsSnapshot{
		RequestCount:       m.requestCount,
		ActiveRequests:     m.activeRequests,
		ErrorCount:         m.errorCount,
		StatusCodes:        make(map[int]int64, len(m.statusCodes)),
		Endpoints:          make(map[string]int64, len(m.endpoints)),
		SideEffectFailures: make(map[string]int64, len(m.sideEffectFails)),
		StartTime:          m.startTime,
		LastRequest:        m.lastRequest,
	}
	if m.requestCount > 0 {
		s.AvgRequestDuration = float64(m.totalDuration.Microseconds()) / float64(m.requestCount) / 1000
	}
	for k, v := range m.statusCodes {
		s.StatusCodes[k] = v
	}
	for k, v := range m.endpoints {
		s.Endpoints[k] = v
	}
	for k, v := range m.sideEffectFails {
		s.SideEffectFailures[k] = v
	}
	jobs := m.jobs
	m.mu.RUnlock()

	if jobs != nil {
		sizes, err := jobs(ctx)
		if err != nil {
			s.JobQueueUnavailable = err.Error()
		} else {
			s.JobQueues = sizes
		}
	}
	return s
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

type SystemMetrics struct {
	Uptime         string      `json:"uptime"`
	MemoryUsage    MemoryStats `json:"memory"`
	GoroutineCount int         `json:"goroutine_count"`
	CPUCount       int         `json:"cpu_count"`
	GoVersion      string      `json:"go_version"`
}

type MemoryStats struct {
	Alloc        uint64 `json:"alloc_mb"`
	TotalAlloc   uint64 `json:"total_alloc_mb"`
	Sys          uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	NextGC       uint64 `json:"next_gc_mb"`
	GCPauseTotal string `json:"gc_pause_total"`
}

func (m *Metrics) System() SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return SystemMetrics{
		Uptime: m.Uptime().Round(time.Second).String(),
		MemoryUsage: MemoryStats{
			Alloc:        bToMb(ms.Alloc),
			TotalAlloc:   bToMb(ms.TotalAlloc),
			Sys:          bToMb(ms.Sys),
			NumGC:        ms.NumGC,
			NextGC:       bToMb(ms.NextGC),
			GCPauseTotal: time.Duration(ms.PauseTotalNs).String(),
		},
		GoroutineCount: runtime.NumGoroutine(),
		CPUCount:       runtime.NumCPU(),
		GoVersion:      runtime.Version(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}

func (m *Metrics) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"application": m.Snapshot(c.Request.Context()),
			"components":  m.Components(),
			"system":      m.System(),
			"timestamp":   time.Now(),
		})
	}
}

type HealthCheckFunc func(ctx context.Context) error

type HealthCheck struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Duration string    `json:"duration"`
	LastRun  time.Time `json:"last_run"`
}

// HealthChecker runs every registered check on each request.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  map[string]HealthCheckFunc
	timeout time.Duration
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthChecker{checks: make(map[string]HealthCheckFunc), timeout: timeout}
}

func (h *HealthChecker) Register(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Run executes the checks concurrently and reports whether all passed.
func (h *HealthChecker) Run(ctx context.Context) ([]HealthCheck, bool) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			result := HealthCheck{Name: name, Status: "healthy", LastRun: start}
			if err := checks[name](cctx); err != nil {
				result.Status = "unhealthy"
				result.Message = err.Error()
			}
			result.Duration = time.Since(start).String()
			results[i] = result
		}(i, name)
	}
	wg.Wait()

	healthy := true
	for _, r := range results {
		if r.Status != "healthy" {
			healthy = false
		}
	}
	return results, healthy
}

func (h *HealthChecker) HealthHandler(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks, healthy := h.Run(c.Request.Context())

		status, label := http.StatusOK, "healthy"
		if !healthy {
			status, label = http.StatusServiceUnavailable, "unhealthy"
		}

		c.JSON(status, gin.H{
			"status":    label,
			"timestamp": time.Now(),
			"checks":    checks,
			"uptime":    m.Uptime().Round(time.Second).String(),
		})
	}
}

func (h *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, healthy := h.Run(c.Request.Context()); !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "timestamp": time.Now()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
	}
}

func LivenessHandler(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
			"uptime":    m.Uptime().Round(time.Second).String(),
		})
	}
}
