package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/ok", "/boom"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	s := m.Snapshot(context.Background())
	assert.Equal(t, int64(3), s.RequestCount)
	assert.Equal(t, int64(1), s.ErrorCount)
	assert.Equal(t, int64(0), s.ActiveRequests)
	assert.Equal(t, int64(2), s.StatusCodes[http.StatusOK])
	assert.Equal(t, int64(2), s.Endpoints["GET /ok"])
}

func TestMetrics_SideEffectFailuresAndJobs(t *testing.T) {
	m := NewMetrics()
	m.RecordSideEffectFailure("activity")
	m.RecordSideEffectFailure("activity")
	m.RecordSideEffectFailure("notification")

	m.WithJobSizes(func(ctx context.Context) (map[string]int64, error) {
		return map[string]int64{"side_effects": 4}, nil
	})

	s := m.Snapshot(context.Background())
	assert.Equal(t, int64(2), s.SideEffectFailures["activity"])
	assert.Equal(t, int64(1), s.SideEffectFailures["notification"])
	assert.Equal(t, int64(4), s.JobQueues["side_effects"])

	m.WithJobSizes(func(ctx context.Context) (map[string]int64, error) {
		return nil, errors.New("redis down")
	})
	s = m.Snapshot(context.Background())
	assert.Equal(t, "redis down", s.JobQueueUnavailable)
	assert.Nil(t, s.JobQueues)
}

func TestHealthChecker_RerunsChecks(t *testing.T) {
	h := NewHealthChecker(0)
	calls := 0
	failing := false
	h.Register("database", func(ctx context.Context) error {
		calls++
		if failing {
			return errors.New("connection refused")
		}
		return nil
	})
	h.Register("redis", func(ctx context.Context) error { return nil })

	results, healthy := h.Run(context.Background())
	assert.True(t, healthy)
	require.Len(t, results, 2)
	assert.Equal(t, "database", results[0].Name)

	failing = true
	results, healthy = h.Run(context.Background())
	assert.False(t, healthy)
	assert.Equal(t, "connection refused", results[0].Message)
	assert.Equal(t, 2, calls)
}

func TestHealthHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	h := NewHealthChecker(0)
	down := false
	h.Register("database", func(ctx context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})

	router := gin.New()
	router.GET("/health", h.HealthHandler(m))
	router.GET("/health/ready", h.ReadinessHandler())
	router.GET("/health/live", LivenessHandler(m))
	router.GET("/metrics", m.Handler())

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	assert.Equal(t, http.StatusOK, get("/health").Code)
	assert.Equal(t, http.StatusOK, get("/health/ready").Code)

	down = true
	w := get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])

	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)
	assert.Equal(t, http.StatusOK, get("/health/live").Code)
	assert.Equal(t, http.StatusOK, get("/metrics").Code)
}

func TestMetricsHandler_Components(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	m.WithComponent("database", func() map[string]interface{} {
		return map[string]interface{}{"open_connections": 3}
	})

	router := gin.New()
	router.GET("/metrics", m.Handler())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Components map[string]map[string]float64 `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body.Components["database"]["open_connections"])
}
