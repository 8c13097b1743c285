package cache

import (
	"sync/atomic"
	"time"
)

type CacheMetrics struct {
	hits     atomic.Int64
	misses   atomic.Int64
	errors   atomic.Int64
	sets     atomic.Int64
	deletes  atomic.Int64
	rejected atomic.Int64
	started  time.Time
}

type MetricsSnapshot struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Errors   int64   `json:"errors"`
	Sets     int64   `json:"sets"`
	Deletes  int64   `json:"deletes"`
	Rejected int64   `json:"rejected"`
	HitRate  float64 `json:"hit_rate"`
	Uptime   string  `json:"uptime"`
}

func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{started: time.Now()}
}

func (m *CacheMetrics) RecordHit() { m.hits.Add(1) }
func (m *CacheMetrics) RecordMiss() { m.misses.Add(1) }
func (m *CacheMetrics) RecordError() { m.errors.Add(1) }
func (m *CacheMetrics) RecordSet() { m.sets.Add(1) }
func (m *CacheMetrics) RecordDelete() { m.deletes.Add(1) }

// RecordRejected counts calls short-circuited by an open breaker.
func (m *CacheMetrics) RecordRejected() { m.rejected.Add(1) }

// HitRate is the percentage of reads served from cache.
func (m *CacheMetrics) HitRate() float64 {
	hits := m.hits.Load()
	total := hits + m.misses.Load()
	if total == 0 {
		return 0.0
	}
	return float64(hits) / float64(total) * 100.0
}

func (m *CacheMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:     m.hits.Load(),
		Misses:   m.misses.Load(),
		Errors:   m.errors.Load(),
		Sets:     m.sets.Load(),
		Deletes:  m.deletes.Load(),
		Rejected: m.rejected.Load(),
		HitRate:  m.HitRate(),
		Uptime:   time.Since(m.started).Round(time.Second).String(),
	}
}
