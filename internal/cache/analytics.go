package cache

import (
	"sync"
	"time"
)

// overallCategory aggregates every category.
const overallCategory = "overall"

// CacheStats represents cache statistics for one category
type CacheStats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Stores      int64     `json:"stores"`
	Evictions   int64     `json:"evictions"`
	HitRate     float64   `json:"hit_rate"`
	TotalOps    int64     `json:"total_ops"`
	LastUpdated time.Time `json:"last_updated"`
}

// CacheMetrics is the snapshot served to operators
type CacheMetrics struct {
	Overall    CacheStats            `json:"overall"`
	ByCategory map[string]CacheStats `json:"by_category"`
	KeyCount   int                   `json:"key_count"`
}

// CacheAnalytics tracks cache counters per category plus an overall total
type CacheAnalytics struct {
	now   func() time.Time
	mu    sync.RWMutex
	stats map[string]*CacheStats
}

// NewCacheAnalytics creates an empty tracker
func NewCacheAnalytics(now func() time.Time) *CacheAnalytics {
	if now == nil {
		now = time.Now
	}
	return &CacheAnalytics{now: now, stats: make(map[string]*CacheStats)}
}

// RecordHit records a cache hit for the given category
func (c *CacheAnalytics) RecordHit(category string) {
	c.record(category, func(s *CacheStats) { s.Hits++; s.TotalOps++ })
}

// RecordMiss records a cache miss for the given category
func (c *CacheAnalytics) RecordMiss(category string) {
	c.record(category, func(s *CacheStats) { s.Misses++; s.TotalOps++ })
}

// RecordStore records a stored entry
func (c *CacheAnalytics) RecordStore(category string) {
	c.record(category, func(s *CacheStats) { s.Stores++ })
}

// RecordEviction records an expired entry being dropped
func (c *CacheAnalytics) RecordEviction(category string) {
	c.record(category, func(s *CacheStats) { s.Evictions++ })
}

func (c *CacheAnalytics) record(category string, apply func(*CacheStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, name := range []string{category, overallCategory} {
		s := c.stats[name]
		if s == nil {
			s = &CacheStats{}
			c.stats[name] = s
		}
		apply(s)
		if s.TotalOps > 0 {
			s.HitRate = float64(s.Hits) / float64(s.TotalOps)
		}
		s.LastUpdated = now
	}
}

// GetStats returns statistics for a category
func (c *CacheAnalytics) GetStats(category string) CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if stats, exists := c.stats[category]; exists {
		return *stats
	}
	return CacheStats{}
}

// GetAllStats returns every category, including overall
func (c *CacheAnalytics) GetAllStats() map[string]CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]CacheStats, len(c.stats))
	for category, stats := range c.stats {
		result[category] = *stats
	}
	return result
}

// Reset clears all counters
func (c *CacheAnalytics) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = make(map[string]*CacheStats)
}
