// Package cache holds the in-memory, TTL-keyed response cache consulted
// before any upstream call.
package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

// Fetcher produces a result on a cache miss, normally the upstream executor
// followed by payload normalization.
type Fetcher func(ctx context.Context, spec models.RequestSpec) models.FetchResult

// TTLPolicy maps TTL classes to durations
type TTLPolicy struct {
	Short  time.Duration `mapstructure:"short" json:"short"`
	Medium time.Duration `mapstructure:"medium" json:"medium"`
	Long   time.Duration `mapstructure:"long" json:"long"`
}

// DefaultTTLPolicy returns 30 minutes, 1 hour and 24 hours.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Short:  30 * time.Minute,
		Medium: time.Hour,
		Long:   24 * time.Hour,
	}
}

// For returns the TTL for class.
func (p TTLPolicy) For(class models.TTLClass) time.Duration {
	switch class {
	case models.TTLShort:
		return p.Short
	case models.TTLMedium:
		return p.Medium
	default:
		return p.Long
	}
}

type cacheEntry struct {
	value     any
	class     models.TTLClass
	createdAt time.Time
	ttl       time.Duration
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Option customises a ResponseCache
type Option func(*ResponseCache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// ResponseCache maps request fingerprints to live payloads. Only Live results
// are stored, so every fallback re-checks the upstream on the next call.
// Concurrent misses for the same key share one fetch.
type ResponseCache struct {
	policy    TTLPolicy
	logger    *logrus.Logger
	now       func() time.Time
	mu        sync.RWMutex
	entries   map[string]cacheEntry
	group     singleflight.Group
	analytics *CacheAnalytics
}

// NewResponseCache creates an empty cache.
func NewResponseCache(policy TTLPolicy, logger *logrus.Logger, opts ...Option) *ResponseCache {
	def := DefaultTTLPolicy()
	if policy.Short <= 0 {
		policy.Short = def.Short
	}
	if policy.Medium <= 0 {
		policy.Medium = def.Medium
	}
	if policy.Long <= 0 {
		policy.Long = def.Long
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	c := &ResponseCache{
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.analytics = NewCacheAnalytics(c.now)
	return c
}

// GetOrFetch returns the cached payload for spec as a Live result, or runs
// fetch on a miss. Failed and Fallback results pass through uncached.
func (c *ResponseCache) GetOrFetch(ctx context.Context, spec models.RequestSpec, fetch Fetcher) models.FetchResult {
	key := spec.CacheKey()
	category := string(spec.TTLClass())

	if value, ok := c.lookup(key); ok {
		c.analytics.RecordHit(category)
		return hitResult(value)
	}
	c.analytics.RecordMiss(category)

	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished just before this one may have filled the key.
		if value, ok := c.lookup(key); ok {
			return hitResult(value), nil
		}
		result := fetch(ctx, spec)
		if result.IsLive() {
			c.Set(spec, result.Payload)
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return models.Failed(ctx.Err())
	case res := <-ch:
		result := res.Val.(models.FetchResult)
		// The flight leader was canceled or ran out of time but this caller
		// was not; fetch again.
		if res.Shared && result.IsFailed() && ctx.Err() == nil && isCancellation(result.Err) {
			c.logger.WithFields(logrus.Fields{
				"component": "cache",
				"cache_key": key,
			}).Debug("Shared fetch was canceled by its leader, refetching")
			result = fetch(ctx, spec)
			if result.IsLive() {
				c.Set(spec, result.Payload)
			}
		}
		return result
	}
}

// Get returns an unexpired payload without fetching.
func (c *ResponseCache) Get(spec models.RequestSpec) (any, bool) {
	return c.lookup(spec.CacheKey())
}

// Set stores a payload under spec's TTL class.
func (c *ResponseCache) Set(spec models.RequestSpec, value any) {
	c.SetAt(spec, value, c.now())
}

// SetAt stores a payload as if it had been created at createdAt.
func (c *ResponseCache) SetAt(spec models.RequestSpec, value any, createdAt time.Time) {
	class := spec.TTLClass()
	c.mu.Lock()
	c.entries[spec.CacheKey()] = cacheEntry{
		value:     value,
		class:     class,
		createdAt: createdAt,
		ttl:       c.policy.For(class),
	}
	c.mu.Unlock()
	c.analytics.RecordStore(string(class))
}

// lookup returns an unexpired entry, evicting it lazily when stale.
func (c *ResponseCache) lookup(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.expired(now) {
		return entry.value, true
	}

	c.mu.Lock()
	// Re-check under the write lock; a concurrent Set may have refreshed it.
	if current, ok := c.entries[key]; ok && current.expired(now) {
		delete(c.entries, key)
		c.mu.Unlock()
		c.analytics.RecordEviction(string(current.class))
		return nil, false
	}
	c.mu.Unlock()
	return c.lookup(key)
}

// Purge removes every expired entry and returns how many were dropped.
func (c *ResponseCache) Purge() int {
	now := c.now()
	var evicted []models.TTLClass

	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			evicted = append(evicted, entry.class)
		}
	}
	c.mu.Unlock()

	for _, class := range evicted {
		c.analytics.RecordEviction(string(class))
	}
	return len(evicted)
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Metrics returns hit/miss counters per TTL class and overall.
func (c *ResponseCache) Metrics() CacheMetrics {
	all := c.analytics.GetAllStats()
	overall := all[overallCategory]
	delete(all, overallCategory)
	return CacheMetrics{
		Overall:    overall,
		ByCategory: all,
		KeyCount:   c.Len(),
	}
}

// StartJanitor purges expired entries every interval until ctx is done.
func (c *ResponseCache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Purge(); n > 0 {
					c.logger.WithFields(logrus.Fields{
						"component": "cache",
						"evicted":   n,
					}).Debug("Purged expired cache entries")
				}
			}
		}
	}()
}

func hitResult(value any) models.FetchResult {
	result := models.Live(value)
	result.Cached = true
	return result
}

// isCancellation reports whether err came from the fetching caller's own
// context rather than from the upstream.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		upstream.KindOf(err) == upstream.KindCanceled
}
