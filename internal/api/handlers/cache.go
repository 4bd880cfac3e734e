package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/cache"
)

// CacheStore is the subset of cache.ResponseCache the handler needs.
type CacheStore interface {
	Metrics() cache.CacheMetrics
	Purge() int
}

// CacheHandler handles cache monitoring endpoints
type CacheHandler struct {
	cache CacheStore
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(store CacheStore) *CacheHandler {
	return &CacheHandler{cache: store}
}

// GetCacheStats returns hit/miss counters overall and per TTL class.
// @Router /api/v1/cache/stats [get]
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	respondOK(c, h.cache.Metrics())
}

// PurgeExpired drops expired entries immediately.
// @Router /api/v1/cache/purge [post]
func (h *CacheHandler) PurgeExpired(c *gin.Context) {
	removed := h.cache.Purge()
	respondOK(c, gin.H{"removed": removed})
}
