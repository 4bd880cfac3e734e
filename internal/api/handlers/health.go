package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/services"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

var startTime = time.Now()

// SystemInfoProvider is satisfied by services.ResourceOptimizer.
type SystemInfoProvider interface {
	SystemInfo() services.SystemInfo
}

// BreakerStatsProvider is satisfied by upstream.CircuitBreakerManager.
type BreakerStatsProvider interface {
	GetAllStats() map[string]upstream.CircuitBreakerStats
}

type HealthHandler struct {
	system   SystemInfoProvider
	breakers BreakerStatsProvider
	version  string
}

type HealthResponse struct {
	Status          string                                  `json:"status"`
	Timestamp       time.Time                               `json:"timestamp"`
	Version         string                                  `json:"version"`
	Uptime          string                                  `json:"uptime"`
	System          *services.SystemInfo                    `json:"system,omitempty"`
	CircuitBreakers map[string]upstream.CircuitBreakerStats `json:"circuit_breakers,omitempty"`
}

// NewHealthHandler creates a health handler. Either provider may be nil.
func NewHealthHandler(system SystemInfoProvider, breakers BreakerStatsProvider, version string) *HealthHandler {
	return &HealthHandler{system: system, breakers: breakers, version: version}
}

// HealthCheck always answers 200 while the process serves; an open upstream
// breaker only marks the service degraded since adapters fall back.
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
	if h.system != nil {
		info := h.system.SystemInfo()
		resp.System = &info
	}
	if h.breakers != nil {
		resp.CircuitBreakers = h.breakers.GetAllStats()
		for _, s := range resp.CircuitBreakers {
			if s.State == upstream.Open.String() {
				resp.Status = "degraded"
				break
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
