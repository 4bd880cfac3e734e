package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
)

// EnvironmentHandler exposes each upstream source through its adapter.
type EnvironmentHandler struct {
	weather adapters.ServiceAdapter
	marine  adapters.ServiceAdapter
	climate adapters.ServiceAdapter
	habitat adapters.ServiceAdapter
}

// NewEnvironmentHandler creates a new environment handler
func NewEnvironmentHandler(weather, marine, climate, habitat adapters.ServiceAdapter) *EnvironmentHandler {
	return &EnvironmentHandler{weather: weather, marine: marine, climate: climate, habitat: habitat}
}

// GetWeather returns current conditions for a distillery region.
// @Router /api/v1/weather/{region} [get]
func (h *EnvironmentHandler) GetWeather(c *gin.Context) {
	result := h.weather.Fetch(c.Request.Context(), adapters.Params{"region": c.Param("region")})
	respondFetch(c, result)
}

// GetMarine returns fishing pressure for a sea area over ?days= (default 30).
// @Router /api/v1/marine/{area} [get]
func (h *EnvironmentHandler) GetMarine(c *gin.Context) {
	result := h.marine.Fetch(c.Request.Context(), adapters.Params{
		"area": c.Param("area"),
		"days": c.Query("days"),
	})
	respondFetch(c, result)
}

// GetClimate returns daily climate normals for a station over ?days=.
// @Router /api/v1/climate/{station} [get]
func (h *EnvironmentHandler) GetClimate(c *gin.Context) {
	result := h.climate.Fetch(c.Request.Context(), adapters.Params{
		"station": c.Param("station"),
		"days":    c.Query("days"),
	})
	respondFetch(c, result)
}

// GetHabitat returns protected habitat health for a sea area.
// @Router /api/v1/habitat/{area} [get]
func (h *EnvironmentHandler) GetHabitat(c *gin.Context) {
	result := h.habitat.Fetch(c.Request.Context(), adapters.Params{"area": c.Param("area")})
	respondFetch(c, result)
}
