package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/cascade"
)

const maxScenarioDeltas = 20

// CascadeHandler evaluates the economic cascade for caller-supplied scores.
type CascadeHandler struct {
	defaultPreset string
}

// NewCascadeHandler creates a handler using defaultPreset when a request
// names none.
func NewCascadeHandler(defaultPreset string) *CascadeHandler {
	return &CascadeHandler{defaultPreset: defaultPreset}
}

type cascadeRequest struct {
	Score  *float64 `json:"score" binding:"required"`
	Preset string   `json:"preset"`
}

type sensitivityRequest struct {
	Score  *float64  `json:"score" binding:"required"`
	Delta  *float64  `json:"delta"`
	Deltas []float64 `json:"deltas"`
	Preset string    `json:"preset"`
}

func (h *CascadeHandler) calculator(preset string) (*cascade.Calculator, error) {
	if preset == "" {
		preset = h.defaultPreset
	}
	stages, ok := cascade.Preset(preset)
	if !ok {
		return nil, fmt.Errorf("%w: unknown preset %q, expected one of %v", cascade.ErrInvalidStage, preset, cascade.PresetNames())
	}
	return cascade.NewCalculator(stages...)
}

// Evaluate runs a score through the cascade.
// @Router /api/v1/cascade [post]
func (h *CascadeHandler) Evaluate(c *gin.Context) {
	var req cascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	calc, err := h.calculator(req.Preset)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	result, err := calc.Evaluate(*req.Score)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, result)
}

// Sensitivity reports per-stage changes for one delta, or for each entry of
// deltas when given.
// @Router /api/v1/cascade/sensitivity [post]
func (h *CascadeHandler) Sensitivity(c *gin.Context) {
	var req sensitivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Delta == nil && len(req.Deltas) == 0 {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: delta or deltas is required", cascade.ErrInvalidScore))
		return
	}
	if len(req.Deltas) > maxScenarioDeltas {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: at most %d deltas", cascade.ErrInvalidScore, maxScenarioDeltas))
		return
	}
	calc, err := h.calculator(req.Preset)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}

	if len(req.Deltas) > 0 {
		scenarios, err := calc.Scenarios(*req.Score, req.Deltas...)
		if err != nil {
			respondError(c, statusFor(err), err)
			return
		}
		respondOK(c, scenarios)
		return
	}
	s, err := calc.Sensitivity(*req.Score, *req.Delta)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	respondOK(c, s)
}

// Presets lists the available stage chains.
// @Router /api/v1/cascade/presets [get]
func (h *CascadeHandler) Presets(c *gin.Context) {
	out := make(map[string][]cascade.Stage)
	for _, name := range cascade.PresetNames() {
		stages, _ := cascade.Preset(name)
		out[name] = stages
	}
	respondOK(c, gin.H{"default": h.defaultPreset, "presets": out})
}
