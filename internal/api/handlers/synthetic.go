package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
)

// SyntheticHandler generates correlated synthetic series on request.
type SyntheticHandler struct {
	synth          *synth.Synthesizer
	defaultEpsilon float64
	defaultLength  int
	maxLength      int
}

// NewSyntheticHandler creates a new synthetic data handler
func NewSyntheticHandler(s *synth.Synthesizer, defaultEpsilon float64, defaultLength, maxLength int) *SyntheticHandler {
	return &SyntheticHandler{synth: s, defaultEpsilon: defaultEpsilon, defaultLength: defaultLength, maxLength: maxLength}
}

type syntheticRequest struct {
	Variables    []string                   `json:"variables" binding:"required,min=1"`
	Correlations []models.CorrelationTarget `json:"correlations" binding:"dive"`
	Epsilon      *float64                   `json:"epsilon"`
	Length       int                        `json:"length"`
	Start        *time.Time                 `json:"start"`
}

type syntheticResponse struct {
	Series       map[string]models.SyntheticSeries `json:"series"`
	Valid        bool                              `json:"valid"`
	MaxDeviation float64                           `json:"max_deviation"`
}

// Generate synthesizes one series per requested variable honouring the
// pairwise correlation targets.
// @Router /api/v1/synthetic [post]
func (h *SyntheticHandler) Generate(c *gin.Context) {
	var req syntheticRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	length := req.Length
	if length == 0 {
		length = h.defaultLength
	}
	if length < 1 || length > h.maxLength {
		respondError(c, http.StatusBadRequest, fmt.Errorf("%w: length must be in 1..%d, got %d", synth.ErrInvalidSpec, h.maxLength, length))
		return
	}
	epsilon := h.defaultEpsilon
	if req.Epsilon != nil {
		epsilon = *req.Epsilon
	}

	spec, err := models.NewCorrelationSpec(epsilon, req.Correlations...)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	var start time.Time
	if req.Start != nil {
		start = *req.Start
	}
	series, err := h.synth.GenerateFrom(start, req.Variables, spec, length)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	worst, valid := synth.Validate(series, spec)
	respondOK(c, syntheticResponse{Series: series, Valid: valid, MaxDeviation: worst})
}

// Variables lists the variables the synthesizer can generate.
// @Router /api/v1/synthetic/variables [get]
func (h *SyntheticHandler) Variables(c *gin.Context) {
	out := make([]synth.Profile, 0)
	for _, name := range h.synth.Variables() {
		p, _ := h.synth.Profile(name)
		out = append(out, p)
	}
	respondOK(c, out)
}
