// Package handlers implements the HTTP endpoints served by the dashboard API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/cascade"
	"github.com/irfndi/tides-tomes-go/internal/middleware"
	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
	"github.com/irfndi/tides-tomes-go/internal/utils"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondError(c *gin.Context, status int, err error) {
	middleware.RecordError(c, err, http.StatusText(status))
	c.JSON(status, gin.H{
		"success":    false,
		"error":      err.Error(),
		"request_id": middleware.GetRequestID(c),
	})
}

// statusFor maps caller mistakes to 400 and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, adapters.ErrInvalidParams),
		errors.Is(err, cascade.ErrInvalidScore),
		errors.Is(err, cascade.ErrInvalidStage),
		errors.Is(err, cascade.ErrNoStages),
		errors.Is(err, synth.ErrInvalidSpec),
		errors.Is(err, models.ErrInfeasibleCorrelation),
		utils.IsValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondFetch writes an adapter result. Live and fallback results are both
// successful responses; the provenance tells the client which it got.
func respondFetch(c *gin.Context, result models.FetchResult) {
	middleware.AddSpanAttribute(c, "provenance", string(result.Provenance))
	switch {
	case result.IsFailed() && adapters.IsInvalidParams(result):
		respondError(c, http.StatusBadRequest, result.Err)
	case result.IsFailed():
		respondError(c, http.StatusBadGateway, result.Err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"data":        result.Payload,
			"provenance":  result.Provenance,
			"reason":      result.Reason,
			"cached":      result.Cached,
			"resolved_at": result.ResolvedAt,
		})
	}
}
