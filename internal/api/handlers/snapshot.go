package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/tides-tomes-go/internal/middleware"
	"github.com/irfndi/tides-tomes-go/internal/services"
)

// SnapshotService is satisfied by services.AcquisitionService.
type SnapshotService interface {
	Snapshot(ctx context.Context, req services.SnapshotRequest) (services.Snapshot, error)
}

// SnapshotHandler serves the combined dashboard view.
type SnapshotHandler struct {
	service SnapshotService
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(service SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{service: service}
}

// GetSnapshot fetches every requested region and the sea area concurrently.
// Query: regions=islay,aberlour&area=moray_firth
// @Router /api/v1/snapshot [get]
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	var req services.SnapshotRequest
	if raw := c.Query("regions"); raw != "" {
		for _, r := range strings.Split(raw, ",") {
			if r = strings.TrimSpace(r); r != "" {
				req.Regions = append(req.Regions, r)
			}
		}
	}
	req.Area = c.Query("area")

	snap, err := h.service.Snapshot(c.Request.Context(), req)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	middleware.AddSpanAttribute(c, "snapshot_id", snap.ID)
	middleware.AddSpanAttribute(c, "degraded", snap.Degraded)
	respondOK(c, snap)
}
