// internal/handlers/hotspot/hotspot_handler.go
package hotspot

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/hotspot"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreateHotspot(ctx context.Context, tenantID int64, req *hotspot.CreateHotspotRequest) (*hotspot.Hotspot, error)
	UpdateHotspot(ctx context.Context, tenantID, id int64, req *hotspot.UpdateHotspotRequest) (*hotspot.Hotspot, error)
	DeleteHotspot(ctx context.Context, tenantID, id int64) error
	ListHotspots(ctx context.Context, tenantID int64) ([]hotspot.Hotspot, error)
}

type HotspotHandler struct {
	hotspotService Service
}

func NewHotspotHandler(hotspotService Service) *HotspotHandler {
	return &HotspotHandler{hotspotService: hotspotService}
}

func (h *HotspotHandler) CreateHotspot(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req hotspot.CreateHotspotRequest
	if !params.BindJSON(c, &req) {
		return
	}

	hs, err := h.hotspotService.CreateHotspot(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to create hotspot", err)
		return
	}
	response.Success(c, http.StatusCreated, "hotspot created", hs)
}

func (h *HotspotHandler) UpdateHotspot(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req hotspot.UpdateHotspotRequest
	if !params.BindJSON(c, &req) {
		return
	}

	hs, err := h.hotspotService.UpdateHotspot(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to update hotspot", err)
		return
	}
	response.Success(c, http.StatusOK, "hotspot updated", hs)
}

func (h *HotspotHandler) DeleteHotspot(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.hotspotService.DeleteHotspot(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to delete hotspot", err)
		return
	}
	response.Success(c, http.StatusOK, "hotspot deleted", nil)
}

func (h *HotspotHandler) ListHotspots(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	hs, err := h.hotspotService.ListHotspots(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to list hotspots", err)
		return
	}
	response.Success(c, http.StatusOK, "hotspots retrieved", hs)
}
