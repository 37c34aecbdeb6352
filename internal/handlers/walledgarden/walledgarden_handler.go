// internal/handlers/walledgarden/walledgarden_handler.go
package walledgarden

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/walledgarden"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreateEntry(ctx context.Context, tenantID int64, req *walledgarden.CreateEntryRequest) (*walledgarden.Entry, error)
	UpdateEntry(ctx context.Context, tenantID, id int64, req *walledgarden.UpdateEntryRequest) (*walledgarden.Entry, error)
	DeleteEntry(ctx context.Context, tenantID, id int64) error
	ListEntries(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error)
}

type WalledGardenHandler struct {
	service Service
}

func NewWalledGardenHandler(service Service) *WalledGardenHandler {
	return &WalledGardenHandler{service: service}
}

func (h *WalledGardenHandler) CreateEntry(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req walledgarden.CreateEntryRequest
	if !params.BindJSON(c, &req) {
		return
	}

	e, err := h.service.CreateEntry(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to add walled garden entry", err)
		return
	}
	response.Success(c, http.StatusCreated, "walled garden entry added", e)
}

func (h *WalledGardenHandler) UpdateEntry(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req walledgarden.UpdateEntryRequest
	if !params.BindJSON(c, &req) {
		return
	}

	e, err := h.service.UpdateEntry(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to update walled garden entry", err)
		return
	}
	response.Success(c, http.StatusOK, "walled garden entry updated", e)
}

func (h *WalledGardenHandler) DeleteEntry(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteEntry(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to delete walled garden entry", err)
		return
	}
	response.Success(c, http.StatusOK, "walled garden entry deleted", nil)
}

func (h *WalledGardenHandler) ListEntries(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	entries, err := h.service.ListEntries(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to list walled garden", err)
		return
	}
	response.Success(c, http.StatusOK, "walled garden retrieved", entries)
}
