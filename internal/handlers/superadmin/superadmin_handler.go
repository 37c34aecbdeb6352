// internal/handlers/superadmin/superadmin_handler.go
package superadmin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	GetTenant(ctx context.Context, tenantID int64) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, filters *tenant.TenantListFilters) (*response.Paginated, error)
	UpdateStatus(ctx context.Context, tenantID int64, req *tenant.UpdateStatusRequest) (*tenant.Tenant, error)
	UpdateTier(ctx context.Context, tenantID int64, req *tenant.UpdateTierRequest) (*tenant.Tenant, error)
	PlatformStats(ctx context.Context) (*tenant.PlatformStats, error)
}

// SuperAdminHandler manages every tenant of the platform.
type SuperAdminHandler struct {
	tenantService Service
	logger        *zap.Logger
}

func NewSuperAdminHandler(tenantService Service, logger *zap.Logger) *SuperAdminHandler {
	return &SuperAdminHandler{tenantService: tenantService, logger: logger}
}

func (h *SuperAdminHandler) ListTenants(c *gin.Context) {
	var filters tenant.TenantListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.tenantService.ListTenants(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list tenants", err)
		return
	}
	response.Success(c, http.StatusOK, "tenants retrieved", page)
}

func (h *SuperAdminHandler) GetTenant(c *gin.Context) {
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	t, err := h.tenantService.GetTenant(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "tenant not found", err)
		return
	}
	response.Success(c, http.StatusOK, "tenant retrieved", t)
}

// UpdateStatus suspending a tenant also ends its admins' sessions.
func (h *SuperAdminHandler) UpdateStatus(c *gin.Context) {
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req tenant.UpdateStatusRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.tenantService.UpdateStatus(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, "failed to update tenant status", err)
		return
	}
	h.logger.Info("tenant status changed",
		zap.Int64("tenant_id", id),
		zap.String("status", string(t.Status)),
		zap.Int64("by", middleware.MustGetIdentityID(c)),
	)
	response.Success(c, http.StatusOK, "tenant status updated", t)
}

func (h *SuperAdminHandler) UpdateTier(c *gin.Context) {
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req tenant.UpdateTierRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.tenantService.UpdateTier(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, "failed to update tenant tier", err)
		return
	}
	response.Success(c, http.StatusOK, "tenant tier updated", t)
}

func (h *SuperAdminHandler) Stats(c *gin.Context) {
	stats, err := h.tenantService.PlatformStats(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to get platform stats", err)
		return
	}
	response.Success(c, http.StatusOK, "platform stats retrieved", stats)
}
