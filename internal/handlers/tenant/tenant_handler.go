// internal/handlers/tenant/tenant_handler.go
package tenant

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	GetTenant(ctx context.Context, tenantID int64) (*tenant.Tenant, error)
	UpdateTenant(ctx context.Context, tenantID int64, req *tenant.UpdateTenantRequest) (*tenant.Tenant, error)
	MaskedCredentials(ctx context.Context, tenantID int64) (tenant.Credentials, error)
	UpdateCredentials(ctx context.Context, tenantID int64, req *tenant.UpdateCredentialsRequest) (tenant.Credentials, error)
}

// TenantHandler serves the caller's own tenant profile.
type TenantHandler struct {
	tenantService Service
}

func NewTenantHandler(tenantService Service) *TenantHandler {
	return &TenantHandler{tenantService: tenantService}
}

func (h *TenantHandler) GetTenant(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	t, err := h.tenantService.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to get tenant", err)
		return
	}
	response.Success(c, http.StatusOK, "tenant retrieved", t)
}

func (h *TenantHandler) UpdateTenant(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req tenant.UpdateTenantRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.tenantService.UpdateTenant(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to update tenant", err)
		return
	}
	response.Success(c, http.StatusOK, "tenant updated", t)
}

// GetCredentials never returns secrets in clear.
func (h *TenantHandler) GetCredentials(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	creds, err := h.tenantService.MaskedCredentials(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to get credentials", err)
		return
	}
	response.Success(c, http.StatusOK, "credentials retrieved", creds)
}

func (h *TenantHandler) UpdateCredentials(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req tenant.UpdateCredentialsRequest
	if !params.BindJSON(c, &req) {
		return
	}

	creds, err := h.tenantService.UpdateCredentials(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to update credentials", err)
		return
	}
	response.Success(c, http.StatusOK, "credentials updated", creds)
}
