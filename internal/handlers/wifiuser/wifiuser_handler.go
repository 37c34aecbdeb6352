// internal/handlers/wifiuser/wifiuser_handler.go
package wifiuser

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/wifiuser"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreateUser(ctx context.Context, tenantID int64, req *wifiuser.CreateWifiUserRequest) (*wifiuser.WifiUser, error)
	GetUser(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error)
	UpdateUser(ctx context.Context, tenantID, id int64, req *wifiuser.UpdateWifiUserRequest) (*wifiuser.WifiUser, error)
	DeleteUser(ctx context.Context, tenantID, id int64) error
	Suspend(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error)
	Activate(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error)
	ListUsers(ctx context.Context, tenantID int64, filters *wifiuser.WifiUserListFilters) (*response.Paginated, error)
}

type WifiUserHandler struct {
	userService Service
}

func NewWifiUserHandler(userService Service) *WifiUserHandler {
	return &WifiUserHandler{userService: userService}
}

func (h *WifiUserHandler) CreateUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req wifiuser.CreateWifiUserRequest
	if !params.BindJSON(c, &req) {
		return
	}

	u, err := h.userService.CreateUser(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to create wifi user", err)
		return
	}
	response.Success(c, http.StatusCreated, "wifi user created", u)
}

func (h *WifiUserHandler) GetUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	u, err := h.userService.GetUser(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "wifi user not found", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi user retrieved", u)
}

func (h *WifiUserHandler) UpdateUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req wifiuser.UpdateWifiUserRequest
	if !params.BindJSON(c, &req) {
		return
	}

	u, err := h.userService.UpdateUser(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to update wifi user", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi user updated", u)
}

func (h *WifiUserHandler) DeleteUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to delete wifi user", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi user deleted", nil)
}

func (h *WifiUserHandler) SuspendUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	u, err := h.userService.Suspend(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to suspend wifi user", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi user suspended", u)
}

func (h *WifiUserHandler) ActivateUser(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	u, err := h.userService.Activate(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to activate wifi user", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi user activated", u)
}

func (h *WifiUserHandler) ListUsers(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters wifiuser.WifiUserListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.userService.ListUsers(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list wifi users", err)
		return
	}
	response.Success(c, http.StatusOK, "wifi users retrieved", page)
}
