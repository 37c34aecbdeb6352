// internal/handlers/plan/plan_handler.go
package plan

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreatePlan(ctx context.Context, tenantID int64, req *plan.CreatePlanRequest) (*plan.Plan, error)
	GetPlan(ctx context.Context, tenantID, id int64) (*plan.Plan, error)
	UpdatePlan(ctx context.Context, tenantID, id int64, req *plan.UpdatePlanRequest) (*plan.Plan, error)
	DeletePlan(ctx context.Context, tenantID, id int64) error
	ListPlans(ctx context.Context, tenantID int64, filters *plan.PlanListFilters) (*response.Paginated, error)
}

type PlanHandler struct {
	planService Service
	logger      *zap.Logger
}

func NewPlanHandler(planService Service, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{planService: planService, logger: logger}
}

func (h *PlanHandler) CreatePlan(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req plan.CreatePlanRequest
	if !params.BindJSON(c, &req) {
		return
	}

	p, err := h.planService.CreatePlan(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to create plan", err)
		return
	}
	response.Success(c, http.StatusCreated, "plan created", p)
}

func (h *PlanHandler) GetPlan(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	p, err := h.planService.GetPlan(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "plan not found", err)
		return
	}
	response.Success(c, http.StatusOK, "plan retrieved", p)
}

func (h *PlanHandler) UpdatePlan(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req plan.UpdatePlanRequest
	if !params.BindJSON(c, &req) {
		return
	}

	p, err := h.planService.UpdatePlan(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to update plan", err)
		return
	}
	response.Success(c, http.StatusOK, "plan updated", p)
}

// DeletePlan refuses with 409 while vouchers or users still depend on the plan.
func (h *PlanHandler) DeletePlan(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.planService.DeletePlan(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to delete plan", err)
		return
	}
	response.Success(c, http.StatusOK, "plan deleted", nil)
}

func (h *PlanHandler) ListPlans(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters plan.PlanListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.planService.ListPlans(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}
	response.Success(c, http.StatusOK, "plans retrieved", page)
}
