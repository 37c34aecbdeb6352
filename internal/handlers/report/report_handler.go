// internal/handlers/report/report_handler.go
package report

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/report"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	Summary(ctx context.Context, tenantID int64) (*report.Summary, error)
	Revenue(ctx context.Context, tenantID int64, f report.RangeFilter) ([]report.RevenuePoint, error)
	Transactions(ctx context.Context, tenantID int64, f report.RangeFilter, page, pageSize int) (*response.Paginated, error)
}

type ReportHandler struct {
	reportService Service
}

func NewReportHandler(reportService Service) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) Summary(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	s, err := h.reportService.Summary(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to build summary", err)
		return
	}
	response.Success(c, http.StatusOK, "summary retrieved", s)
}

// Revenue takes ?from=YYYY-MM-DD&to=YYYY-MM-DD, both inclusive.
func (h *ReportHandler) Revenue(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var f report.RangeFilter
	if !params.BindQuery(c, &f) {
		return
	}

	points, err := h.reportService.Revenue(c.Request.Context(), tenantID, f)
	if err != nil {
		response.FromError(c, "failed to build revenue report", err)
		return
	}
	response.Success(c, http.StatusOK, "revenue retrieved", points)
}

func (h *ReportHandler) Transactions(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var f report.RangeFilter
	if !params.BindQuery(c, &f) {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.reportService.Transactions(c.Request.Context(), tenantID, f, page, pageSize)
	if err != nil {
		response.FromError(c, "failed to build transaction report", err)
		return
	}
	response.Success(c, http.StatusOK, "transactions retrieved", result)
}
