// internal/handlers/voucher/voucher_handler.go
package voucher

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreateBatch(ctx context.Context, tenantID, createdBy int64, req *voucher.CreateBatchRequest) (*voucher.Batch, error)
	GetBatch(ctx context.Context, tenantID, id int64) (*voucher.Batch, error)
	ListBatches(ctx context.Context, tenantID int64, filters *voucher.BatchListFilters) (*response.Paginated, error)
	BatchCodes(ctx context.Context, tenantID, batchID int64) ([]voucher.Voucher, error)
	DisableBatch(ctx context.Context, tenantID, id int64) (int64, error)
	ListVouchers(ctx context.Context, tenantID int64, filters *voucher.VoucherListFilters) (*response.Paginated, error)
	DisableVoucher(ctx context.Context, tenantID, id int64) error
	EnableVoucher(ctx context.Context, tenantID, id int64) error
}

type VoucherHandler struct {
	voucherService Service
}

func NewVoucherHandler(voucherService Service) *VoucherHandler {
	return &VoucherHandler{voucherService: voucherService}
}

// ========== Batches ==========

// CreateBatch answers 202: codes are generated by the worker.
func (h *VoucherHandler) CreateBatch(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	identityID := middleware.MustGetIdentityID(c)

	var req voucher.CreateBatchRequest
	if !params.BindJSON(c, &req) {
		return
	}

	b, err := h.voucherService.CreateBatch(c.Request.Context(), tenantID, identityID, &req)
	if err != nil {
		response.FromError(c, "failed to create voucher batch", err)
		return
	}
	response.Success(c, http.StatusAccepted, "voucher batch queued", b)
}

func (h *VoucherHandler) GetBatch(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	b, err := h.voucherService.GetBatch(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "voucher batch not found", err)
		return
	}
	response.Success(c, http.StatusOK, "voucher batch retrieved", b)
}

func (h *VoucherHandler) ListBatches(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters voucher.BatchListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.voucherService.ListBatches(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list voucher batches", err)
		return
	}
	response.Success(c, http.StatusOK, "voucher batches retrieved", page)
}

// BatchCodes returns every code of a batch for printing or export.
func (h *VoucherHandler) BatchCodes(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	codes, err := h.voucherService.BatchCodes(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to get vouchers", err)
		return
	}
	response.Success(c, http.StatusOK, "vouchers retrieved", gin.H{
		"vouchers": codes,
		"count":    len(codes),
	})
}

func (h *VoucherHandler) DisableBatch(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	n, err := h.voucherService.DisableBatch(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to disable voucher batch", err)
		return
	}
	response.Success(c, http.StatusOK, "voucher batch disabled", gin.H{"disabled": n})
}

// ========== Vouchers ==========

func (h *VoucherHandler) ListVouchers(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters voucher.VoucherListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.voucherService.ListVouchers(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list vouchers", err)
		return
	}
	response.Success(c, http.StatusOK, "vouchers retrieved", page)
}

func (h *VoucherHandler) DisableVoucher(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.voucherService.DisableVoucher(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to disable voucher", err)
		return
	}
	response.Success(c, http.StatusOK, "voucher disabled", nil)
}

func (h *VoucherHandler) EnableVoucher(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.voucherService.EnableVoucher(c.Request.Context(), tenantID, id); err != nil {
		response.FromError(c, "failed to enable voucher", err)
		return
	}
	response.Success(c, http.StatusOK, "voucher enabled", nil)
}
