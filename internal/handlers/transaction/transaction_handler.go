// internal/handlers/transaction/transaction_handler.go
package transaction

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	InitiateSTKPush(ctx context.Context, tenantID int64, req *transaction.STKPushRequest) (*transaction.Transaction, error)
	HandleCallback(ctx context.Context, tenantID int64, env *transaction.CallbackEnvelope) error
	Reconcile(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error)
	GetTransaction(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error)
	ListTransactions(ctx context.Context, tenantID int64, filters *transaction.TransactionListFilters) (*response.Paginated, error)
	Stats(ctx context.Context, tenantID int64) (*transaction.Stats, error)
}

type TransactionHandler struct {
	transactionService Service
	logger             *zap.Logger
}

func NewTransactionHandler(transactionService Service, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, logger: logger}
}

// ========== Dashboard ==========

func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters transaction.TransactionListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.transactionService.ListTransactions(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list transactions", err)
		return
	}
	response.Success(c, http.StatusOK, "transactions retrieved", page)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	t, err := h.transactionService.GetTransaction(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "transaction not found", err)
		return
	}
	response.Success(c, http.StatusOK, "transaction retrieved", t)
}

// STKPush lets an admin prompt a customer's phone for a plan.
func (h *TransactionHandler) STKPush(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var req transaction.STKPushRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.transactionService.InitiateSTKPush(c.Request.Context(), tenantID, &req)
	if err != nil {
		response.FromError(c, "failed to start payment", err)
		return
	}
	response.Success(c, http.StatusAccepted, "payment prompt sent", t)
}

func (h *TransactionHandler) Reconcile(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	t, err := h.transactionService.Reconcile(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to reconcile transaction", err)
		return
	}
	response.Success(c, http.StatusOK, "transaction reconciled", t)
}

func (h *TransactionHandler) Stats(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	s, err := h.transactionService.Stats(c.Request.Context(), tenantID)
	if err != nil {
		response.FromError(c, "failed to get transaction stats", err)
		return
	}
	response.Success(c, http.StatusOK, "transaction stats retrieved", s)
}

// ========== Daraja ==========

type darajaAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// MpesaCallback receives the STK result for a tenant. Daraja retries on
// anything but an accepted ack, so only transient failures are refused.
func (h *TransactionHandler) MpesaCallback(c *gin.Context) {
	tenantID, ok := params.ID(c, "tenant")
	if !ok {
		return
	}

	var env transaction.CallbackEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		h.logger.Warn("malformed mpesa callback", zap.Int64("tenant_id", tenantID), zap.Error(err))
		c.JSON(http.StatusOK, darajaAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	err := h.transactionService.HandleCallback(c.Request.Context(), tenantID, &env)
	switch {
	case err == nil:
	case errors.Is(err, xerrors.ErrNotFound):
		h.logger.Warn("mpesa callback for unknown transaction",
			zap.Int64("tenant_id", tenantID),
			zap.String("checkout_request_id", env.Body.STKCallback.CheckoutRequestID),
		)
	default:
		h.logger.Error("failed to process mpesa callback",
			zap.Int64("tenant_id", tenantID),
			zap.String("checkout_request_id", env.Body.STKCallback.CheckoutRequestID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, darajaAck{ResultCode: 1, ResultDesc: "Retry"})
		return
	}
	c.JSON(http.StatusOK, darajaAck{ResultCode: 0, ResultDesc: "Accepted"})
}
