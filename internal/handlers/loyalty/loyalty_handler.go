// internal/handlers/loyalty/loyalty_handler.go
package loyalty

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/loyalty"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	GetSummary(ctx context.Context, tenantID, wifiUserID int64) (*loyalty.Summary, error)
	Earn(ctx context.Context, tenantID, wifiUserID int64, req *loyalty.EarnRequest) (*loyalty.Account, error)
	Redeem(ctx context.Context, tenantID, wifiUserID int64, req *loyalty.RedeemRequest) (*loyalty.Account, error)
}

type LoyaltyHandler struct {
	loyaltyService Service
}

func NewLoyaltyHandler(loyaltyService Service) *LoyaltyHandler {
	return &LoyaltyHandler{loyaltyService: loyaltyService}
}

// GetSummary returns the balance and the latest ledger entries.
func (h *LoyaltyHandler) GetSummary(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	userID, ok := params.ID(c, "wifiUserId")
	if !ok {
		return
	}

	s, err := h.loyaltyService.GetSummary(c.Request.Context(), tenantID, userID)
	if err != nil {
		response.FromError(c, "failed to get loyalty summary", err)
		return
	}
	response.Success(c, http.StatusOK, "loyalty summary retrieved", s)
}

func (h *LoyaltyHandler) Earn(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	userID, ok := params.ID(c, "wifiUserId")
	if !ok {
		return
	}

	var req loyalty.EarnRequest
	if !params.BindJSON(c, &req) {
		return
	}

	acct, err := h.loyaltyService.Earn(c.Request.Context(), tenantID, userID, &req)
	if err != nil {
		response.FromError(c, "failed to award points", err)
		return
	}
	response.Success(c, http.StatusOK, "points awarded", acct)
}

// Redeem answers 409 with "insufficient points" when the balance is short.
func (h *LoyaltyHandler) Redeem(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	userID, ok := params.ID(c, "wifiUserId")
	if !ok {
		return
	}

	var req loyalty.RedeemRequest
	if !params.BindJSON(c, &req) {
		return
	}

	acct, err := h.loyaltyService.Redeem(c.Request.Context(), tenantID, userID, &req)
	if err != nil {
		response.FromError(c, "failed to redeem points", err)
		return
	}
	response.Success(c, http.StatusOK, "points redeemed", acct)
}
