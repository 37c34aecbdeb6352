// internal/handlers/portal/portal_handler.go
package portal

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/domain/walledgarden"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/pkg/response"
)

type Tenants interface {
	ResolvePortal(ctx context.Context, subdomain string) (*tenant.Tenant, error)
}

type Plans interface {
	ActivePlans(ctx context.Context, tenantID int64) ([]plan.Plan, error)
}

type WalledGarden interface {
	ListEntries(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error)
}

type Vouchers interface {
	Redeem(ctx context.Context, tenantID int64, req *voucher.RedeemRequest) (*voucher.RedeemResult, error)
}

type Payments interface {
	InitiateSTKPush(ctx context.Context, tenantID int64, req *transaction.STKPushRequest) (*transaction.Transaction, error)
}

// PortalHandler serves the unauthenticated captive portal of a tenant.
type PortalHandler struct {
	tenants  Tenants
	plans    Plans
	garden   WalledGarden
	vouchers Vouchers
	payments Payments
	logger   *zap.Logger
}

func NewPortalHandler(tenants Tenants, plans Plans, garden WalledGarden, vouchers Vouchers, payments Payments, logger *zap.Logger) *PortalHandler {
	return &PortalHandler{
		tenants:  tenants,
		plans:    plans,
		garden:   garden,
		vouchers: vouchers,
		payments: payments,
		logger:   logger,
	}
}

type portalView struct {
	tenant.PortalInfo
	Plans        []plan.Plan `json:"plans"`
	WalledGarden []string    `json:"walled_garden"`
}

func (h *PortalHandler) resolve(c *gin.Context) (*tenant.Tenant, bool) {
	t, err := h.tenants.ResolvePortal(c.Request.Context(), strings.ToLower(c.Param("subdomain")))
	if err != nil {
		response.FromError(c, "portal not found", err)
		return nil, false
	}
	return t, true
}

// GetPortal returns branding, hotspot plans on sale and walled garden hosts.
func (h *PortalHandler) GetPortal(c *gin.Context) {
	t, ok := h.resolve(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	plans, err := h.plans.ActivePlans(ctx, t.ID)
	if err != nil {
		response.FromError(c, "failed to load plans", err)
		return
	}
	hotspotPlans := make([]plan.Plan, 0, len(plans))
	for _, p := range plans {
		if p.PlanType == plan.TypeHotspot {
			hotspotPlans = append(hotspotPlans, p)
		}
	}

	entries, err := h.garden.ListEntries(ctx, t.ID)
	if err != nil {
		response.FromError(c, "failed to load walled garden", err)
		return
	}
	hosts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsActive {
			hosts = append(hosts, e.Domain)
		}
	}

	response.Success(c, http.StatusOK, "portal retrieved", portalView{
		PortalInfo:   tenant.PortalInfo{Name: t.Name, Subdomain: t.Subdomain, Branding: t.Branding},
		Plans:        hotspotPlans,
		WalledGarden: hosts,
	})
}

func (h *PortalHandler) Redeem(c *gin.Context) {
	t, ok := h.resolve(c)
	if !ok {
		return
	}

	var req voucher.RedeemRequest
	if !params.BindJSON(c, &req) {
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	res, err := h.vouchers.Redeem(c.Request.Context(), t.ID, &req)
	if err != nil {
		response.FromError(c, "voucher could not be redeemed", err)
		return
	}
	h.logger.Info("voucher redeemed",
		zap.Int64("tenant_id", t.ID),
		zap.Int64("wifi_user_id", res.WifiUserID),
	)
	response.Success(c, http.StatusOK, "you are connected", res)
}

// Pay sends an STK prompt for a plan to the customer's phone.
func (h *PortalHandler) Pay(c *gin.Context) {
	t, ok := h.resolve(c)
	if !ok {
		return
	}

	var req transaction.STKPushRequest
	if !params.BindJSON(c, &req) {
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	txn, err := h.payments.InitiateSTKPush(c.Request.Context(), t.ID, &req)
	if err != nil {
		response.FromError(c, "payment could not be started", err)
		return
	}
	response.Success(c, http.StatusAccepted, "check your phone to complete payment", gin.H{
		"transaction_id":      txn.ID,
		"checkout_request_id": txn.CheckoutRequestID,
		"amount":              txn.Amount,
	})
}
