// internal/app/router.go
package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authHandler "mnetifi-service/internal/handlers/auth"
	hotspotHandler "mnetifi-service/internal/handlers/hotspot"
	loyaltyHandler "mnetifi-service/internal/handlers/loyalty"
	notifyHandler "mnetifi-service/internal/handlers/notification"
	planHandler "mnetifi-service/internal/handlers/plan"
	portalHandler "mnetifi-service/internal/handlers/portal"
	reportHandler "mnetifi-service/internal/handlers/report"
	superAdminHandler "mnetifi-service/internal/handlers/superadmin"
	tenantHandler "mnetifi-service/internal/handlers/tenant"
	terminalHandler "mnetifi-service/internal/handlers/terminal"
	ticketHandler "mnetifi-service/internal/handlers/ticket"
	transactionHandler "mnetifi-service/internal/handlers/transaction"
	voucherHandler "mnetifi-service/internal/handlers/voucher"
	gardenHandler "mnetifi-service/internal/handlers/walledgarden"
	wsHandler "mnetifi-service/internal/handlers/websocket"
	wifiuserHandler "mnetifi-service/internal/handlers/wifiuser"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/metrics"
)

const Version = "1.0.0"

type Handlers struct {
	AuthHandler        *authHandler.AuthHandler
	NotifHandler       *notifyHandler.NotificationHandler
	PlanHandler        *planHandler.PlanHandler
	VoucherHandler     *voucherHandler.VoucherHandler
	WifiUserHandler    *wifiuserHandler.WifiUserHandler
	HotspotHandler     *hotspotHandler.HotspotHandler
	GardenHandler      *gardenHandler.WalledGardenHandler
	TicketHandler      *ticketHandler.TicketHandler
	LoyaltyHandler     *loyaltyHandler.LoyaltyHandler
	ReportHandler      *reportHandler.ReportHandler
	TerminalHandler    *terminalHandler.TerminalHandler
	TransactionHandler *transactionHandler.TransactionHandler
	TenantHandler      *tenantHandler.TenantHandler
	SuperAdminHandler  *superAdminHandler.SuperAdminHandler
	PortalHandler      *portalHandler.PortalHandler
	WSHandler          *wsHandler.WebSocketHandler
	AuthMiddleware     *middleware.AuthMiddleware
	Idempotency        gin.HandlerFunc
	PortalRateLimit    gin.HandlerFunc
	Metrics            *metrics.Collector
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version, "time": time.Now().UTC()})
	})

	// ==================== Metrics & WebSocket ====================
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", h.AuthHandler.Register)
		authPublic.POST("/register/validate", h.AuthHandler.ValidateStep)
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/2fa/verify", h.AuthHandler.VerifyTwoFactor)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/forgot-password", h.AuthHandler.ForgotPassword)
		authPublic.POST("/reset-password", h.AuthHandler.ResetPassword)
		authPublic.GET("/verify-email", h.AuthHandler.VerifyEmail)
	}

	// ==================== M-Pesa callbacks ====================
	api.POST("/mpesa/callback/:tenant", h.TransactionHandler.MpesaCallback)

	// ==================== Captive portal ====================
	portal := api.Group("/portal/:subdomain")
	portal.Use(h.PortalRateLimit)
	{
		portal.GET("", h.PortalHandler.GetPortal)
		portal.POST("/redeem", h.PortalHandler.Redeem)
		portal.POST("/pay", h.PortalHandler.Pay)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth(), h.Idempotency)
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.PUT("/change-password", h.AuthHandler.ChangePassword)
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.GET("/sessions", h.AuthHandler.GetActiveSessions)
		authProtected.POST("/resend-verification", h.AuthHandler.ResendVerificationEmail)
		authProtected.POST("/2fa/setup", h.AuthHandler.SetupTwoFactor)
		authProtected.POST("/2fa/enable", h.AuthHandler.EnableTwoFactor)
		authProtected.POST("/2fa/disable", h.AuthHandler.DisableTwoFactor)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth(), h.Idempotency)
	{
		notifications.GET("", h.NotifHandler.GetNotifications)
		notifications.GET("/count/unread", h.NotifHandler.GetUnreadCount)
		notifications.PUT("/read-all", h.NotifHandler.MarkAllAsRead)
		notifications.PUT("/:id/read", h.NotifHandler.MarkAsRead)
		notifications.DELETE("/:id", h.NotifHandler.DeleteNotification)
	}

	// ==================== Tenant admin ====================
	admin := api.Group("")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	admin.Use(h.Idempotency)

	tenant := admin.Group("/tenant")
	{
		tenant.GET("", h.TenantHandler.GetTenant)
		tenant.PUT("", h.TenantHandler.UpdateTenant)
		tenant.GET("/credentials", h.TenantHandler.GetCredentials)
		tenant.PUT("/credentials", h.TenantHandler.UpdateCredentials)
	}

	plans := admin.Group("/plans")
	{
		plans.GET("", h.PlanHandler.ListPlans)
		plans.POST("", h.PlanHandler.CreatePlan)
		plans.GET("/:id", h.PlanHandler.GetPlan)
		plans.PUT("/:id", h.PlanHandler.UpdatePlan)
		plans.DELETE("/:id", h.PlanHandler.DeletePlan)
	}

	batches := admin.Group("/voucher-batches")
	{
		batches.GET("", h.VoucherHandler.ListBatches)
		batches.POST("", h.VoucherHandler.CreateBatch)
		batches.GET("/:id", h.VoucherHandler.GetBatch)
		batches.GET("/:id/vouchers", h.VoucherHandler.BatchCodes)
		batches.POST("/:id/disable", h.VoucherHandler.DisableBatch)
	}

	vouchers := admin.Group("/vouchers")
	{
		vouchers.GET("", h.VoucherHandler.ListVouchers)
		vouchers.POST("/:id/disable", h.VoucherHandler.DisableVoucher)
		vouchers.POST("/:id/enable", h.VoucherHandler.EnableVoucher)
	}

	users := admin.Group("/wifi-users")
	{
		users.GET("", h.WifiUserHandler.ListUsers)
		users.POST("", h.WifiUserHandler.CreateUser)
		users.GET("/:id", h.WifiUserHandler.GetUser)
		users.PUT("/:id", h.WifiUserHandler.UpdateUser)
		users.DELETE("/:id", h.WifiUserHandler.DeleteUser)
		users.POST("/:id/suspend", h.WifiUserHandler.SuspendUser)
		users.POST("/:id/activate", h.WifiUserHandler.ActivateUser)
	}

	hotspots := admin.Group("/hotspots")
	{
		hotspots.GET("", h.HotspotHandler.ListHotspots)
		hotspots.POST("", h.HotspotHandler.CreateHotspot)
		hotspots.PUT("/:id", h.HotspotHandler.UpdateHotspot)
		hotspots.DELETE("/:id", h.HotspotHandler.DeleteHotspot)
	}

	transactions := admin.Group("/transactions")
	{
		transactions.GET("", h.TransactionHandler.ListTransactions)
		transactions.GET("/stats", h.TransactionHandler.Stats)
		transactions.POST("/stk-push", h.TransactionHandler.STKPush)
		transactions.GET("/:id", h.TransactionHandler.GetTransaction)
		transactions.POST("/:id/reconcile", h.TransactionHandler.Reconcile)
	}

	tickets := admin.Group("/tickets")
	{
		tickets.GET("", h.TicketHandler.ListTickets)
		tickets.POST("", h.TicketHandler.CreateTicket)
		tickets.GET("/:id", h.TicketHandler.GetTicket)
		tickets.PUT("/:id", h.TicketHandler.UpdateTicket)
		tickets.POST("/:id/start", h.TicketHandler.StartTicket)
		tickets.POST("/:id/resolve", h.TicketHandler.ResolveTicket)
		tickets.POST("/:id/close", h.TicketHandler.CloseTicket)
		tickets.POST("/:id/reopen", h.TicketHandler.ReopenTicket)
	}

	loyalty := admin.Group("/loyalty/:wifiUserId")
	{
		loyalty.GET("", h.LoyaltyHandler.GetSummary)
		loyalty.POST("/earn", h.LoyaltyHandler.Earn)
		loyalty.POST("/redeem", h.LoyaltyHandler.Redeem)
	}

	garden := admin.Group("/walled-garden")
	{
		garden.GET("", h.GardenHandler.ListEntries)
		garden.POST("", h.GardenHandler.CreateEntry)
		garden.PUT("/:id", h.GardenHandler.UpdateEntry)
		garden.DELETE("/:id", h.GardenHandler.DeleteEntry)
	}

	reports := admin.Group("/reports")
	{
		reports.GET("/summary", h.ReportHandler.Summary)
		reports.GET("/revenue", h.ReportHandler.Revenue)
		reports.GET("/transactions", h.ReportHandler.Transactions)
	}

	terminal := admin.Group("/terminal")
	{
		terminal.POST("/execute", h.TerminalHandler.Execute)
		terminal.GET("/history", h.TerminalHandler.History)
	}

	// ==================== Super admin ====================
	superAdmin := api.Group("/superadmin")
	superAdmin.Use(h.AuthMiddleware.SuperAdminOnly()...)
	superAdmin.Use(h.Idempotency)
	{
		superAdmin.GET("/tenants", h.SuperAdminHandler.ListTenants)
		superAdmin.GET("/tenants/:id", h.SuperAdminHandler.GetTenant)
		superAdmin.PUT("/tenants/:id/status", h.SuperAdminHandler.UpdateStatus)
		superAdmin.PUT("/tenants/:id/tier", h.SuperAdminHandler.UpdateTier)
		superAdmin.GET("/stats", h.SuperAdminHandler.Stats)
		superAdmin.GET("/ws/stats", h.WSHandler.GetStats)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
