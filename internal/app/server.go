// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/config"
	"mnetifi-service/internal/db"
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
	"mnetifi-service/internal/websocket"
	wsHandlers "mnetifi-service/internal/websocket/handler"
)

type Server struct {
	cfg       config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	container *Container
	http      *http.Server
	cancel    context.CancelFunc
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	return &Server{cfg: cfg, engine: gin.New(), logger: logger}
}

// Start wires every dependency and blocks serving HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	logger := s.logger

	collector := metrics.New("mnetifi")
	c, err := Build(ctx, s.cfg, logger, collector)
	if err != nil {
		return err
	}
	s.container = c

	if err := db.Migrate(ctx, c.Pool, logger); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(c.JWT.Verifier, c.Sessions, logger).WithGauge(collector.WSClients)
	c.WireServices(Hooks{
		Pusher:          hub,
		SessionNotifier: hub,
		ClientCounter:   hub,
	})
	svc := c.Services

	hub.RegisterHandler(wsHandlers.NewNotificationHandler(svc.Notification))
	hub.RegisterHandler(wsHandlers.NewResourceHandler(c.Publisher))
	go hub.Run(ctx)
	go func() {
		if err := c.Publisher.Relay(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("invalidation relay stopped", zap.Error(err))
		}
	}()

	// ----- Initialize Super Admin -----
	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := c.EnsureSuperAdmin(seedCtx); err != nil {
		// Don't fail startup, just log the error
		logger.Error("failed to initialize super admin", zap.Error(err))
	}
	cancel()

	// ----- Handlers -----
	handlers := &Handlers{
		AuthHandler:        authHandler.NewAuthHandler(svc.Auth, logger),
		NotifHandler:       notifyHandler.NewNotificationHandler(svc.Notification),
		PlanHandler:        planHandler.NewPlanHandler(svc.Plan, logger),
		VoucherHandler:     voucherHandler.NewVoucherHandler(svc.Voucher),
		WifiUserHandler:    wifiuserHandler.NewWifiUserHandler(svc.WifiUser),
		HotspotHandler:     hotspotHandler.NewHotspotHandler(svc.Hotspot),
		GardenHandler:      gardenHandler.NewWalledGardenHandler(svc.WalledGarden),
		TicketHandler:      ticketHandler.NewTicketHandler(svc.Ticket),
		LoyaltyHandler:     loyaltyHandler.NewLoyaltyHandler(svc.Loyalty),
		ReportHandler:      reportHandler.NewReportHandler(svc.Report),
		TerminalHandler:    terminalHandler.NewTerminalHandler(svc.Terminal, logger),
		TransactionHandler: transactionHandler.NewTransactionHandler(svc.Transaction, logger),
		TenantHandler:      tenantHandler.NewTenantHandler(svc.Tenant),
		SuperAdminHandler:  superAdminHandler.NewSuperAdminHandler(svc.Tenant, logger),
		PortalHandler: portalHandler.NewPortalHandler(
			svc.Tenant,
			svc.Plan,
			svc.WalledGarden,
			svc.Voucher,
			svc.Transaction,
			logger,
		),
		WSHandler:       wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware:  middleware.NewAuthMiddleware(svc.Auth),
		Idempotency:     middleware.Idempotency(c.Redis, logger),
		PortalRateLimit: middleware.RateLimit(c.RateLimiter, int64(s.cfg.PortalRateLimit), s.cfg.PortalRateWindow, logger),
		Metrics:         collector,
	}

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RequestID(),
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORS(s.cfg.AllowedOrigins),
		collector.Middleware(),
	)
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	s.http = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, then stops background loops and
// closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.container != nil {
		s.container.Close()
	}
	return err
}
