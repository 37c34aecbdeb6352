// internal/app/container.go
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mnetifi-service/internal/config"
	"mnetifi-service/internal/db"
	wstypes "mnetifi-service/internal/domain/websocket"
	"mnetifi-service/internal/pkg/fieldcrypt"
	"mnetifi-service/internal/pkg/jwt"
	"mnetifi-service/internal/pkg/metrics"
	"mnetifi-service/internal/pkg/mpesa"
	"mnetifi-service/internal/pkg/routeros"
	"mnetifi-service/internal/pkg/session"
	"mnetifi-service/internal/pkg/sms"
	"mnetifi-service/internal/repository/postgres"
	authUsecase "mnetifi-service/internal/service/auth"
	hotspotUsecase "mnetifi-service/internal/service/hotspot"
	"mnetifi-service/internal/service/invalidation"
	loyaltyUsecase "mnetifi-service/internal/service/loyalty"
	notifyUsecase "mnetifi-service/internal/service/notification"
	planUsecase "mnetifi-service/internal/service/plan"
	reportUsecase "mnetifi-service/internal/service/report"
	tenantUsecase "mnetifi-service/internal/service/tenant"
	terminalUsecase "mnetifi-service/internal/service/terminal"
	ticketUsecase "mnetifi-service/internal/service/ticket"
	transactionUsecase "mnetifi-service/internal/service/transaction"
	voucherUsecase "mnetifi-service/internal/service/voucher"
	gardenUsecase "mnetifi-service/internal/service/walledgarden"
	wifiuserUsecase "mnetifi-service/internal/service/wifiuser"
	"mnetifi-service/internal/worker/tasks"
)

// Repositories groups the PostgreSQL stores.
type Repositories struct {
	Auth         *postgres.AuthRepository
	Tenant       *postgres.TenantRepository
	Plan         *postgres.PlanRepository
	Voucher      *postgres.VoucherRepository
	WifiUser     *postgres.WifiUserRepository
	Hotspot      *postgres.HotspotRepository
	Transaction  *postgres.TransactionRepository
	Ticket       *postgres.TicketRepository
	Loyalty      *postgres.LoyaltyRepository
	WalledGarden *postgres.WalledGardenRepository
	Notification *postgres.NotificationRepository
	Report       *postgres.ReportRepository
	Terminal     *postgres.TerminalRepository
}

// Services groups the use cases shared by the API and the worker.
type Services struct {
	Auth         *authUsecase.AuthService
	Tenant       *tenantUsecase.TenantService
	Plan         *planUsecase.PlanService
	Voucher      *voucherUsecase.VoucherService
	WifiUser     *wifiuserUsecase.WifiUserService
	Hotspot      *hotspotUsecase.HotspotService
	Transaction  *transactionUsecase.TransactionService
	Ticket       *ticketUsecase.TicketService
	Loyalty      *loyaltyUsecase.LoyaltyService
	WalledGarden *gardenUsecase.WalledGardenService
	Notification *notifyUsecase.NotificationService
	Report       *reportUsecase.ReportService
	Terminal     *terminalUsecase.TerminalService
}

// Container owns every long-lived dependency of a process.
type Container struct {
	Cfg         config.AppConfig
	Logger      *zap.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	JWT         *jwt.Manager
	Sessions    *session.Manager
	RateLimiter *session.RateLimiter
	Metrics     *metrics.Collector
	Publisher   *invalidation.Publisher
	Enqueuer    *tasks.Enqueuer
	Mpesa       *mpesa.Client
	SMS         *sms.Client
	Runner      *routeros.Runner
	Repos       Repositories
	Services    Services

	asynqClient   *asynq.Client
	totpSecrets   *fieldcrypt.Encryptor
	tenantSecrets *fieldcrypt.Encryptor
	routerSecrets *fieldcrypt.Encryptor
}

// Hooks lets the API plug its websocket hub into services. The worker
// passes the zero value. The hub needs the container's JWT verifier and
// session manager, so services are wired in a second step.
type Hooks struct {
	Pusher          notifyUsecase.Pusher
	SessionNotifier authUsecase.SessionNotifier
	ClientCounter   tenantUsecase.ClientCounter
}

type noPush struct{}

func (noPush) BroadcastNotification(int64, *wstypes.NotificationData) {}
func (noPush) BroadcastNotificationCount(int64, int64)               {}

type noSessions struct{}

func (noSessions) ForceLogout(int64, string, string) {}

type noClients struct{}

func (noClients) TotalClients() int { return 0 }

// Build connects to PostgreSQL and Redis and wires repositories and
// infrastructure clients. Call WireServices before using Services.
func Build(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, collector *metrics.Collector) (*Container, error) {
	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	rdb, err := db.NewRedisClient(db.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to storage", zap.String("redis", cfg.RedisAddr))

	c := &Container{
		Cfg:         cfg,
		Logger:      logger,
		Pool:        pool,
		Redis:       rdb,
		Metrics:     collector,
		asynqClient: asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB}),
	}
	if err := c.wire(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) wire() error {
	cfg, logger := c.Cfg, c.Logger

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}
	c.JWT = jwtManager

	// ----- Field encryption -----
	master := []byte(cfg.FieldEncryptionKey)
	if c.totpSecrets, err = fieldcrypt.New(master, "totp"); err != nil {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY: %w", err)
	}
	if c.tenantSecrets, err = fieldcrypt.New(master, "tenant-credentials"); err != nil {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY: %w", err)
	}
	if c.routerSecrets, err = fieldcrypt.New(master, "hotspot-password"); err != nil {
		return fmt.Errorf("FIELD_ENCRYPTION_KEY: %w", err)
	}

	// ----- Repositories -----
	pool := c.Pool
	c.Repos = Repositories{
		Auth:         postgres.NewAuthRepository(pool),
		Tenant:       postgres.NewTenantRepository(pool),
		Plan:         postgres.NewPlanRepository(pool),
		Voucher:      postgres.NewVoucherRepository(pool),
		WifiUser:     postgres.NewWifiUserRepository(pool),
		Hotspot:      postgres.NewHotspotRepository(pool),
		Transaction:  postgres.NewTransactionRepository(pool),
		Ticket:       postgres.NewTicketRepository(pool),
		Loyalty:      postgres.NewLoyaltyRepository(pool),
		WalledGarden: postgres.NewWalledGardenRepository(pool),
		Notification: postgres.NewNotificationRepository(pool),
		Report:       postgres.NewReportRepository(pool),
		Terminal:     postgres.NewTerminalRepository(pool),
	}
	r := c.Repos

	// ----- Session Manager & Rate Limiter -----
	c.Sessions = session.NewManager(c.Redis, r.Auth, session.IdleTimeouts{
		Admin:      cfg.AdminIdleTimeout,
		SuperAdmin: cfg.SuperAdminIdleTimeout,
	}, logger)
	c.RateLimiter = session.NewRateLimiter(c.Redis)

	// ----- Infrastructure clients -----
	c.Publisher = invalidation.NewPublisher(c.Redis, logger)
	c.Enqueuer = tasks.NewEnqueuer(c.asynqClient, logger)
	c.Mpesa = mpesa.NewClient(mpesa.Config{
		SandboxURL:    cfg.MpesaSandboxURL,
		ProductionURL: cfg.MpesaProductionURL,
	}, c.Redis, logger)
	c.SMS = sms.NewClient(cfg.SMSBaseURL, logger)
	c.Runner = routeros.NewRunner(cfg.TerminalTimeout)
	return nil
}

// WireServices builds the use cases. Nil hooks fall back to no-ops.
func (c *Container) WireServices(hooks Hooks) {
	if hooks.Pusher == nil {
		hooks.Pusher = noPush{}
	}
	if hooks.SessionNotifier == nil {
		hooks.SessionNotifier = noSessions{}
	}
	if hooks.ClientCounter == nil {
		hooks.ClientCounter = noClients{}
	}
	cfg, logger, r := c.Cfg, c.Logger, c.Repos

	s := &c.Services
	s.Notification = notifyUsecase.NewNotificationService(r.Notification, hooks.Pusher, logger)
	s.Auth = authUsecase.NewAuthService(
		r.Auth,
		r.Tenant,
		c.JWT,
		c.Sessions,
		c.RateLimiter,
		c.totpSecrets,
		authUsecase.NewEmailHelper(c.Enqueuer, logger, cfg.DashboardURL),
		hooks.SessionNotifier,
		logger,
	)
	s.Tenant = tenantUsecase.NewTenantService(r.Tenant, c.tenantSecrets, c.Publisher, hooks.ClientCounter, s.Auth, logger)
	s.Plan = planUsecase.NewPlanService(r.Plan, c.Publisher, logger)
	s.Voucher = voucherUsecase.NewVoucherService(r.Voucher, r.Plan, c.Enqueuer, c.Publisher, c.Metrics, logger)
	s.WifiUser = wifiuserUsecase.NewWifiUserService(r.WifiUser, c.Publisher, logger)
	s.Hotspot = hotspotUsecase.NewHotspotService(r.Hotspot, c.routerSecrets, c.Publisher, logger)
	s.Transaction = transactionUsecase.NewTransactionService(transactionUsecase.Deps{
		Repo:            r.Transaction,
		Plans:           r.Plan,
		Tenants:         r.Tenant,
		Credentials:     s.Tenant,
		Gateway:         c.Mpesa,
		Enqueuer:        c.Enqueuer,
		Notifier:        s.Notification,
		Invalidator:     c.Publisher,
		Counters:        c.Metrics,
		CallbackBaseURL: cfg.PublicBaseURL,
		Logger:          logger,
	})
	s.Ticket = ticketUsecase.NewTicketService(r.Ticket, c.Publisher, logger)
	s.Loyalty = loyaltyUsecase.NewLoyaltyService(r.Loyalty, c.Publisher, logger)
	s.WalledGarden = gardenUsecase.NewWalledGardenService(r.WalledGarden, c.Enqueuer, c.Publisher, logger)
	s.Report = reportUsecase.NewReportService(r.Report, r.Transaction, logger)
	s.Terminal = terminalUsecase.NewTerminalService(r.Terminal, s.Hotspot, c.Runner, c.Redis, c.Metrics, c.Publisher, logger)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c.asynqClient != nil {
		if err := c.asynqClient.Close(); err != nil {
			c.Logger.Warn("failed to close asynq client", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// EnsureSuperAdmin seeds the platform super admin when configured.
func (c *Container) EnsureSuperAdmin(ctx context.Context) error {
	if c.Cfg.SuperAdminEmail == "" || c.Cfg.SuperAdminPassword == "" {
		c.Logger.Warn("SUPER_ADMIN_EMAIL or SUPER_ADMIN_PASSWORD not set, skipping super admin seed")
		return nil
	}
	if len(c.Cfg.SuperAdminPassword) < 8 {
		return fmt.Errorf("super admin password must be at least 8 characters")
	}
	if err := c.Services.Auth.EnsureSuperAdminExists(ctx, c.Cfg.SuperAdminEmail, c.Cfg.SuperAdminPassword, c.Cfg.SuperAdminName); err != nil {
		return fmt.Errorf("failed to ensure super admin exists: %w", err)
	}
	return nil
}
