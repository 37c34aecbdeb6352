package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mnetifi-service/internal/app"
	"mnetifi-service/internal/config"
	"mnetifi-service/internal/pkg/metrics"
	"mnetifi-service/internal/scheduler"
	"mnetifi-service/internal/service/email"
	"mnetifi-service/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on system env vars")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.New("mnetifi_worker")
	c, err := app.Build(ctx, cfg, logger, collector)
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer c.Close()
	c.WireServices(app.Hooks{})
	svc := c.Services

	// ----- Email -----
	mailer := email.NewEmailSender(
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.SMTPFromName,
		cfg.SMTPSecure,
	)

	processor := worker.NewProcessor(worker.Deps{
		Vouchers:     svc.Voucher,
		Credentials:  svc.Tenant,
		SMS:          c.SMS,
		Mailer:       mailer,
		Transactions: svc.Transaction,
		Garden:       svc.WalledGarden,
		Routers:      svc.Hotspot,
		Runner:       c.Runner,
		Counters:     collector,
		Logger:       logger,
	})
	mux := asynq.NewServeMux()
	processor.Register(mux)

	srv := worker.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPass, DB: cfg.RedisDB},
		cfg.WorkerConcurrency,
		logger,
	)
	if err := srv.Start(mux); err != nil {
		logger.Fatal("could not run worker", zap.Error(err))
	}

	sched := scheduler.New(scheduler.Deps{
		Users:         c.Repos.WifiUser,
		Vouchers:      c.Repos.Voucher,
		Transactions:  svc.Transaction,
		Tenants:       svc.Tenant,
		Notifications: svc.Notification,
		Invalidator:   c.Publisher,
		Counters:      collector,
		Logger:        logger,
	})
	if err := sched.Start(); err != nil {
		logger.Fatal("could not start scheduler", zap.Error(err))
	}

	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: collector.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("worker running", zap.Int("concurrency", cfg.WorkerConcurrency))

	<-ctx.Done()
	logger.Info("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	srv.Shutdown()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}
