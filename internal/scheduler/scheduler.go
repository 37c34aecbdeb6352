// Package scheduler runs the periodic sweeps: expiry of WiFi users, vouchers
// and trials, stale payments and old notifications.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/service/invalidation"
)

type Expirer interface {
	ExpireUsers(ctx context.Context, now time.Time) ([]int64, error)
}

type VoucherExpirer interface {
	ExpireVouchers(ctx context.Context, now time.Time) ([]int64, error)
}

type StaleFailer interface {
	FailStale(ctx context.Context) (int, error)
}

type TrialExpirer interface {
	ExpireTrials(ctx context.Context) (int, error)
}

type NotificationPurger interface {
	DeleteExpiredNotifications(ctx context.Context) (int64, error)
}

type Deps struct {
	Users         Expirer
	Vouchers      VoucherExpirer
	Transactions  StaleFailer
	Tenants       TrialExpirer
	Notifications NotificationPurger
	Invalidator   invalidation.Invalidator
	Counters      Counters
	Logger        *zap.Logger
}

type Counters interface {
	JobProcessed(task, outcome string)
}

// Job timeouts bound one sweep so a slow database never stacks runs.
const jobTimeout = 2 * time.Minute

type Scheduler struct {
	Deps
	cron *cron.Cron
	now  func() time.Time
}

func New(d Deps) *Scheduler {
	return &Scheduler{
		Deps: d,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:  time.Now,
	}
}

// Start registers the sweeps and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) error
	}{
		{"@every 5m", "expire-wifi-users", s.ExpireWifiUsers},
		{"@every 5m", "expire-vouchers", s.ExpireVouchers},
		{"@every 5m", "fail-stale-transactions", s.FailStaleTransactions},
		{"@hourly", "expire-trials", s.ExpireTrials},
		{"@daily", "purge-notifications", s.PurgeNotifications},
	}
	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() { s.run(j.name, j.fn) }); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.Logger.Info("scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop waits for running sweeps to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.Logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		s.Counters.JobProcessed(name, "failed")
		return
	}
	s.Counters.JobProcessed(name, "success")
}

func (s *Scheduler) ExpireWifiUsers(ctx context.Context) error {
	tenants, err := s.Users.ExpireUsers(ctx, s.now())
	if err != nil {
		return err
	}
	for _, id := range tenants {
		s.Invalidator.Invalidate(ctx, id, resource.WifiUser)
	}
	if len(tenants) > 0 {
		s.Logger.Info("wifi users expired", zap.Int("tenants", len(tenants)))
	}
	return nil
}

func (s *Scheduler) ExpireVouchers(ctx context.Context) error {
	tenants, err := s.Vouchers.ExpireVouchers(ctx, s.now())
	if err != nil {
		return err
	}
	for _, id := range tenants {
		s.Invalidator.Invalidate(ctx, id, resource.Voucher, resource.VoucherBatch)
	}
	if len(tenants) > 0 {
		s.Logger.Info("vouchers expired", zap.Int("tenants", len(tenants)))
	}
	return nil
}

func (s *Scheduler) FailStaleTransactions(ctx context.Context) error {
	_, err := s.Transactions.FailStale(ctx)
	return err
}

func (s *Scheduler) ExpireTrials(ctx context.Context) error {
	n, err := s.Tenants.ExpireTrials(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Logger.Info("trials expired", zap.Int("count", n))
	}
	return nil
}

func (s *Scheduler) PurgeNotifications(ctx context.Context) error {
	n, err := s.Notifications.DeleteExpiredNotifications(ctx)
	if err != nil {
		return err
	}
	s.Logger.Info("expired notifications deleted", zap.Int64("count", n))
	return nil
}
