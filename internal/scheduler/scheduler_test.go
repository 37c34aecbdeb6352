package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
)

type sweep struct {
	tenants []int64
	at      time.Time
	err     error
}

func (s *sweep) ExpireUsers(_ context.Context, now time.Time) ([]int64, error) {
	s.at = now
	return s.tenants, s.err
}

func (s *sweep) ExpireVouchers(_ context.Context, now time.Time) ([]int64, error) {
	s.at = now
	return s.tenants, s.err
}

type counted struct{ n int }

func (c counted) FailStale(context.Context) (int, error)    { return c.n, nil }
func (c counted) ExpireTrials(context.Context) (int, error) { return c.n, nil }
func (c counted) DeleteExpiredNotifications(context.Context) (int64, error) {
	return int64(c.n), nil
}

type invalidations map[int64][]resource.Entity

func (i invalidations) Invalidate(_ context.Context, tenantID int64, entities ...resource.Entity) {
	i[tenantID] = append(i[tenantID], entities...)
}

type jobs map[string]string

func (j jobs) JobProcessed(task, outcome string) { j[task] = outcome }

func newScheduler(users, vouchers *sweep) (*Scheduler, invalidations, jobs) {
	inv, j := invalidations{}, jobs{}
	s := New(Deps{
		Users:         users,
		Vouchers:      vouchers,
		Transactions:  counted{n: 2},
		Tenants:       counted{n: 1},
		Notifications: counted{n: 5},
		Invalidator:   inv,
		Counters:      j,
		Logger:        zap.NewNop(),
	})
	return s, inv, j
}

func TestExpireWifiUsersInvalidatesTenants(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	users := &sweep{tenants: []int64{1, 4}}
	s, inv, _ := newScheduler(users, &sweep{})
	s.now = func() time.Time { return now }

	require.NoError(t, s.ExpireWifiUsers(context.Background()))
	assert.Equal(t, now, users.at)
	assert.Equal(t, []resource.Entity{resource.WifiUser}, inv[1])
	assert.Equal(t, []resource.Entity{resource.WifiUser}, inv[4])
}

func TestExpireVouchersInvalidatesBatches(t *testing.T) {
	s, inv, _ := newScheduler(&sweep{}, &sweep{tenants: []int64{2}})

	require.NoError(t, s.ExpireVouchers(context.Background()))
	assert.ElementsMatch(t, []resource.Entity{resource.Voucher, resource.VoucherBatch}, inv[2])
}

func TestRunRecordsOutcome(t *testing.T) {
	users := &sweep{err: errors.New("connection reset")}
	s, inv, j := newScheduler(users, &sweep{})

	s.run("expire-wifi-users", s.ExpireWifiUsers)
	s.run("expire-trials", s.ExpireTrials)

	assert.Equal(t, "failed", j["expire-wifi-users"])
	assert.Equal(t, "success", j["expire-trials"])
	assert.Empty(t, inv)
}

func TestStartAndStop(t *testing.T) {
	s, _, _ := newScheduler(&sweep{}, &sweep{})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 5)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
