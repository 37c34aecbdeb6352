package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/domain/loyalty"
	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/domain/ticket"
	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/domain/wifiuser"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type fixture struct {
	pool   *pgxpool.Pool
	tenant *tenant.Tenant
	admin  *auth.Identity
	plan   *plan.Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pool := testPool(t)
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	tn := &tenant.Tenant{
		Name: "Test ISP", Subdomain: "isp" + suffix, Email: "ops+" + suffix + "@example.com",
		Phone: "254712345678", SubscriptionTier: tenant.TierTrial, Status: tenant.StatusActive,
	}
	admin := &auth.Identity{
		Email: "admin+" + suffix + "@example.com", FullName: "Admin",
		PasswordHash: "x", Roles: []string{"admin"}, Status: auth.StatusActive,
	}
	require.NoError(t, NewTenantRepository(pool).Register(ctx, tn, admin))
	require.True(t, admin.TenantID.Valid)

	p := &plan.Plan{
		TenantID: tn.ID, Name: "1 Hour", Price: decimal.NewFromInt(20),
		DurationSeconds: 3600, PlanType: plan.TypeHotspot, MaxDevices: 1, IsActive: true,
	}
	require.NoError(t, NewPlanRepository(pool).Create(ctx, p))
	return &fixture{pool: pool, tenant: tn, admin: admin, plan: p}
}

func TestRegisterRejectsDuplicateSubdomain(t *testing.T) {
	f := newFixture(t)
	dup := &tenant.Tenant{
		Name: "Other", Subdomain: f.tenant.Subdomain, Email: "x@example.com", Phone: "254700000000",
		SubscriptionTier: tenant.TierTrial, Status: tenant.StatusActive,
	}
	admin := &auth.Identity{Email: uuid.NewString() + "@example.com", FullName: "A", PasswordHash: "x", Roles: []string{"admin"}, Status: auth.StatusActive}
	err := NewTenantRepository(f.pool).Register(context.Background(), dup, admin)
	assert.ErrorIs(t, err, xerrors.ErrConflict)

	_, err = NewAuthRepository(f.pool).FindIdentityByEmail(context.Background(), admin.Email)
	assert.ErrorIs(t, err, xerrors.ErrNotFound, "admin insert must roll back with the tenant")
}

func TestVoucherRedeemIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewVoucherRepository(f.pool)

	b := &voucher.Batch{
		TenantID: f.tenant.ID, Reference: uuid.NewString(), PlanID: f.plan.ID,
		Quantity: 2, Status: voucher.BatchPending, CreatedBy: f.admin.ID,
	}
	require.NoError(t, repo.CreateBatch(ctx, b))
	n, err := repo.InsertCodes(ctx, b, []string{"T1AAAAAA", "T1BBBBBB"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.InsertCodes(ctx, b, []string{"T1AAAAAA"})
	require.NoError(t, err)
	assert.Zero(t, n, "colliding codes are skipped")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.Redeem(ctx, f.tenant.ID, voucher.RedeemRequest{Code: "t1aaaaaa"}, "254711111111", time.Now())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, xerrors.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := repo.FindBatch(ctx, f.tenant.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)
}

func TestTransactionCompleteOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewTransactionRepository(f.pool)

	txn := &transaction.Transaction{TenantID: f.tenant.ID, UserPhone: "254722222222", Amount: decimal.NewFromInt(55), PlanID: &f.plan.ID}
	require.NoError(t, repo.Create(ctx, txn))
	require.NoError(t, repo.SetCheckoutIDs(ctx, txn.ID, "m-1", "ws_CO_"+uuid.NewString()))

	paid := decimal.NewFromInt(55)
	c, err := repo.Complete(ctx, txn.ID, "R"+uuid.NewString()[:9], &paid, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, c.Transaction.Status)
	assert.Equal(t, transaction.ReconMatched, c.Transaction.ReconciliationStatus)
	assert.Equal(t, int64(5), c.PointsEarned)

	_, err = repo.Complete(ctx, txn.ID, "R-again", &paid, nil, nil, time.Now())
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
	_, err = repo.Fail(ctx, txn.ID, "late failure")
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)

	summary, err := NewLoyaltyRepository(f.pool).GetSummary(ctx, f.tenant.ID, c.WifiUserID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.Account.Balance)
}

func TestLoyaltyRedeemChecksBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _, err := activateWifiUser(ctx, f.pool, f.tenant.ID, "254733333333",
		wifiuserActivation(f.plan.ID), time.Hour, time.Now())
	require.NoError(t, err)

	repo := NewLoyaltyRepository(f.pool)
	ref := fmt.Sprintf("manual-%d", id)
	_, err = repo.Earn(ctx, f.tenant.ID, id, loyalty.EarnRequest{Points: 10, Reason: "welcome", ReferenceID: &ref})
	require.NoError(t, err)
	acct, err := repo.Earn(ctx, f.tenant.ID, id, loyalty.EarnRequest{Points: 10, Reason: "welcome", ReferenceID: &ref})
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.Balance, "same reference earns once")

	_, err = repo.Redeem(ctx, f.tenant.ID, id, loyalty.RedeemRequest{Points: 11, Reason: "too much"})
	assert.ErrorIs(t, err, xerrors.ErrInsufficientPoints)

	acct, err = repo.Redeem(ctx, f.tenant.ID, id, loyalty.RedeemRequest{Points: 4, Reason: "free hour"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), acct.Balance)
	assert.Equal(t, int64(4), acct.TotalRedeemed)
}

func TestTicketTransitionIsGuarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewTicketRepository(f.pool)

	tk := &ticket.Ticket{TenantID: f.tenant.ID, Subject: "No internet", IssueDetails: "down", Status: ticket.StatusOpen, Priority: ticket.PriorityHigh}
	require.NoError(t, repo.Create(ctx, tk))

	got, err := repo.Transition(ctx, f.tenant.ID, tk.ID, ticket.StatusOpen, ticket.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, ticket.StatusInProgress, got.Status)

	_, err = repo.Transition(ctx, f.tenant.ID, tk.ID, ticket.StatusOpen, ticket.StatusClosed, nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidTransition)
}

func wifiuserActivation(planID int64) wifiuser.Activation {
	return wifiuser.Activation{PlanID: planID}
}
