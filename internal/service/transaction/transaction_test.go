package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/notification"
	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/domain/transaction"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/mpesa"
	"mnetifi-service/internal/repository/postgres"
)

type memRepo struct {
	txns  map[int64]*transaction.Transaction
	stale []transaction.Transaction
}

func (m *memRepo) Create(_ context.Context, t *transaction.Transaction) error {
	t.ID = int64(len(m.txns) + 1)
	t.Status = transaction.StatusPending
	t.ReconciliationStatus = transaction.ReconPending
	c := *t
	m.txns[t.ID] = &c
	return nil
}

func (m *memRepo) SetCheckoutIDs(_ context.Context, id int64, merchant, checkout string) error {
	m.txns[id].MerchantRequestID = &merchant
	m.txns[id].CheckoutRequestID = &checkout
	return nil
}

func (m *memRepo) FindByID(_ context.Context, tenantID, id int64) (*transaction.Transaction, error) {
	t, ok := m.txns[id]
	if !ok || t.TenantID != tenantID {
		return nil, xerrors.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (m *memRepo) FindByCheckoutID(_ context.Context, checkout string) (*transaction.Transaction, error) {
	for _, t := range m.txns {
		if t.CheckoutRequestID != nil && *t.CheckoutRequestID == checkout {
			c := *t
			return &c, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (m *memRepo) Complete(_ context.Context, id int64, receipt string, paid *decimal.Decimal, _, _ *string, now time.Time) (*postgres.Completion, error) {
	t := m.txns[id]
	if t.Status != transaction.StatusPending {
		return nil, xerrors.ErrInvalidTransition
	}
	t.Status = transaction.StatusCompleted
	t.MpesaReceiptNumber = &receipt
	t.PaidAmount = paid
	c := *t
	return &postgres.Completion{Transaction: &c, WifiUserID: 5, PlanName: "1 Hour", ExpiresAt: now.Add(time.Hour), PointsEarned: 5}, nil
}

func (m *memRepo) Fail(_ context.Context, id int64, reason string) (*transaction.Transaction, error) {
	t := m.txns[id]
	if t.Status != transaction.StatusPending {
		return nil, xerrors.ErrInvalidTransition
	}
	t.Status = transaction.StatusFailed
	t.FailureReason = &reason
	c := *t
	return &c, nil
}

func (m *memRepo) SetReconciliation(_ context.Context, id int64, status transaction.ReconciliationStatus, _ *decimal.Decimal) error {
	m.txns[id].ReconciliationStatus = status
	return nil
}

func (m *memRepo) FailStale(context.Context, time.Time) ([]transaction.Transaction, error) {
	return m.stale, nil
}

func (m *memRepo) List(context.Context, int64, *transaction.TransactionListFilters) ([]transaction.Transaction, int64, error) {
	return nil, 0, nil
}

func (m *memRepo) Stats(context.Context, int64, time.Time) (*transaction.Stats, error) {
	return &transaction.Stats{}, nil
}

type plans struct{}

func (plans) FindByID(_ context.Context, tenantID, id int64) (*plan.Plan, error) {
	return &plan.Plan{ID: id, TenantID: tenantID, Name: "1 Hour", Price: decimal.NewFromInt(50), IsActive: true}, nil
}

type tenants struct{ creds tenant.Credentials }

func (tenants) FindByID(_ context.Context, id int64) (*tenant.Tenant, error) {
	return &tenant.Tenant{ID: id, Subdomain: "kilimani"}, nil
}

func (t tenants) Credentials(context.Context, int64) (tenant.Credentials, error) { return t.creds, nil }

type gateway struct {
	pushErr error
	query   *mpesa.QueryResult
	pushes  []mpesa.STKPushRequest
}

func (g *gateway) STKPush(_ context.Context, _ int64, _ mpesa.Credentials, in mpesa.STKPushRequest) (*mpesa.STKPushResponse, error) {
	g.pushes = append(g.pushes, in)
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	return &mpesa.STKPushResponse{MerchantRequestID: "m-1", CheckoutRequestID: "ws_CO_1", ResponseCode: "0"}, nil
}

func (g *gateway) Query(context.Context, int64, mpesa.Credentials, string) (*mpesa.QueryResult, error) {
	if g.query == nil {
		return nil, mpesa.ErrStillProcessing
	}
	return g.query, nil
}

type queue struct {
	reconciles int
	sms        []string
}

func (q *queue) EnqueueReconcile(context.Context, int64, int64) error { q.reconciles++; return nil }

func (q *queue) EnqueueSMS(_ context.Context, _ int64, phone, msg string) error {
	q.sms = append(q.sms, phone+": "+msg)
	return nil
}

type alerts struct{ got []notification.Alert }

func (a *alerts) NotifyTenantAdmins(_ context.Context, _ int64, al notification.Alert) error {
	a.got = append(a.got, al)
	return nil
}

type counters struct{ statuses []string }

func (c *counters) PaymentSettled(status string, _ float64) { c.statuses = append(c.statuses, status) }

type recorder struct{ entities []resource.Entity }

func (r *recorder) Invalidate(_ context.Context, _ int64, e ...resource.Entity) {
	r.entities = append(r.entities, e...)
}

type fixture struct {
	svc      *TransactionService
	repo     *memRepo
	gateway  *gateway
	queue    *queue
	alerts   *alerts
	counters *counters
}

var configured = tenant.Credentials{
	MpesaShortcode: "174379", MpesaPasskey: "pk", MpesaConsumerKey: "ck", MpesaConsumerSecret: "cs", MpesaEnvironment: "sandbox",
}

func newFixture(creds tenant.Credentials) *fixture {
	f := &fixture{
		repo:     &memRepo{txns: map[int64]*transaction.Transaction{}},
		gateway:  &gateway{},
		queue:    &queue{},
		alerts:   &alerts{},
		counters: &counters{},
	}
	tn := tenants{creds: creds}
	f.svc = NewTransactionService(Deps{
		Repo: f.repo, Plans: plans{}, Tenants: tn, Credentials: tn,
		Gateway: f.gateway, Enqueuer: f.queue, Notifier: f.alerts,
		Invalidator: &recorder{}, Counters: f.counters,
		CallbackBaseURL: "https://api.mnetifi.test/", Logger: zap.NewNop(),
	})
	return f
}

func callback(checkout string, code int) *transaction.CallbackEnvelope {
	env := &transaction.CallbackEnvelope{}
	cb := &env.Body.STKCallback
	cb.CheckoutRequestID = checkout
	cb.ResultCode = code
	cb.ResultDesc = "Request cancelled by user"
	if code == 0 {
		cb.CallbackMetadata = &struct {
			Item []transaction.CallbackItem `json:"Item"`
		}{Item: []transaction.CallbackItem{
			{Name: "Amount", Value: 50.0},
			{Name: "MpesaReceiptNumber", Value: "NLJ7RT61SV"},
		}}
	}
	return env
}

func TestSTKPushAndCallback(t *testing.T) {
	f := newFixture(configured)
	ctx := context.Background()

	txn, err := f.svc.InitiateSTKPush(ctx, 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_1", *txn.CheckoutRequestID)
	assert.Equal(t, 1, f.queue.reconciles)
	require.Len(t, f.gateway.pushes, 1)
	assert.Equal(t, "254712345678", f.gateway.pushes[0].Phone)
	assert.Equal(t, "https://api.mnetifi.test/api/mpesa/callback/3", f.gateway.pushes[0].CallbackURL)

	require.NoError(t, f.svc.HandleCallback(ctx, 3, callback("ws_CO_1", 0)))
	assert.Equal(t, transaction.StatusCompleted, f.repo.txns[txn.ID].Status)
	require.Len(t, f.queue.sms, 1)
	assert.Contains(t, f.queue.sms[0], "NLJ7RT61SV")
	assert.Contains(t, f.queue.sms[0], "5 points")
	require.Len(t, f.alerts.got, 1)
	assert.Equal(t, notification.TypePayment, f.alerts.got[0].Type)

	// A replayed callback changes nothing.
	require.NoError(t, f.svc.HandleCallback(ctx, 3, callback("ws_CO_1", 1032)))
	assert.Equal(t, transaction.StatusCompleted, f.repo.txns[txn.ID].Status)
	assert.Equal(t, []string{"COMPLETED"}, f.counters.statuses)
}

func TestCallbackForOtherTenant(t *testing.T) {
	f := newFixture(configured)
	ctx := context.Background()
	_, err := f.svc.InitiateSTKPush(ctx, 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	require.NoError(t, err)

	err = f.svc.HandleCallback(ctx, 4, callback("ws_CO_1", 0))
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
	assert.Equal(t, transaction.StatusPending, f.repo.txns[1].Status)
}

func TestSTKPushWithoutCredentials(t *testing.T) {
	f := newFixture(tenant.Credentials{})
	_, err := f.svc.InitiateSTKPush(context.Background(), 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	assert.ErrorIs(t, err, xerrors.ErrBadRequest)
	assert.Empty(t, f.repo.txns)
}

func TestSTKPushGatewayFailure(t *testing.T) {
	f := newFixture(configured)
	f.gateway.pushErr = errors.New("connection reset")

	_, err := f.svc.InitiateSTKPush(context.Background(), 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	assert.ErrorIs(t, err, xerrors.ErrUpstream)
	assert.Equal(t, transaction.StatusFailed, f.repo.txns[1].Status)
	assert.Zero(t, f.queue.reconciles)
}

func TestReconcile(t *testing.T) {
	f := newFixture(configured)
	ctx := context.Background()
	txn, err := f.svc.InitiateSTKPush(ctx, 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	require.NoError(t, err)

	_, err = f.svc.Reconcile(ctx, 3, txn.ID)
	assert.ErrorIs(t, err, mpesa.ErrStillProcessing)

	f.gateway.query = &mpesa.QueryResult{ResultCode: "1032", ResultDesc: "Request cancelled by user"}
	got, err := f.svc.Reconcile(ctx, 3, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, got.Status)
	assert.Equal(t, transaction.ReconUnmatched, got.ReconciliationStatus)
}

func TestReconcileCompleted(t *testing.T) {
	f := newFixture(configured)
	ctx := context.Background()
	txn, err := f.svc.InitiateSTKPush(ctx, 3, &transaction.STKPushRequest{Phone: "0712345678", PlanID: 1})
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleCallback(ctx, 3, callback("ws_CO_1", 0)))

	got, err := f.svc.Reconcile(ctx, 3, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.ReconMatched, got.ReconciliationStatus)
}

func TestFailStale(t *testing.T) {
	f := newFixture(configured)
	f.repo.stale = []transaction.Transaction{{ID: 1, TenantID: 3}, {ID: 2, TenantID: 3}}
	n, err := f.svc.FailStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"FAILED", "FAILED"}, f.counters.statuses)
}
