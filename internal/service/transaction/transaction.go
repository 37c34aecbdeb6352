// Package transaction runs M-Pesa purchases end to end: STK push, the
// Daraja callback, delayed reconciliation and the stale sweep.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/notification"
	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/domain/transaction"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/mpesa"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/repository/postgres"
	"mnetifi-service/internal/service/invalidation"
)

// StaleAfter is how long a push may stay PENDING before the sweep fails it.
const StaleAfter = 30 * time.Minute

type Repository interface {
	Create(ctx context.Context, t *transaction.Transaction) error
	SetCheckoutIDs(ctx context.Context, id int64, merchantRequestID, checkoutRequestID string) error
	FindByID(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error)
	FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error)
	Complete(ctx context.Context, id int64, receipt string, paid *decimal.Decimal, mac, ip *string, now time.Time) (*postgres.Completion, error)
	Fail(ctx context.Context, id int64, reason string) (*transaction.Transaction, error)
	SetReconciliation(ctx context.Context, id int64, status transaction.ReconciliationStatus, paid *decimal.Decimal) error
	FailStale(ctx context.Context, cutoff time.Time) ([]transaction.Transaction, error)
	List(ctx context.Context, tenantID int64, filters *transaction.TransactionListFilters) ([]transaction.Transaction, int64, error)
	Stats(ctx context.Context, tenantID int64, today time.Time) (*transaction.Stats, error)
}

type Plans interface {
	FindByID(ctx context.Context, tenantID, id int64) (*plan.Plan, error)
}

type Tenants interface {
	FindByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// Credentials yields a tenant's decrypted provider credentials.
type Credentials interface {
	Credentials(ctx context.Context, tenantID int64) (tenant.Credentials, error)
}

// Gateway is the Daraja surface the service uses.
type Gateway interface {
	STKPush(ctx context.Context, tenantID int64, creds mpesa.Credentials, in mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
	Query(ctx context.Context, tenantID int64, creds mpesa.Credentials, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, tenantID, transactionID int64) error
	EnqueueSMS(ctx context.Context, tenantID int64, phone, message string) error
}

type Notifier interface {
	NotifyTenantAdmins(ctx context.Context, tenantID int64, a notification.Alert) error
}

type Counters interface {
	PaymentSettled(status string, amount float64)
}

type Deps struct {
	Repo        Repository
	Plans       Plans
	Tenants     Tenants
	Credentials Credentials
	Gateway     Gateway
	Enqueuer    Enqueuer
	Notifier    Notifier
	Invalidator invalidation.Invalidator
	Counters    Counters
	// CallbackBaseURL is the public API origin Daraja posts results to.
	CallbackBaseURL string
	Logger          *zap.Logger
}

type TransactionService struct {
	Deps
	now func() time.Time
}

func NewTransactionService(d Deps) *TransactionService {
	d.CallbackBaseURL = strings.TrimRight(d.CallbackBaseURL, "/")
	return &TransactionService{Deps: d, now: time.Now}
}

func toMpesa(c tenant.Credentials) mpesa.Credentials {
	return mpesa.Credentials{
		Shortcode:      c.MpesaShortcode,
		Passkey:        c.MpesaPasskey,
		ConsumerKey:    c.MpesaConsumerKey,
		ConsumerSecret: c.MpesaConsumerSecret,
		Environment:    c.MpesaEnvironment,
	}
}

func (s *TransactionService) CallbackURL(tenantID int64) string {
	return fmt.Sprintf("%s/api/mpesa/callback/%d", s.CallbackBaseURL, tenantID)
}

// ========== STK push ==========

// InitiateSTKPush records a PENDING transaction for the plan price and
// prompts the payer's phone. A refused push leaves a FAILED row behind.
func (s *TransactionService) InitiateSTKPush(ctx context.Context, tenantID int64, req *transaction.STKPushRequest) (*transaction.Transaction, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.Plans.FindByID(ctx, tenantID, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("plan %s is not on sale: %w", p.Name, xerrors.ErrBadRequest)
	}
	t, err := s.Tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	creds, err := s.Credentials.Credentials(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !creds.HasMpesa() {
		return nil, fmt.Errorf("M-Pesa is not configured for this account: %w", xerrors.ErrBadRequest)
	}

	txn := &transaction.Transaction{
		TenantID:  tenantID,
		UserPhone: req.Phone,
		Amount:    p.Price,
		PlanID:    &p.ID,
		HotspotID: req.HotspotID,
	}
	if err := s.Repo.Create(ctx, txn); err != nil {
		return nil, err
	}

	out, err := s.Gateway.STKPush(ctx, tenantID, toMpesa(creds), mpesa.STKPushRequest{
		Phone:       req.Phone,
		Amount:      p.Price,
		AccountRef:  t.Subdomain,
		Description: p.Name,
		CallbackURL: s.CallbackURL(tenantID),
	})
	if err != nil {
		s.Logger.Error("stk push failed",
			zap.Int64("tenant_id", tenantID), zap.Int64("transaction_id", txn.ID), zap.Error(err))
		if failed, ferr := s.Repo.Fail(ctx, txn.ID, "stk push failed: "+err.Error()); ferr == nil {
			s.settled(ctx, failed)
		}
		return nil, fmt.Errorf("could not reach M-Pesa, try again: %w", xerrors.ErrUpstream)
	}

	if err := s.Repo.SetCheckoutIDs(ctx, txn.ID, out.MerchantRequestID, out.CheckoutRequestID); err != nil {
		return nil, err
	}
	txn.MerchantRequestID = &out.MerchantRequestID
	txn.CheckoutRequestID = &out.CheckoutRequestID

	if err := s.Enqueuer.EnqueueReconcile(ctx, tenantID, txn.ID); err != nil {
		s.Logger.Error("failed to queue reconciliation", zap.Int64("transaction_id", txn.ID), zap.Error(err))
	}

	s.Logger.Info("stk push sent",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("transaction_id", txn.ID),
		zap.String("checkout_request_id", out.CheckoutRequestID),
		zap.String("amount", p.Price.String()),
	)
	s.Invalidator.Invalidate(ctx, tenantID, resource.Transaction)
	return txn, nil
}

// ========== Callback ==========

// HandleCallback applies a Daraja result. Replays and callbacks for
// transactions that already settled are acknowledged without effect.
func (s *TransactionService) HandleCallback(ctx context.Context, tenantID int64, env *transaction.CallbackEnvelope) error {
	pay := env.Body.STKCallback.Payment()
	if pay.CheckoutRequestID == "" {
		return fmt.Errorf("callback without CheckoutRequestID: %w", xerrors.ErrBadRequest)
	}

	txn, err := s.Repo.FindByCheckoutID(ctx, pay.CheckoutRequestID)
	if err != nil {
		return err
	}
	if txn.TenantID != tenantID {
		s.Logger.Warn("callback tenant mismatch",
			zap.Int64("path_tenant_id", tenantID), zap.Int64("transaction_tenant_id", txn.TenantID))
		return xerrors.ErrNotFound
	}
	if txn.Status.Terminal() {
		s.Logger.Info("callback for settled transaction ignored",
			zap.Int64("transaction_id", txn.ID), zap.String("status", string(txn.Status)))
		return nil
	}

	if !pay.Success {
		return s.fail(ctx, txn, pay.ResultDesc)
	}
	return s.complete(ctx, txn, pay.Receipt, pay.Amount)
}

func (s *TransactionService) complete(ctx context.Context, txn *transaction.Transaction, receipt string, paid *decimal.Decimal) error {
	c, err := s.Repo.Complete(ctx, txn.ID, receipt, paid, nil, nil, s.now())
	if errors.Is(err, xerrors.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	done := c.Transaction
	s.settled(ctx, done)

	s.Logger.Info("payment completed",
		zap.Int64("tenant_id", done.TenantID),
		zap.Int64("transaction_id", done.ID),
		zap.String("receipt", receipt),
		zap.Int64("wifi_user_id", c.WifiUserID),
		zap.Int64("points", c.PointsEarned),
	)

	if c.PlanName != "" {
		msg := fmt.Sprintf("Payment of KES %s received (%s). %s is active until %s.",
			done.Amount.StringFixed(0), receipt, c.PlanName,
			c.ExpiresAt.In(eat).Format("02 Jan 15:04"))
		if c.PointsEarned > 0 {
			msg += fmt.Sprintf(" You earned %d points.", c.PointsEarned)
		}
		if err := s.Enqueuer.EnqueueSMS(ctx, done.TenantID, done.UserPhone, msg); err != nil {
			s.Logger.Error("failed to queue receipt sms", zap.Int64("transaction_id", done.ID), zap.Error(err))
		}
	}

	if err := s.Notifier.NotifyTenantAdmins(ctx, done.TenantID, notification.Alert{
		Title:   "Payment received",
		Message: fmt.Sprintf("KES %s from %s (%s)", done.Amount.StringFixed(2), done.UserPhone, receipt),
		Type:    notification.TypePayment,
		Metadata: map[string]interface{}{
			"transaction_id": done.ID,
			"receipt":        receipt,
		},
		TTL: 7 * 24 * time.Hour,
	}); err != nil {
		s.Logger.Warn("failed to notify admins of payment", zap.Error(err))
	}
	return nil
}

func (s *TransactionService) fail(ctx context.Context, txn *transaction.Transaction, reason string) error {
	failed, err := s.Repo.Fail(ctx, txn.ID, reason)
	if errors.Is(err, xerrors.ErrInvalidTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	s.Logger.Info("payment failed",
		zap.Int64("tenant_id", failed.TenantID),
		zap.Int64("transaction_id", failed.ID),
		zap.String("reason", reason),
	)
	s.settled(ctx, failed)
	return nil
}

func (s *TransactionService) settled(ctx context.Context, t *transaction.Transaction) {
	amount := 0.0
	if t.Status == transaction.StatusCompleted {
		amount = t.Amount.InexactFloat64()
	}
	s.Counters.PaymentSettled(string(t.Status), amount)
	s.Invalidator.Invalidate(ctx, t.TenantID, resource.Transaction)
}

// ========== Reconciliation ==========

// Reconcile settles the reconciliation status of a transaction. A PENDING
// transaction is resolved against Daraja's STK query; while the customer
// has not answered, mpesa.ErrStillProcessing is returned so the job retries.
func (s *TransactionService) Reconcile(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error) {
	txn, err := s.Repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	switch txn.Status {
	case transaction.StatusCompleted:
		receipt := ""
		if txn.MpesaReceiptNumber != nil {
			receipt = *txn.MpesaReceiptNumber
		}
		status := transaction.Reconcile(txn.Amount, receipt, txn.PaidAmount)
		if err := s.Repo.SetReconciliation(ctx, txn.ID, status, nil); err != nil {
			return nil, err
		}
		txn.ReconciliationStatus = status

	case transaction.StatusFailed:
		if txn.ReconciliationStatus == transaction.ReconPending {
			if err := s.Repo.SetReconciliation(ctx, txn.ID, transaction.ReconUnmatched, nil); err != nil {
				return nil, err
			}
			txn.ReconciliationStatus = transaction.ReconUnmatched
		}

	case transaction.StatusPending:
		if txn.CheckoutRequestID == nil {
			return txn, nil
		}
		creds, err := s.Credentials.Credentials(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		res, err := s.Gateway.Query(ctx, tenantID, toMpesa(creds), *txn.CheckoutRequestID)
		if err != nil {
			return nil, err
		}
		if res.Paid() {
			// The query carries no receipt number: the checkout id stands in
			// and the row stays PENDING reconciliation for review.
			if err := s.complete(ctx, txn, *txn.CheckoutRequestID, nil); err != nil {
				return nil, err
			}
		} else {
			if err := s.fail(ctx, txn, res.ResultDesc); err != nil {
				return nil, err
			}
			if err := s.Repo.SetReconciliation(ctx, txn.ID, transaction.ReconUnmatched, nil); err != nil {
				return nil, err
			}
		}
		return s.Repo.FindByID(ctx, tenantID, id)
	}

	s.Invalidator.Invalidate(ctx, tenantID, resource.Transaction)
	return txn, nil
}

// FailStale fails pushes nobody answered. Runs from the scheduler.
func (s *TransactionService) FailStale(ctx context.Context) (int, error) {
	stale, err := s.Repo.FailStale(ctx, s.now().Add(-StaleAfter))
	if err != nil {
		return 0, err
	}
	tenants := map[int64]struct{}{}
	for i := range stale {
		s.Counters.PaymentSettled(string(transaction.StatusFailed), 0)
		tenants[stale[i].TenantID] = struct{}{}
	}
	for id := range tenants {
		s.Invalidator.Invalidate(ctx, id, resource.Transaction)
	}
	if len(stale) > 0 {
		s.Logger.Info("stale transactions failed", zap.Int("count", len(stale)))
	}
	return len(stale), nil
}

// ========== Queries ==========

func (s *TransactionService) GetTransaction(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error) {
	return s.Repo.FindByID(ctx, tenantID, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, tenantID int64, filters *transaction.TransactionListFilters) (*response.Paginated, error) {
	txns, total, err := s.Repo.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(txns, total, filters.Page, filters.PageSize)
	return &page, nil
}

var eat = time.FixedZone("EAT", 3*60*60)

func (s *TransactionService) Stats(ctx context.Context, tenantID int64) (*transaction.Stats, error) {
	now := s.now().In(eat)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, eat)
	return s.Repo.Stats(ctx, tenantID, today)
}
