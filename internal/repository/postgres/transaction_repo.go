// internal/repository/postgres/transaction_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"mnetifi-service/internal/domain/loyalty"
	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/domain/wifiuser"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type TransactionRepository struct {
	db *pgxpool.Pool
}

func NewTransactionRepository(db *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, tenant_id, user_phone, amount, status, mpesa_receipt_number, merchant_request_id,
	checkout_request_id, reconciliation_status, paid_amount, plan_id, wifi_user_id, hotspot_id,
	failure_reason, completed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := row.Scan(
		&t.ID, &t.TenantID, &t.UserPhone, &t.Amount, &t.Status, &t.MpesaReceiptNumber, &t.MerchantRequestID,
		&t.CheckoutRequestID, &t.ReconciliationStatus, &t.PaidAmount, &t.PlanID, &t.WifiUserID, &t.HotspotID,
		&t.FailureReason, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Completion is what a successful payment applied.
type Completion struct {
	Transaction  *transaction.Transaction
	WifiUserID   int64
	PlanName     string
	ExpiresAt    time.Time
	PointsEarned int64
}

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (tenant_id, user_phone, amount, status, plan_id, hotspot_id)
		VALUES ($1, $2, $3, 'PENDING', $4, $5)
		RETURNING id, status, reconciliation_status, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, t.TenantID, t.UserPhone, t.Amount, t.PlanID, t.HotspotID).
		Scan(&t.ID, &t.Status, &t.ReconciliationStatus, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// SetCheckoutIDs records the ids Daraja returned for the STK push.
func (r *TransactionRepository) SetCheckoutIDs(ctx context.Context, id int64, merchantRequestID, checkoutRequestID string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE transactions SET merchant_request_id = $2, checkout_request_id = $3, updated_at = NOW()
		WHERE id = $1`, id, merchantRequestID, checkoutRequestID)
	if err != nil {
		return fmt.Errorf("failed to store checkout ids: %w", err)
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, tenantID, id int64) (*transaction.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return t, nil
}

func (r *TransactionRepository) FindByCheckoutID(ctx context.Context, checkoutRequestID string) (*transaction.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx,
		`SELECT`+transactionColumns+` FROM transactions WHERE checkout_request_id = $1`, checkoutRequestID))
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return t, nil
}

// Complete settles a PENDING transaction and applies the purchase: the WiFi
// user is activated for the plan and earns loyalty points. A transaction that
// already left PENDING yields ErrInvalidTransition and changes nothing.
func (r *TransactionRepository) Complete(ctx context.Context, id int64, receipt string, paid *decimal.Decimal, mac, ip *string, now time.Time) (*Completion, error) {
	var c Completion
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		t, err := scanTransaction(tx.QueryRow(ctx, `
			UPDATE transactions
			SET status = 'COMPLETED', mpesa_receipt_number = $2, paid_amount = $3,
			    reconciliation_status = CASE WHEN $3::numeric IS NULL THEN 'PENDING'
			                                 WHEN $3::numeric = amount THEN 'MATCHED'
			                                 ELSE 'MISMATCHED' END,
			    completed_at = $4, updated_at = NOW()
			WHERE id = $1 AND status = 'PENDING'
			RETURNING`+transactionColumns, id, receipt, paid, now))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("transaction %d is not pending: %w", id, xerrors.ErrInvalidTransition)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("receipt %s already recorded: %w", receipt, xerrors.ErrDuplicateEntry)
		}
		if err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}
		c.Transaction = t

		if t.PlanID == nil {
			return nil
		}
		var seconds int64
		if err := tx.QueryRow(ctx, `SELECT name, duration_seconds FROM plans WHERE id = $1`, *t.PlanID).
			Scan(&c.PlanName, &seconds); err != nil {
			return notFound(err, "plan")
		}

		activation := wifiuser.Activation{PlanID: *t.PlanID, HotspotID: t.HotspotID, MACAddress: mac, IPAddress: ip}
		c.WifiUserID, c.ExpiresAt, err = activateWifiUser(ctx, tx, t.TenantID, t.UserPhone, activation, time.Duration(seconds)*time.Second, now)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE transactions SET wifi_user_id = $2 WHERE id = $1`, t.ID, c.WifiUserID); err != nil {
			return fmt.Errorf("failed to link wifi user: %w", err)
		}
		t.WifiUserID = &c.WifiUserID

		if points := loyalty.PointsForAmount(t.Amount); points > 0 {
			ref := fmt.Sprintf("txn:%d", t.ID)
			if _, err := earnPoints(ctx, tx, t.TenantID, c.WifiUserID, points, "Purchase: "+c.PlanName, &ref); err != nil {
				return err
			}
			c.PointsEarned = points
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Fail moves a PENDING transaction to FAILED.
func (r *TransactionRepository) Fail(ctx context.Context, id int64, reason string) (*transaction.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `
		UPDATE transactions SET status = 'FAILED', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING`+transactionColumns, id, reason))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d is not pending: %w", id, xerrors.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fail transaction: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) SetReconciliation(ctx context.Context, id int64, status transaction.ReconciliationStatus, paid *decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		UPDATE transactions SET reconciliation_status = $2, paid_amount = COALESCE($3, paid_amount), updated_at = NOW()
		WHERE id = $1`, id, status, paid)
	if err != nil {
		return fmt.Errorf("failed to set reconciliation: %w", err)
	}
	return nil
}

// FailStale fails PENDING transactions created before cutoff and returns them.
func (r *TransactionRepository) FailStale(ctx context.Context, cutoff time.Time) ([]transaction.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE transactions SET status = 'FAILED', failure_reason = 'payment timed out', updated_at = NOW()
		WHERE status = 'PENDING' AND created_at < $1
		RETURNING`+transactionColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stale transactions: %w", err)
	}
	defer rows.Close()

	var out []transaction.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) List(ctx context.Context, tenantID int64, filters *transaction.TransactionListFilters) ([]transaction.Transaction, int64, error) {
	w := transactionWhere(tenantID, filters)

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txns := []transaction.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, total, rows.Err()
}

func transactionWhere(tenantID int64, filters *transaction.TransactionListFilters) *where {
	w := newWhere("tenant_id = ?", tenantID)
	if filters.Status != nil {
		w.add("status = ?", *filters.Status)
	}
	if filters.Recon != nil {
		w.add("reconciliation_status = ?", *filters.Recon)
	}
	if filters.Phone != "" {
		w.add("user_phone LIKE ?", "%"+filters.Phone+"%")
	}
	if filters.WifiUserID != nil {
		w.add("wifi_user_id = ?", *filters.WifiUserID)
	}
	if filters.From != nil {
		w.add("created_at >= ?", *filters.From)
	}
	if filters.To != nil {
		w.add("created_at < ?", filters.To.AddDate(0, 0, 1))
	}
	return w
}

func (r *TransactionRepository) Stats(ctx context.Context, tenantID int64, today time.Time) (*transaction.Stats, error) {
	var s transaction.Stats
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'PENDING'),
		       COUNT(*) FILTER (WHERE status = 'FAILED'),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED' AND completed_at >= $2), 0)
		FROM transactions WHERE tenant_id = $1`, tenantID, today,
	).Scan(&s.TotalCount, &s.CompletedCount, &s.PendingCount, &s.FailedCount, &s.TotalRevenue, &s.RevenueToday)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction stats: %w", err)
	}
	if settled := s.CompletedCount + s.FailedCount; settled > 0 {
		s.SuccessRate = float64(s.CompletedCount) / float64(settled) * 100
	}
	return &s, nil
}
