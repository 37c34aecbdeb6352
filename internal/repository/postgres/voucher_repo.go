// internal/repository/postgres/voucher_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"mnetifi-service/internal/domain/voucher"
	"mnetifi-service/internal/domain/wifiuser"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type VoucherRepository struct {
	db *pgxpool.Pool
}

func NewVoucherRepository(db *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// ========== Batches ==========

const batchSelect = `
	SELECT b.id, b.tenant_id, b.reference, b.plan_id, p.name, b.quantity, b.used_count,
	       b.prefix, b.valid_until, b.status, b.created_by, b.created_at, b.updated_at
	FROM voucher_batches b
	JOIN plans p ON p.id = b.plan_id`

func scanBatch(row pgx.Row) (*voucher.Batch, error) {
	var b voucher.Batch
	err := row.Scan(
		&b.ID, &b.TenantID, &b.Reference, &b.PlanID, &b.PlanName, &b.Quantity, &b.UsedCount,
		&b.Prefix, &b.ValidUntil, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *VoucherRepository) CreateBatch(ctx context.Context, b *voucher.Batch) error {
	query := `
		INSERT INTO voucher_batches (tenant_id, reference, plan_id, quantity, prefix, valid_until, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.TenantID, b.Reference, b.PlanID, b.Quantity, b.Prefix, b.ValidUntil, b.Status, b.CreatedBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create voucher batch: %w", err)
	}
	return nil
}

func (r *VoucherRepository) FindBatch(ctx context.Context, tenantID, id int64) (*voucher.Batch, error) {
	b, err := scanBatch(r.db.QueryRow(ctx, batchSelect+` WHERE b.tenant_id = $1 AND b.id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "voucher batch")
	}
	return b, nil
}

func (r *VoucherRepository) SetBatchStatus(ctx context.Context, id int64, status voucher.BatchStatus) error {
	_, err := r.db.Exec(ctx, `UPDATE voucher_batches SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return nil
}

// DisableBatch disables the batch and every still-available code in it.
func (r *VoucherRepository) DisableBatch(ctx context.Context, tenantID, id int64) (int64, error) {
	var disabled int64
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE voucher_batches SET status = 'DISABLED', updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
			tenantID, id)
		if err != nil {
			return fmt.Errorf("failed to disable batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return xerrors.ErrNotFound
		}
		tag, err = tx.Exec(ctx,
			`UPDATE vouchers SET status = 'DISABLED' WHERE batch_id = $1 AND status = 'AVAILABLE'`, id)
		if err != nil {
			return fmt.Errorf("failed to disable vouchers: %w", err)
		}
		disabled = tag.RowsAffected()
		return nil
	})
	return disabled, err
}

func (r *VoucherRepository) ListBatches(ctx context.Context, tenantID int64, filters *voucher.BatchListFilters) ([]voucher.Batch, int64, error) {
	w := newWhere("b.tenant_id = ?", tenantID)
	if filters.PlanID != nil {
		w.add("b.plan_id = ?", *filters.PlanID)
	}
	if filters.Status != nil {
		w.add("b.status = ?", *filters.Status)
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM voucher_batches b WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count batches: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`%s WHERE %s ORDER BY b.created_at DESC LIMIT $%d OFFSET $%d`,
		batchSelect, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []voucher.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, total, rows.Err()
}

// ========== Codes ==========

// InsertCodes bulk inserts codes for a batch and returns how many were new.
// Collisions with existing codes are skipped rather than failing the batch.
func (r *VoucherRepository) InsertCodes(ctx context.Context, b *voucher.Batch, codes []string) (int, error) {
	query := `
		INSERT INTO vouchers (tenant_id, batch_id, plan_id, code, valid_until)
		SELECT $1, $2, $3, code, $4 FROM unnest($5::text[]) AS code
		ON CONFLICT (tenant_id, code) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, b.TenantID, b.ID, b.PlanID, b.ValidUntil, pq.Array(codes))
	if err != nil {
		return 0, fmt.Errorf("failed to insert vouchers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *VoucherRepository) CountBatchCodes(ctx context.Context, batchID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers WHERE batch_id = $1`, batchID).Scan(&n)
	return n, err
}

const voucherColumns = `id, tenant_id, batch_id, plan_id, code, status, used_by, used_at, valid_until, created_at`

func scanVoucher(row pgx.Row) (*voucher.Voucher, error) {
	var v voucher.Voucher
	err := row.Scan(&v.ID, &v.TenantID, &v.BatchID, &v.PlanID, &v.Code, &v.Status,
		&v.UsedBy, &v.UsedAt, &v.ValidUntil, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *VoucherRepository) FindVoucher(ctx context.Context, tenantID, id int64) (*voucher.Voucher, error) {
	v, err := scanVoucher(r.db.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "voucher")
	}
	return v, nil
}

func (r *VoucherRepository) ListVouchers(ctx context.Context, tenantID int64, filters *voucher.VoucherListFilters) ([]voucher.Voucher, int64, error) {
	w := newWhere("tenant_id = ?", tenantID)
	if filters.BatchID != nil {
		w.add("batch_id = ?", *filters.BatchID)
	}
	if filters.Status != nil {
		w.add("status = ?", *filters.Status)
	}
	if filters.Code != "" {
		w.add("code ILIKE ?", "%"+filters.Code+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM vouchers WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count vouchers: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM vouchers WHERE %s ORDER BY id ASC LIMIT $%d OFFSET $%d`,
		voucherColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	vouchers := []voucher.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, total, rows.Err()
}

// BatchCodes returns every code of a batch for printing/export.
func (r *VoucherRepository) BatchCodes(ctx context.Context, tenantID, batchID int64) ([]voucher.Voucher, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE tenant_id = $1 AND batch_id = $2 ORDER BY id`,
		tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch codes: %w", err)
	}
	defer rows.Close()

	vouchers := []voucher.Voucher{}
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}

// SetVoucherStatus moves a voucher from one status to another; a row that is
// no longer in from yields ErrInvalidTransition.
func (r *VoucherRepository) SetVoucherStatus(ctx context.Context, tenantID, id int64, from, to voucher.Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE vouchers SET status = $4 WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to update voucher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrInvalidTransition
	}
	return nil
}

// ExpireVouchers marks AVAILABLE codes past valid_until as EXPIRED and
// returns the tenants that changed.
func (r *VoucherRepository) ExpireVouchers(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		WITH expired AS (
			UPDATE vouchers SET status = 'EXPIRED'
			WHERE status = 'AVAILABLE' AND valid_until IS NOT NULL AND valid_until <= $1
			RETURNING tenant_id
		)
		SELECT DISTINCT tenant_id FROM expired`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire vouchers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ========== Redemption ==========

// Redeem spends a code for phone in one transaction: the voucher row is
// locked, the batch counter is bumped under its quantity cap and the WiFi
// user is activated for the plan's duration.
func (r *VoucherRepository) Redeem(ctx context.Context, tenantID int64, req voucher.RedeemRequest, phone string, now time.Time) (*voucher.RedeemResult, error) {
	var result voucher.RedeemResult
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			v        voucher.Voucher
			planName string
			seconds  int64
		)
		err := tx.QueryRow(ctx, `
			SELECT v.id, v.batch_id, v.plan_id, v.status, v.valid_until, p.name, p.duration_seconds
			FROM vouchers v
			JOIN plans p ON p.id = v.plan_id
			WHERE v.tenant_id = $1 AND v.code = UPPER($2)
			FOR UPDATE OF v`, tenantID, req.Code,
		).Scan(&v.ID, &v.BatchID, &v.PlanID, &v.Status, &v.ValidUntil, &planName, &seconds)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("voucher code not recognised: %w", xerrors.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock voucher: %w", err)
		}

		if v.Status != voucher.StatusAvailable {
			return fmt.Errorf("voucher is %s: %w", v.Status, xerrors.ErrConflict)
		}
		if v.Expired(now) {
			return fmt.Errorf("voucher expired: %w", xerrors.ErrConflict)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE voucher_batches SET used_count = used_count + 1, updated_at = NOW()
			WHERE id = $1 AND used_count < quantity AND status <> 'DISABLED'`, v.BatchID)
		if err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("voucher batch exhausted: %w", xerrors.ErrConflict)
		}

		activation := wifiuser.Activation{
			PlanID:     v.PlanID,
			HotspotID:  req.HotspotID,
			MACAddress: optional(req.MACAddress),
			IPAddress:  optional(req.IPAddress),
		}
		userID, expiry, err := activateWifiUser(ctx, tx, tenantID, phone, activation, time.Duration(seconds)*time.Second, now)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE vouchers SET status = 'USED', used_by = $2, used_at = $3 WHERE id = $1`,
			v.ID, userID, now); err != nil {
			return fmt.Errorf("failed to mark voucher used: %w", err)
		}

		result = voucher.RedeemResult{WifiUserID: userID, PlanID: v.PlanID, PlanName: planName, ExpiresAt: expiry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
