// internal/repository/postgres/loyalty_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/loyalty"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type LoyaltyRepository struct {
	db *pgxpool.Pool
}

func NewLoyaltyRepository(db *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{db: db}
}

// GetSummary returns the balance row (zero when none exists yet) and the
// most recent ledger entries.
func (r *LoyaltyRepository) GetSummary(ctx context.Context, tenantID, wifiUserID int64, limit int) (*loyalty.Summary, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wifi_users WHERE tenant_id = $1 AND id = $2)`, tenantID, wifiUserID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check wifi user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("wifi user: %w", xerrors.ErrNotFound)
	}

	summary := &loyalty.Summary{
		Account: loyalty.Account{WifiUserID: wifiUserID, TenantID: tenantID},
		Entries: []loyalty.Entry{},
	}
	err := r.db.QueryRow(ctx, `
		SELECT balance, total_earned, total_redeemed, updated_at
		FROM loyalty_accounts WHERE wifi_user_id = $1`, wifiUserID,
	).Scan(&summary.Account.Balance, &summary.Account.TotalEarned, &summary.Account.TotalRedeemed, &summary.Account.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get loyalty account: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, wifi_user_id, type, points, reason, reference_id, created_at
		FROM loyalty_entries
		WHERE tenant_id = $1 AND wifi_user_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, tenantID, wifiUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list loyalty entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e loyalty.Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.WifiUserID, &e.Type, &e.Points, &e.Reason, &e.ReferenceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty entry: %w", err)
		}
		summary.Entries = append(summary.Entries, e)
	}
	return summary, rows.Err()
}

func (r *LoyaltyRepository) Earn(ctx context.Context, tenantID, wifiUserID int64, req loyalty.EarnRequest) (*loyalty.Account, error) {
	var acct *loyalty.Account
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		acct, err = earnPoints(ctx, tx, tenantID, wifiUserID, req.Points, req.Reason, req.ReferenceID)
		return err
	})
	return acct, err
}

// Redeem fails with ErrInsufficientPoints when the locked balance is short.
func (r *LoyaltyRepository) Redeem(ctx context.Context, tenantID, wifiUserID int64, req loyalty.RedeemRequest) (*loyalty.Account, error) {
	var acct *loyalty.Account
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, tenantID, wifiUserID)
		if err != nil {
			return err
		}
		if req.Points > a.Balance {
			return fmt.Errorf("balance %d, requested %d: %w", a.Balance, req.Points, xerrors.ErrInsufficientPoints)
		}

		err = tx.QueryRow(ctx, `
			UPDATE loyalty_accounts
			SET balance = balance - $2, total_redeemed = total_redeemed + $2, updated_at = NOW()
			WHERE wifi_user_id = $1
			RETURNING balance, total_earned, total_redeemed, updated_at`, wifiUserID, req.Points,
		).Scan(&a.Balance, &a.TotalEarned, &a.TotalRedeemed, &a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to debit points: %w", err)
		}
		if err := appendEntry(ctx, tx, tenantID, wifiUserID, loyalty.EntryRedeem, req.Points, req.Reason, nil); err != nil {
			return err
		}
		acct = a
		return nil
	})
	return acct, err
}

// lockAccount ensures a balance row exists and holds it FOR UPDATE.
func lockAccount(ctx context.Context, q Querier, tenantID, wifiUserID int64) (*loyalty.Account, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO loyalty_accounts (wifi_user_id, tenant_id)
		SELECT id, tenant_id FROM wifi_users WHERE tenant_id = $1 AND id = $2
		ON CONFLICT (wifi_user_id) DO NOTHING`, tenantID, wifiUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to open loyalty account: %w", err)
	}

	a := &loyalty.Account{WifiUserID: wifiUserID, TenantID: tenantID}
	err = q.QueryRow(ctx, `
		SELECT balance, total_earned, total_redeemed, updated_at
		FROM loyalty_accounts
		WHERE tenant_id = $1 AND wifi_user_id = $2
		FOR UPDATE`, tenantID, wifiUserID,
	).Scan(&a.Balance, &a.TotalEarned, &a.TotalRedeemed, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "wifi user")
	}
	return a, nil
}

// earnPoints credits points once per reference; a repeated reference is a
// no-op that returns the current account.
func earnPoints(ctx context.Context, q Querier, tenantID, wifiUserID, points int64, reason string, ref *string) (*loyalty.Account, error) {
	a, err := lockAccount(ctx, q, tenantID, wifiUserID)
	if err != nil {
		return nil, err
	}
	if ref != nil {
		var seen bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM loyalty_entries
			              WHERE wifi_user_id = $1 AND type = 'EARN' AND reference_id = $2)`,
			wifiUserID, *ref).Scan(&seen); err != nil {
			return nil, fmt.Errorf("failed to check loyalty reference: %w", err)
		}
		if seen {
			return a, nil
		}
	}

	err = q.QueryRow(ctx, `
		UPDATE loyalty_accounts
		SET balance = balance + $2, total_earned = total_earned + $2, updated_at = NOW()
		WHERE wifi_user_id = $1
		RETURNING balance, total_earned, total_redeemed, updated_at`, wifiUserID, points,
	).Scan(&a.Balance, &a.TotalEarned, &a.TotalRedeemed, &a.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to credit points: %w", err)
	}
	if err := appendEntry(ctx, q, tenantID, wifiUserID, loyalty.EntryEarn, points, reason, ref); err != nil {
		return nil, err
	}
	return a, nil
}

func appendEntry(ctx context.Context, q Querier, tenantID, wifiUserID int64, typ loyalty.EntryType, points int64, reason string, ref *string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO loyalty_entries (tenant_id, wifi_user_id, type, points, reason, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6)`, tenantID, wifiUserID, typ, points, reason, ref)
	if err != nil {
		return fmt.Errorf("failed to append loyalty entry: %w", err)
	}
	return nil
}
