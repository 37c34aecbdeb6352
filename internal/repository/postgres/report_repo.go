// internal/repository/postgres/report_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/report"
)

type ReportRepository struct {
	db *pgxpool.Pool
}

func NewReportRepository(db *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{db: db}
}

// Summary computes dashboard counters; dayStart and monthStart are in the
// tenant's reporting timezone.
func (r *ReportRepository) Summary(ctx context.Context, tenantID int64, now, dayStart, monthStart time.Time) (*report.Summary, error) {
	s := &report.Summary{GeneratedAt: now}
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM wifi_users WHERE tenant_id = $1 AND status = 'ACTIVE' AND expiry_time > $2),
			(SELECT COUNT(*) FROM wifi_users WHERE tenant_id = $1),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions
			  WHERE tenant_id = $1 AND status = 'COMPLETED' AND completed_at >= $3),
			(SELECT COALESCE(SUM(amount), 0) FROM transactions
			  WHERE tenant_id = $1 AND status = 'COMPLETED' AND completed_at >= $4),
			(SELECT COUNT(*) FROM transactions WHERE tenant_id = $1 AND status = 'PENDING'),
			(SELECT COUNT(*) FROM tickets WHERE tenant_id = $1 AND status IN ('OPEN', 'IN_PROGRESS')),
			(SELECT COUNT(*) FROM vouchers WHERE tenant_id = $1 AND status = 'AVAILABLE')`,
		tenantID, now, dayStart, monthStart,
	).Scan(&s.ActiveUsers, &s.TotalUsers, &s.RevenueToday, &s.RevenueMonth,
		&s.PendingTransactions, &s.OpenTickets, &s.AvailableVouchers)
	if err != nil {
		return nil, fmt.Errorf("failed to build summary: %w", err)
	}
	return s, nil
}

// RevenueByDay returns one point per day in [from, to), zero-filled.
func (r *ReportRepository) RevenueByDay(ctx context.Context, tenantID int64, from, to time.Time) ([]report.RevenuePoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d::date,
		       COALESCE(SUM(t.amount), 0),
		       COUNT(t.id)
		FROM generate_series($2::date, ($3::timestamptz - INTERVAL '1 day')::date, INTERVAL '1 day') AS d
		LEFT JOIN transactions t
		       ON t.tenant_id = $1 AND t.status = 'COMPLETED' AND t.completed_at::date = d::date
		GROUP BY d
		ORDER BY d`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	defer rows.Close()

	points := []report.RevenuePoint{}
	for rows.Next() {
		var p report.RevenuePoint
		if err := rows.Scan(&p.Day, &p.Revenue, &p.Transactions); err != nil {
			return nil, fmt.Errorf("failed to scan revenue point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
