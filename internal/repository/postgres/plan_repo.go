// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/plan"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type PlanRepository struct {
	db *pgxpool.Pool
}

func NewPlanRepository(db *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, tenant_id, name, description, price, duration_seconds, plan_type,
	upload_limit, download_limit, speed_mbps, max_devices, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var p plan.Plan
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Price, &p.DurationSeconds, &p.PlanType,
		&p.UploadLimit, &p.DownloadLimit, &p.SpeedMbps, &p.MaxDevices, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlanRepository) Create(ctx context.Context, p *plan.Plan) error {
	query := `
		INSERT INTO plans (tenant_id, name, description, price, duration_seconds, plan_type,
		                   upload_limit, download_limit, speed_mbps, max_devices, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.TenantID, p.Name, p.Description, p.Price, p.DurationSeconds, p.PlanType,
		p.UploadLimit, p.DownloadLimit, p.SpeedMbps, p.MaxDevices, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// FindByID is tenant scoped: another tenant's plan reads as not found.
func (r *PlanRepository) FindByID(ctx context.Context, tenantID, id int64) (*plan.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx,
		`SELECT`+planColumns+` FROM plans WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "plan")
	}
	return p, nil
}

func (r *PlanRepository) Update(ctx context.Context, p *plan.Plan) error {
	query := `
		UPDATE plans
		SET name = $3, description = $4, price = $5, duration_seconds = $6, plan_type = $7,
		    upload_limit = $8, download_limit = $9, speed_mbps = $10, max_devices = $11,
		    is_active = $12, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		p.TenantID, p.ID, p.Name, p.Description, p.Price, p.DurationSeconds, p.PlanType,
		p.UploadLimit, p.DownloadLimit, p.SpeedMbps, p.MaxDevices, p.IsActive,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return notFound(err, "plan")
	}
	return nil
}

// Usage counts the references that block a delete.
func (r *PlanRepository) Usage(ctx context.Context, tenantID, id int64) (plan.Usage, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM vouchers WHERE tenant_id = $1 AND plan_id = $2 AND status = 'AVAILABLE'),
			(SELECT COUNT(*) FROM wifi_users WHERE tenant_id = $1 AND current_plan_id = $2
			    AND status = 'ACTIVE' AND expiry_time > NOW())
	`
	var u plan.Usage
	if err := r.db.QueryRow(ctx, query, tenantID, id).Scan(&u.AvailableVouchers, &u.ActiveUsers); err != nil {
		return u, fmt.Errorf("failed to get plan usage: %w", err)
	}
	return u, nil
}

func (r *PlanRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("plan has voucher batches: %w", xerrors.ErrInUse)
	}
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PlanRepository) List(ctx context.Context, tenantID int64, filters *plan.PlanListFilters) ([]plan.Plan, int64, error) {
	w := newWhere("tenant_id = ?", tenantID)
	if filters.PlanType != nil {
		w.add("plan_type = ?", *filters.PlanType)
	}
	if filters.IsActive != nil {
		w.add("is_active = ?", *filters.IsActive)
	}
	if filters.Search != "" {
		w.add("name ILIKE ?", "%"+filters.Search+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM plans WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count plans: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM plans WHERE %s ORDER BY price ASC, id ASC LIMIT $%d OFFSET $%d`,
		planColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		pl, err := scanPlan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *pl)
	}
	return plans, total, rows.Err()
}

// ListActive feeds the captive portal.
func (r *PlanRepository) ListActive(ctx context.Context, tenantID int64) ([]plan.Plan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT`+planColumns+` FROM plans WHERE tenant_id = $1 AND is_active ORDER BY price ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	plans := []plan.Plan{}
	for rows.Next() {
		pl, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *pl)
	}
	return plans, rows.Err()
}
