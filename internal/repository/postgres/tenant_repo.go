// internal/repository/postgres/tenant_repo.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/domain/tenant"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `
	id, name, subdomain, email, phone, location, branding_config,
	subscription_tier, status, trial_expires_at, created_at, updated_at`

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(
		&t.ID, &t.Name, &t.Subdomain, &t.Email, &t.Phone, &t.Location, &t.Branding,
		&t.SubscriptionTier, &t.Status, &t.TrialExpiresAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Register creates the tenant and its first admin atomically.
func (r *TenantRepository) Register(ctx context.Context, t *tenant.Tenant, admin *auth.Identity) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO tenants (name, subdomain, email, phone, location, branding_config, subscription_tier, status, trial_expires_at)
			VALUES ($1, LOWER($2), LOWER($3), $4, $5, $6, $7, $8, $9)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			t.Name, t.Subdomain, t.Email, t.Phone, t.Location, t.Branding,
			t.SubscriptionTier, t.Status, t.TrialExpiresAt,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("subdomain %q is taken: %w", t.Subdomain, xerrors.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}

		admin.TenantID = sql.NullInt64{Int64: t.ID, Valid: true}
		return createIdentity(ctx, tx, admin)
	})
}

func (r *TenantRepository) FindByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT`+tenantColumns+` FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "tenant")
	}
	return t, nil
}

func (r *TenantRepository) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx, `SELECT`+tenantColumns+` FROM tenants WHERE subdomain = LOWER($1)`, subdomain))
	if err != nil {
		return nil, notFound(err, "tenant")
	}
	return t, nil
}

func (r *TenantRepository) SubdomainExists(ctx context.Context, subdomain string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tenants WHERE subdomain = LOWER($1))`, subdomain).Scan(&exists)
	return exists, err
}

// Update writes the profile fields of t.
func (r *TenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, email = LOWER($3), phone = $4, location = $5, branding_config = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, t.ID, t.Name, t.Email, t.Phone, t.Location, t.Branding).Scan(&t.UpdatedAt)
	if err != nil {
		return notFound(err, "tenant")
	}
	return nil
}

// GetCredentials returns the stored (encrypted) credentials blob.
func (r *TenantRepository) GetCredentials(ctx context.Context, id int64) (string, error) {
	var blob string
	if err := r.db.QueryRow(ctx, `SELECT credentials FROM tenants WHERE id = $1`, id).Scan(&blob); err != nil {
		return "", notFound(err, "tenant")
	}
	return blob, nil
}

func (r *TenantRepository) UpdateCredentials(ctx context.Context, id int64, blob string) error {
	tag, err := r.db.Exec(ctx, `UPDATE tenants SET credentials = $2, updated_at = NOW() WHERE id = $1`, id, blob)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *TenantRepository) UpdateStatus(ctx context.Context, id int64, status tenant.Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateTier changes the tier; trialExpiresAt is cleared for paid tiers.
func (r *TenantRepository) UpdateTier(ctx context.Context, id int64, tier tenant.Tier, trialExpiresAt *time.Time) error {
	query := `
		UPDATE tenants
		SET subscription_tier = $2, trial_expires_at = $3,
		    status = CASE WHEN status = 'EXPIRED' THEN 'ACTIVE' ELSE status END,
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, tier, trialExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *TenantRepository) List(ctx context.Context, filters *tenant.TenantListFilters) ([]tenant.Tenant, int64, error) {
	w := newWhere("TRUE")
	if filters.Status != nil {
		w.add("status = ?", *filters.Status)
	}
	if filters.Tier != nil {
		w.add("subscription_tier = ?", *filters.Tier)
	}
	if filters.Search != "" {
		w.add("(name ILIKE ? OR subdomain ILIKE ?)", "%"+filters.Search+"%", "%"+filters.Search+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tenants WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM tenants WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		tenantColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []tenant.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, total, rows.Err()
}

// Stats aggregates tenant counts for the platform dashboard.
func (r *TenantRepository) Stats(ctx context.Context) (*tenant.PlatformStats, error) {
	stats := &tenant.PlatformStats{
		ByTier:   map[tenant.Tier]int64{},
		ByStatus: map[tenant.Status]int64{},
	}
	rows, err := r.db.Query(ctx, `SELECT subscription_tier, status, COUNT(*) FROM tenants GROUP BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tenants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier tenant.Tier
		var status tenant.Status
		var n int64
		if err := rows.Scan(&tier, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan tenant stats: %w", err)
		}
		stats.ByTier[tier] += n
		stats.ByStatus[status] += n
		stats.TotalTenants += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query := `
		SELECT COUNT(*) FROM tenants
		WHERE subscription_tier = 'TRIAL' AND status = 'ACTIVE'
		  AND trial_expires_at BETWEEN NOW() AND NOW() + INTERVAL '7 days'
	`
	if err := r.db.QueryRow(ctx, query).Scan(&stats.TrialsExpiring7d); err != nil {
		return nil, fmt.Errorf("failed to count expiring trials: %w", err)
	}
	return stats, nil
}

// ExpireTrials marks lapsed trials EXPIRED and returns the affected ids.
func (r *TenantRepository) ExpireTrials(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		UPDATE tenants SET status = 'EXPIRED', updated_at = NOW()
		WHERE subscription_tier = 'TRIAL' AND status = 'ACTIVE' AND trial_expires_at < $1
		RETURNING id
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire trials: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// ListActiveIDs returns tenants that background sweeps should visit.
func (r *TenantRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM tenants WHERE status = 'ACTIVE' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
