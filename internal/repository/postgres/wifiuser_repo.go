// internal/repository/postgres/wifiuser_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/wifiuser"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type WifiUserRepository struct {
	db *pgxpool.Pool
}

func NewWifiUserRepository(db *pgxpool.Pool) *WifiUserRepository {
	return &WifiUserRepository{db: db}
}

const wifiUserSelect = `
	SELECT u.id, u.tenant_id, u.phone_number, u.full_name, u.account_type, u.status,
	       u.current_plan_id, p.name, u.current_hotspot_id, u.expiry_time,
	       u.mac_address, u.ip_address, u.pppoe_username, u.created_at, u.updated_at
	FROM wifi_users u
	LEFT JOIN plans p ON p.id = u.current_plan_id`

func scanWifiUser(row pgx.Row) (*wifiuser.WifiUser, error) {
	var u wifiuser.WifiUser
	err := row.Scan(
		&u.ID, &u.TenantID, &u.PhoneNumber, &u.FullName, &u.AccountType, &u.Status,
		&u.CurrentPlanID, &u.CurrentPlanName, &u.CurrentHotspotID, &u.ExpiryTime,
		&u.MACAddress, &u.IPAddress, &u.PPPoEUsername, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *WifiUserRepository) Create(ctx context.Context, u *wifiuser.WifiUser) error {
	query := `
		INSERT INTO wifi_users (tenant_id, phone_number, full_name, account_type, status,
		                        current_plan_id, mac_address, pppoe_username)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		u.TenantID, u.PhoneNumber, u.FullName, u.AccountType, u.Status,
		u.CurrentPlanID, u.MACAddress, u.PPPoEUsername,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("phone %s already registered: %w", u.PhoneNumber, xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create wifi user: %w", err)
	}
	return nil
}

func (r *WifiUserRepository) FindByID(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error) {
	u, err := scanWifiUser(r.db.QueryRow(ctx, wifiUserSelect+` WHERE u.tenant_id = $1 AND u.id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "wifi user")
	}
	return u, nil
}

func (r *WifiUserRepository) FindByPhone(ctx context.Context, tenantID int64, phone string) (*wifiuser.WifiUser, error) {
	u, err := scanWifiUser(r.db.QueryRow(ctx, wifiUserSelect+` WHERE u.tenant_id = $1 AND u.phone_number = $2`, tenantID, phone))
	if err != nil {
		return nil, notFound(err, "wifi user")
	}
	return u, nil
}

func (r *WifiUserRepository) Update(ctx context.Context, u *wifiuser.WifiUser) error {
	query := `
		UPDATE wifi_users
		SET full_name = $3, account_type = $4, mac_address = $5, pppoe_username = $6, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, u.TenantID, u.ID, u.FullName, u.AccountType, u.MACAddress, u.PPPoEUsername).
		Scan(&u.UpdatedAt)
	if err != nil {
		return notFound(err, "wifi user")
	}
	return nil
}

func (r *WifiUserRepository) UpdateStatus(ctx context.Context, tenantID, id int64, status wifiuser.Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE wifi_users SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status)
	if err != nil {
		return fmt.Errorf("failed to update wifi user status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *WifiUserRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM wifi_users WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete wifi user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *WifiUserRepository) List(ctx context.Context, tenantID int64, filters *wifiuser.WifiUserListFilters) ([]wifiuser.WifiUser, int64, error) {
	w := newWhere("u.tenant_id = ?", tenantID)
	if filters.Status != nil {
		w.add("u.status = ?", *filters.Status)
	}
	if filters.AccountType != nil {
		w.add("u.account_type = ?", *filters.AccountType)
	}
	if filters.PlanID != nil {
		w.add("u.current_plan_id = ?", *filters.PlanID)
	}
	if filters.Search != "" {
		w.add("(u.phone_number ILIKE ? OR u.full_name ILIKE ?)", "%"+filters.Search+"%", "%"+filters.Search+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM wifi_users u WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count wifi users: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`%s WHERE %s ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d`,
		wifiUserSelect, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wifi users: %w", err)
	}
	defer rows.Close()

	users := []wifiuser.WifiUser{}
	for rows.Next() {
		u, err := scanWifiUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan wifi user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// ExpireUsers flips ACTIVE users whose period ended to EXPIRED and returns
// the tenants that changed.
func (r *WifiUserRepository) ExpireUsers(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		WITH expired AS (
			UPDATE wifi_users SET status = 'EXPIRED', updated_at = NOW()
			WHERE status = 'ACTIVE' AND expiry_time IS NOT NULL AND expiry_time <= $1
			RETURNING tenant_id
		)
		SELECT DISTINCT tenant_id FROM expired`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire wifi users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// activateWifiUser creates the user for phone if needed and applies a plan
// purchase. Time left on an active period carries over.
func activateWifiUser(ctx context.Context, q Querier, tenantID int64, phone string, a wifiuser.Activation, duration time.Duration, now time.Time) (int64, time.Time, error) {
	query := `
		INSERT INTO wifi_users (tenant_id, phone_number, account_type, status, current_plan_id,
		                        current_hotspot_id, expiry_time, mac_address, ip_address)
		VALUES ($1, $2, 'HOTSPOT', 'ACTIVE', $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, phone_number) DO UPDATE SET
			expiry_time = CASE
				WHEN wifi_users.status = 'ACTIVE' AND wifi_users.expiry_time > $8
				THEN wifi_users.expiry_time + ($9 * INTERVAL '1 second')
				ELSE EXCLUDED.expiry_time END,
			status = 'ACTIVE',
			current_plan_id = EXCLUDED.current_plan_id,
			current_hotspot_id = COALESCE(EXCLUDED.current_hotspot_id, wifi_users.current_hotspot_id),
			mac_address = COALESCE(EXCLUDED.mac_address, wifi_users.mac_address),
			ip_address = COALESCE(EXCLUDED.ip_address, wifi_users.ip_address),
			updated_at = NOW()
		RETURNING id, expiry_time
	`
	var id int64
	var expiry time.Time
	err := q.QueryRow(ctx, query,
		tenantID, phone, a.PlanID, a.HotspotID, now.Add(duration), a.MACAddress, a.IPAddress,
		now, int64(duration/time.Second),
	).Scan(&id, &expiry)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to activate wifi user: %w", err)
	}
	return id, expiry, nil
}
