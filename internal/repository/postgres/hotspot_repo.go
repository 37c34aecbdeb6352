// internal/repository/postgres/hotspot_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/hotspot"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type HotspotRepository struct {
	db *pgxpool.Pool
}

func NewHotspotRepository(db *pgxpool.Pool) *HotspotRepository {
	return &HotspotRepository{db: db}
}

const hotspotColumns = `
	id, tenant_id, name, location, router_host, router_port, router_username,
	router_password, host_key, is_active, created_at, updated_at`

func scanHotspot(row pgx.Row) (*hotspot.Hotspot, error) {
	var h hotspot.Hotspot
	err := row.Scan(
		&h.ID, &h.TenantID, &h.Name, &h.Location, &h.RouterHost, &h.RouterPort, &h.RouterUsername,
		&h.RouterPassword, &h.HostKey, &h.IsActive, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HotspotRepository) Create(ctx context.Context, h *hotspot.Hotspot) error {
	query := `
		INSERT INTO hotspots (tenant_id, name, location, router_host, router_port, router_username, router_password, host_key, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		h.TenantID, h.Name, h.Location, h.RouterHost, h.RouterPort, h.RouterUsername, h.RouterPassword, h.HostKey, h.IsActive,
	).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create hotspot: %w", err)
	}
	return nil
}

func (r *HotspotRepository) FindByID(ctx context.Context, tenantID, id int64) (*hotspot.Hotspot, error) {
	h, err := scanHotspot(r.db.QueryRow(ctx,
		`SELECT`+hotspotColumns+` FROM hotspots WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "hotspot")
	}
	return h, nil
}

func (r *HotspotRepository) Update(ctx context.Context, h *hotspot.Hotspot) error {
	query := `
		UPDATE hotspots
		SET name = $3, location = $4, router_host = $5, router_port = $6, router_username = $7,
		    router_password = $8, host_key = $9, is_active = $10, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		h.TenantID, h.ID, h.Name, h.Location, h.RouterHost, h.RouterPort, h.RouterUsername,
		h.RouterPassword, h.HostKey, h.IsActive,
	).Scan(&h.UpdatedAt)
	if err != nil {
		return notFound(err, "hotspot")
	}
	return nil
}

func (r *HotspotRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM hotspots WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete hotspot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// List returns every hotspot of a tenant; activeOnly narrows to routers
// that background jobs should reach.
func (r *HotspotRepository) List(ctx context.Context, tenantID int64, activeOnly bool) ([]hotspot.Hotspot, error) {
	query := `SELECT` + hotspotColumns + ` FROM hotspots WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list hotspots: %w", err)
	}
	defer rows.Close()

	out := []hotspot.Hotspot{}
	for rows.Next() {
		h, err := scanHotspot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hotspot: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}
