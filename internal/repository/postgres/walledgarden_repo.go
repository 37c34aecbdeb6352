// internal/repository/postgres/walledgarden_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/walledgarden"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type WalledGardenRepository struct {
	db *pgxpool.Pool
}

func NewWalledGardenRepository(db *pgxpool.Pool) *WalledGardenRepository {
	return &WalledGardenRepository{db: db}
}

const walledGardenColumns = `id, tenant_id, domain, description, is_active, created_at, updated_at`

func scanEntry(row pgx.Row) (*walledgarden.Entry, error) {
	var e walledgarden.Entry
	if err := row.Scan(&e.ID, &e.TenantID, &e.Domain, &e.Description, &e.IsActive, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WalledGardenRepository) Create(ctx context.Context, e *walledgarden.Entry) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO walled_garden (tenant_id, domain, description, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`, e.TenantID, e.Domain, e.Description, e.IsActive,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s is already listed: %w", e.Domain, xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create walled garden entry: %w", err)
	}
	return nil
}

func (r *WalledGardenRepository) FindByID(ctx context.Context, tenantID, id int64) (*walledgarden.Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+walledGardenColumns+` FROM walled_garden WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "walled garden entry")
	}
	return e, nil
}

func (r *WalledGardenRepository) Update(ctx context.Context, e *walledgarden.Entry) error {
	err := r.db.QueryRow(ctx, `
		UPDATE walled_garden SET domain = $3, description = $4, is_active = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`, e.TenantID, e.ID, e.Domain, e.Description, e.IsActive,
	).Scan(&e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s is already listed: %w", e.Domain, xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return notFound(err, "walled garden entry")
	}
	return nil
}

func (r *WalledGardenRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM walled_garden WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete walled garden entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *WalledGardenRepository) List(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+walledGardenColumns+` FROM walled_garden WHERE tenant_id = $1 ORDER BY domain`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list walled garden: %w", err)
	}
	defer rows.Close()

	entries := []walledgarden.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan walled garden entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
