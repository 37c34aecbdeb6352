// internal/repository/postgres/terminal_repo.go
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/terminal"
)

type TerminalRepository struct {
	db *pgxpool.Pool
}

func NewTerminalRepository(db *pgxpool.Pool) *TerminalRepository {
	return &TerminalRepository{db: db}
}

func (r *TerminalRepository) Record(ctx context.Context, res *terminal.Result) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO terminal_commands (tenant_id, hotspot_id, sequence, command, output, success, executed_by, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		res.TenantID, res.HotspotID, res.Sequence, res.Command, res.Output, res.Success, res.ExecutedBy, res.ExecutedAt,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("failed to record terminal command: %w", err)
	}
	return nil
}

// MaxSequence seeds the per-tenant counter after a Redis restart.
func (r *TerminalRepository) MaxSequence(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM terminal_commands WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

// History lists commands newest dispatch first.
func (r *TerminalRepository) History(ctx context.Context, tenantID int64, filters *terminal.HistoryFilters) ([]terminal.Result, int64, error) {
	w := newWhere("tenant_id = ?", tenantID)
	if filters.HotspotID != nil {
		w.add("hotspot_id = ?", *filters.HotspotID)
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM terminal_commands WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count terminal history: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`
		SELECT id, tenant_id, hotspot_id, sequence, command, output, success, executed_by, executed_at
		FROM terminal_commands WHERE %s ORDER BY sequence DESC LIMIT $%d OFFSET $%d`,
		w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list terminal history: %w", err)
	}
	defer rows.Close()

	out := []terminal.Result{}
	for rows.Next() {
		var res terminal.Result
		if err := rows.Scan(&res.ID, &res.TenantID, &res.HotspotID, &res.Sequence, &res.Command,
			&res.Output, &res.Success, &res.ExecutedBy, &res.ExecutedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan terminal command: %w", err)
		}
		out = append(out, res)
	}
	return out, total, rows.Err()
}
