// internal/repository/postgres/ticket_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/ticket"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type TicketRepository struct {
	db *pgxpool.Pool
}

func NewTicketRepository(db *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `
	id, tenant_id, subject, issue_details, status, priority, resolution_notes,
	wifi_user_id, created_by, resolved_at, closed_at, created_at, updated_at`

func scanTicket(row pgx.Row) (*ticket.Ticket, error) {
	var t ticket.Ticket
	err := row.Scan(
		&t.ID, &t.TenantID, &t.Subject, &t.IssueDetails, &t.Status, &t.Priority, &t.ResolutionNotes,
		&t.WifiUserID, &t.CreatedBy, &t.ResolvedAt, &t.ClosedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	query := `
		INSERT INTO tickets (tenant_id, subject, issue_details, status, priority, wifi_user_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		t.TenantID, t.Subject, t.IssueDetails, t.Status, t.Priority, t.WifiUserID, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("wifi user: %w", xerrors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

func (r *TicketRepository) FindByID(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx,
		`SELECT`+ticketColumns+` FROM tickets WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "ticket")
	}
	return t, nil
}

func (r *TicketRepository) Update(ctx context.Context, t *ticket.Ticket) error {
	err := r.db.QueryRow(ctx, `
		UPDATE tickets SET subject = $3, issue_details = $4, priority = $5, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING updated_at`, t.TenantID, t.ID, t.Subject, t.IssueDetails, t.Priority,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return notFound(err, "ticket")
	}
	return nil
}

// Transition moves a ticket from one status to the next only while it is
// still in from, so two concurrent moves cannot both win.
func (r *TicketRepository) Transition(ctx context.Context, tenantID, id int64, from, to ticket.Status, notes *string) (*ticket.Ticket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `
		UPDATE tickets
		SET status = $4,
		    resolution_notes = COALESCE($5, resolution_notes),
		    resolved_at = CASE WHEN $4 = 'RESOLVED' THEN NOW() WHEN $4 = 'OPEN' THEN NULL ELSE resolved_at END,
		    closed_at = CASE WHEN $4 = 'CLOSED' THEN NOW() WHEN $4 = 'OPEN' THEN NULL ELSE closed_at END,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status = $3
		RETURNING`+ticketColumns, tenantID, id, from, to, notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticket changed concurrently: %w", xerrors.ErrInvalidTransition)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}
	return t, nil
}

func (r *TicketRepository) Delete(ctx context.Context, tenantID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *TicketRepository) List(ctx context.Context, tenantID int64, filters *ticket.TicketListFilters) ([]ticket.Ticket, int64, error) {
	w := newWhere("tenant_id = ?", tenantID)
	if filters.Status != nil {
		w.add("status = ?", *filters.Status)
	}
	if filters.Priority != nil {
		w.add("priority = ?", *filters.Priority)
	}
	if filters.Search != "" {
		w.add("(subject ILIKE ? OR issue_details ILIKE ?)", "%"+filters.Search+"%", "%"+filters.Search+"%")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM tickets WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		ticketColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []ticket.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, total, rows.Err()
}
