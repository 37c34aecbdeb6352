package ticket

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/ticket"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Create(ctx context.Context, t *ticket.Ticket) error
	FindByID(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error)
	Update(ctx context.Context, t *ticket.Ticket) error
	Transition(ctx context.Context, tenantID, id int64, from, to ticket.Status, notes *string) (*ticket.Ticket, error)
	List(ctx context.Context, tenantID int64, filters *ticket.TicketListFilters) ([]ticket.Ticket, int64, error)
}

type TicketService struct {
	repo        Repository
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewTicketService(repo Repository, invalidator invalidation.Invalidator, logger *zap.Logger) *TicketService {
	return &TicketService{repo: repo, invalidator: invalidator, logger: logger}
}

func (s *TicketService) CreateTicket(ctx context.Context, tenantID, createdBy int64, req *ticket.CreateTicketRequest) (*ticket.Ticket, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t := &ticket.Ticket{
		TenantID:     tenantID,
		Subject:      req.Subject,
		IssueDetails: req.IssueDetails,
		Status:       ticket.StatusOpen,
		Priority:     req.Priority,
		WifiUserID:   req.WifiUserID,
		CreatedBy:    &createdBy,
	}
	if t.Priority == "" {
		t.Priority = ticket.PriorityMedium
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("ticket opened",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("ticket_id", t.ID),
		zap.String("priority", string(t.Priority)),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Ticket)
	return t, nil
}

func (s *TicketService) GetTicket(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

func (s *TicketService) UpdateTicket(ctx context.Context, tenantID, id int64, req *ticket.UpdateTicketRequest) (*ticket.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Subject != nil {
		t.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.IssueDetails != nil {
		t.IssueDetails = *req.IssueDetails
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.invalidator.Invalidate(ctx, tenantID, resource.Ticket)
	return t, nil
}

func (s *TicketService) Start(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error) {
	return s.move(ctx, tenantID, id, ticket.StatusInProgress, nil)
}

func (s *TicketService) Resolve(ctx context.Context, tenantID, id int64, req *ticket.ResolveTicketRequest) (*ticket.Ticket, error) {
	req.ResolutionNotes = strings.TrimSpace(req.ResolutionNotes)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.move(ctx, tenantID, id, ticket.StatusResolved, &req.ResolutionNotes)
}

func (s *TicketService) Close(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error) {
	return s.move(ctx, tenantID, id, ticket.StatusClosed, nil)
}

func (s *TicketService) Reopen(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error) {
	return s.move(ctx, tenantID, id, ticket.StatusOpen, nil)
}

func (s *TicketService) move(ctx context.Context, tenantID, id int64, to ticket.Status, notes *string) (*ticket.Ticket, error) {
	t, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransition(to) {
		return nil, fmt.Errorf("%s to %s: %w", t.Status, to, xerrors.ErrInvalidTransition)
	}

	updated, err := s.repo.Transition(ctx, tenantID, id, t.Status, to, notes)
	if err != nil {
		return nil, err
	}
	s.logger.Info("ticket status changed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("ticket_id", id),
		zap.String("from", string(t.Status)),
		zap.String("to", string(to)),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Ticket)
	return updated, nil
}

func (s *TicketService) ListTickets(ctx context.Context, tenantID int64, filters *ticket.TicketListFilters) (*response.Paginated, error) {
	tickets, total, err := s.repo.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(tickets, total, filters.Page, filters.PageSize)
	return &page, nil
}
