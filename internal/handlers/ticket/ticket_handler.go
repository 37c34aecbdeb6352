// internal/handlers/ticket/ticket_handler.go
package ticket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/ticket"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	CreateTicket(ctx context.Context, tenantID, createdBy int64, req *ticket.CreateTicketRequest) (*ticket.Ticket, error)
	GetTicket(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error)
	UpdateTicket(ctx context.Context, tenantID, id int64, req *ticket.UpdateTicketRequest) (*ticket.Ticket, error)
	Start(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error)
	Resolve(ctx context.Context, tenantID, id int64, req *ticket.ResolveTicketRequest) (*ticket.Ticket, error)
	Close(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error)
	Reopen(ctx context.Context, tenantID, id int64) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, tenantID int64, filters *ticket.TicketListFilters) (*response.Paginated, error)
}

type TicketHandler struct {
	ticketService Service
}

func NewTicketHandler(ticketService Service) *TicketHandler {
	return &TicketHandler{ticketService: ticketService}
}

func (h *TicketHandler) CreateTicket(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	identityID := middleware.MustGetIdentityID(c)

	var req ticket.CreateTicketRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.ticketService.CreateTicket(c.Request.Context(), tenantID, identityID, &req)
	if err != nil {
		response.FromError(c, "failed to create ticket", err)
		return
	}
	response.Success(c, http.StatusCreated, "ticket created", t)
}

func (h *TicketHandler) GetTicket(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	t, err := h.ticketService.GetTicket(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "ticket not found", err)
		return
	}
	response.Success(c, http.StatusOK, "ticket retrieved", t)
}

func (h *TicketHandler) UpdateTicket(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req ticket.UpdateTicketRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.ticketService.UpdateTicket(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to update ticket", err)
		return
	}
	response.Success(c, http.StatusOK, "ticket updated", t)
}

func (h *TicketHandler) ListTickets(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters ticket.TicketListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.ticketService.ListTickets(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to list tickets", err)
		return
	}
	response.Success(c, http.StatusOK, "tickets retrieved", page)
}

// ========== Status transitions ==========

func (h *TicketHandler) StartTicket(c *gin.Context) {
	h.transition(c, "ticket in progress", h.ticketService.Start)
}

func (h *TicketHandler) CloseTicket(c *gin.Context) {
	h.transition(c, "ticket closed", h.ticketService.Close)
}

func (h *TicketHandler) ReopenTicket(c *gin.Context) {
	h.transition(c, "ticket reopened", h.ticketService.Reopen)
}

func (h *TicketHandler) ResolveTicket(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	var req ticket.ResolveTicketRequest
	if !params.BindJSON(c, &req) {
		return
	}

	t, err := h.ticketService.Resolve(c.Request.Context(), tenantID, id, &req)
	if err != nil {
		response.FromError(c, "failed to resolve ticket", err)
		return
	}
	response.Success(c, http.StatusOK, "ticket resolved", t)
}

func (h *TicketHandler) transition(c *gin.Context, message string, move func(context.Context, int64, int64) (*ticket.Ticket, error)) {
	tenantID := middleware.MustGetTenantID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	t, err := move(c.Request.Context(), tenantID, id)
	if err != nil {
		response.FromError(c, "failed to update ticket status", err)
		return
	}
	response.Success(c, http.StatusOK, message, t)
}
