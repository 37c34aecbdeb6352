// internal/handlers/terminal/terminal_handler.go
package terminal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/terminal"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	Execute(ctx context.Context, tenantID, identityID int64, req *terminal.ExecuteRequest) (*terminal.Result, error)
	History(ctx context.Context, tenantID int64, filters *terminal.HistoryFilters) (*response.Paginated, error)
}

type TerminalHandler struct {
	terminalService Service
	logger          *zap.Logger
}

func NewTerminalHandler(terminalService Service, logger *zap.Logger) *TerminalHandler {
	return &TerminalHandler{terminalService: terminalService, logger: logger}
}

type executeResponse struct {
	HotspotID int64     `json:"hotspot_id"`
	Sequence  int64     `json:"sequence"`
	Command   string    `json:"command"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Execute runs one command on a router. A command the router rejects is a
// 200 with success false; only requests that never reached the router fail.
func (h *TerminalHandler) Execute(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)
	identityID := middleware.MustGetIdentityID(c)

	var req terminal.ExecuteRequest
	if !params.BindJSON(c, &req) {
		return
	}

	res, err := h.terminalService.Execute(c.Request.Context(), tenantID, identityID, &req)
	if err != nil {
		response.FromError(c, "command was not executed", err)
		return
	}

	message := "command executed"
	if !res.Success {
		message = "command failed"
	}
	response.Success(c, http.StatusOK, message, executeResponse{
		HotspotID: res.HotspotID,
		Sequence:  res.Sequence,
		Command:   res.Command,
		Output:    res.Output,
		Success:   res.Success,
		Timestamp: res.ExecutedAt,
	})
}

func (h *TerminalHandler) History(c *gin.Context) {
	tenantID := middleware.MustGetTenantID(c)

	var filters terminal.HistoryFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	page, err := h.terminalService.History(c.Request.Context(), tenantID, &filters)
	if err != nil {
		response.FromError(c, "failed to get terminal history", err)
		return
	}
	response.Success(c, http.StatusOK, "terminal history retrieved", page)
}
