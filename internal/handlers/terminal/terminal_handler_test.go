package terminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/terminal"
	"mnetifi-service/internal/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct{}

func (fakeService) Execute(_ context.Context, tenantID, identityID int64, req *terminal.ExecuteRequest) (*terminal.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &terminal.Result{
		TenantID: tenantID, HotspotID: req.HotspotID, Sequence: 12, Command: req.Command,
		Output: "bad command name foo", Success: false, ExecutedBy: identityID,
		ExecutedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

func (fakeService) History(context.Context, int64, *terminal.HistoryFilters) (*response.Paginated, error) {
	page := response.NewPaginated([]terminal.Result{}, 0, 1, 20)
	return &page, nil
}

func execute(body string) *httptest.ResponseRecorder {
	h := NewTerminalHandler(fakeService{}, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("identity_id", int64(7))
		c.Set("tenant_id", int64(3))
	})
	r.POST("/api/terminal/execute", h.Execute)

	req := httptest.NewRequest(http.MethodPost, "/api/terminal/execute", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestExecuteFailedCommandIsOK(t *testing.T) {
	w := execute(`{"hotspot_id":4,"command":"/foo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true,
		"message": "command failed",
		"data": {"hotspot_id":4,"sequence":12,"command":"/foo","output":"bad command name foo","success":false,"timestamp":"2026-03-01T09:00:00Z"}
	}`, w.Body.String())
}

func TestExecuteDeniedCommand(t *testing.T) {
	w := execute(`{"hotspot_id":4,"command":"/system reboot"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not allowed")
}
