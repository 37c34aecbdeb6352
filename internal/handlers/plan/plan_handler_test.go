package plan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct {
	plans      map[int64]*plan.Plan
	lastTenant int64
	lastFilter *plan.PlanListFilters
}

func (f *fakeService) CreatePlan(_ context.Context, tenantID int64, req *plan.CreatePlanRequest) (*plan.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.lastTenant = tenantID
	p := &plan.Plan{ID: 9, TenantID: tenantID, Name: req.Name, Price: req.Price, PlanType: req.PlanType}
	return p, nil
}

func (f *fakeService) GetPlan(_ context.Context, tenantID, id int64) (*plan.Plan, error) {
	p, ok := f.plans[id]
	if !ok || p.TenantID != tenantID {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

func (f *fakeService) UpdatePlan(context.Context, int64, int64, *plan.UpdatePlanRequest) (*plan.Plan, error) {
	return nil, xerrors.ErrNotFound
}

func (f *fakeService) DeletePlan(context.Context, int64, int64) error {
	return xerrors.ErrInUse
}

func (f *fakeService) ListPlans(_ context.Context, _ int64, filters *plan.PlanListFilters) (*response.Paginated, error) {
	f.lastFilter = filters
	page := response.NewPaginated([]plan.Plan{}, 0, 1, 20)
	return &page, nil
}

func router(svc Service) *gin.Engine {
	h := NewPlanHandler(svc, zap.NewNop())
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("identity_id", int64(7))
		c.Set("tenant_id", int64(3))
	})
	r.GET("/api/plans", h.ListPlans)
	r.GET("/api/plans/:id", h.GetPlan)
	r.POST("/api/plans", h.CreatePlan)
	r.DELETE("/api/plans/:id", h.DeletePlan)
	return r
}

func call(r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCreatePlan(t *testing.T) {
	svc := &fakeService{}
	w, body := call(router(svc), http.MethodPost, "/api/plans",
		`{"name":"Daily 1GB","price":"50","duration_seconds":86400,"plan_type":"HOTSPOT"}`)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, int64(3), svc.lastTenant)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Daily 1GB", data["name"])
}

func TestCreatePlanValidation(t *testing.T) {
	w, body := call(router(&fakeService{}), http.MethodPost, "/api/plans",
		`{"name":"","price":"0","duration_seconds":0,"plan_type":"DIALUP"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, body["error"])
	fields := body["data"].(map[string]interface{})["fields"].(map[string]interface{})
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "price")
	assert.Contains(t, fields, "plan_type")
}

func TestGetPlanIsTenantScoped(t *testing.T) {
	svc := &fakeService{plans: map[int64]*plan.Plan{
		1: {ID: 1, TenantID: 3, Name: "Mine", Price: decimal.NewFromInt(20)},
		2: {ID: 2, TenantID: 4, Name: "Theirs"},
	}}
	r := router(svc)

	w, _ := call(r, http.MethodGet, "/api/plans/1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, body := call(r, http.MethodGet, "/api/plans/2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, xerrors.ErrNotFound.Error(), body["error"])

	w, _ = call(r, http.MethodGet, "/api/plans/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletePlanInUse(t *testing.T) {
	w, body := call(router(&fakeService{}), http.MethodDelete, "/api/plans/1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
}

func TestListPlansBindsType(t *testing.T) {
	svc := &fakeService{}
	w, _ := call(router(svc), http.MethodGet, "/api/plans?type=PPPOE&page=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastFilter.PlanType)
	assert.Equal(t, plan.TypePPPoE, *svc.lastFilter.PlanType)
	assert.Equal(t, 2, svc.lastFilter.Page)
}
