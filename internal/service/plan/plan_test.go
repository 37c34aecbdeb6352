package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/validate"
)

type memRepo struct {
	plans  map[int64]*plan.Plan
	usage  plan.Usage
	nextID int64
}

func newMemRepo() *memRepo { return &memRepo{plans: map[int64]*plan.Plan{}} }

func (m *memRepo) Create(_ context.Context, p *plan.Plan) error {
	m.nextID++
	p.ID = m.nextID
	c := *p
	m.plans[p.ID] = &c
	return nil
}

func (m *memRepo) FindByID(_ context.Context, tenantID, id int64) (*plan.Plan, error) {
	p, ok := m.plans[id]
	if !ok || p.TenantID != tenantID {
		return nil, xerrors.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (m *memRepo) Update(_ context.Context, p *plan.Plan) error {
	c := *p
	m.plans[p.ID] = &c
	return nil
}

func (m *memRepo) Usage(context.Context, int64, int64) (plan.Usage, error) { return m.usage, nil }

func (m *memRepo) Delete(_ context.Context, _, id int64) error {
	delete(m.plans, id)
	return nil
}

func (m *memRepo) List(_ context.Context, tenantID int64, f *plan.PlanListFilters) ([]plan.Plan, int64, error) {
	var out []plan.Plan
	for _, p := range m.plans {
		if p.TenantID == tenantID && (f.PlanType == nil || p.PlanType == *f.PlanType) {
			out = append(out, *p)
		}
	}
	f.Page, f.PageSize = 1, 20
	return out, int64(len(out)), nil
}

func (m *memRepo) ListActive(ctx context.Context, tenantID int64) ([]plan.Plan, error) {
	out, _, err := m.List(ctx, tenantID, &plan.PlanListFilters{})
	return out, err
}

type recorder struct{ entities []resource.Entity }

func (r *recorder) Invalidate(_ context.Context, _ int64, e ...resource.Entity) {
	r.entities = append(r.entities, e...)
}

func TestCreatePlanInvalidatesPlans(t *testing.T) {
	repo, rec := newMemRepo(), &recorder{}
	svc := NewPlanService(repo, rec, zap.NewNop())

	p, err := svc.CreatePlan(context.Background(), 1, &plan.CreatePlanRequest{
		Name: " Daily ", Price: decimal.NewFromInt(50), DurationSeconds: 86400, PlanType: plan.TypeHotspot,
	})
	require.NoError(t, err)
	assert.Equal(t, "Daily", p.Name)
	assert.Equal(t, 1, p.MaxDevices)
	assert.True(t, p.IsActive)
	assert.Equal(t, []resource.Entity{resource.Plan}, rec.entities)
}

func TestCreatePlanRejectsInvalidWithoutWrite(t *testing.T) {
	repo, rec := newMemRepo(), &recorder{}
	svc := NewPlanService(repo, rec, zap.NewNop())

	_, err := svc.CreatePlan(context.Background(), 1, &plan.CreatePlanRequest{
		Name: "Fibre", Price: decimal.NewFromInt(2000), DurationSeconds: 2592000, PlanType: plan.TypePPPoE,
	})
	var fe validate.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, "speed_mbps")
	assert.Empty(t, repo.plans)
	assert.Empty(t, rec.entities)
}

func TestDeletePlanInUse(t *testing.T) {
	repo := newMemRepo()
	svc := NewPlanService(repo, &recorder{}, zap.NewNop())
	p, err := svc.CreatePlan(context.Background(), 1, &plan.CreatePlanRequest{
		Name: "Hour", Price: decimal.NewFromInt(10), DurationSeconds: 3600, PlanType: plan.TypeHotspot,
	})
	require.NoError(t, err)

	repo.usage = plan.Usage{AvailableVouchers: 3}
	err = svc.DeletePlan(context.Background(), 1, p.ID)
	assert.ErrorIs(t, err, xerrors.ErrInUse)

	repo.usage = plan.Usage{}
	require.NoError(t, svc.DeletePlan(context.Background(), 1, p.ID))
	_, err = svc.GetPlan(context.Background(), 1, p.ID)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestUpdatePlanOtherTenant(t *testing.T) {
	repo := newMemRepo()
	svc := NewPlanService(repo, &recorder{}, zap.NewNop())
	p, err := svc.CreatePlan(context.Background(), 1, &plan.CreatePlanRequest{
		Name: "Hour", Price: decimal.NewFromInt(10), DurationSeconds: 3600, PlanType: plan.TypeHotspot,
	})
	require.NoError(t, err)

	name := "Stolen"
	_, err = svc.UpdatePlan(context.Background(), 2, p.ID, &plan.UpdatePlanRequest{Name: &name})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestUpdatePlanRejectsZeroMaxDevices(t *testing.T) {
	repo, rec := newMemRepo(), &recorder{}
	svc := NewPlanService(repo, rec, zap.NewNop())
	p, err := svc.CreatePlan(context.Background(), 1, &plan.CreatePlanRequest{
		Name: "Family", Price: decimal.NewFromInt(100), DurationSeconds: 86400, PlanType: plan.TypeHotspot, MaxDevices: 3,
	})
	require.NoError(t, err)
	rec.entities = nil

	zero := 0
	_, err = svc.UpdatePlan(context.Background(), 1, p.ID, &plan.UpdatePlanRequest{MaxDevices: &zero})
	var fe validate.FieldErrors
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, fe, "max_devices")
	assert.Equal(t, 3, repo.plans[p.ID].MaxDevices)
	assert.Empty(t, rec.entities)

	two := 2
	updated, err := svc.UpdatePlan(context.Background(), 1, p.ID, &plan.UpdatePlanRequest{MaxDevices: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.MaxDevices)
}
