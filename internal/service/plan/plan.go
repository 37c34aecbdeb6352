// internal/service/plan/plan.go
package plan

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Create(ctx context.Context, p *plan.Plan) error
	FindByID(ctx context.Context, tenantID, id int64) (*plan.Plan, error)
	Update(ctx context.Context, p *plan.Plan) error
	Usage(ctx context.Context, tenantID, id int64) (plan.Usage, error)
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64, filters *plan.PlanListFilters) ([]plan.Plan, int64, error)
	ListActive(ctx context.Context, tenantID int64) ([]plan.Plan, error)
}

type PlanService struct {
	repo        Repository
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewPlanService(repo Repository, invalidator invalidation.Invalidator, logger *zap.Logger) *PlanService {
	return &PlanService{
		repo:        repo,
		invalidator: invalidator,
		logger:      logger,
	}
}

// CreatePlan validates and stores a new plan for tenantID.
func (s *PlanService) CreatePlan(ctx context.Context, tenantID int64, req *plan.CreatePlanRequest) (*plan.Plan, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := &plan.Plan{
		TenantID:        tenantID,
		Name:            req.Name,
		Description:     req.Description,
		Price:           req.Price,
		DurationSeconds: req.DurationSeconds,
		PlanType:        req.PlanType,
		UploadLimit:     req.UploadLimit,
		DownloadLimit:   req.DownloadLimit,
		SpeedMbps:       req.SpeedMbps,
		MaxDevices:      req.MaxDevices,
		IsActive:        true,
	}
	if p.MaxDevices == 0 {
		p.MaxDevices = 1
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.logger.Error("failed to create plan", zap.Int64("tenant_id", tenantID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("plan created",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("plan_id", p.ID),
		zap.String("plan_type", string(p.PlanType)),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Plan)
	return p, nil
}

func (s *PlanService) GetPlan(ctx context.Context, tenantID, id int64) (*plan.Plan, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

// UpdatePlan merges the request over the stored plan and revalidates the
// result as a whole, so a type change to PPPOE still needs a speed.
func (s *PlanService) UpdatePlan(ctx context.Context, tenantID, id int64, req *plan.UpdatePlanRequest) (*plan.Plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	merged := req.Apply(p)
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("plan updated", zap.Int64("tenant_id", tenantID), zap.Int64("plan_id", id))
	s.invalidator.Invalidate(ctx, tenantID, resource.Plan)
	return p, nil
}

// DeletePlan refuses while unused vouchers or active users still reference
// the plan.
func (s *PlanService) DeletePlan(ctx context.Context, tenantID, id int64) error {
	usage, err := s.repo.Usage(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if usage.InUse() {
		return fmt.Errorf("plan has %d available vouchers and %d active users: %w",
			usage.AvailableVouchers, usage.ActiveUsers, xerrors.ErrInUse)
	}

	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}

	s.logger.Info("plan deleted", zap.Int64("tenant_id", tenantID), zap.Int64("plan_id", id))
	s.invalidator.Invalidate(ctx, tenantID, resource.Plan)
	return nil
}

func (s *PlanService) ListPlans(ctx context.Context, tenantID int64, filters *plan.PlanListFilters) (*response.Paginated, error) {
	plans, total, err := s.repo.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(plans, total, filters.Page, filters.PageSize)
	return &page, nil
}

// ActivePlans are the plans the captive portal offers.
func (s *PlanService) ActivePlans(ctx context.Context, tenantID int64) ([]plan.Plan, error) {
	return s.repo.ListActive(ctx, tenantID)
}
