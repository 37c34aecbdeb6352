// Package walledgarden manages the hosts reachable before portal login and
// pushes them to the tenant's routers.
package walledgarden

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/walledgarden"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Create(ctx context.Context, e *walledgarden.Entry) error
	FindByID(ctx context.Context, tenantID, id int64) (*walledgarden.Entry, error)
	Update(ctx context.Context, e *walledgarden.Entry) error
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error)
}

// Syncer queues a push of the entries to the routers.
type Syncer interface {
	EnqueueWalledGardenSync(ctx context.Context, tenantID int64, hotspotID *int64) error
}

type WalledGardenService struct {
	repo        Repository
	syncer      Syncer
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewWalledGardenService(repo Repository, syncer Syncer, invalidator invalidation.Invalidator, logger *zap.Logger) *WalledGardenService {
	return &WalledGardenService{repo: repo, syncer: syncer, invalidator: invalidator, logger: logger}
}

func (s *WalledGardenService) CreateEntry(ctx context.Context, tenantID int64, req *walledgarden.CreateEntryRequest) (*walledgarden.Entry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e := &walledgarden.Entry{
		TenantID:    tenantID,
		Domain:      walledgarden.NormalizeDomain(req.Domain),
		Description: req.Description,
		IsActive:    true,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("walled garden entry added", zap.Int64("tenant_id", tenantID), zap.String("domain", e.Domain))
	s.changed(ctx, tenantID)
	return e, nil
}

func (s *WalledGardenService) UpdateEntry(ctx context.Context, tenantID, id int64, req *walledgarden.UpdateEntryRequest) (*walledgarden.Entry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	e, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Domain != nil {
		e.Domain = walledgarden.NormalizeDomain(*req.Domain)
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		e.Description = &d
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	s.changed(ctx, tenantID)
	return e, nil
}

func (s *WalledGardenService) DeleteEntry(ctx context.Context, tenantID, id int64) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.changed(ctx, tenantID)
	return nil
}

func (s *WalledGardenService) ListEntries(ctx context.Context, tenantID int64) ([]walledgarden.Entry, error) {
	return s.repo.List(ctx, tenantID)
}

// changed invalidates dashboards and queues a router sync. A failed enqueue
// is logged: the entry is saved and the next change or a manual sync
// catches the routers up.
func (s *WalledGardenService) changed(ctx context.Context, tenantID int64) {
	s.invalidator.Invalidate(ctx, tenantID, resource.WalledGarden)
	if err := s.syncer.EnqueueWalledGardenSync(ctx, tenantID, nil); err != nil {
		s.logger.Error("failed to queue walled garden sync", zap.Int64("tenant_id", tenantID), zap.Error(err))
	}
}
