package wifiuser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/wifiuser"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/service/invalidation"
)

type Repository interface {
	Create(ctx context.Context, u *wifiuser.WifiUser) error
	FindByID(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error)
	Update(ctx context.Context, u *wifiuser.WifiUser) error
	UpdateStatus(ctx context.Context, tenantID, id int64, status wifiuser.Status) error
	Delete(ctx context.Context, tenantID, id int64) error
	List(ctx context.Context, tenantID int64, filters *wifiuser.WifiUserListFilters) ([]wifiuser.WifiUser, int64, error)
}

type WifiUserService struct {
	repo        Repository
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewWifiUserService(repo Repository, invalidator invalidation.Invalidator, logger *zap.Logger) *WifiUserService {
	return &WifiUserService{repo: repo, invalidator: invalidator, logger: logger}
}

func (s *WifiUserService) CreateUser(ctx context.Context, tenantID int64, req *wifiuser.CreateWifiUserRequest) (*wifiuser.WifiUser, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u := &wifiuser.WifiUser{
		TenantID:      tenantID,
		PhoneNumber:   req.PhoneNumber,
		FullName:      req.FullName,
		AccountType:   req.AccountType,
		Status:        wifiuser.StatusActive,
		CurrentPlanID: req.PlanID,
		MACAddress:    req.MACAddress,
		PPPoEUsername: req.PPPoEUsername,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("wifi user created",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("wifi_user_id", u.ID),
		zap.String("account_type", string(u.AccountType)),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.WifiUser)
	return u, nil
}

func (s *WifiUserService) GetUser(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

func (s *WifiUserService) UpdateUser(ctx context.Context, tenantID, id int64, req *wifiuser.UpdateWifiUserRequest) (*wifiuser.WifiUser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	u, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		u.FullName = req.FullName
	}
	if req.AccountType != nil {
		u.AccountType = *req.AccountType
	}
	if req.MACAddress != nil {
		u.MACAddress = req.MACAddress
	}
	if req.PPPoEUsername != nil {
		u.PPPoEUsername = req.PPPoEUsername
	}
	if u.AccountType == wifiuser.AccountPPPoE && (u.PPPoEUsername == nil || *u.PPPoEUsername == "") {
		return nil, fmt.Errorf("PPPoE accounts need a username: %w", xerrors.ErrValidation)
	}

	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.invalidator.Invalidate(ctx, tenantID, resource.WifiUser)
	return u, nil
}

func (s *WifiUserService) DeleteUser(ctx context.Context, tenantID, id int64) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return err
	}
	s.logger.Info("wifi user deleted", zap.Int64("tenant_id", tenantID), zap.Int64("wifi_user_id", id))
	s.invalidator.Invalidate(ctx, tenantID, resource.WifiUser)
	return nil
}

// Suspend cuts an active user off without touching their paid period.
func (s *WifiUserService) Suspend(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error) {
	return s.setStatus(ctx, tenantID, id, wifiuser.StatusActive, wifiuser.StatusSuspended)
}

func (s *WifiUserService) Activate(ctx context.Context, tenantID, id int64) (*wifiuser.WifiUser, error) {
	return s.setStatus(ctx, tenantID, id, wifiuser.StatusSuspended, wifiuser.StatusActive)
}

func (s *WifiUserService) setStatus(ctx context.Context, tenantID, id int64, from, to wifiuser.Status) (*wifiuser.WifiUser, error) {
	u, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if u.Status != from {
		return nil, fmt.Errorf("wifi user is %s: %w", u.Status, xerrors.ErrInvalidTransition)
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, id, to); err != nil {
		return nil, err
	}
	u.Status = to

	s.logger.Info("wifi user status changed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("wifi_user_id", id),
		zap.String("status", string(to)),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.WifiUser)
	return u, nil
}

func (s *WifiUserService) ListUsers(ctx context.Context, tenantID int64, filters *wifiuser.WifiUserListFilters) (*response.Paginated, error) {
	users, total, err := s.repo.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(users, total, filters.Page, filters.PageSize)
	return &page, nil
}
