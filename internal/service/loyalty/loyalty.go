package loyalty

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/loyalty"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/service/invalidation"
)

// ledgerLimit is how many recent entries accompany a balance.
const ledgerLimit = 50

type Repository interface {
	GetSummary(ctx context.Context, tenantID, wifiUserID int64, limit int) (*loyalty.Summary, error)
	Earn(ctx context.Context, tenantID, wifiUserID int64, req loyalty.EarnRequest) (*loyalty.Account, error)
	Redeem(ctx context.Context, tenantID, wifiUserID int64, req loyalty.RedeemRequest) (*loyalty.Account, error)
}

type LoyaltyService struct {
	repo        Repository
	invalidator invalidation.Invalidator
	logger      *zap.Logger
}

func NewLoyaltyService(repo Repository, invalidator invalidation.Invalidator, logger *zap.Logger) *LoyaltyService {
	return &LoyaltyService{repo: repo, invalidator: invalidator, logger: logger}
}

func (s *LoyaltyService) GetSummary(ctx context.Context, tenantID, wifiUserID int64) (*loyalty.Summary, error) {
	return s.repo.GetSummary(ctx, tenantID, wifiUserID, ledgerLimit)
}

func (s *LoyaltyService) Earn(ctx context.Context, tenantID, wifiUserID int64, req *loyalty.EarnRequest) (*loyalty.Account, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	acct, err := s.repo.Earn(ctx, tenantID, wifiUserID, *req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("loyalty points earned",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("wifi_user_id", wifiUserID),
		zap.Int64("points", req.Points),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Loyalty)
	return acct, nil
}

// Redeem checks the shape of the request here; the balance check happens in
// the repository with the account row locked.
func (s *LoyaltyService) Redeem(ctx context.Context, tenantID, wifiUserID int64, req *loyalty.RedeemRequest) (*loyalty.Account, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := req.Validate(math.MaxInt64); err != nil {
		return nil, err
	}
	acct, err := s.repo.Redeem(ctx, tenantID, wifiUserID, *req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("loyalty points redeemed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("wifi_user_id", wifiUserID),
		zap.Int64("points", req.Points),
		zap.Int64("balance", acct.Balance),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Loyalty)
	return acct, nil
}
