// internal/service/voucher/voucher.go
package voucher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/plan"
	"mnetifi-service/internal/domain/resource"
	"mnetifi-service/internal/domain/voucher"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/response"
	"mnetifi-service/internal/pkg/validate"
	"mnetifi-service/internal/service/invalidation"
)

// maxGenerateRounds bounds how often colliding codes are regenerated.
const maxGenerateRounds = 10

type Repository interface {
	CreateBatch(ctx context.Context, b *voucher.Batch) error
	FindBatch(ctx context.Context, tenantID, id int64) (*voucher.Batch, error)
	SetBatchStatus(ctx context.Context, id int64, status voucher.BatchStatus) error
	DisableBatch(ctx context.Context, tenantID, id int64) (int64, error)
	ListBatches(ctx context.Context, tenantID int64, filters *voucher.BatchListFilters) ([]voucher.Batch, int64, error)
	InsertCodes(ctx context.Context, b *voucher.Batch, codes []string) (int, error)
	CountBatchCodes(ctx context.Context, batchID int64) (int, error)
	FindVoucher(ctx context.Context, tenantID, id int64) (*voucher.Voucher, error)
	ListVouchers(ctx context.Context, tenantID int64, filters *voucher.VoucherListFilters) ([]voucher.Voucher, int64, error)
	BatchCodes(ctx context.Context, tenantID, batchID int64) ([]voucher.Voucher, error)
	SetVoucherStatus(ctx context.Context, tenantID, id int64, from, to voucher.Status) error
	Redeem(ctx context.Context, tenantID int64, req voucher.RedeemRequest, phone string, now time.Time) (*voucher.RedeemResult, error)
}

// Plans resolves the plan a batch is created for within the tenant.
type Plans interface {
	FindByID(ctx context.Context, tenantID, id int64) (*plan.Plan, error)
}

// Enqueuer hands batch generation to the worker.
type Enqueuer interface {
	EnqueueVoucherGeneration(ctx context.Context, tenantID, batchID int64) error
}

// Counters are the metrics the service bumps.
type Counters interface {
	VoucherGenerated(n int)
	VoucherRedeemed()
}

type VoucherService struct {
	repo        Repository
	plans       Plans
	enqueuer    Enqueuer
	invalidator invalidation.Invalidator
	counters    Counters
	logger      *zap.Logger
	now         func() time.Time
}

func NewVoucherService(
	repo Repository,
	plans Plans,
	enqueuer Enqueuer,
	invalidator invalidation.Invalidator,
	counters Counters,
	logger *zap.Logger,
) *VoucherService {
	return &VoucherService{
		repo:        repo,
		plans:       plans,
		enqueuer:    enqueuer,
		invalidator: invalidator,
		counters:    counters,
		logger:      logger,
		now:         time.Now,
	}
}

// ========== Batches ==========

// CreateBatch stores a PENDING batch and queues its generation.
func (s *VoucherService) CreateBatch(ctx context.Context, tenantID, createdBy int64, req *voucher.CreateBatchRequest) (*voucher.Batch, error) {
	req.Normalize()
	if err := req.Validate(s.now()); err != nil {
		return nil, err
	}
	if _, err := s.plans.FindByID(ctx, tenantID, req.PlanID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			fe := validate.FieldErrors{}
			fe.Add("plan_id", "plan does not exist")
			return nil, fe
		}
		return nil, err
	}

	b := &voucher.Batch{
		TenantID:   tenantID,
		Reference:  ulid.MustNew(ulid.Timestamp(s.now()), rand.Reader).String(),
		PlanID:     req.PlanID,
		Quantity:   req.Quantity,
		Prefix:     req.Prefix,
		ValidUntil: req.ValidUntil,
		Status:     voucher.BatchPending,
		CreatedBy:  createdBy,
	}
	if err := s.repo.CreateBatch(ctx, b); err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueVoucherGeneration(ctx, tenantID, b.ID); err != nil {
		s.logger.Error("failed to queue voucher generation", zap.Int64("batch_id", b.ID), zap.Error(err))
		_ = s.repo.SetBatchStatus(ctx, b.ID, voucher.BatchFailed)
		b.Status = voucher.BatchFailed
	}

	s.logger.Info("voucher batch created",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("batch_id", b.ID),
		zap.Int("quantity", b.Quantity),
		zap.String("prefix", b.Prefix),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.VoucherBatch)
	return b, nil
}

// Generate materialises the codes of a batch. It is idempotent: codes
// already inserted by an earlier attempt count toward the quantity.
func (s *VoucherService) Generate(ctx context.Context, tenantID, batchID int64) error {
	b, err := s.repo.FindBatch(ctx, tenantID, batchID)
	if err != nil {
		return err
	}
	if b.Status == voucher.BatchReady || b.Status == voucher.BatchDisabled {
		return nil
	}
	if err := s.repo.SetBatchStatus(ctx, b.ID, voucher.BatchGenerating); err != nil {
		return err
	}

	have, err := s.repo.CountBatchCodes(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("failed to count batch codes: %w", err)
	}

	for round := 0; have < b.Quantity; round++ {
		if round == maxGenerateRounds {
			_ = s.repo.SetBatchStatus(ctx, b.ID, voucher.BatchFailed)
			s.invalidator.Invalidate(ctx, tenantID, resource.VoucherBatch)
			return fmt.Errorf("batch %d: %d of %d codes after %d rounds", b.ID, have, b.Quantity, round)
		}
		codes, err := NewCodes(b.Prefix, b.Quantity-have)
		if err != nil {
			return err
		}
		inserted, err := s.repo.InsertCodes(ctx, b, codes)
		if err != nil {
			return err
		}
		have += inserted
		s.counters.VoucherGenerated(inserted)
	}

	if err := s.repo.SetBatchStatus(ctx, b.ID, voucher.BatchReady); err != nil {
		return err
	}
	s.logger.Info("voucher batch generated",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("batch_id", b.ID),
		zap.Int("quantity", b.Quantity),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.VoucherBatch, resource.Voucher)
	return nil
}

func (s *VoucherService) GetBatch(ctx context.Context, tenantID, id int64) (*voucher.Batch, error) {
	return s.repo.FindBatch(ctx, tenantID, id)
}

func (s *VoucherService) ListBatches(ctx context.Context, tenantID int64, filters *voucher.BatchListFilters) (*response.Paginated, error) {
	batches, total, err := s.repo.ListBatches(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(batches, total, filters.Page, filters.PageSize)
	return &page, nil
}

func (s *VoucherService) BatchCodes(ctx context.Context, tenantID, batchID int64) ([]voucher.Voucher, error) {
	if _, err := s.repo.FindBatch(ctx, tenantID, batchID); err != nil {
		return nil, err
	}
	return s.repo.BatchCodes(ctx, tenantID, batchID)
}

func (s *VoucherService) DisableBatch(ctx context.Context, tenantID, id int64) (int64, error) {
	n, err := s.repo.DisableBatch(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}
	s.logger.Info("voucher batch disabled",
		zap.Int64("tenant_id", tenantID), zap.Int64("batch_id", id), zap.Int64("vouchers", n))
	s.invalidator.Invalidate(ctx, tenantID, resource.VoucherBatch, resource.Voucher)
	return n, nil
}

// ========== Vouchers ==========

func (s *VoucherService) ListVouchers(ctx context.Context, tenantID int64, filters *voucher.VoucherListFilters) (*response.Paginated, error) {
	vouchers, total, err := s.repo.ListVouchers(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	page := response.NewPaginated(vouchers, total, filters.Page, filters.PageSize)
	return &page, nil
}

func (s *VoucherService) DisableVoucher(ctx context.Context, tenantID, id int64) error {
	return s.setStatus(ctx, tenantID, id, voucher.StatusDisabled)
}

func (s *VoucherService) EnableVoucher(ctx context.Context, tenantID, id int64) error {
	return s.setStatus(ctx, tenantID, id, voucher.StatusAvailable)
}

func (s *VoucherService) setStatus(ctx context.Context, tenantID, id int64, to voucher.Status) error {
	v, err := s.repo.FindVoucher(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !v.Status.CanTransition(to) {
		return fmt.Errorf("voucher %s is %s, cannot become %s: %w", v.Code, v.Status, to, xerrors.ErrInvalidTransition)
	}
	if to == voucher.StatusAvailable && v.Expired(s.now()) {
		return fmt.Errorf("voucher %s has expired: %w", v.Code, xerrors.ErrInvalidTransition)
	}
	if err := s.repo.SetVoucherStatus(ctx, tenantID, id, v.Status, to); err != nil {
		return err
	}
	s.invalidator.Invalidate(ctx, tenantID, resource.Voucher)
	return nil
}

// Redeem logs a captive portal user in with a voucher code.
func (s *VoucherService) Redeem(ctx context.Context, tenantID int64, req *voucher.RedeemRequest) (*voucher.RedeemResult, error) {
	phone, ok := validate.NormalizePhone(req.Phone)
	if !ok {
		fe := validate.FieldErrors{}
		fe.Add("phone", "enter a valid Kenyan phone number")
		return nil, fe
	}
	if !validate.Required(req.Code) {
		fe := validate.FieldErrors{}
		fe.Add("code", "enter your voucher code")
		return nil, fe
	}

	res, err := s.repo.Redeem(ctx, tenantID, *req, phone, s.now())
	if err != nil {
		s.logger.Info("voucher redemption refused",
			zap.Int64("tenant_id", tenantID), zap.String("phone", phone), zap.Error(err))
		return nil, err
	}

	s.counters.VoucherRedeemed()
	s.logger.Info("voucher redeemed",
		zap.Int64("tenant_id", tenantID),
		zap.Int64("wifi_user_id", res.WifiUserID),
		zap.Int64("plan_id", res.PlanID),
	)
	s.invalidator.Invalidate(ctx, tenantID, resource.Voucher, resource.WifiUser)
	return res, nil
}
