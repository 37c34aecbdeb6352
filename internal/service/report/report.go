package report

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/report"
	"mnetifi-service/internal/domain/transaction"
	"mnetifi-service/internal/pkg/response"
)

// Location is the reporting timezone for day and month boundaries.
var Location = loadLocation()

func loadLocation() *time.Location {
	if loc, err := time.LoadLocation("Africa/Nairobi"); err == nil {
		return loc
	}
	return time.FixedZone("EAT", 3*60*60)
}

type Repository interface {
	Summary(ctx context.Context, tenantID int64, now, dayStart, monthStart time.Time) (*report.Summary, error)
	RevenueByDay(ctx context.Context, tenantID int64, from, to time.Time) ([]report.RevenuePoint, error)
}

type Transactions interface {
	List(ctx context.Context, tenantID int64, filters *transaction.TransactionListFilters) ([]transaction.Transaction, int64, error)
}

type ReportService struct {
	repo   Repository
	txns   Transactions
	logger *zap.Logger
	now    func() time.Time
}

func NewReportService(repo Repository, txns Transactions, logger *zap.Logger) *ReportService {
	return &ReportService{repo: repo, txns: txns, logger: logger, now: time.Now}
}

func (s *ReportService) Summary(ctx context.Context, tenantID int64) (*report.Summary, error) {
	now := s.now().In(Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, Location)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, Location)
	return s.repo.Summary(ctx, tenantID, now, dayStart, monthStart)
}

func (s *ReportService) Revenue(ctx context.Context, tenantID int64, f report.RangeFilter) ([]report.RevenuePoint, error) {
	from, to := f.Resolve(s.now().In(Location))
	return s.repo.RevenueByDay(ctx, tenantID, from, to)
}

// Transactions lists transactions created within the range, newest first.
func (s *ReportService) Transactions(ctx context.Context, tenantID int64, f report.RangeFilter, page, pageSize int) (*response.Paginated, error) {
	from, to := f.Resolve(s.now().In(Location))
	last := to.AddDate(0, 0, -1)
	filters := &transaction.TransactionListFilters{From: &from, To: &last, Page: page, PageSize: pageSize}
	txns, total, err := s.txns.List(ctx, tenantID, filters)
	if err != nil {
		return nil, err
	}
	p := response.NewPaginated(txns, total, filters.Page, filters.PageSize)
	return &p, nil
}
