package report

import (
	"time"

	"github.com/shopspring/decimal"
)

type Summary struct {
	ActiveUsers         int64           `json:"active_users"`
	TotalUsers          int64           `json:"total_users"`
	RevenueToday        decimal.Decimal `json:"revenue_today"`
	RevenueMonth        decimal.Decimal `json:"revenue_month"`
	PendingTransactions int64           `json:"pending_transactions"`
	OpenTickets         int64           `json:"open_tickets"`
	AvailableVouchers   int64           `json:"available_vouchers"`
	GeneratedAt         time.Time       `json:"generated_at"`
}

type RevenuePoint struct {
	Day          time.Time       `json:"day"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int64           `json:"transactions"`
}

// RangeFilter selects [From, To). Dates are inclusive days when bound from a form.
type RangeFilter struct {
	From *time.Time `form:"from" time_format:"2006-01-02"`
	To   *time.Time `form:"to" time_format:"2006-01-02"`
}

const maxRange = 366 * 24 * time.Hour

// Resolve fills defaults (last 30 days) and turns an inclusive To day into an
// exclusive bound. It clamps ranges longer than a year.
func (f RangeFilter) Resolve(now time.Time) (time.Time, time.Time) {
	to := now
	if f.To != nil {
		to = f.To.AddDate(0, 0, 1)
	}
	from := to.AddDate(0, 0, -30)
	if f.From != nil {
		from = *f.From
	}
	if to.Sub(from) > maxRange {
		from = to.Add(-maxRange)
	}
	if from.After(to) {
		from, to = to, from
	}
	return from, to
}
