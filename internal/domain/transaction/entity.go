package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// Terminal states never change again.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanTransition allows PENDING to COMPLETED or FAILED and nothing else.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && next.Terminal()
}

type ReconciliationStatus string

const (
	ReconPending    ReconciliationStatus = "PENDING"
	ReconMatched    ReconciliationStatus = "MATCHED"
	ReconMismatched ReconciliationStatus = "MISMATCHED"
	ReconUnmatched  ReconciliationStatus = "UNMATCHED"
)

type Transaction struct {
	ID                   int64                `json:"id" db:"id"`
	TenantID             int64                `json:"tenant_id" db:"tenant_id"`
	UserPhone            string               `json:"user_phone" db:"user_phone"`
	Amount               decimal.Decimal      `json:"amount" db:"amount"`
	Status               Status               `json:"status" db:"status"`
	MpesaReceiptNumber   *string              `json:"mpesa_receipt_number,omitempty" db:"mpesa_receipt_number"`
	MerchantRequestID    *string              `json:"merchant_request_id,omitempty" db:"merchant_request_id"`
	CheckoutRequestID    *string              `json:"checkout_request_id,omitempty" db:"checkout_request_id"`
	ReconciliationStatus ReconciliationStatus `json:"reconciliation_status" db:"reconciliation_status"`
	PaidAmount           *decimal.Decimal     `json:"paid_amount,omitempty" db:"paid_amount"`
	PlanID               *int64               `json:"plan_id,omitempty" db:"plan_id"`
	WifiUserID           *int64               `json:"wifi_user_id,omitempty" db:"wifi_user_id"`
	HotspotID            *int64               `json:"hotspot_id,omitempty" db:"hotspot_id"`
	FailureReason        *string              `json:"failure_reason,omitempty" db:"failure_reason"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt            time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at" db:"updated_at"`
}

// Reconcile classifies an upstream payment against the recorded amount.
// paid is nil when the provider has no record of a payment.
func Reconcile(expected decimal.Decimal, receipt string, paid *decimal.Decimal) ReconciliationStatus {
	if paid == nil || receipt == "" {
		return ReconUnmatched
	}
	if paid.Equal(expected) {
		return ReconMatched
	}
	return ReconMismatched
}

type Stats struct {
	TotalCount     int64           `json:"total_count"`
	CompletedCount int64           `json:"completed_count"`
	PendingCount   int64           `json:"pending_count"`
	FailedCount    int64           `json:"failed_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	RevenueToday   decimal.Decimal `json:"revenue_today"`
	SuccessRate    float64         `json:"success_rate"`
}
