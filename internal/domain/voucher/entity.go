package voucher

import (
	"time"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchGenerating BatchStatus = "GENERATING"
	BatchReady      BatchStatus = "READY"
	BatchFailed     BatchStatus = "FAILED"
	BatchDisabled   BatchStatus = "DISABLED"
)

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusUsed      Status = "USED"
	StatusExpired   Status = "EXPIRED"
	StatusDisabled  Status = "DISABLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusUsed, StatusExpired, StatusDisabled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusAvailable: {StatusUsed, StatusExpired, StatusDisabled},
	StatusDisabled:  {StatusAvailable},
}

// CanTransition reports whether a voucher may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

const (
	MaxBatchQuantity = 5000
	MaxPrefixLength  = 6
	// CodeLength counts the random part after the prefix.
	CodeLength = 8
)

type Batch struct {
	ID         int64       `json:"id" db:"id"`
	TenantID   int64       `json:"tenant_id" db:"tenant_id"`
	Reference  string      `json:"reference" db:"reference"`
	PlanID     int64       `json:"plan_id" db:"plan_id"`
	PlanName   string      `json:"plan_name,omitempty" db:"plan_name"`
	Quantity   int         `json:"quantity" db:"quantity"`
	UsedCount  int         `json:"used_count" db:"used_count"`
	Prefix     string      `json:"prefix" db:"prefix"`
	ValidUntil *time.Time  `json:"valid_until,omitempty" db:"valid_until"`
	Status     BatchStatus `json:"status" db:"status"`
	CreatedBy  int64       `json:"created_by" db:"created_by"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

func (b *Batch) Remaining() int { return b.Quantity - b.UsedCount }

type Voucher struct {
	ID         int64      `json:"id" db:"id"`
	TenantID   int64      `json:"tenant_id" db:"tenant_id"`
	BatchID    int64      `json:"batch_id" db:"batch_id"`
	PlanID     int64      `json:"plan_id" db:"plan_id"`
	Code       string     `json:"code" db:"code"`
	Status     Status     `json:"status" db:"status"`
	UsedBy     *int64     `json:"used_by,omitempty" db:"used_by"`
	UsedAt     *time.Time `json:"used_at,omitempty" db:"used_at"`
	ValidUntil *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Expired reports whether the voucher's validity window has passed.
func (v *Voucher) Expired(now time.Time) bool {
	return v.ValidUntil != nil && !now.Before(*v.ValidUntil)
}
