package loyalty

import (
	"time"

	"github.com/shopspring/decimal"

	"mnetifi-service/internal/pkg/validate"
)

type EntryType string

const (
	EntryEarn   EntryType = "EARN"
	EntryRedeem EntryType = "REDEEM"
)

// KESPerPoint is how much must be spent to earn one point.
var KESPerPoint = decimal.NewFromInt(10)

// PointsForAmount floors amount / KESPerPoint.
func PointsForAmount(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(KESPerPoint).Floor().IntPart()
}

type Account struct {
	WifiUserID    int64     `json:"wifi_user_id" db:"wifi_user_id"`
	TenantID      int64     `json:"tenant_id" db:"tenant_id"`
	Balance       int64     `json:"balance" db:"balance"`
	TotalEarned   int64     `json:"total_earned" db:"total_earned"`
	TotalRedeemed int64     `json:"total_redeemed" db:"total_redeemed"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type Entry struct {
	ID          int64     `json:"id" db:"id"`
	TenantID    int64     `json:"tenant_id" db:"tenant_id"`
	WifiUserID  int64     `json:"wifi_user_id" db:"wifi_user_id"`
	Type        EntryType `json:"type" db:"type"`
	Points      int64     `json:"points" db:"points"`
	Reason      string    `json:"reason" db:"reason"`
	ReferenceID *string   `json:"reference_id,omitempty" db:"reference_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Summary struct {
	Account Account `json:"account"`
	Entries []Entry `json:"entries"`
}

type EarnRequest struct {
	Points      int64   `json:"points"`
	Reason      string  `json:"reason"`
	ReferenceID *string `json:"reference_id,omitempty"`
}

func (r EarnRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(r.Points > 0, "points", "points must be greater than zero")
	fe.Check(validate.Required(r.Reason), "reason", "reason is required")
	return fe.Err()
}

type RedeemRequest struct {
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

// Validate checks the request against the balance the form last saw; the
// service re-checks under a row lock.
func (r RedeemRequest) Validate(knownBalance int64) error {
	fe := validate.FieldErrors{}
	if r.Points <= 0 {
		fe.Add("points", "points must be greater than zero")
	} else if r.Points > knownBalance {
		fe.Add("points", "cannot redeem more points than the current balance")
	}
	fe.Check(validate.Required(r.Reason), "reason", "reason is required")
	return fe.Err()
}
