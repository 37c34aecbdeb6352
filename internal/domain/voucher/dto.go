package voucher

import (
	"time"

	"mnetifi-service/internal/pkg/validate"
)

type CreateBatchRequest struct {
	PlanID     int64      `json:"plan_id"`
	Quantity   int        `json:"quantity"`
	Prefix     string     `json:"prefix"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// Normalize upper-cases and truncates the prefix in place.
func (r *CreateBatchRequest) Normalize() {
	r.Prefix = validate.NormalizePrefix(r.Prefix)
}

func (r CreateBatchRequest) Validate(now time.Time) error {
	fe := validate.FieldErrors{}
	fe.Check(r.PlanID > 0, "plan_id", "choose a plan")
	fe.Check(r.Quantity >= 1 && r.Quantity <= MaxBatchQuantity, "quantity", "quantity must be between 1 and 5000")
	fe.Check(validate.VoucherPrefix(validate.NormalizePrefix(r.Prefix)), "prefix", "prefix may only contain letters and digits")
	fe.Check(validate.FutureTime(r.ValidUntil, now), "valid_until", "expiry must be in the future")
	return fe.Err()
}

type BatchListFilters struct {
	PlanID   *int64       `form:"plan_id"`
	Status   *BatchStatus `form:"status"`
	Page     int          `form:"page"`
	PageSize int          `form:"page_size"`
}

type VoucherListFilters struct {
	BatchID  *int64  `form:"batch_id"`
	Status   *Status `form:"status"`
	Code     string  `form:"code"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// RedeemRequest is posted from the captive portal.
type RedeemRequest struct {
	Code       string `json:"code" binding:"required"`
	Phone      string `json:"phone"`
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
	HotspotID  *int64 `json:"hotspot_id"`
}

type RedeemResult struct {
	WifiUserID int64     `json:"wifi_user_id"`
	PlanID     int64     `json:"plan_id"`
	PlanName   string    `json:"plan_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// GenerateTask is the payload of the voucher generation job.
type GenerateTask struct {
	TenantID int64 `json:"tenant_id"`
	BatchID  int64 `json:"batch_id"`
}
