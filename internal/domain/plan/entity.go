package plan

import (
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	TypeHotspot PlanType = "HOTSPOT"
	TypePPPoE   PlanType = "PPPOE"
)

func (t PlanType) Valid() bool { return t == TypeHotspot || t == TypePPPoE }

type Plan struct {
	ID              int64           `json:"id" db:"id"`
	TenantID        int64           `json:"tenant_id" db:"tenant_id"`
	Name            string          `json:"name" db:"name"`
	Description     *string         `json:"description,omitempty" db:"description"`
	Price           decimal.Decimal `json:"price" db:"price"`
	DurationSeconds int64           `json:"duration_seconds" db:"duration_seconds"`
	PlanType        PlanType        `json:"plan_type" db:"plan_type"`
	UploadLimit     *int64          `json:"upload_limit,omitempty" db:"upload_limit"`
	DownloadLimit   *int64          `json:"download_limit,omitempty" db:"download_limit"`
	SpeedMbps       *int            `json:"speed_mbps,omitempty" db:"speed_mbps"`
	MaxDevices      int             `json:"max_devices" db:"max_devices"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Duration is the access period a purchase grants.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationSeconds) * time.Second
}

// Usage counts what references a plan and would block its deletion.
type Usage struct {
	AvailableVouchers int64 `json:"available_vouchers"`
	ActiveUsers       int64 `json:"active_users"`
}

func (u Usage) InUse() bool { return u.AvailableVouchers > 0 || u.ActiveUsers > 0 }
