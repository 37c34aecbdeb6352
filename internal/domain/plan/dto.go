package plan

import (
	"github.com/shopspring/decimal"

	"mnetifi-service/internal/pkg/validate"
)

type CreatePlanRequest struct {
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	Price           decimal.Decimal `json:"price"`
	DurationSeconds int64           `json:"duration_seconds"`
	PlanType        PlanType        `json:"plan_type"`
	UploadLimit     *int64          `json:"upload_limit,omitempty"`
	DownloadLimit   *int64          `json:"download_limit,omitempty"`
	SpeedMbps       *int            `json:"speed_mbps,omitempty"`
	MaxDevices      int             `json:"max_devices,omitempty"`
	IsActive        *bool           `json:"is_active,omitempty"`
}

func (r CreatePlanRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Length(r.Name, 1, 100), "name", "plan name is required")
	fe.Check(r.Price.IsPositive(), "price", "price must be greater than zero")
	fe.Check(r.DurationSeconds > 0, "duration_seconds", "duration must be greater than zero")
	if !r.PlanType.Valid() {
		fe.Add("plan_type", "plan type must be HOTSPOT or PPPOE")
	} else if r.PlanType == TypePPPoE {
		fe.Check(r.SpeedMbps != nil && *r.SpeedMbps > 0, "speed_mbps", "PPPoE plans need a speed in Mbps")
	}
	fe.Check(r.MaxDevices >= 0, "max_devices", "max devices cannot be negative")
	if r.UploadLimit != nil {
		fe.Check(*r.UploadLimit >= 0, "upload_limit", "upload limit cannot be negative")
	}
	if r.DownloadLimit != nil {
		fe.Check(*r.DownloadLimit >= 0, "download_limit", "download limit cannot be negative")
	}
	return fe.Err()
}

// UpdatePlanRequest changes only the fields that are set.
type UpdatePlanRequest struct {
	Name            *string          `json:"name,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	DurationSeconds *int64           `json:"duration_seconds,omitempty"`
	PlanType        *PlanType        `json:"plan_type,omitempty"`
	UploadLimit     *int64           `json:"upload_limit,omitempty"`
	DownloadLimit   *int64           `json:"download_limit,omitempty"`
	SpeedMbps       *int             `json:"speed_mbps,omitempty"`
	MaxDevices      *int             `json:"max_devices,omitempty"`
	IsActive        *bool            `json:"is_active,omitempty"`
}

// Validate checks the fields that are set. MaxDevices has no default on
// update, so an explicit value must be at least 1.
func (r UpdatePlanRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.MaxDevices != nil {
		fe.Check(*r.MaxDevices >= 1, "max_devices", "max devices must be at least 1")
	}
	return fe.Err()
}

// Apply overlays the update on p and returns the create form of the result so
// the merged plan can be validated as a whole.
func (r UpdatePlanRequest) Apply(p *Plan) CreatePlanRequest {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Description != nil {
		p.Description = r.Description
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.DurationSeconds != nil {
		p.DurationSeconds = *r.DurationSeconds
	}
	if r.PlanType != nil {
		p.PlanType = *r.PlanType
	}
	if r.UploadLimit != nil {
		p.UploadLimit = r.UploadLimit
	}
	if r.DownloadLimit != nil {
		p.DownloadLimit = r.DownloadLimit
	}
	if r.SpeedMbps != nil {
		p.SpeedMbps = r.SpeedMbps
	}
	if r.MaxDevices != nil {
		p.MaxDevices = *r.MaxDevices
	}
	if r.IsActive != nil {
		p.IsActive = *r.IsActive
	}
	return CreatePlanRequest{
		Name:            p.Name,
		Description:     p.Description,
		Price:           p.Price,
		DurationSeconds: p.DurationSeconds,
		PlanType:        p.PlanType,
		UploadLimit:     p.UploadLimit,
		DownloadLimit:   p.DownloadLimit,
		SpeedMbps:       p.SpeedMbps,
		MaxDevices:      p.MaxDevices,
	}
}

type PlanListFilters struct {
	PlanType *PlanType `form:"type"`
	IsActive *bool     `form:"is_active"`
	Search   string    `form:"search"`
	Page     int       `form:"page"`
	PageSize int       `form:"page_size"`
}
