package wifiuser

import (
	"time"
)

type AccountType string

const (
	AccountHotspot AccountType = "HOTSPOT"
	AccountPPPoE   AccountType = "PPPOE"
	AccountStatic  AccountType = "STATIC"
)

func (a AccountType) Valid() bool {
	return a == AccountHotspot || a == AccountPPPoE || a == AccountStatic
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusExpired   Status = "EXPIRED"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusSuspended || s == StatusExpired
}

type WifiUser struct {
	ID               int64       `json:"id" db:"id"`
	TenantID         int64       `json:"tenant_id" db:"tenant_id"`
	PhoneNumber      string      `json:"phone_number" db:"phone_number"`
	FullName         *string     `json:"full_name,omitempty" db:"full_name"`
	AccountType      AccountType `json:"account_type" db:"account_type"`
	Status           Status      `json:"status" db:"status"`
	CurrentPlanID    *int64      `json:"current_plan_id,omitempty" db:"current_plan_id"`
	CurrentPlanName  *string     `json:"current_plan_name,omitempty" db:"current_plan_name"`
	CurrentHotspotID *int64      `json:"current_hotspot_id,omitempty" db:"current_hotspot_id"`
	ExpiryTime       *time.Time  `json:"expiry_time,omitempty" db:"expiry_time"`
	MACAddress       *string     `json:"mac_address,omitempty" db:"mac_address"`
	IPAddress        *string     `json:"ip_address,omitempty" db:"ip_address"`
	PPPoEUsername    *string     `json:"pppoe_username,omitempty" db:"pppoe_username"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// Online reports an active account whose paid period has not ended.
func (u *WifiUser) Online(now time.Time) bool {
	return u.Status == StatusActive && u.ExpiryTime != nil && now.Before(*u.ExpiryTime)
}

// ExtendFrom returns the new expiry when d is bought at now: time left on an
// active period is kept.
func (u *WifiUser) ExtendFrom(now time.Time, d time.Duration) time.Time {
	if u.ExpiryTime != nil && u.ExpiryTime.After(now) && u.Status == StatusActive {
		return u.ExpiryTime.Add(d)
	}
	return now.Add(d)
}

// Activation is what a completed purchase or voucher applies to a user.
type Activation struct {
	PlanID     int64
	HotspotID  *int64
	ExpiresAt  time.Time
	MACAddress *string
	IPAddress  *string
}
