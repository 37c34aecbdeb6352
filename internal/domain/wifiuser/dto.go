package wifiuser

import (
	"mnetifi-service/internal/pkg/validate"
)

type CreateWifiUserRequest struct {
	PhoneNumber   string      `json:"phone_number"`
	FullName      *string     `json:"full_name,omitempty"`
	AccountType   AccountType `json:"account_type"`
	PlanID        *int64      `json:"plan_id,omitempty"`
	MACAddress    *string     `json:"mac_address,omitempty"`
	PPPoEUsername *string     `json:"pppoe_username,omitempty"`
}

// Normalize rewrites the phone into 2547XXXXXXXX form when it parses.
func (r *CreateWifiUserRequest) Normalize() {
	if p, ok := validate.NormalizePhone(r.PhoneNumber); ok {
		r.PhoneNumber = p
	}
	if r.AccountType == "" {
		r.AccountType = AccountHotspot
	}
}

func (r CreateWifiUserRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Phone(r.PhoneNumber), "phone_number", "enter a valid Kenyan phone number")
	fe.Check(r.AccountType == "" || r.AccountType.Valid(), "account_type", "account type must be HOTSPOT, PPPOE or STATIC")
	if r.MACAddress != nil && *r.MACAddress != "" {
		fe.Check(validate.MAC(*r.MACAddress), "mac_address", "enter a valid MAC address")
	}
	if r.AccountType == AccountPPPoE {
		fe.Check(r.PPPoEUsername != nil && validate.Required(*r.PPPoEUsername), "pppoe_username", "PPPoE accounts need a username")
	}
	return fe.Err()
}

type UpdateWifiUserRequest struct {
	FullName      *string      `json:"full_name,omitempty"`
	AccountType   *AccountType `json:"account_type,omitempty"`
	MACAddress    *string      `json:"mac_address,omitempty"`
	PPPoEUsername *string      `json:"pppoe_username,omitempty"`
}

func (r UpdateWifiUserRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.AccountType != nil {
		fe.Check(r.AccountType.Valid(), "account_type", "account type must be HOTSPOT, PPPOE or STATIC")
	}
	if r.MACAddress != nil && *r.MACAddress != "" {
		fe.Check(validate.MAC(*r.MACAddress), "mac_address", "enter a valid MAC address")
	}
	return fe.Err()
}

type WifiUserListFilters struct {
	Status      *Status      `form:"status"`
	AccountType *AccountType `form:"account_type"`
	PlanID      *int64       `form:"plan_id"`
	Search      string       `form:"search"`
	Page        int          `form:"page"`
	PageSize    int          `form:"page_size"`
}
