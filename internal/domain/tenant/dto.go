package tenant

import (
	"mnetifi-service/internal/pkg/validate"
)

type UpdateTenantRequest struct {
	Name     *string   `json:"name"`
	Email    *string   `json:"email"`
	Phone    *string   `json:"phone"`
	Location *string   `json:"location"`
	Branding *Branding `json:"branding"`
}

func (r UpdateTenantRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.Name != nil {
		fe.Check(validate.Length(*r.Name, 2, 120), "name", "name is required")
	}
	if r.Email != nil {
		fe.Check(validate.Email(*r.Email), "email", "enter a valid email address")
	}
	if r.Phone != nil {
		fe.Check(validate.Phone(*r.Phone), "phone", "enter a valid Kenyan phone number")
	}
	return fe.Err()
}

// UpdateCredentialsRequest leaves a field unchanged when it is empty.
type UpdateCredentialsRequest struct {
	Credentials
}

func (r UpdateCredentialsRequest) Validate() error {
	fe := validate.FieldErrors{}
	if r.MpesaEnvironment != "" {
		fe.Check(validate.OneOf(r.MpesaEnvironment, "sandbox", "production"), "mpesa_environment", "environment must be sandbox or production")
	}
	if r.MpesaShortcode != "" {
		fe.Check(validate.Length(r.MpesaShortcode, 5, 7), "mpesa_shortcode", "shortcode must be 5-7 digits")
	}
	if r.SMSSenderID != "" {
		fe.Check(validate.Length(r.SMSSenderID, 3, 11), "sms_sender_id", "sender id must be 3-11 characters")
	}
	return fe.Err()
}

// Merge overlays the non-empty fields of r onto c.
func (r UpdateCredentialsRequest) Merge(c Credentials) Credentials {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.MpesaShortcode, r.MpesaShortcode)
	set(&c.MpesaPasskey, r.MpesaPasskey)
	set(&c.MpesaConsumerKey, r.MpesaConsumerKey)
	set(&c.MpesaConsumerSecret, r.MpesaConsumerSecret)
	set(&c.MpesaEnvironment, r.MpesaEnvironment)
	set(&c.SMSUsername, r.SMSUsername)
	set(&c.SMSAPIKey, r.SMSAPIKey)
	set(&c.SMSSenderID, r.SMSSenderID)
	return c
}

type UpdateStatusRequest struct {
	Status Status `json:"status" binding:"required"`
}

type UpdateTierRequest struct {
	Tier Tier `json:"tier" binding:"required"`
}

type TenantListFilters struct {
	Status   *Status `form:"status"`
	Tier     *Tier   `form:"tier"`
	Search   string  `form:"search"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

// PortalInfo is what the captive portal needs to render for a subdomain.
type PortalInfo struct {
	Name      string   `json:"name"`
	Subdomain string   `json:"subdomain"`
	Branding  Branding `json:"branding"`
}
