package tenant

import (
	"time"
)

type Tier string

const (
	TierTrial      Tier = "TRIAL"
	TierBasic      Tier = "BASIC"
	TierPro        Tier = "PRO"
	TierEnterprise Tier = "ENTERPRISE"
)

// TrialPeriod is how long a TRIAL tenant runs before it expires.
const TrialPeriod = 14 * 24 * time.Hour

func (t Tier) Valid() bool {
	switch t {
	case TierTrial, TierBasic, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Paid tiers require email verification and a billing phone before use.
func (t Tier) Paid() bool {
	return t == TierBasic || t == TierPro || t == TierEnterprise
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

// Branding drives the captive portal look.
type Branding struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
	WelcomeText  string `json:"welcome_text,omitempty"`
	SupportPhone string `json:"support_phone,omitempty"`
}

type Tenant struct {
	ID               int64      `json:"id" db:"id"`
	Name             string     `json:"name" db:"name"`
	Subdomain        string     `json:"subdomain" db:"subdomain"`
	Email            string     `json:"email" db:"email"`
	Phone            string     `json:"phone" db:"phone"`
	Location         *string    `json:"location,omitempty" db:"location"`
	Branding         Branding   `json:"branding" db:"branding_config"`
	SubscriptionTier Tier       `json:"subscription_tier" db:"subscription_tier"`
	Status           Status     `json:"status" db:"status"`
	TrialExpiresAt   *time.Time `json:"trial_expires_at,omitempty" db:"trial_expires_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Credentials are stored encrypted and only ever leave the service masked.
type Credentials struct {
	MpesaShortcode      string `json:"mpesa_shortcode"`
	MpesaPasskey        string `json:"mpesa_passkey"`
	MpesaConsumerKey    string `json:"mpesa_consumer_key"`
	MpesaConsumerSecret string `json:"mpesa_consumer_secret"`
	MpesaEnvironment    string `json:"mpesa_environment"` // sandbox or production
	SMSUsername         string `json:"sms_username"`
	SMSAPIKey           string `json:"sms_api_key"`
	SMSSenderID         string `json:"sms_sender_id"`
}

// HasMpesa reports whether STK push can be attempted.
func (c Credentials) HasMpesa() bool {
	return c.MpesaShortcode != "" && c.MpesaPasskey != "" &&
		c.MpesaConsumerKey != "" && c.MpesaConsumerSecret != ""
}

func (c Credentials) HasSMS() bool {
	return c.SMSUsername != "" && c.SMSAPIKey != ""
}

type PlatformStats struct {
	TotalTenants     int64            `json:"total_tenants"`
	ByTier           map[Tier]int64   `json:"by_tier"`
	ByStatus         map[Status]int64 `json:"by_status"`
	TrialsExpiring7d int64            `json:"trials_expiring_7d"`
	ConnectedClients int              `json:"connected_clients"`
}
