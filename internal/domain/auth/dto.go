// internal/domain/auth/dto.go
package auth

import (
	"time"

	"mnetifi-service/internal/domain/tenant"
	"mnetifi-service/internal/pkg/validate"
)

// BusinessStep is step 1 of the registration wizard.
type BusinessStep struct {
	BusinessName  string `json:"business_name"`
	Subdomain     string `json:"subdomain"`
	BusinessPhone string `json:"business_phone"`
	BusinessEmail string `json:"business_email"`
	Location      string `json:"location,omitempty"`
}

func (s BusinessStep) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Length(s.BusinessName, 2, 120), "business_name", "business name is required")
	fe.Check(validate.Subdomain(s.Subdomain), "subdomain", "subdomain must be 3-32 lowercase letters, digits or hyphens and not reserved")
	fe.Check(validate.Phone(s.BusinessPhone), "business_phone", "enter a valid Kenyan phone number")
	fe.Check(validate.Email(s.BusinessEmail), "business_email", "enter a valid email address")
	return fe.Err()
}

// AdminStep is step 2 of the registration wizard.
type AdminStep struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (s AdminStep) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Length(s.FullName, 2, 120), "full_name", "full name is required")
	fe.Check(validate.Email(s.Email), "email", "enter a valid email address")
	if msg := validate.Password(s.Password); msg != "" {
		fe.Add("password", msg)
	}
	fe.Check(s.Password == s.ConfirmPassword, "confirm_password", "passwords do not match")
	return fe.Err()
}

// PlanStep is step 3 of the registration wizard.
type PlanStep struct {
	Tier         tenant.Tier `json:"tier"`
	PaymentPhone string      `json:"payment_phone,omitempty"`
}

func (s PlanStep) Validate() error {
	fe := validate.FieldErrors{}
	if !s.Tier.Valid() {
		fe.Add("tier", "choose a subscription plan")
	} else if s.Tier.Paid() {
		fe.Check(validate.Phone(s.PaymentPhone), "payment_phone", "enter the M-Pesa number to bill")
	}
	return fe.Err()
}

// RegisterRequest is the full wizard payload.
type RegisterRequest struct {
	Business  BusinessStep `json:"business"`
	Admin     AdminStep    `json:"admin"`
	Plan      PlanStep     `json:"plan"`
	Device    string       `json:"device"`
	IPAddress string       `json:"-"`
	UserAgent string       `json:"-"`
}

// Validate runs every step and merges the field messages.
func (r RegisterRequest) Validate() error {
	merged := validate.FieldErrors{}
	for _, err := range []error{r.Business.Validate(), r.Admin.Validate(), r.Plan.Validate()} {
		if fe, ok := err.(validate.FieldErrors); ok {
			for k, v := range fe {
				merged.Add(k, v)
			}
		}
	}
	return merged.Err()
}

// RegisterResponse tells the client which terminal wizard state to enter.
type RegisterResponse struct {
	TenantID             int64          `json:"tenant_id"`
	RequiresVerification bool           `json:"requires_verification"`
	Login                *LoginResponse `json:"login,omitempty"`
}

// LoginRequest for user login
type LoginRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Device    string `json:"device"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse is either a session or a two-factor challenge.
type LoginResponse struct {
	AccessToken       string    `json:"access_token,omitempty"`
	RefreshToken      string    `json:"refresh_token,omitempty"`
	TokenType         string    `json:"token_type,omitempty"`
	ExpiresIn         int       `json:"expires_in,omitempty"`
	ExpiresAt         time.Time `json:"expires_at,omitempty"`
	User              *UserInfo `json:"user,omitempty"`
	TwoFactorRequired bool      `json:"two_factor_required,omitempty"`
	ChallengeToken    string    `json:"challenge_token,omitempty"`
}

type UserInfo struct {
	IdentityID    int64    `json:"identity_id"`
	TenantID      int64    `json:"tenant_id,omitempty"`
	Email         string   `json:"email"`
	FullName      string   `json:"full_name"`
	Roles         []string `json:"roles"`
	EmailVerified bool     `json:"email_verified"`
	TOTPEnabled   bool     `json:"totp_enabled"`
}

type TwoFactorLoginRequest struct {
	ChallengeToken string `json:"challenge_token" binding:"required"`
	Code           string `json:"code" binding:"required"`
	IPAddress      string `json:"-"`
	UserAgent      string `json:"-"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type TwoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (r TwoFactorCodeRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.OTPCode(r.Code), "code", "enter the 6-digit code from your authenticator app")
	return fe.Err()
}

type TwoFactorDisableRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

func (r TwoFactorDisableRequest) Validate() error {
	fe := validate.FieldErrors{}
	fe.Check(validate.Required(r.Password), "password", "password is required")
	fe.Check(validate.OTPCode(r.Code), "code", "enter the 6-digit code from your authenticator app")
	return fe.Err()
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// SessionInfo is an active session as listed to its owner.
type SessionInfo struct {
	JTI            string    `json:"jti"`
	Device         string    `json:"device"`
	IPAddress      string    `json:"ip_address"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Current        bool      `json:"current"`
}
