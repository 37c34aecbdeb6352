// internal/domain/auth/entity.go
package auth

import (
	"database/sql"
	"time"
)

// Identity statuses
const (
	StatusActive              = "active"
	StatusSuspended           = "suspended"
	StatusPendingVerification = "pending_verification"
)

// Token types
const (
	TokenEmailVerify   = "email_verify"
	TokenPasswordReset = "password_reset"
)

// Identity is an admin account. TenantID is null for super admins.
type Identity struct {
	ID                  int64          `json:"id" db:"id"`
	TenantID            sql.NullInt64  `json:"tenant_id" db:"tenant_id"`
	Email               string         `json:"email" db:"email"`
	EmailVerified       bool           `json:"email_verified" db:"email_verified"`
	Phone               sql.NullString `json:"phone" db:"phone"`
	FullName            string         `json:"full_name" db:"full_name"`
	PasswordHash        string         `json:"-" db:"password_hash"`
	Roles               []string       `json:"roles" db:"roles"`
	Status              string         `json:"status" db:"status"`
	TOTPSecret          sql.NullString `json:"-" db:"totp_secret"`
	TOTPEnabled         bool           `json:"totp_enabled" db:"totp_enabled"`
	LastLogin           sql.NullTime   `json:"last_login" db:"last_login"`
	FailedLoginAttempts int            `json:"-" db:"failed_login_attempts"`
	LockedUntil         sql.NullTime   `json:"-" db:"locked_until"`
	PasswordChangedAt   sql.NullTime   `json:"-" db:"password_changed_at"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}

// Session represents a user session
type Session struct {
	ID             int64          `json:"id" db:"id"`
	IdentityID     int64          `json:"identity_id" db:"identity_id"`
	SessionToken   string         `json:"-" db:"session_token"`
	RefreshToken   sql.NullString `json:"-" db:"refresh_token"`
	IPAddress      sql.NullString `json:"ip_address" db:"ip_address"`
	UserAgent      sql.NullString `json:"user_agent" db:"user_agent"`
	Device         sql.NullString `json:"device" db:"device"`
	Status         string         `json:"status" db:"status"` // active, revoked
	LoginAt        time.Time      `json:"login_at" db:"login_at"`
	LastActivityAt time.Time      `json:"last_activity_at" db:"last_activity_at"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	LogoutAt       sql.NullTime   `json:"logout_at" db:"logout_at"`
}

// VerificationToken represents a verification/reset token
type VerificationToken struct {
	ID         int64        `json:"id" db:"id"`
	IdentityID int64        `json:"identity_id" db:"identity_id"`
	TokenType  string       `json:"token_type" db:"token_type"`
	Token      string       `json:"token" db:"token"`
	ExpiresAt  time.Time    `json:"expires_at" db:"expires_at"`
	UsedAt     sql.NullTime `json:"used_at" db:"used_at"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}
