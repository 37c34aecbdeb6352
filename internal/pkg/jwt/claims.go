// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token purposes
const (
	PurposeAccess    = "access"
	PurposeRefresh   = "refresh"
	PurposeTwoFactor = "two_factor"
)

// Role names carried in tokens.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Claims represents the JWT claims. TenantID is zero for super admins.
type Claims struct {
	IdentityID     int64    `json:"identity_id"`
	TenantID       int64    `json:"tenant_id,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	Device         string   `json:"device,omitempty"`
	SessionPurpose string   `json:"session_purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c *Claims) IsSuperAdmin() bool {
	return c.HasRole(RoleSuperAdmin)
}

// IsAdmin reports a tenant admin or a super admin.
func (c *Claims) IsAdmin() bool {
	return c.HasRole(RoleAdmin) || c.HasRole(RoleSuperAdmin)
}

func (c *Claims) hasAudience(audience string) bool {
	for _, aud := range c.Audience {
		if aud == audience {
			return true
		}
	}
	return false
}
