// internal/middleware/helpers.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// MustGetIdentityID gets identity ID from context or panics
func MustGetIdentityID(c *gin.Context) int64 {
	identityID, exists := GetIdentityID(c)
	if !exists {
		panic("identity_id not found in context")
	}
	return identityID
}

// MustGetTenantID gets the tenant scope from context or panics. Only valid
// behind AdminOnly.
func MustGetTenantID(c *gin.Context) int64 {
	tenantID, exists := GetTenantID(c)
	if !exists || tenantID == 0 {
		panic("tenant_id not found in context")
	}
	return tenantID
}

// MustGetJTI gets JTI from context or panics
func MustGetJTI(c *gin.Context) string {
	jti, exists := GetJTI(c)
	if !exists {
		panic("jti not found in context")
	}
	return jti
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// GetTokenExpiry returns the access token expiry set by Auth.
func GetTokenExpiry(c *gin.Context) (time.Time, bool) {
	v, exists := c.Get("exp")
	if !exists {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func IsAuthenticated(c *gin.Context) bool {
	_, exists := c.Get("identity_id")
	return exists
}

func IsSuperAdmin(c *gin.Context) bool {
	return HasRole(c, "super_admin")
}
