// internal/pkg/session/types.go
package session

import (
	"context"
	"time"

	"mnetifi-service/internal/domain/auth"
)

type SessionData struct {
	JTI            string    `json:"jti"`
	IdentityID     int64     `json:"identity_id"`
	TenantID       int64     `json:"tenant_id,omitempty"`
	SessionID      int64     `json:"session_id"` // DB session ID
	Email          string    `json:"email"`
	Roles          []string  `json:"roles"`
	Device         string    `json:"device,omitempty"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IsActive       bool      `json:"is_active"`
}

// Store is the durable copy of sessions that Redis falls back to.
type Store interface {
	FindSessionByToken(ctx context.Context, token string) (*auth.Session, error)
	UpdateSessionActivity(ctx context.Context, id int64) error
	InvalidateSession(ctx context.Context, id int64) error
	InvalidateAllUserSessions(ctx context.Context, identityID int64) error
}

// IdleTimeouts bounds inactivity per role. Zero disables the check.
type IdleTimeouts struct {
	Admin      time.Duration
	SuperAdmin time.Duration
}

func (t IdleTimeouts) forRoles(roles []string) time.Duration {
	for _, r := range roles {
		if r == "super_admin" {
			return t.SuperAdmin
		}
	}
	return t.Admin
}
