// internal/domain/notification/entity.go
package notification

import (
	"time"
)

type NotificationType string

const (
	TypeSystem  NotificationType = "system"
	TypePayment NotificationType = "payment"
	TypeTicket  NotificationType = "ticket"
	TypeVoucher NotificationType = "voucher"
	TypeTrial   NotificationType = "trial"
)

type Notification struct {
	ID         int64                  `json:"id" db:"id"`
	TenantID   *int64                 `json:"tenant_id,omitempty" db:"tenant_id"`
	IdentityID int64                  `json:"identity_id" db:"identity_id"`
	Title      string                 `json:"title" db:"title"`
	Message    string                 `json:"message" db:"message"`
	Type       NotificationType       `json:"type" db:"type"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	IsRead     bool                   `json:"is_read" db:"is_read"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	ReadAt     *time.Time             `json:"read_at,omitempty" db:"read_at"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty" db:"expires_at"`
}

// Alert is raised by services for every admin of a tenant.
type Alert struct {
	Title    string
	Message  string
	Type     NotificationType
	Metadata map[string]interface{}
	TTL      time.Duration
}

type NotificationListFilters struct {
	IsRead   *bool             `form:"is_read"`
	Type     *NotificationType `form:"type"`
	Page     int               `form:"page"`
	PageSize int               `form:"page_size"`
}

type NotificationListResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int64          `json:"unread"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
}
