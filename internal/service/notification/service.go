package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mnetifi-service/internal/domain/notification"
	wstypes "mnetifi-service/internal/domain/websocket"
)

// Repository is the storage the service needs.
type Repository interface {
	Create(ctx context.Context, n *notification.Notification) error
	CreateForTenantAdmins(ctx context.Context, tenantID int64, a notification.Alert) ([]notification.Notification, error)
	GetUserNotifications(ctx context.Context, identityID int64, filters *notification.NotificationListFilters) ([]notification.Notification, int64, error)
	MarkAsRead(ctx context.Context, id, identityID int64) error
	MarkAllAsRead(ctx context.Context, identityID int64) (int64, error)
	GetUnreadCount(ctx context.Context, identityID int64) (int64, error)
	Delete(ctx context.Context, id, identityID int64) error
	DeleteExpiredNotifications(ctx context.Context) (int64, error)
}

// Pusher delivers live updates to connected admins.
type Pusher interface {
	BroadcastNotification(identityID int64, n *wstypes.NotificationData)
	BroadcastNotificationCount(identityID int64, count int64)
}

// NotificationService handles notification business logic
type NotificationService struct {
	repo   Repository
	pusher Pusher
	logger *zap.Logger
}

// NewNotificationService accepts a nil pusher; the worker stores
// notifications without a websocket hub.
func NewNotificationService(repo Repository, pusher Pusher, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher, logger: logger}
}

// NotifyTenantAdmins stores the alert for every admin of tenantID and pushes
// it to those who are online.
func (s *NotificationService) NotifyTenantAdmins(ctx context.Context, tenantID int64, a notification.Alert) error {
	created, err := s.repo.CreateForTenantAdmins(ctx, tenantID, a)
	if err != nil {
		return fmt.Errorf("failed to create notifications: %w", err)
	}
	for i := range created {
		s.push(&created[i])
	}
	return nil
}

// CreateAndPush stores a notification for one identity and pushes it.
func (s *NotificationService) CreateAndPush(ctx context.Context, n *notification.Notification) error {
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	s.push(n)
	return nil
}

func (s *NotificationService) GetUserNotifications(ctx context.Context, identityID int64, filters *notification.NotificationListFilters) (*notification.NotificationListResponse, error) {
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 || filters.PageSize > 100 {
		filters.PageSize = 20
	}

	items, total, err := s.repo.GetUserNotifications(ctx, identityID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	unread, err := s.repo.GetUnreadCount(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	totalPages := int(total) / filters.PageSize
	if int(total)%filters.PageSize > 0 {
		totalPages++
	}

	return &notification.NotificationListResponse{
		Notifications: items,
		Unread:        unread,
		Total:         total,
		Page:          filters.Page,
		PageSize:      filters.PageSize,
		TotalPages:    totalPages,
	}, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id, identityID int64) error {
	if err := s.repo.MarkAsRead(ctx, id, identityID); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	s.pushCount(ctx, identityID)
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, identityID int64) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all as read: %w", err)
	}
	if s.pusher != nil {
		s.pusher.BroadcastNotificationCount(identityID, 0)
	}
	return n, nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, identityID int64) (int64, error) {
	return s.repo.GetUnreadCount(ctx, identityID)
}

func (s *NotificationService) Delete(ctx context.Context, id, identityID int64) error {
	if err := s.repo.Delete(ctx, id, identityID); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	s.pushCount(ctx, identityID)
	return nil
}

// DeleteExpiredNotifications is run by the daily cron.
func (s *NotificationService) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpiredNotifications(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	s.logger.Info("deleted expired notifications", zap.Int64("count", deleted))
	return deleted, nil
}

func (s *NotificationService) pushCount(ctx context.Context, identityID int64) {
	if s.pusher == nil {
		return
	}
	count, err := s.repo.GetUnreadCount(ctx, identityID)
	if err != nil {
		s.logger.Warn("failed to get unread count", zap.Int64("identity_id", identityID), zap.Error(err))
		return
	}
	s.pusher.BroadcastNotificationCount(identityID, count)
}

func (s *NotificationService) push(n *notification.Notification) {
	if s.pusher == nil {
		return
	}
	s.pusher.BroadcastNotification(n.IdentityID, &wstypes.NotificationData{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
}
