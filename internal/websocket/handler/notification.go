package handler

import (
	"context"
	"fmt"

	wstypes "mnetifi-service/internal/domain/websocket"
	ws "mnetifi-service/internal/websocket"
)

// NotificationService is the part of the notification service the socket uses.
type NotificationService interface {
	MarkAsRead(ctx context.Context, id, identityID int64) error
	MarkAllAsRead(ctx context.Context, identityID int64) (int64, error)
	GetUnreadCount(ctx context.Context, identityID int64) (int64, error)
}

type NotificationHandler struct {
	notificationService NotificationService
}

func NewNotificationHandler(notificationService NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeNotificationRead,
		wstypes.EventTypeNotificationReadAll,
		wstypes.EventTypeNotificationCount,
	}
}

func (h *NotificationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeNotificationRead:
		return h.handleMarkAsRead(ctx, client, msg)
	case wstypes.EventTypeNotificationReadAll:
		return h.handleMarkAllAsRead(ctx, client)
	case wstypes.EventTypeNotificationCount:
		return h.handleGetCount(ctx, client)
	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *NotificationHandler) handleMarkAsRead(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		NotificationID int64 `json:"notification_id"`
	}
	if err := msg.DecodeData(&req); err != nil {
		return fmt.Errorf("invalid request data: %w", err)
	}
	if req.NotificationID <= 0 {
		return fmt.Errorf("notification_id is required")
	}

	// the service pushes the new unread count itself
	return h.notificationService.MarkAsRead(ctx, req.NotificationID, client.GetIdentityID())
}

func (h *NotificationHandler) handleMarkAllAsRead(ctx context.Context, client *ws.Client) error {
	_, err := h.notificationService.MarkAllAsRead(ctx, client.GetIdentityID())
	return err
}

func (h *NotificationHandler) handleGetCount(ctx context.Context, client *ws.Client) error {
	count, err := h.notificationService.GetUnreadCount(ctx, client.GetIdentityID())
	if err != nil {
		return fmt.Errorf("failed to get unread count: %w", err)
	}
	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
		"unread_count": count,
	}))
	return nil
}
