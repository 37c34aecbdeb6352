// internal/handlers/notification/notification_handler.go
package notification

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/domain/notification"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

type Service interface {
	GetUserNotifications(ctx context.Context, identityID int64, filters *notification.NotificationListFilters) (*notification.NotificationListResponse, error)
	MarkAsRead(ctx context.Context, id, identityID int64) error
	MarkAllAsRead(ctx context.Context, identityID int64) (int64, error)
	GetUnreadCount(ctx context.Context, identityID int64) (int64, error)
	Delete(ctx context.Context, id, identityID int64) error
}

type NotificationHandler struct {
	notificationService Service
}

func NewNotificationHandler(notificationService Service) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetNotifications lists the caller's notifications, newest first.
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var filters notification.NotificationListFilters
	if !params.BindQuery(c, &filters) {
		return
	}

	result, err := h.notificationService.GetUserNotifications(c.Request.Context(), identityID, &filters)
	if err != nil {
		response.FromError(c, "failed to get notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications retrieved", result)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), id, identityID); err != nil {
		response.FromError(c, "failed to mark as read", err)
		return
	}

	count, _ := h.notificationService.GetUnreadCount(c.Request.Context(), identityID)
	response.Success(c, http.StatusOK, "notification marked as read", gin.H{
		"unread_count": count,
	})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	n, err := h.notificationService.MarkAllAsRead(c.Request.Context(), identityID)
	if err != nil {
		response.FromError(c, "failed to mark all as read", err)
		return
	}

	response.Success(c, http.StatusOK, "all notifications marked as read", gin.H{
		"marked":       n,
		"unread_count": 0,
	})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	count, err := h.notificationService.GetUnreadCount(c.Request.Context(), identityID)
	if err != nil {
		response.FromError(c, "failed to get unread count", err)
		return
	}

	response.Success(c, http.StatusOK, "unread count retrieved", gin.H{
		"unread_count": count,
	})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	id, ok := params.ID(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.Delete(c.Request.Context(), id, identityID); err != nil {
		response.FromError(c, "failed to delete notification", err)
		return
	}
	response.Success(c, http.StatusOK, "notification deleted", nil)
}
