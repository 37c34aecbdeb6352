// internal/repository/postgres/notification_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/notification"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, tenant_id, identity_id, title, message, type, metadata, is_read, created_at, read_at, expires_at`

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var n notification.Notification
	var metadataJSON []byte
	err := row.Scan(
		&n.ID, &n.TenantID, &n.IdentityID, &n.Title, &n.Message, &n.Type,
		&metadataJSON, &n.IsRead, &n.CreatedAt, &n.ReadAt, &n.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &n, nil
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

// Create creates a new notification
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	metadataJSON, err := marshalMetadata(n.Metadata)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO notifications (tenant_id, identity_id, title, message, type, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		n.TenantID, n.IdentityID, n.Title, n.Message, n.Type, metadataJSON, n.ExpiresAt,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// CreateForTenantAdmins fans an alert out to every admin of a tenant and
// returns the stored rows.
func (r *NotificationRepository) CreateForTenantAdmins(ctx context.Context, tenantID int64, a notification.Alert) ([]notification.Notification, error) {
	metadataJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if a.TTL > 0 {
		t := time.Now().Add(a.TTL)
		expiresAt = &t
	}

	rows, err := r.db.Query(ctx, `
		INSERT INTO notifications (tenant_id, identity_id, title, message, type, metadata, expires_at)
		SELECT $1, id, $2, $3, $4, $5, $6 FROM auth_identities WHERE tenant_id = $1
		RETURNING `+notificationColumns,
		tenantID, a.Title, a.Message, a.Type, metadataJSON, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifications: %w", err)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// GetUserNotifications retrieves non-expired notifications for a user with filters
func (r *NotificationRepository) GetUserNotifications(ctx context.Context, identityID int64, filters *notification.NotificationListFilters) ([]notification.Notification, int64, error) {
	w := newWhere("identity_id = ?", identityID)
	w.add("(expires_at IS NULL OR expires_at > NOW())")
	if filters.IsRead != nil {
		w.add("is_read = ?", *filters.IsRead)
	}
	if filters.Type != nil {
		w.add("type = ?", *filters.Type)
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM notifications WHERE "+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	p, size, offset := page(filters.Page, filters.PageSize)
	filters.Page, filters.PageSize = p, size
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		notificationColumns, w.String(), w.next(), w.next()+1)

	rows, err := r.db.Query(ctx, query, append(w.args, size, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []notification.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, total, rows.Err()
}

// MarkAsRead marks a notification as read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id, identityID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND identity_id = $2 AND is_read = FALSE`, id, identityID)
	if err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification not found or already read: %w", xerrors.ErrNotFound)
	}
	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, identityID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE identity_id = $1 AND is_read = FALSE`, identityID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetUnreadCount gets the count of unread notifications
func (r *NotificationRepository) GetUnreadCount(ctx context.Context, identityID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE identity_id = $1 AND is_read = FALSE AND (expires_at IS NULL OR expires_at > NOW())`, identityID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}
	return count, nil
}

// Delete deletes a notification
func (r *NotificationRepository) Delete(ctx context.Context, id, identityID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND identity_id = $2`, id, identityID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteExpiredNotifications deletes expired notifications
func (r *NotificationRepository) DeleteExpiredNotifications(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}
