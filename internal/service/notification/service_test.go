package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/notification"
	wstypes "mnetifi-service/internal/domain/websocket"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type memRepo struct {
	admins map[int64][]int64 // tenant -> identities
	items  []notification.Notification
	nextID int64
}

func (m *memRepo) Create(_ context.Context, n *notification.Notification) error {
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now()
	m.items = append(m.items, *n)
	return nil
}

func (m *memRepo) CreateForTenantAdmins(ctx context.Context, tenantID int64, a notification.Alert) ([]notification.Notification, error) {
	var out []notification.Notification
	for _, id := range m.admins[tenantID] {
		tid := tenantID
		n := notification.Notification{TenantID: &tid, IdentityID: id, Title: a.Title, Message: a.Message, Type: a.Type}
		_ = m.Create(ctx, &n)
		out = append(out, n)
	}
	return out, nil
}

func (m *memRepo) GetUserNotifications(_ context.Context, identityID int64, _ *notification.NotificationListFilters) ([]notification.Notification, int64, error) {
	var out []notification.Notification
	for _, n := range m.items {
		if n.IdentityID == identityID {
			out = append(out, n)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memRepo) MarkAsRead(_ context.Context, id, identityID int64) error {
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].IdentityID == identityID {
			m.items[i].IsRead = true
			return nil
		}
	}
	return xerrors.ErrNotFound
}

func (m *memRepo) MarkAllAsRead(_ context.Context, identityID int64) (int64, error) {
	var n int64
	for i := range m.items {
		if m.items[i].IdentityID == identityID && !m.items[i].IsRead {
			m.items[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetUnreadCount(_ context.Context, identityID int64) (int64, error) {
	var n int64
	for _, it := range m.items {
		if it.IdentityID == identityID && !it.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Delete(context.Context, int64, int64) error { return nil }

func (m *memRepo) DeleteExpiredNotifications(context.Context) (int64, error) { return 3, nil }

type recorder struct {
	pushed map[int64]int
	counts map[int64]int64
}

func (r *recorder) BroadcastNotification(identityID int64, _ *wstypes.NotificationData) {
	r.pushed[identityID]++
}

func (r *recorder) BroadcastNotificationCount(identityID int64, count int64) {
	r.counts[identityID] = count
}

func TestNotifyTenantAdminsPushesEach(t *testing.T) {
	repo := &memRepo{admins: map[int64][]int64{1: {10, 11}}}
	rec := &recorder{pushed: map[int64]int{}, counts: map[int64]int64{}}
	svc := NewNotificationService(repo, rec, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.NotifyTenantAdmins(ctx, 1, notification.Alert{Title: "Payment received", Type: notification.TypePayment}))
	assert.Equal(t, 1, rec.pushed[10])
	assert.Equal(t, 1, rec.pushed[11])

	list, err := svc.GetUserNotifications(ctx, 10, &notification.NotificationListFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Unread)
	assert.Equal(t, 20, list.PageSize)
	assert.Equal(t, 1, list.TotalPages)

	require.NoError(t, svc.MarkAsRead(ctx, list.Notifications[0].ID, 10))
	assert.Equal(t, int64(0), rec.counts[10])

	err = svc.MarkAsRead(ctx, list.Notifications[0].ID, 11)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestNilPusher(t *testing.T) {
	repo := &memRepo{admins: map[int64][]int64{1: {10}}}
	svc := NewNotificationService(repo, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.NotifyTenantAdmins(ctx, 1, notification.Alert{Title: "x"}))
	n, err := svc.MarkAllAsRead(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	deleted, err := svc.DeleteExpiredNotifications(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
