package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/auth"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type fakeStore struct {
	sessions    map[string]*auth.Session
	invalidated []int64
}

func (f *fakeStore) FindSessionByToken(_ context.Context, token string) (*auth.Session, error) {
	if s, ok := f.sessions[token]; ok {
		return s, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeStore) UpdateSessionActivity(context.Context, int64) error { return nil }

func (f *fakeStore) InvalidateSession(_ context.Context, id int64) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func (f *fakeStore) InvalidateAllUserSessions(context.Context, int64) error { return nil }

func newTestManager(t *testing.T, store Store, idle IdleTimeouts) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, store, idle, zap.NewNop()), mr
}

func TestCreateAndGetSession(t *testing.T) {
	m, _ := newTestManager(t, nil, IdleTimeouts{})
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.CreateSession(ctx, &SessionData{
		JTI: "abc", IdentityID: 7, TenantID: 3, Roles: []string{"admin"},
		LoginAt: now, LastActivityAt: now, ExpiresAt: now.Add(time.Hour), IsActive: true,
	}))

	got, err := m.GetSession(ctx, 7, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.TenantID)

	_, err = m.GetSession(ctx, 8, "abc")
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
}

func TestSuperAdminIdleTimeout(t *testing.T) {
	store := &fakeStore{sessions: map[string]*auth.Session{"sa": {ID: 11, IdentityID: 1}}}
	m, _ := newTestManager(t, store, IdleTimeouts{SuperAdmin: 10 * time.Minute})
	ctx := context.Background()
	start := time.Now()
	m.now = func() time.Time { return start }

	require.NoError(t, m.CreateSession(ctx, &SessionData{
		JTI: "sa", IdentityID: 1, Roles: []string{"super_admin"},
		LastActivityAt: start, ExpiresAt: start.Add(12 * time.Hour), IsActive: true,
	}))

	m.now = func() time.Time { return start.Add(9 * time.Minute) }
	_, err := m.GetSession(ctx, 1, "sa")
	require.NoError(t, err, "activity inside the window keeps the session alive")

	m.now = func() time.Time { return start.Add(20 * time.Minute) }
	_, err = m.GetSession(ctx, 1, "sa")
	assert.ErrorIs(t, err, xerrors.ErrSessionExpired)
	assert.Equal(t, []int64{11}, store.invalidated)
}

func TestAdminWithoutIdleLimit(t *testing.T) {
	m, _ := newTestManager(t, nil, IdleTimeouts{SuperAdmin: time.Minute})
	ctx := context.Background()
	start := time.Now()
	m.now = func() time.Time { return start }
	require.NoError(t, m.CreateSession(ctx, &SessionData{
		JTI: "a", IdentityID: 2, Roles: []string{"admin"},
		LastActivityAt: start, ExpiresAt: start.Add(time.Hour), IsActive: true,
	}))

	m.now = func() time.Time { return start.Add(30 * time.Minute) }
	_, err := m.GetSession(ctx, 2, "a")
	assert.NoError(t, err)
}

func TestDBFallback(t *testing.T) {
	now := time.Now()
	store := &fakeStore{sessions: map[string]*auth.Session{
		"db": {
			ID: 5, IdentityID: 9, Status: "active",
			Device:         sql.NullString{String: "web", Valid: true},
			LastActivityAt: now, ExpiresAt: now.Add(time.Hour),
		},
	}}
	m, _ := newTestManager(t, store, IdleTimeouts{})

	got, err := m.GetSession(context.Background(), 9, "db")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Device)
	assert.Equal(t, int64(5), got.SessionID)
}

func TestBlacklist(t *testing.T) {
	m, mr := newTestManager(t, nil, IdleTimeouts{})
	ctx := context.Background()

	require.NoError(t, m.BlacklistToken(ctx, "jti-1", time.Minute))
	ok, err := m.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = m.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	for i := 0; i < maxLoginAttempts; i++ {
		ok, _, err := rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.co")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, remaining, err := rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.co")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, remaining)

	require.NoError(t, rl.ResetLoginAttempts(ctx, "1.2.3.4", "a@b.co"))
	ok, _, _ = rl.CheckLoginAttempt(ctx, "1.2.3.4", "a@b.co")
	assert.True(t, ok)
}
