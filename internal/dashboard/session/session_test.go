package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/domain/auth"
)

var (
	admin = &auth.UserInfo{IdentityID: 2, TenantID: 7, Email: "a@acme.co.ke", Roles: []string{"admin"}}
	super = &auth.UserInfo{IdentityID: 1, Email: "root@mnetifi.co.ke", Roles: []string{"super_admin"}}
)

func TestKeyByRole(t *testing.T) {
	assert.Equal(t, KeyAdmin, Key(admin))
	assert.Equal(t, KeySuperAdmin, Key(super))
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	store := NewFileStore(path)

	got, err := store.Get(KeyAdmin)
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	_, err = Save(store, admin, "access", "refresh", now)
	require.NoError(t, err)
	_, err = Save(store, super, "root-access", "", now)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := NewFileStore(path)
	got, err = reopened.Get(KeyAdmin)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access", got.Token)
	assert.Equal(t, int64(7), got.User.TenantID)
	assert.True(t, got.LastActivity.Equal(now))

	require.NoError(t, reopened.Clear(KeyAdmin))
	got, err = reopened.Get(KeyAdmin)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = reopened.Get(KeySuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, "root-access", got.Token)
}

func TestGuardRole(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Set(KeySuperAdmin, &Session{User: admin, Token: "t", LastActivity: time.Now()}))

	_, err := SuperAdminGuard(store).Check()
	assert.ErrorIs(t, err, ErrWrongRole)

	_, err = AdminGuard(store, 0).Check()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSuperAdminIdleTimeoutClearsSession(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	_, err := Save(store, super, "t", "", start)
	require.NoError(t, err)

	g := SuperAdminGuard(store)
	now := start.Add(9 * time.Minute)
	g.now = func() time.Time { return now }

	s, err := g.Touch()
	require.NoError(t, err)
	assert.True(t, s.LastActivity.Equal(now))

	now = now.Add(10*time.Minute + time.Second)
	_, err = g.Check()
	assert.ErrorIs(t, err, ErrIdleExpired)

	stored, err := store.Get(KeySuperAdmin)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestAdminWithoutIdleTimeout(t *testing.T) {
	store := NewMemoryStore()
	_, err := Save(store, admin, "t", "", time.Now().Add(-72*time.Hour))
	require.NoError(t, err)

	s, err := AdminGuard(store, 0).Check()
	require.NoError(t, err)
	assert.Equal(t, "t", s.Token)

	_, err = AdminGuard(store, time.Hour).Check()
	assert.ErrorIs(t, err, ErrIdleExpired)
}
