// internal/pkg/session/manager.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	xerrors "mnetifi-service/internal/pkg/errors"
)

type Manager struct {
	client *redis.Client
	store  Store
	idle   IdleTimeouts
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(client *redis.Client, store Store, idle IdleTimeouts, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		store:  store,
		idle:   idle,
		logger: logger,
		now:    time.Now,
	}
}

// CreateSession stores a new session in Redis and touches the DB row.
func (m *Manager) CreateSession(ctx context.Context, session *SessionData) error {
	ttl := session.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	if err := m.save(ctx, session, ttl); err != nil {
		return err
	}

	if session.SessionID > 0 && m.store != nil {
		if err := m.store.UpdateSessionActivity(ctx, session.SessionID); err != nil {
			m.logger.Warn("failed to update db session activity",
				zap.Int64("session_id", session.SessionID), zap.Error(err))
		}
	}
	return nil
}

// GetSession loads a session, enforcing the idle timeout for its role, and
// records the current request as activity.
func (m *Manager) GetSession(ctx context.Context, identityID int64, jti string) (*SessionData, error) {
	session, err := m.load(ctx, identityID, jti)
	if err != nil {
		return nil, err
	}

	now := m.now()
	if !session.IsActive || now.After(session.ExpiresAt) {
		return nil, xerrors.ErrSessionExpired
	}
	if limit := m.idle.forRoles(session.Roles); limit > 0 && now.Sub(session.LastActivityAt) > limit {
		m.logger.Info("session idle timeout",
			zap.Int64("identity_id", identityID), zap.Duration("limit", limit))
		if err := m.InvalidateSession(ctx, identityID, jti); err != nil {
			m.logger.Warn("failed to invalidate idle session", zap.Error(err))
		}
		return nil, xerrors.ErrSessionExpired
	}

	session.LastActivityAt = now
	if err := m.save(ctx, session, session.ExpiresAt.Sub(now)); err != nil {
		m.logger.Warn("failed to record session activity", zap.Error(err))
	}
	return session, nil
}

func (m *Manager) load(ctx context.Context, identityID int64, jti string) (*SessionData, error) {
	data, err := m.client.Get(ctx, sessionKey(identityID, jti)).Bytes()
	if err == nil {
		var session SessionData
		if err := json.Unmarshal(data, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return &session, nil
	}
	if !errors.Is(err, redis.Nil) {
		m.logger.Warn("redis error, falling back to db", zap.Error(err))
	}
	if m.store == nil {
		return nil, xerrors.ErrSessionExpired
	}

	dbSession, err := m.store.FindSessionByToken(ctx, jti)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if dbSession.IdentityID != identityID {
		return nil, xerrors.ErrSessionExpired
	}

	session := &SessionData{
		JTI:            jti,
		IdentityID:     dbSession.IdentityID,
		SessionID:      dbSession.ID,
		Device:         dbSession.Device.String,
		IPAddress:      dbSession.IPAddress.String,
		UserAgent:      dbSession.UserAgent.String,
		LoginAt:        dbSession.LoginAt,
		LastActivityAt: dbSession.LastActivityAt,
		ExpiresAt:      dbSession.ExpiresAt,
		IsActive:       dbSession.Status == "active",
	}
	return session, nil
}

func (m *Manager) save(ctx context.Context, session *SessionData, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := m.client.Set(ctx, sessionKey(session.IdentityID, session.JTI), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

// InvalidateSession removes a session from Redis and revokes the DB row.
func (m *Manager) InvalidateSession(ctx context.Context, identityID int64, jti string) error {
	if err := m.client.Del(ctx, sessionKey(identityID, jti)).Err(); err != nil {
		m.logger.Warn("failed to delete session from redis", zap.Error(err))
	}
	if m.store == nil {
		return nil
	}
	dbSession, err := m.store.FindSessionByToken(ctx, jti)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := m.store.InvalidateSession(ctx, dbSession.ID); err != nil {
		return fmt.Errorf("failed to invalidate db session: %w", err)
	}
	return nil
}

// InvalidateAllUserSessions removes all sessions for an identity.
func (m *Manager) InvalidateAllUserSessions(ctx context.Context, identityID int64) error {
	iter := m.client.Scan(ctx, 0, fmt.Sprintf("session:%d:*", identityID), 0).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			m.logger.Warn("failed to delete session", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if m.store != nil {
		if err := m.store.InvalidateAllUserSessions(ctx, identityID); err != nil {
			return fmt.Errorf("failed to invalidate db sessions: %w", err)
		}
	}
	return nil
}

// GetUserActiveSessions lists the sessions Redis still holds for an identity.
func (m *Manager) GetUserActiveSessions(ctx context.Context, identityID int64) ([]*SessionData, error) {
	var sessions []*SessionData
	iter := m.client.Scan(ctx, 0, fmt.Sprintf("session:%d:*", identityID), 0).Iterator()
	for iter.Next(ctx) {
		data, err := m.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var session SessionData
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		sessions = append(sessions, &session)
	}
	return sessions, iter.Err()
}

func (m *Manager) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := m.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistToken rejects jti until ttl elapses. Used for spent refresh and
// two-factor challenge tokens.
func (m *Manager) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	return m.client.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

func sessionKey(identityID int64, jti string) string {
	return fmt.Sprintf("session:%d:%s", identityID, jti)
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
