// internal/repository/postgres/auth_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnetifi-service/internal/domain/auth"
	xerrors "mnetifi-service/internal/pkg/errors"
)

type AuthRepository struct {
	db *pgxpool.Pool
}

func NewAuthRepository(db *pgxpool.Pool) *AuthRepository {
	return &AuthRepository{db: db}
}

const identityColumns = `
	id, tenant_id, email, email_verified, phone, full_name, password_hash,
	roles, status, totp_secret, totp_enabled, last_login,
	failed_login_attempts, locked_until, password_changed_at, created_at, updated_at`

func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var i auth.Identity
	err := row.Scan(
		&i.ID, &i.TenantID, &i.Email, &i.EmailVerified, &i.Phone, &i.FullName, &i.PasswordHash,
		&i.Roles, &i.Status, &i.TOTPSecret, &i.TOTPEnabled, &i.LastLogin,
		&i.FailedLoginAttempts, &i.LockedUntil, &i.PasswordChangedAt, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ========== Identity Methods ==========

// FindIdentityByEmail matches case-insensitively.
func (r *AuthRepository) FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + ` FROM auth_identities WHERE LOWER(email) = LOWER($1)`
	i, err := scanIdentity(r.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, notFound(err, "identity")
	}
	return i, nil
}

func (r *AuthRepository) FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	query := `SELECT` + identityColumns + ` FROM auth_identities WHERE id = $1`
	i, err := scanIdentity(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "identity")
	}
	return i, nil
}

// ListTenantAdmins returns the admins that belong to a tenant.
func (r *AuthRepository) ListTenantAdmins(ctx context.Context, tenantID int64) ([]auth.Identity, error) {
	query := `SELECT` + identityColumns + ` FROM auth_identities WHERE tenant_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var out []auth.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

func (r *AuthRepository) CreateIdentity(ctx context.Context, identity *auth.Identity) error {
	return createIdentity(ctx, r.db, identity)
}

// CreateIdentityWithTx is used by tenant registration.
func (r *AuthRepository) CreateIdentityWithTx(ctx context.Context, tx pgx.Tx, identity *auth.Identity) error {
	return createIdentity(ctx, tx, identity)
}

func createIdentity(ctx context.Context, q Querier, identity *auth.Identity) error {
	query := `
		INSERT INTO auth_identities (tenant_id, email, email_verified, phone, full_name, password_hash, roles, status)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query,
		identity.TenantID, identity.Email, identity.EmailVerified, identity.Phone,
		identity.FullName, identity.PasswordHash, identity.Roles, identity.Status,
	).Scan(&identity.ID, &identity.CreatedAt, &identity.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email already registered: %w", xerrors.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *AuthRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auth_identities WHERE LOWER(email) = LOWER($1))`, email,
	).Scan(&exists)
	return exists, err
}

// SuperAdminExists reports whether any identity holds the super_admin role.
func (r *AuthRepository) SuperAdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM auth_identities WHERE 'super_admin' = ANY(roles))`,
	).Scan(&exists)
	return exists, err
}

// UpdateIdentityLastLogin also clears the failed-attempt counter.
func (r *AuthRepository) UpdateIdentityLastLogin(ctx context.Context, id int64) error {
	query := `
		UPDATE auth_identities
		SET last_login = NOW(), failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// IncrementFailedLoginAttempts locks the identity once the fifth failure lands.
func (r *AuthRepository) IncrementFailedLoginAttempts(ctx context.Context, id int64, lockDuration time.Duration) error {
	query := `
		UPDATE auth_identities
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE WHEN failed_login_attempts + 1 >= 5 THEN NOW() + $2::interval ELSE locked_until END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, lockDuration.String())
	return err
}

func (r *AuthRepository) UpdateIdentityStatus(ctx context.Context, id int64, status string) error {
	return r.execOne(ctx, `UPDATE auth_identities SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
}

func (r *AuthRepository) MarkEmailVerified(ctx context.Context, id int64) error {
	query := `
		UPDATE auth_identities
		SET email_verified = TRUE, status = $2, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, auth.StatusActive)
}

func (r *AuthRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `
		UPDATE auth_identities
		SET password_hash = $2, password_changed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, passwordHash)
}

// SetTOTPSecret stores a pending secret; it only takes effect after EnableTOTP.
func (r *AuthRepository) SetTOTPSecret(ctx context.Context, id int64, secret string) error {
	return r.execOne(ctx,
		`UPDATE auth_identities SET totp_secret = $2, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1`,
		id, secret)
}

func (r *AuthRepository) EnableTOTP(ctx context.Context, id int64) error {
	return r.execOne(ctx,
		`UPDATE auth_identities SET totp_enabled = TRUE, updated_at = NOW() WHERE id = $1 AND totp_secret IS NOT NULL`,
		id)
}

func (r *AuthRepository) DisableTOTP(ctx context.Context, id int64) error {
	return r.execOne(ctx,
		`UPDATE auth_identities SET totp_enabled = FALSE, totp_secret = NULL, updated_at = NOW() WHERE id = $1`,
		id)
}

func (r *AuthRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// ========== Session Methods ==========

func (r *AuthRepository) CreateSession(ctx context.Context, session *auth.Session) error {
	query := `
		INSERT INTO auth_sessions (identity_id, session_token, refresh_token, ip_address, user_agent, device, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'active', $7)
		RETURNING id, status, login_at, last_activity_at
	`
	err := r.db.QueryRow(ctx, query,
		session.IdentityID, session.SessionToken, session.RefreshToken,
		session.IPAddress, session.UserAgent, session.Device, session.ExpiresAt,
	).Scan(&session.ID, &session.Status, &session.LoginAt, &session.LastActivityAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

const sessionColumns = `
	id, identity_id, session_token, refresh_token, ip_address, user_agent, device,
	status, login_at, last_activity_at, expires_at, logout_at`

func scanSession(row pgx.Row) (*auth.Session, error) {
	var s auth.Session
	err := row.Scan(
		&s.ID, &s.IdentityID, &s.SessionToken, &s.RefreshToken, &s.IPAddress, &s.UserAgent, &s.Device,
		&s.Status, &s.LoginAt, &s.LastActivityAt, &s.ExpiresAt, &s.LogoutAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindSessionByToken returns only active, unexpired sessions.
func (r *AuthRepository) FindSessionByToken(ctx context.Context, token string) (*auth.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM auth_sessions
		WHERE session_token = $1 AND status = 'active' AND expires_at > NOW()`
	s, err := scanSession(r.db.QueryRow(ctx, query, token))
	if err != nil {
		return nil, notFound(err, "session")
	}
	return s, nil
}

func (r *AuthRepository) ListActiveSessions(ctx context.Context, identityID int64) ([]auth.Session, error) {
	query := `SELECT` + sessionColumns + `
		FROM auth_sessions
		WHERE identity_id = $1 AND status = 'active' AND expires_at > NOW()
		ORDER BY last_activity_at DESC`
	rows, err := r.db.Query(ctx, query, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []auth.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *AuthRepository) UpdateSessionActivity(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE auth_sessions SET last_activity_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *AuthRepository) InvalidateSession(ctx context.Context, id int64) error {
	query := `UPDATE auth_sessions SET status = 'revoked', logout_at = NOW() WHERE id = $1 AND status = 'active'`
	_, err := r.db.Exec(ctx, query, id)
	return err
}

func (r *AuthRepository) InvalidateAllUserSessions(ctx context.Context, identityID int64) error {
	query := `UPDATE auth_sessions SET status = 'revoked', logout_at = NOW() WHERE identity_id = $1 AND status = 'active'`
	_, err := r.db.Exec(ctx, query, identityID)
	return err
}

// ========== Verification Token Methods ==========

func (r *AuthRepository) CreateVerificationToken(ctx context.Context, token *auth.VerificationToken) error {
	query := `
		INSERT INTO auth_verification_tokens (identity_id, token_type, token, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, token.IdentityID, token.TokenType, token.Token, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// FindVerificationToken ignores used and expired tokens.
func (r *AuthRepository) FindVerificationToken(ctx context.Context, tokenType, token string) (*auth.VerificationToken, error) {
	query := `
		SELECT id, identity_id, token_type, token, expires_at, used_at, created_at
		FROM auth_verification_tokens
		WHERE token_type = $1 AND token = $2 AND used_at IS NULL AND expires_at > NOW()
	`
	var t auth.VerificationToken
	err := r.db.QueryRow(ctx, query, tokenType, token).Scan(
		&t.ID, &t.IdentityID, &t.TokenType, &t.Token, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err, "verification token")
	}
	return &t, nil
}

// MarkTokenAsUsed fails with ErrNotFound when the token was already spent.
func (r *AuthRepository) MarkTokenAsUsed(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE auth_verification_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
