package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mnetifi-service/internal/config"
	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/domain/tenant"
	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/fieldcrypt"
	"mnetifi-service/internal/pkg/jwt"
	"mnetifi-service/internal/pkg/session"
	"mnetifi-service/internal/pkg/totp"
	"mnetifi-service/internal/pkg/validate"
)

const (
	lockDuration      = 30 * time.Minute
	verifyTokenTTL    = 24 * time.Hour
	resetTokenTTL     = time.Hour
	totpIssuer        = "MnetiFi"
	bcryptCost        = bcrypt.DefaultCost
	errInvalidCredMsg = "invalid email or password"
)

// Repository is the identity storage the service needs.
type Repository interface {
	FindIdentityByEmail(ctx context.Context, email string) (*auth.Identity, error)
	FindIdentityByID(ctx context.Context, id int64) (*auth.Identity, error)
	ListTenantAdmins(ctx context.Context, tenantID int64) ([]auth.Identity, error)
	CreateIdentity(ctx context.Context, identity *auth.Identity) error
	SuperAdminExists(ctx context.Context) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateIdentityLastLogin(ctx context.Context, id int64) error
	IncrementFailedLoginAttempts(ctx context.Context, id int64, lockDuration time.Duration) error
	MarkEmailVerified(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetTOTPSecret(ctx context.Context, id int64, secret string) error
	EnableTOTP(ctx context.Context, id int64) error
	DisableTOTP(ctx context.Context, id int64) error
	CreateSession(ctx context.Context, s *auth.Session) error
	CreateVerificationToken(ctx context.Context, token *auth.VerificationToken) error
	FindVerificationToken(ctx context.Context, tokenType, token string) (*auth.VerificationToken, error)
	MarkTokenAsUsed(ctx context.Context, id int64) error
}

// Tenants creates a tenant together with its first admin.
type Tenants interface {
	Register(ctx context.Context, t *tenant.Tenant, admin *auth.Identity) error
	FindByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// SessionNotifier closes live sockets of ended sessions.
type SessionNotifier interface {
	ForceLogout(identityID int64, sessionID string, reason string)
}

type AuthService struct {
	authRepo       Repository
	tenants        Tenants
	jwtManager     *jwt.Manager
	sessionManager *session.Manager
	rateLimiter    *session.RateLimiter
	secrets        *fieldcrypt.Encryptor
	emailHelper    *EmailHelper
	notifier       SessionNotifier
	logger         *zap.Logger
	now            func() time.Time
}

func NewAuthService(
	authRepo Repository,
	tenants Tenants,
	jwtManager *jwt.Manager,
	sessionManager *session.Manager,
	rateLimiter *session.RateLimiter,
	secrets *fieldcrypt.Encryptor,
	emailHelper *EmailHelper,
	notifier SessionNotifier,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		authRepo:       authRepo,
		tenants:        tenants,
		jwtManager:     jwtManager,
		sessionManager: sessionManager,
		rateLimiter:    rateLimiter,
		secrets:        secrets,
		emailHelper:    emailHelper,
		notifier:       notifier,
		logger:         logger,
		now:            time.Now,
	}
}

// ========== Registration ==========

// Register runs the signup wizard payload. A trial signup is logged in at
// once; a paid tier waits for email verification before the first login.
func (s *AuthService) Register(ctx context.Context, req *auth.RegisterRequest) (*auth.RegisterResponse, error) {
	req.Business.Subdomain = strings.ToLower(strings.TrimSpace(req.Business.Subdomain))
	if err := req.Validate(); err != nil {
		return nil, err
	}

	exists, err := s.authRepo.ExistsByEmail(ctx, req.Admin.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		fe := validate.FieldErrors{}
		fe.Add("email", "an account with this email already exists")
		return nil, fe
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Admin.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	phone, _ := validate.NormalizePhone(req.Business.BusinessPhone)
	now := s.now()
	t := &tenant.Tenant{
		Name:             strings.TrimSpace(req.Business.BusinessName),
		Subdomain:        req.Business.Subdomain,
		Email:            req.Business.BusinessEmail,
		Phone:            phone,
		SubscriptionTier: req.Plan.Tier,
		Status:           tenant.StatusActive,
	}
	if req.Business.Location != "" {
		loc := req.Business.Location
		t.Location = &loc
	}
	if req.Plan.Tier == tenant.TierTrial {
		exp := now.Add(tenant.TrialPeriod)
		t.TrialExpiresAt = &exp
	}

	requiresVerification := req.Plan.Tier.Paid()
	status := auth.StatusActive
	if requiresVerification {
		status = auth.StatusPendingVerification
	}
	admin := &auth.Identity{
		Email:        strings.ToLower(strings.TrimSpace(req.Admin.Email)),
		FullName:     strings.TrimSpace(req.Admin.FullName),
		PasswordHash: string(hashed),
		Roles:        []string{jwt.RoleAdmin},
		Status:       status,
	}

	if err := s.tenants.Register(ctx, t, admin); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			fe := validate.FieldErrors{}
			fe.Add("subdomain", "this subdomain is already taken")
			return nil, fe
		}
		if errors.Is(err, xerrors.ErrDuplicateEntry) {
			fe := validate.FieldErrors{}
			fe.Add("email", "an account with this email already exists")
			return nil, fe
		}
		return nil, fmt.Errorf("failed to register tenant: %w", err)
	}

	s.logger.Info("tenant registered",
		zap.Int64("tenant_id", t.ID),
		zap.String("subdomain", t.Subdomain),
		zap.String("tier", string(t.SubscriptionTier)),
	)

	if err := s.sendVerification(ctx, admin); err != nil {
		s.logger.Error("failed to send verification email", zap.Int64("identity_id", admin.ID), zap.Error(err))
	}

	resp := &auth.RegisterResponse{TenantID: t.ID, RequiresVerification: requiresVerification}
	if requiresVerification {
		return resp, nil
	}

	login, err := s.startSession(ctx, admin, req.Device, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}
	resp.Login = login
	return resp, nil
}

func (s *AuthService) sendVerification(ctx context.Context, identity *auth.Identity) error {
	token, err := generateToken()
	if err != nil {
		return err
	}
	vt := &auth.VerificationToken{
		IdentityID: identity.ID,
		TokenType:  auth.TokenEmailVerify,
		Token:      token,
		ExpiresAt:  s.now().Add(verifyTokenTTL),
	}
	if err := s.authRepo.CreateVerificationToken(ctx, vt); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}
	s.emailHelper.SendEmailVerification(ctx, identity.Email, identity.FullName, token)
	return nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ========== Login ==========

func (s *AuthService) Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	allowed, remaining, err := s.rateLimiter.CheckLoginAttempt(ctx, req.IPAddress, req.Email)
	if err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("too many login attempts, try again in 15 minutes: %w", xerrors.ErrRateLimited)
	}

	identity, err := s.authRepo.FindIdentityByEmail(ctx, req.Email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", errInvalidCredMsg, xerrors.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	now := s.now()
	if identity.LockedUntil.Valid && identity.LockedUntil.Time.After(now) {
		return nil, fmt.Errorf("account is locked until %s: %w",
			identity.LockedUntil.Time.Format(time.RFC3339), xerrors.ErrForbidden)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		if err := s.authRepo.IncrementFailedLoginAttempts(ctx, identity.ID, lockDuration); err != nil {
			s.logger.Error("failed to record failed login", zap.Int64("identity_id", identity.ID), zap.Error(err))
		}
		return nil, fmt.Errorf("%s (%d attempts left): %w", errInvalidCredMsg, remaining, xerrors.ErrUnauthorized)
	}

	if err := s.checkActive(ctx, identity); err != nil {
		return nil, err
	}

	if err := s.authRepo.UpdateIdentityLastLogin(ctx, identity.ID); err != nil {
		s.logger.Error("failed to update last login", zap.Error(err))
	}
	_ = s.rateLimiter.ResetLoginAttempts(ctx, req.IPAddress, req.Email)

	if identity.TOTPEnabled {
		challenge, _, err := s.jwtManager.Generator.GenerateTwoFactorChallenge(identity.ID, req.Device)
		if err != nil {
			return nil, fmt.Errorf("failed to issue challenge: %w", err)
		}
		return &auth.LoginResponse{TwoFactorRequired: true, ChallengeToken: challenge}, nil
	}

	return s.startSession(ctx, identity, req.Device, req.IPAddress, req.UserAgent)
}

// checkActive refuses suspended or unverified accounts and admins of
// suspended tenants.
func (s *AuthService) checkActive(ctx context.Context, identity *auth.Identity) error {
	switch identity.Status {
	case auth.StatusSuspended:
		return fmt.Errorf("account is suspended: %w", xerrors.ErrForbidden)
	case auth.StatusPendingVerification:
		return fmt.Errorf("verify your email address before signing in: %w", xerrors.ErrForbidden)
	}
	if !identity.TenantID.Valid {
		return nil
	}
	t, err := s.tenants.FindByID(ctx, identity.TenantID.Int64)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if t.Status == tenant.StatusSuspended {
		return xerrors.ErrTenantInactive
	}
	return nil
}

// VerifyTwoFactor exchanges a login challenge and a TOTP code for a session.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, req *auth.TwoFactorLoginRequest) (*auth.LoginResponse, error) {
	claims, err := s.jwtManager.Verifier.VerifyTwoFactorChallenge(req.ChallengeToken)
	if err != nil {
		return nil, fmt.Errorf("challenge expired, sign in again: %w", xerrors.ErrSessionExpired)
	}

	identity, err := s.authRepo.FindIdentityByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if err := s.checkCode(ctx, identity, req.Code); err != nil {
		return nil, err
	}
	if err := s.checkActive(ctx, identity); err != nil {
		return nil, err
	}
	return s.startSession(ctx, identity, claims.Device, req.IPAddress, req.UserAgent)
}

// checkCode validates a TOTP code under the per-identity attempt limit.
func (s *AuthService) checkCode(ctx context.Context, identity *auth.Identity, code string) error {
	if !validate.OTPCode(code) {
		return xerrors.ErrInvalidOTP
	}
	allowed, err := s.rateLimiter.CheckOTPAttempt(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return fmt.Errorf("too many code attempts: %w", xerrors.ErrRateLimited)
	}
	if !identity.TOTPSecret.Valid {
		return fmt.Errorf("two-factor authentication is not set up: %w", xerrors.ErrBadRequest)
	}
	secret, err := s.secrets.Decrypt(identity.TOTPSecret.String)
	if err != nil {
		return fmt.Errorf("failed to read totp secret: %w", err)
	}
	if !totp.Validate(code, secret, s.now()) {
		return xerrors.ErrInvalidOTP
	}
	_ = s.rateLimiter.ResetOTPAttempts(ctx, identity.ID)
	return nil
}

// startSession issues tokens and records the session in PostgreSQL and Redis.
func (s *AuthService) startSession(ctx context.Context, identity *auth.Identity, device, ipAddress, userAgent string) (*auth.LoginResponse, error) {
	sub := jwt.Subject{
		IdentityID: identity.ID,
		TenantID:   identity.TenantID.Int64,
		Roles:      identity.Roles,
		Device:     device,
	}
	accessToken, accessJTI, err := s.jwtManager.Generator.GenerateAccessToken(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, refreshJTI, err := s.jwtManager.Generator.GenerateRefreshToken(identity.ID, device)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now()
	ttl := s.jwtManager.Generator.TTL
	expiresAt := now.Add(ttl)

	dbSession := &auth.Session{
		IdentityID:   identity.ID,
		SessionToken: accessJTI,
		RefreshToken: sql.NullString{String: refreshJTI, Valid: true},
		IPAddress:    sql.NullString{String: ipAddress, Valid: ipAddress != ""},
		UserAgent:    sql.NullString{String: userAgent, Valid: userAgent != ""},
		Device:       sql.NullString{String: device, Valid: device != ""},
		ExpiresAt:    expiresAt,
	}
	if err := s.authRepo.CreateSession(ctx, dbSession); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.sessionManager.CreateSession(ctx, &session.SessionData{
		JTI:            accessJTI,
		IdentityID:     identity.ID,
		TenantID:       identity.TenantID.Int64,
		SessionID:      dbSession.ID,
		Email:          identity.Email,
		Roles:          identity.Roles,
		Device:         device,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      expiresAt,
		IsActive:       true,
	}); err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	s.logger.Info("admin signed in",
		zap.Int64("identity_id", identity.ID),
		zap.Int64("tenant_id", identity.TenantID.Int64),
		zap.String("device", device),
	)

	return &auth.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(ttl.Seconds()),
		ExpiresAt:    expiresAt,
		User:         userInfo(identity),
	}, nil
}

func userInfo(i *auth.Identity) *auth.UserInfo {
	return &auth.UserInfo{
		IdentityID:    i.ID,
		TenantID:      i.TenantID.Int64,
		Email:         i.Email,
		FullName:      i.FullName,
		Roles:         i.Roles,
		EmailVerified: i.EmailVerified,
		TOTPEnabled:   i.TOTPEnabled,
	}
}

// Refresh trades a refresh token for a new session. The old refresh token
// is blacklisted so it works once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*auth.LoginResponse, error) {
	claims, err := s.jwtManager.Verifier.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", xerrors.ErrSessionExpired)
	}
	used, err := s.sessionManager.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check blacklist: %w", err)
	}
	if used {
		return nil, fmt.Errorf("refresh token already used: %w", xerrors.ErrSessionExpired)
	}

	identity, err := s.authRepo.FindIdentityByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	if err := s.checkActive(ctx, identity); err != nil {
		return nil, err
	}

	if claims.ExpiresAt != nil {
		if err := s.sessionManager.BlacklistToken(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			return nil, fmt.Errorf("failed to blacklist refresh token: %w", err)
		}
	}
	return s.startSession(ctx, identity, claims.Device, ipAddress, userAgent)
}

// ========== Logout ==========

// Logout ends the session of jti and blacklists the token until it expires.
func (s *AuthService) Logout(ctx context.Context, identityID int64, jti string, tokenExpiry time.Time) error {
	if err := s.sessionManager.InvalidateSession(ctx, identityID, jti); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	if ttl := tokenExpiry.Sub(s.now()); ttl > 0 {
		if err := s.sessionManager.BlacklistToken(ctx, jti, ttl); err != nil {
			return fmt.Errorf("failed to blacklist token: %w", err)
		}
	}
	if s.notifier != nil {
		s.notifier.ForceLogout(identityID, jti, "signed out")
	}
	return nil
}

// LogoutAllSessions ends every session of an identity.
func (s *AuthService) LogoutAllSessions(ctx context.Context, identityID int64, reason string) error {
	sessions, err := s.sessionManager.GetUserActiveSessions(ctx, identityID)
	if err != nil {
		s.logger.Warn("failed to list sessions before logout", zap.Error(err))
	}
	if err := s.sessionManager.InvalidateAllUserSessions(ctx, identityID); err != nil {
		return fmt.Errorf("failed to invalidate sessions: %w", err)
	}
	for _, sd := range sessions {
		if ttl := sd.ExpiresAt.Sub(s.now()); ttl > 0 {
			_ = s.sessionManager.BlacklistToken(ctx, sd.JTI, ttl)
		}
	}
	if s.notifier != nil {
		s.notifier.ForceLogout(identityID, "", reason)
	}
	return nil
}

// RevokeTenantSessions signs out every admin of a tenant, used when the
// tenant is suspended or expires.
func (s *AuthService) RevokeTenantSessions(ctx context.Context, tenantID int64) error {
	admins, err := s.authRepo.ListTenantAdmins(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list tenant admins: %w", err)
	}
	for _, a := range admins {
		if err := s.LogoutAllSessions(ctx, a.ID, "account suspended"); err != nil {
			return err
		}
	}
	return nil
}

// ========== Token validation ==========

// ValidateToken checks an access token the way every authenticated request
// needs: signature and purpose, blacklist, then the live Redis session, which
// also enforces the idle timeout.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwt.Claims, error) {
	claims, err := s.jwtManager.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", xerrors.ErrUnauthorized)
	}

	blacklisted, err := s.sessionManager.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check token: %w", err)
	}
	if blacklisted {
		return nil, fmt.Errorf("token revoked: %w", xerrors.ErrUnauthorized)
	}

	if _, err := s.sessionManager.GetSession(ctx, claims.IdentityID, claims.ID); err != nil {
		if errors.Is(err, xerrors.ErrSessionExpired) || errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return claims, nil
}

// ========== Profile & Sessions ==========

func (s *AuthService) Me(ctx context.Context, identityID int64) (*auth.UserInfo, error) {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return userInfo(identity), nil
}

func (s *AuthService) GetActiveSessions(ctx context.Context, identityID int64, currentJTI string) ([]auth.SessionInfo, error) {
	sessions, err := s.sessionManager.GetUserActiveSessions(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	out := make([]auth.SessionInfo, 0, len(sessions))
	for _, sd := range sessions {
		out = append(out, auth.SessionInfo{
			JTI:            sd.JTI,
			Device:         sd.Device,
			IPAddress:      sd.IPAddress,
			LoginAt:        sd.LoginAt,
			LastActivityAt: sd.LastActivityAt,
			Current:        sd.JTI == currentJTI,
		})
	}
	return out, nil
}

// ========== Password Management ==========

func (s *AuthService) ChangePassword(ctx context.Context, identityID int64, req *auth.ChangePasswordRequest) error {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		fe := validate.FieldErrors{}
		fe.Add("current_password", "current password is incorrect")
		return fe
	}
	if err := s.setPassword(ctx, identity.ID, req.NewPassword); err != nil {
		return err
	}
	s.emailHelper.SendPasswordChangedNotification(ctx, identity.Email, identity.FullName)
	return s.LogoutAllSessions(ctx, identityID, "password changed")
}

func (s *AuthService) setPassword(ctx context.Context, identityID int64, password string) error {
	if msg := validate.Password(password); msg != "" {
		fe := validate.FieldErrors{}
		fe.Add("new_password", msg)
		return fe
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.authRepo.UpdatePassword(ctx, identityID, string(hashed)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// ForgotPassword never reveals whether the email exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	allowed, err := s.rateLimiter.CheckPasswordResetAttempt(ctx, email)
	if err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if !allowed {
		return fmt.Errorf("too many password reset attempts, try again later: %w", xerrors.ErrRateLimited)
	}

	identity, err := s.authRepo.FindIdentityByEmail(ctx, email)
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return err
	}
	if err := s.authRepo.CreateVerificationToken(ctx, &auth.VerificationToken{
		IdentityID: identity.ID,
		TokenType:  auth.TokenPasswordReset,
		Token:      token,
		ExpiresAt:  s.now().Add(resetTokenTTL),
	}); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	s.emailHelper.SendPasswordResetEmail(ctx, identity.Email, identity.FullName, token)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	vt, err := s.authRepo.FindVerificationToken(ctx, auth.TokenPasswordReset, token)
	if errors.Is(err, xerrors.ErrNotFound) {
		return fmt.Errorf("invalid or expired reset link: %w", xerrors.ErrBadRequest)
	}
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if err := s.setPassword(ctx, vt.IdentityID, newPassword); err != nil {
		return err
	}
	if err := s.authRepo.MarkTokenAsUsed(ctx, vt.ID); err != nil {
		s.logger.Error("failed to mark token as used", zap.Error(err))
	}
	return s.LogoutAllSessions(ctx, vt.IdentityID, "password reset")
}

// ========== Email Verification ==========

func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	vt, err := s.authRepo.FindVerificationToken(ctx, auth.TokenEmailVerify, token)
	if errors.Is(err, xerrors.ErrNotFound) {
		return fmt.Errorf("invalid or expired verification link: %w", xerrors.ErrBadRequest)
	}
	if err != nil {
		return fmt.Errorf("failed to load token: %w", err)
	}
	if err := s.authRepo.MarkEmailVerified(ctx, vt.IdentityID); err != nil {
		return fmt.Errorf("failed to verify email: %w", err)
	}
	if err := s.authRepo.MarkTokenAsUsed(ctx, vt.ID); err != nil {
		s.logger.Error("failed to mark token as used", zap.Error(err))
	}

	identity, err := s.authRepo.FindIdentityByID(ctx, vt.IdentityID)
	if err == nil && identity.TenantID.Valid {
		if t, err := s.tenants.FindByID(ctx, identity.TenantID.Int64); err == nil {
			s.emailHelper.SendWelcomeEmail(ctx, identity.Email, identity.FullName, t.Name)
		}
	}
	return nil
}

func (s *AuthService) ResendEmailVerification(ctx context.Context, identityID int64) error {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.EmailVerified {
		return fmt.Errorf("email already verified: %w", xerrors.ErrConflict)
	}
	return s.sendVerification(ctx, identity)
}

// ========== Two-Factor ==========

// SetupTwoFactor stores a fresh secret; it only takes effect once a code
// from it is confirmed.
func (s *AuthService) SetupTwoFactor(ctx context.Context, identityID int64) (*auth.TwoFactorSetupResponse, error) {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity.TOTPEnabled {
		return nil, fmt.Errorf("two-factor authentication is already enabled: %w", xerrors.ErrConflict)
	}

	key, err := totp.Generate(totpIssuer, identity.Email)
	if err != nil {
		return nil, err
	}
	enc, err := s.secrets.Encrypt(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt totp secret: %w", err)
	}
	if err := s.authRepo.SetTOTPSecret(ctx, identityID, enc); err != nil {
		return nil, fmt.Errorf("failed to store totp secret: %w", err)
	}
	return &auth.TwoFactorSetupResponse{Secret: key.Secret, OTPAuthURL: key.URL}, nil
}

func (s *AuthService) EnableTwoFactor(ctx context.Context, identityID int64, code string) error {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if identity.TOTPEnabled {
		return fmt.Errorf("two-factor authentication is already enabled: %w", xerrors.ErrConflict)
	}
	if err := s.checkCode(ctx, identity, code); err != nil {
		return err
	}
	if err := s.authRepo.EnableTOTP(ctx, identityID); err != nil {
		return fmt.Errorf("failed to enable totp: %w", err)
	}
	s.emailHelper.SendTwoFactorChanged(ctx, identity.Email, identity.FullName, true)
	return nil
}

// DisableTwoFactor requires both the password and a current code.
func (s *AuthService) DisableTwoFactor(ctx context.Context, identityID int64, req *auth.TwoFactorDisableRequest) error {
	identity, err := s.authRepo.FindIdentityByID(ctx, identityID)
	if err != nil {
		return err
	}
	if !identity.TOTPEnabled {
		return fmt.Errorf("two-factor authentication is not enabled: %w", xerrors.ErrConflict)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		fe := validate.FieldErrors{}
		fe.Add("password", "password is incorrect")
		return fe
	}
	if err := s.checkCode(ctx, identity, req.Code); err != nil {
		return err
	}
	if err := s.authRepo.DisableTOTP(ctx, identityID); err != nil {
		return fmt.Errorf("failed to disable totp: %w", err)
	}
	s.emailHelper.SendTwoFactorChanged(ctx, identity.Email, identity.FullName, false)
	return nil
}

// ========== Bootstrap ==========

// EnsureSuperAdminExists creates the platform super admin on first start.
func (s *AuthService) EnsureSuperAdminExists(ctx context.Context, email, password, fullName string) error {
	exists, err := s.authRepo.SuperAdminExists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check super admin existence: %w", err)
	}
	if exists {
		s.logger.Info("super admin already exists, skipping creation")
		return nil
	}
	if email == "" || password == "" {
		s.logger.Warn(fmt.Sprintf("no super admin configured; set %s and %s",
			config.EnvSuperAdminEmail, config.EnvSuperAdminPassword))
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	identity := &auth.Identity{
		Email:         strings.ToLower(email),
		EmailVerified: true,
		FullName:      fullName,
		PasswordHash:  string(hashed),
		Roles:         []string{jwt.RoleSuperAdmin},
		Status:        auth.StatusActive,
	}
	if err := s.authRepo.CreateIdentity(ctx, identity); err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created",
		zap.String("email", identity.Email),
		zap.Int64("identity_id", identity.ID),
	)
	return nil
}
