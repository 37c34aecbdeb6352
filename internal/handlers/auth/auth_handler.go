// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/handlers/params"
	"mnetifi-service/internal/middleware"
	"mnetifi-service/internal/pkg/response"
)

// Service is implemented by auth.AuthService.
type Service interface {
	Register(ctx context.Context, req *auth.RegisterRequest) (*auth.RegisterResponse, error)
	Login(ctx context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error)
	VerifyTwoFactor(ctx context.Context, req *auth.TwoFactorLoginRequest) (*auth.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*auth.LoginResponse, error)
	Logout(ctx context.Context, identityID int64, jti string, tokenExpiry time.Time) error
	LogoutAllSessions(ctx context.Context, identityID int64, reason string) error
	Me(ctx context.Context, identityID int64) (*auth.UserInfo, error)
	GetActiveSessions(ctx context.Context, identityID int64, currentJTI string) ([]auth.SessionInfo, error)
	ChangePassword(ctx context.Context, identityID int64, req *auth.ChangePasswordRequest) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendEmailVerification(ctx context.Context, identityID int64) error
	SetupTwoFactor(ctx context.Context, identityID int64) (*auth.TwoFactorSetupResponse, error)
	EnableTwoFactor(ctx context.Context, identityID int64, code string) error
	DisableTwoFactor(ctx context.Context, identityID int64, req *auth.TwoFactorDisableRequest) error
}

type AuthHandler struct {
	authService Service
	logger      *zap.Logger
}

func NewAuthHandler(authService Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Registration ==========

// Register creates a tenant and its first admin from the wizard payload.
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if !params.BindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("registration failed",
			zap.String("subdomain", req.Business.Subdomain),
			zap.String("email", req.Admin.Email),
			zap.Error(err),
		)
		response.FromError(c, "registration failed", err)
		return
	}

	response.Success(c, http.StatusCreated, "registration successful", resp)
}

// ValidateStep checks one wizard step with the same rules the client uses.
func (h *AuthHandler) ValidateStep(c *gin.Context) {
	step, err := strconv.Atoi(c.Query("step"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "step must be 1, 2 or 3", nil)
		return
	}

	var v interface{ Validate() error }
	switch step {
	case 1:
		var s auth.BusinessStep
		if !params.BindJSON(c, &s) {
			return
		}
		v = s
	case 2:
		var s auth.AdminStep
		if !params.BindJSON(c, &s) {
			return
		}
		v = s
	case 3:
		var s auth.PlanStep
		if !params.BindJSON(c, &s) {
			return
		}
		v = s
	default:
		response.Error(c, http.StatusBadRequest, "step must be 1, 2 or 3", nil)
		return
	}

	if err := v.Validate(); err != nil {
		response.FromError(c, "step is invalid", err)
		return
	}
	response.Success(c, http.StatusOK, "step is valid", gin.H{"step": step})
}

// ========== Login ==========

// Login returns tokens, or a challenge token when two-factor is enabled.
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if !params.BindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("login failed",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.FromError(c, "login failed", err)
		return
	}

	if loginResp.TwoFactorRequired {
		response.Success(c, http.StatusOK, "two-factor code required", loginResp)
		return
	}
	h.logger.Info("user logged in",
		zap.Int64("identity_id", loginResp.User.IdentityID),
		zap.Int64("tenant_id", loginResp.User.TenantID),
	)
	response.Success(c, http.StatusOK, "login successful", loginResp)
}

func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req auth.TwoFactorLoginRequest
	if !params.BindJSON(c, &req) {
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.VerifyTwoFactor(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "two-factor verification failed", err)
		return
	}
	response.Success(c, http.StatusOK, "login successful", loginResp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req auth.RefreshRequest
	if !params.BindJSON(c, &req) {
		return
	}

	loginResp, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.FromError(c, "token refresh failed", err)
		return
	}
	response.Success(c, http.StatusOK, "token refreshed", loginResp)
}

// ========== Logout ==========

func (h *AuthHandler) Logout(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	jti := middleware.MustGetJTI(c)
	exp, ok := middleware.GetTokenExpiry(c)
	if !ok {
		exp = time.Now().Add(time.Hour)
	}

	if err := h.authService.Logout(c.Request.Context(), identityID, jti, exp); err != nil {
		h.logger.Error("logout failed",
			zap.Int64("identity_id", identityID),
			zap.Error(err),
		)
		response.FromError(c, "logout failed", err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

func (h *AuthHandler) LogoutAll(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	if err := h.authService.LogoutAllSessions(c.Request.Context(), identityID, "user logout all"); err != nil {
		response.FromError(c, "logout all failed", err)
		return
	}

	response.Success(c, http.StatusOK, "all sessions logged out", nil)
}

// ========== Password Management ==========

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req auth.ChangePasswordRequest
	if !params.BindJSON(c, &req) {
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), identityID, &req); err != nil {
		response.FromError(c, "password change failed", err)
		return
	}

	response.Success(c, http.StatusOK, "password changed successfully", nil)
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req auth.ForgotPasswordRequest
	if !params.BindJSON(c, &req) {
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.logger.Warn("forgot password failed",
			zap.String("email", req.Email),
			zap.Error(err),
		)
	}

	// Same answer either way so addresses cannot be enumerated.
	response.Success(c, http.StatusOK, "if email exists, reset link has been sent", nil)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req auth.ResetPasswordRequest
	if !params.BindJSON(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		response.FromError(c, "password reset failed", err)
		return
	}

	response.Success(c, http.StatusOK, "password reset successful", nil)
}

// ========== Profile & Sessions ==========

func (h *AuthHandler) GetMe(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	profile, err := h.authService.Me(c.Request.Context(), identityID)
	if err != nil {
		response.FromError(c, "failed to get profile", err)
		return
	}

	response.Success(c, http.StatusOK, "profile retrieved", profile)
}

func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)
	jti, _ := middleware.GetJTI(c)

	sessions, err := h.authService.GetActiveSessions(c.Request.Context(), identityID, jti)
	if err != nil {
		response.FromError(c, "failed to get sessions", err)
		return
	}

	response.Success(c, http.StatusOK, "sessions retrieved", sessions)
}

// ========== Email Verification ==========

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, http.StatusBadRequest, "token is required", nil)
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), token); err != nil {
		response.FromError(c, "email verification failed", err)
		return
	}

	response.Success(c, http.StatusOK, "email verified successfully", nil)
}

func (h *AuthHandler) ResendVerificationEmail(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	if err := h.authService.ResendEmailVerification(c.Request.Context(), identityID); err != nil {
		response.FromError(c, "failed to resend verification email", err)
		return
	}

	response.Success(c, http.StatusOK, "verification email sent", nil)
}

// ========== Two-factor ==========

func (h *AuthHandler) SetupTwoFactor(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	setup, err := h.authService.SetupTwoFactor(c.Request.Context(), identityID)
	if err != nil {
		response.FromError(c, "failed to start two-factor setup", err)
		return
	}
	response.Success(c, http.StatusOK, "scan the code with your authenticator app", setup)
}

func (h *AuthHandler) EnableTwoFactor(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req auth.TwoFactorCodeRequest
	if !params.BindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(c, "invalid code", err)
		return
	}

	if err := h.authService.EnableTwoFactor(c.Request.Context(), identityID, req.Code); err != nil {
		response.FromError(c, "failed to enable two-factor", err)
		return
	}
	response.Success(c, http.StatusOK, "two-factor authentication enabled", nil)
}

func (h *AuthHandler) DisableTwoFactor(c *gin.Context) {
	identityID := middleware.MustGetIdentityID(c)

	var req auth.TwoFactorDisableRequest
	if !params.BindJSON(c, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		response.FromError(c, "invalid request", err)
		return
	}

	if err := h.authService.DisableTwoFactor(c.Request.Context(), identityID, &req); err != nil {
		response.FromError(c, "failed to disable two-factor", err)
		return
	}
	response.Success(c, http.StatusOK, "two-factor authentication disabled", nil)
}
