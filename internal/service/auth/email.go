package auth

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"
)

// Mailer queues an email for delivery by the worker.
type Mailer interface {
	EnqueueEmail(ctx context.Context, to, subject, html string) error
}

// EmailHelper renders the account emails and queues them.
type EmailHelper struct {
	mailer       Mailer
	logger       *zap.Logger
	dashboardURL string
}

func NewEmailHelper(mailer Mailer, logger *zap.Logger, dashboardURL string) *EmailHelper {
	return &EmailHelper{mailer: mailer, logger: logger, dashboardURL: dashboardURL}
}

func (h *EmailHelper) send(ctx context.Context, to, subject, body string) {
	if h.mailer == nil {
		return
	}
	if err := h.mailer.EnqueueEmail(ctx, to, subject, body); err != nil {
		h.logger.Error("failed to queue email",
			zap.String("email", to),
			zap.String("subject", subject),
			zap.Error(err),
		)
	}
}

// ========== Email Verification ==========

func (h *EmailHelper) EmailVerificationEmail(fullName, token string) (string, string) {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", h.dashboardURL, token)
	subject := "Verify your email - MnetiFi"
	body := fmt.Sprintf(`
		<h2>Welcome to MnetiFi</h2>
		<p>Hello %s,</p>
		<p>Confirm your email address to activate your hotspot dashboard.</p>
		<p><a href="%s" class="button">Verify Email</a></p>
		<p>Or paste this link into your browser: <a href="%s">%s</a></p>
		<p>This link expires in 24 hours.</p>
	`, html.EscapeString(fullName), verifyURL, verifyURL, verifyURL)
	return subject, body
}

func (h *EmailHelper) SendEmailVerification(ctx context.Context, email, fullName, token string) {
	subject, body := h.EmailVerificationEmail(fullName, token)
	h.send(ctx, email, subject, body)
}

// ========== Password Reset ==========

func (h *EmailHelper) PasswordResetEmail(fullName, token string) (string, string) {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", h.dashboardURL, token)
	subject := "Password reset request - MnetiFi"
	body := fmt.Sprintf(`
		<h2>Password Reset Request</h2>
		<p>Hello %s,</p>
		<p>We received a request to reset the password of your MnetiFi account.</p>
		<p><a href="%s" class="button">Reset Password</a></p>
		<p>Or paste this link into your browser: <a href="%s">%s</a></p>
		<p>The link expires in 1 hour. If you did not ask for a reset, ignore this email.</p>
	`, html.EscapeString(fullName), resetURL, resetURL, resetURL)
	return subject, body
}

func (h *EmailHelper) SendPasswordResetEmail(ctx context.Context, email, fullName, token string) {
	subject, body := h.PasswordResetEmail(fullName, token)
	h.send(ctx, email, subject, body)
}

// ========== Account Notices ==========

func (h *EmailHelper) WelcomeEmail(fullName, businessName string) (string, string) {
	subject := "Your MnetiFi hotspot is ready"
	body := fmt.Sprintf(`
		<h2>You're all set</h2>
		<p>Hello %s,</p>
		<p>%s is now live on MnetiFi. Add your routers, create plans and start selling vouchers.</p>
		<p><a href="%s" class="button">Open Dashboard</a></p>
	`, html.EscapeString(fullName), html.EscapeString(businessName), h.dashboardURL)
	return subject, body
}

func (h *EmailHelper) SendWelcomeEmail(ctx context.Context, email, fullName, businessName string) {
	subject, body := h.WelcomeEmail(fullName, businessName)
	h.send(ctx, email, subject, body)
}

func (h *EmailHelper) PasswordChangedEmail(fullName string) (string, string) {
	subject := "Your MnetiFi password was changed"
	body := fmt.Sprintf(`
		<h2>Password Changed</h2>
		<p>Hello %s,</p>
		<p>Your password was just changed and every signed-in device was logged out.</p>
		<p>If this wasn't you, reset your password immediately and contact support.</p>
	`, html.EscapeString(fullName))
	return subject, body
}

func (h *EmailHelper) SendPasswordChangedNotification(ctx context.Context, email, fullName string) {
	subject, body := h.PasswordChangedEmail(fullName)
	h.send(ctx, email, subject, body)
}

func (h *EmailHelper) TwoFactorChangedEmail(fullName string, enabled bool) (string, string) {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	subject := "Two-factor authentication " + state
	body := fmt.Sprintf(`
		<h2>Two-factor authentication %s</h2>
		<p>Hello %s,</p>
		<p>Two-factor authentication was %s on your MnetiFi account.</p>
	`, state, html.EscapeString(fullName), state)
	return subject, body
}

func (h *EmailHelper) SendTwoFactorChanged(ctx context.Context, email, fullName string, enabled bool) {
	subject, body := h.TwoFactorChangedEmail(fullName, enabled)
	h.send(ctx, email, subject, body)
}
