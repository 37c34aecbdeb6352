// internal/pkg/session/rate_limiter.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	maxLoginAttempts = 5
	loginWindow      = 15 * time.Minute
)

type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// hit increments key and reports whether the count is still within max.
func (r *RateLimiter) hit(ctx context.Context, key string, max int64, window time.Duration) (bool, int64, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if count == 1 {
		r.client.Expire(ctx, key, window)
	}
	return count <= max, count, nil
}

// CheckLoginAttempt allows 5 attempts per ip and email every 15 minutes.
func (r *RateLimiter) CheckLoginAttempt(ctx context.Context, ip, email string) (bool, int64, error) {
	ok, count, err := r.hit(ctx, loginKey(ip, email), maxLoginAttempts, loginWindow)
	if err != nil {
		return false, 0, err
	}
	remaining := maxLoginAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return ok, remaining, nil
}

func (r *RateLimiter) ResetLoginAttempts(ctx context.Context, ip, email string) error {
	return r.client.Del(ctx, loginKey(ip, email)).Err()
}

// CheckPasswordResetAttempt allows 3 reset requests per email per hour.
func (r *RateLimiter) CheckPasswordResetAttempt(ctx context.Context, email string) (bool, error) {
	ok, _, err := r.hit(ctx, "ratelimit:password_reset:"+email, 3, time.Hour)
	return ok, err
}

// CheckOTPAttempt allows 5 two-factor codes per identity every 10 minutes.
func (r *RateLimiter) CheckOTPAttempt(ctx context.Context, identityID int64) (bool, error) {
	ok, _, err := r.hit(ctx, fmt.Sprintf("ratelimit:otp:%d", identityID), 5, 10*time.Minute)
	return ok, err
}

func (r *RateLimiter) ResetOTPAttempts(ctx context.Context, identityID int64) error {
	return r.client.Del(ctx, fmt.Sprintf("ratelimit:otp:%d", identityID)).Err()
}

// CheckAPIRateLimit is a fixed-window limiter keyed by caller and route.
func (r *RateLimiter) CheckAPIRateLimit(ctx context.Context, caller, endpoint string, maxRequests int64, window time.Duration) (bool, error) {
	ok, _, err := r.hit(ctx, fmt.Sprintf("ratelimit:api:%s:%s", caller, endpoint), maxRequests, window)
	return ok, err
}

func loginKey(ip, email string) string {
	return fmt.Sprintf("ratelimit:login:%s:%s", ip, email)
}
