package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/jwt"
	"mnetifi-service/internal/pkg/session"
)

func init() { gin.SetMode(gin.TestMode) }

type stubValidator map[string]*jwt.Claims

func (s stubValidator) ValidateToken(_ context.Context, token string) (*jwt.Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func validator() stubValidator {
	exp := gojwt.NewNumericDate(time.Now().Add(time.Hour))
	return stubValidator{
		"admin": {IdentityID: 7, TenantID: 3, Roles: []string{jwt.RoleAdmin},
			RegisteredClaims: gojwt.RegisteredClaims{ID: "jti-admin", ExpiresAt: exp}},
		"root": {IdentityID: 1, Roles: []string{jwt.RoleSuperAdmin},
			RegisteredClaims: gojwt.RegisteredClaims{ID: "jti-root", ExpiresAt: exp}},
	}
}

func do(r http.Handler, method, path, token string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminOnly(t *testing.T) {
	m := NewAuthMiddleware(validator())
	r := gin.New()
	r.GET("/t", append(m.AdminOnly(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant": MustGetTenantID(c), "jti": MustGetJTI(c)})
	})...)

	w := do(r, http.MethodGet, "/t", "admin", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"tenant":3,"jti":"jti-admin"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/t", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/t", "forged", nil).Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/t", "root", nil).Code)
}

func TestSuperAdminOnly(t *testing.T) {
	m := NewAuthMiddleware(validator())
	r := gin.New()
	r.GET("/s", append(m.SuperAdminOnly(), func(c *gin.Context) { c.Status(http.StatusOK) })...)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/s", "root", nil).Code)
	w := do(r, http.MethodGet, "/s", "admin", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"user does not have required role"`)
}

func TestTokenFromQuery(t *testing.T) {
	m := NewAuthMiddleware(validator())
	r := gin.New()
	r.GET("/ws", m.Auth(), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ws?token=admin", "", nil).Code)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRecoveryAfterWrite(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/half", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := do(r, http.MethodGet, "/half", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), LoggingMiddleware(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := do(r, http.MethodGet, "/x", "", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", w.Body.String())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.mnetifi.co.ke"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := do(r, http.MethodOptions, "/x", "", map[string]string{"Origin": "https://app.mnetifi.co.ke"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.mnetifi.co.ke", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(r, http.MethodGet, "/x", "", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func newRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	rdb := newRedis(t)
	var calls atomic.Int32

	m := NewAuthMiddleware(validator())
	r := gin.New()
	r.POST("/plans", m.Auth(), Idempotency(rdb, zap.NewNop()), func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"n": n})
	})

	hdr := map[string]string{IdempotencyKeyHeader: "k-1"}
	first := do(r, http.MethodPost, "/plans", "admin", hdr)
	second := do(r, http.MethodPost, "/plans", "admin", hdr)

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, int32(1), calls.Load())

	// Same key from another caller runs again.
	do(r, http.MethodPost, "/plans", "root", hdr)
	assert.Equal(t, int32(2), calls.Load())

	// No key, no replay.
	do(r, http.MethodPost, "/plans", "admin", nil)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	rdb := newRedis(t)
	var calls atomic.Int32

	r := gin.New()
	r.POST("/pay", Idempotency(rdb, zap.NewNop()), func(c *gin.Context) {
		if calls.Add(1) == 1 {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	hdr := map[string]string{IdempotencyKeyHeader: "pay-1"}
	assert.Equal(t, http.StatusBadGateway, do(r, http.MethodPost, "/pay", "", hdr).Code)
	w := do(r, http.MethodPost, "/pay", "", hdr)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Idempotency-Replayed"))
}

func TestRateLimit(t *testing.T) {
	rdb := newRedis(t)
	r := gin.New()
	r.POST("/redeem", RateLimit(session.NewRateLimiter(rdb), 2, time.Minute, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/redeem", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/redeem", "", nil).Code)
	w := do(r, http.MethodPost, "/redeem", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.Contains(t, w.Body.String(), "rate limit exceeded")
}
