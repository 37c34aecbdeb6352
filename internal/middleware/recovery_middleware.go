package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/response"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope. A panic with
// http.ErrAbortHandler means the client went away and is only logged at
// debug; nothing is written once headers have gone out.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.String("request_id", GetRequestID(c)),
			}
			if tenantID, ok := GetTenantID(c); ok {
				fields = append(fields, zap.Int64("tenant_id", tenantID))
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				logger.Debug("request aborted", fields...)
				c.Abort()
				return
			}
			logger.Error("panic recovered", append(fields, zap.Any("panic", rec), zap.Stack("stack"))...)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
