// Package params parses path parameters shared by the handlers.
package params

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mnetifi-service/internal/pkg/response"
)

// ID parses a positive int64 path parameter. On failure it writes a 400 and
// returns false.
func ID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", name), nil)
		return 0, false
	}
	return id, true
}

// BindJSON binds the request body, writing a 400 on malformed JSON.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return false
	}
	return true
}

// BindQuery binds query parameters, writing a 400 when they do not parse.
func BindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return false
	}
	return true
}
