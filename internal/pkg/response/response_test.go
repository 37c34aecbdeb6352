package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "mnetifi-service/internal/pkg/errors"
	"mnetifi-service/internal/pkg/validate"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorAlwaysCarriesErrorField(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, http.StatusNotFound, "plan not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, c.IsAborted())
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "plan not found", body["error"])
}

func TestFromError(t *testing.T) {
	t.Run("conflict keeps message", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, "failed to close ticket", fmt.Errorf("close: %w", xerrors.ErrInvalidTransition))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "close: invalid status transition", decode(t, w)["error"])
	})

	t.Run("validation exposes fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, "invalid plan", validate.FieldErrors{"price": "price must be greater than zero"})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		fields := data["fields"].(map[string]interface{})
		assert.Equal(t, "price must be greater than zero", fields["price"])
	})

	t.Run("internal errors are masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, "failed to list plans", errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, xerrors.ErrInternal.Error(), decode(t, w)["error"])
	})
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 41, 1, 20)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 0, NewPaginated(nil, 0, 1, 20).TotalPages)
}
