package xerrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("failed to get plan: %w", ErrNotFound), http.StatusNotFound},
		{Wrap(ErrValidation, "plan"), http.StatusBadRequest},
		{ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("redeem: %w", ErrInsufficientPoints), http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{ErrInvalidOTP, http.StatusUnauthorized},
		{ErrTenantInactive, http.StatusForbidden},
		{ErrUpstream, http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), "%v", tc.err)
	}
}

func TestMessageOrDefault(t *testing.T) {
	assert.Equal(t, "fallback", MessageOrDefault(nil, "fallback"))
	assert.Equal(t, "resource not found", MessageOrDefault(ErrNotFound, "fallback"))
}
