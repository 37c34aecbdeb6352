package twofactor

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnetifi-service/internal/dashboard/client"
	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/pkg/validate"
)

type api struct {
	enableErr  error
	disableErr error
	enabled    []string
	disabled   int
}

func (a *api) SetupTwoFactor(context.Context) (*auth.TwoFactorSetupResponse, error) {
	return &auth.TwoFactorSetupResponse{Secret: "JBSWY3DPEHPK3PXP", OTPAuthURL: "otpauth://totp/MnetiFi:a@b.co"}, nil
}

func (a *api) EnableTwoFactor(_ context.Context, code string) error {
	a.enabled = append(a.enabled, code)
	return a.enableErr
}

func (a *api) DisableTwoFactor(context.Context, string, string) error {
	a.disabled++
	return a.disableErr
}

func TestEnableFlow(t *testing.T) {
	a := &api{}
	f := New(a, false)
	ctx := context.Background()

	assert.ErrorIs(t, f.Confirm(ctx, "123456"), ErrInvalidState)

	setup, err := f.Begin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", setup.Secret)
	assert.Equal(t, SetupPending, f.State())

	err = f.Confirm(ctx, "12ab")
	var fe validate.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe, "code")
	assert.Empty(t, a.enabled)

	require.NoError(t, f.Confirm(ctx, "123456"))
	assert.Equal(t, Enabled, f.State())
	assert.Nil(t, f.Setup())
}

func TestWrongCodeKeepsSetupPending(t *testing.T) {
	f := New(&api{enableErr: &client.APIError{Status: http.StatusBadRequest, Message: "invalid code"}}, false)
	_, err := f.Begin(context.Background())
	require.NoError(t, err)

	require.Error(t, f.Confirm(context.Background(), "000000"))
	assert.Equal(t, SetupPending, f.State())
	assert.NotNil(t, f.Setup())

	f.Cancel()
	assert.Equal(t, Disabled, f.State())
	assert.Nil(t, f.Setup())
}

func TestDisableRequiresPasswordAndCode(t *testing.T) {
	a := &api{}
	f := New(a, true)
	ctx := context.Background()

	require.Error(t, f.Disable(ctx, "", "123456"))
	require.Error(t, f.Disable(ctx, "Secret#123", ""))
	assert.Zero(t, a.disabled)
	assert.Equal(t, Enabled, f.State())

	require.NoError(t, f.Disable(ctx, "Secret#123", "123456"))
	assert.Equal(t, Disabled, f.State())
}

func TestDisableStaysEnabledOnServerError(t *testing.T) {
	f := New(&api{disableErr: &client.APIError{Status: http.StatusUnauthorized, Message: "invalid two-factor code"}}, true)

	err := f.Disable(context.Background(), "Secret#123", "654321")
	assert.EqualError(t, err, "invalid two-factor code")
	assert.Equal(t, Enabled, f.State())
}

func TestBeginRequiresDisabled(t *testing.T) {
	f := New(&api{}, true)
	_, err := f.Begin(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "enabled", f.State().String())
}
