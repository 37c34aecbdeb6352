// Package twofactor drives enabling and disabling TOTP for the signed-in
// admin.
package twofactor

import (
	"context"
	"errors"
	"sync"

	"mnetifi-service/internal/domain/auth"
)

type State int

const (
	Disabled State = iota
	SetupPending
	Enabled
)

func (s State) String() string {
	switch s {
	case SetupPending:
		return "setup-pending"
	case Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}

var ErrInvalidState = errors.New("two-factor action not allowed in the current state")

type API interface {
	SetupTwoFactor(ctx context.Context) (*auth.TwoFactorSetupResponse, error)
	EnableTwoFactor(ctx context.Context, code string) error
	DisableTwoFactor(ctx context.Context, password, code string) error
}

type Flow struct {
	mu    sync.Mutex
	api   API
	state State
	setup *auth.TwoFactorSetupResponse
}

// New starts the flow from the account's current TOTP flag.
func New(api API, enabled bool) *Flow {
	f := &Flow{api: api}
	if enabled {
		f.state = Enabled
	}
	return f
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Setup is the pending secret and otpauth URL, nil outside SetupPending.
func (f *Flow) Setup() *auth.TwoFactorSetupResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setup
}

// Begin asks the server for a new secret.
func (f *Flow) Begin(ctx context.Context) (*auth.TwoFactorSetupResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Disabled {
		return nil, ErrInvalidState
	}
	setup, err := f.api.SetupTwoFactor(ctx)
	if err != nil {
		return nil, err
	}
	f.setup = setup
	f.state = SetupPending
	return setup, nil
}

// Confirm enables TOTP with a code from the authenticator. A wrong code
// leaves the setup pending.
func (f *Flow) Confirm(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != SetupPending {
		return ErrInvalidState
	}
	if err := (auth.TwoFactorCodeRequest{Code: code}).Validate(); err != nil {
		return err
	}
	if err := f.api.EnableTwoFactor(ctx, code); err != nil {
		return err
	}
	f.setup = nil
	f.state = Enabled
	return nil
}

// Cancel abandons a pending setup.
func (f *Flow) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == SetupPending {
		f.setup = nil
		f.state = Disabled
	}
}

// Disable turns TOTP off. Both the password and a current code are
// required; any failure leaves it enabled.
func (f *Flow) Disable(ctx context.Context, password, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Enabled {
		return ErrInvalidState
	}
	if err := (auth.TwoFactorDisableRequest{Password: password, Code: code}).Validate(); err != nil {
		return err
	}
	if err := f.api.DisableTwoFactor(ctx, password, code); err != nil {
		return err
	}
	f.state = Disabled
	return nil
}
