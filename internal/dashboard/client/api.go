package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"mnetifi-service/internal/domain/auth"
	"mnetifi-service/internal/domain/terminal"
)

// Page is the decoded form of the API's paginated list payload.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// CommandResult is the terminal execute payload.
type CommandResult struct {
	HotspotID int64     `json:"hotspot_id"`
	Sequence  int64     `json:"sequence"`
	Command   string    `json:"command"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) Login(ctx context.Context, email, password, device string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.Do(ctx, http.MethodPost, "/api/auth/login", auth.LoginRequest{
		Email:    email,
		Password: password,
		Device:   device,
	}, &out, "")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFactor completes a login that returned a challenge token.
func (c *Client) VerifyTwoFactor(ctx context.Context, challenge, code string) (*auth.LoginResponse, error) {
	var out auth.LoginResponse
	err := c.Do(ctx, http.MethodPost, "/api/auth/2fa/verify", auth.TwoFactorLoginRequest{
		ChallengeToken: challenge,
		Code:           code,
	}, &out, "")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, "")
}

func (c *Client) Me(ctx context.Context) (*auth.UserInfo, error) {
	var out auth.UserInfo
	if err := c.Get(ctx, "/api/auth/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateStep asks the server to check one registration step.
func (c *Client) ValidateStep(ctx context.Context, step int, body interface{}) error {
	path := "/api/auth/register/validate?step=" + strconv.Itoa(step)
	return c.Do(ctx, http.MethodPost, path, body, nil, "")
}

func (c *Client) Register(ctx context.Context, req auth.RegisterRequest) (*auth.RegisterResponse, error) {
	var out auth.RegisterResponse
	if err := c.Do(ctx, http.MethodPost, "/api/auth/register", req, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetupTwoFactor(ctx context.Context) (*auth.TwoFactorSetupResponse, error) {
	var out auth.TwoFactorSetupResponse
	if err := c.Do(ctx, http.MethodPost, "/api/auth/2fa/setup", nil, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EnableTwoFactor(ctx context.Context, code string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/2fa/enable", auth.TwoFactorCodeRequest{Code: code}, nil, "")
}

func (c *Client) DisableTwoFactor(ctx context.Context, password, code string) error {
	return c.Do(ctx, http.MethodPost, "/api/auth/2fa/disable", auth.TwoFactorDisableRequest{
		Password: password,
		Code:     code,
	}, nil, "")
}

// ExecuteCommand runs one RouterOS command. A command the router rejected
// is a result with Success false, not an error.
func (c *Client) ExecuteCommand(ctx context.Context, hotspotID int64, command string) (*CommandResult, error) {
	var out CommandResult
	err := c.Do(ctx, http.MethodPost, "/api/terminal/execute", terminal.ExecuteRequest{
		HotspotID: hotspotID,
		Command:   command,
	}, &out, "")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Path joins segments and query params into a request path.
func Path(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return fmt.Sprintf("%s?%s", path, params.Encode())
}
