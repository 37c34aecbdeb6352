// Package client talks to the MnetiFi REST API on behalf of the dashboard
// packages. Reads go through a retry policy and circuit breaker; writes are
// sent once and carry an Idempotency-Key so a caller may repeat them safely.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/httpexec"
)

// IdempotencyHeader is read by the API's idempotency middleware.
const IdempotencyHeader = "Idempotency-Key"

// APIError is a non-2xx response. Message is the server's error field.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string { return e.Message }

// NetworkError means no HTTP response arrived.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// ReadRetries caps retries of GET requests. Zero keeps the default; a
	// negative value disables retries.
	ReadRetries int
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	base   *url.URL
	http   *http.Client
	reads  *httpexec.Executor
	logger *zap.Logger

	mu    sync.RWMutex
	token string
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	readCfg := httpexec.DefaultConfig("dashboard-api")
	readCfg.Logger = cfg.Logger
	readCfg.BaseDelay = 100 * time.Millisecond
	switch {
	case cfg.ReadRetries < 0:
		readCfg.MaxRetries = 0
	case cfg.ReadRetries > 0:
		readCfg.MaxRetries = cfg.ReadRetries
	}
	return &Client{
		base:   base,
		http:   hc,
		reads:  httpexec.New(readCfg),
		logger: cfg.Logger,
	}, nil
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the API origin without a trailing slash.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Get fetches path and decodes the envelope's data into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, "")
}

// Do sends one request. GETs are retried on network errors and 5xx; other
// methods are sent once. An empty idempotencyKey sends no header.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}, idempotencyKey string) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	send := func() (*http.Response, error) {
		req, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
		if idempotencyKey != "" {
			req.Header.Set(IdempotencyHeader, idempotencyKey)
		}
		return c.http.Do(req)
	}

	var (
		resp *http.Response
		err  error
	)
	if method == http.MethodGet {
		resp, err = c.reads.Do(ctx, send)
	} else {
		resp, err = send()
	}
	if resp != nil {
		// Exhausted retries still hand back the last response.
		defer resp.Body.Close()
		return decode(resp, out)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Err: err}
	}
	return &NetworkError{Err: errors.New("empty response")}
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	u := c.base.ResolveReference(&url.URL{Path: c.base.Path + ref.Path, RawQuery: ref.RawQuery})

	var r io.Reader
	if payload != nil {
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

func decode(resp *http.Response, out interface{}) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return &NetworkError{Err: err}
	}

	var env envelope
	jsonErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Error}
		if apiErr.Message == "" {
			apiErr.Message = env.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		if len(env.Data) > 0 {
			var d struct {
				Fields map[string]string `json:"fields"`
			}
			if json.Unmarshal(env.Data, &d) == nil {
				apiErr.Fields = d.Fields
			}
		}
		return apiErr
	}

	if jsonErr != nil {
		return fmt.Errorf("failed to decode response: %w", jsonErr)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
