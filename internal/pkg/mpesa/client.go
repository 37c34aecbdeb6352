// Package mpesa is a Safaricom Daraja client for STK push and STK query.
// Each tenant brings its own shortcode and consumer keys; OAuth tokens are
// cached in Redis per tenant and environment.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/httpexec"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	stkPath   = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// processingCode is returned by STK query while the customer has not
	// answered the prompt yet.
	processingCode = "500.001.1001"
)

var (
	// ErrStillProcessing means the payment outcome is not known yet.
	ErrStillProcessing = errors.New("mpesa: transaction still processing")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("mpesa: service unavailable")
)

// Credentials identify a tenant's paybill or till.
type Credentials struct {
	Shortcode      string
	Passkey        string
	ConsumerKey    string
	ConsumerSecret string
	Environment    string
}

type Config struct {
	SandboxURL    string
	ProductionURL string
	Timeout       time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	exec   *httpexec.Executor
	// calls runs STK requests. It never retries: a push that reached
	// Daraja and is sent again prompts the customer twice.
	calls  *httpexec.Executor
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewClient(cfg Config, rdb *redis.Client, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	tokenCfg := httpexec.DefaultConfig("mpesa-oauth")
	tokenCfg.Logger = logger
	callCfg := httpexec.DefaultConfig("mpesa")
	callCfg.MaxRetries = 0
	callCfg.Logger = logger
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		exec:   httpexec.New(tokenCfg),
		calls:  httpexec.New(callCfg),
		rdb:    rdb,
		logger: logger,
		now:    time.Now,
	}
}

func (c *Client) baseURL(env string) string {
	if env == EnvProduction {
		return c.cfg.ProductionURL
	}
	return c.cfg.SandboxURL
}

// APIError is a non-2xx answer from Daraja.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mpesa: %d %s: %s", e.Status, e.Code, e.Message)
}

// ========== OAuth ==========

func tokenKey(tenantID int64, env string) string {
	return fmt.Sprintf("mpesa:token:%d:%s", tenantID, env)
}

func (c *Client) token(ctx context.Context, tenantID int64, creds Credentials) (string, error) {
	key := tokenKey(tenantID, creds.Environment)
	if tok, err := c.rdb.Get(ctx, key).Result(); err == nil && tok != "" {
		return tok, nil
	} else if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("mpesa token cache unavailable", zap.Error(err))
	}

	basic := base64.StdEncoding.EncodeToString([]byte(creds.ConsumerKey + ":" + creds.ConsumerSecret))
	resp, err := c.exec.Do(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(creds.Environment)+tokenPath, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Basic "+basic)
		return c.http.Do(req)
	})
	if err != nil {
		return "", c.wrap(c.exec, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("mpesa: invalid token response: %w", err)
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(body.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	// Refresh a minute early so a token never expires mid-request.
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}
	if err := c.rdb.Set(ctx, key, body.AccessToken, ttl).Err(); err != nil {
		c.logger.Warn("failed to cache mpesa token", zap.Error(err))
	}
	return body.AccessToken, nil
}

// ========== STK push ==========

type STKPushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	AccountRef  string
	Description string
	CallbackURL string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// timestamp is Daraja's yyyyMMddHHmmss in East Africa Time.
func (c *Client) timestamp() string {
	return c.now().In(time.FixedZone("EAT", 3*60*60)).Format("20060102150405")
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

// STKPush prompts the customer's phone. Daraja only accepts whole shillings,
// so amounts are rounded up.
func (c *Client) STKPush(ctx context.Context, tenantID int64, creds Credentials, in STKPushRequest) (*STKPushResponse, error) {
	ts := c.timestamp()
	amount := in.Amount.Ceil().IntPart()
	payload := map[string]interface{}{
		"BusinessShortCode": creds.Shortcode,
		"Password":          Password(creds.Shortcode, creds.Passkey, ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            in.Phone,
		"PartyB":            creds.Shortcode,
		"PhoneNumber":       in.Phone,
		"CallBackURL":       in.CallbackURL,
		"AccountReference":  truncate(in.AccountRef, 12),
		"TransactionDesc":   truncate(in.Description, 13),
	}

	var out STKPushResponse
	if err := c.post(ctx, tenantID, creds, stkPath, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &APIError{Status: http.StatusOK, Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	c.logger.Info("stk push accepted",
		zap.Int64("tenant_id", tenantID),
		zap.String("checkout_request_id", out.CheckoutRequestID),
		zap.Int64("amount", amount),
	)
	return &out, nil
}

// ========== STK query ==========

type QueryResult struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// Paid reports a successful payment.
func (r *QueryResult) Paid() bool { return r.ResultCode == "0" }

// Query asks Daraja for the outcome of a push. It returns ErrStillProcessing
// while the customer has not answered.
func (c *Client) Query(ctx context.Context, tenantID int64, creds Credentials, checkoutRequestID string) (*QueryResult, error) {
	ts := c.timestamp()
	payload := map[string]interface{}{
		"BusinessShortCode": creds.Shortcode,
		"Password":          Password(creds.Shortcode, creds.Passkey, ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}
	var out QueryResult
	err := c.post(ctx, tenantID, creds, queryPath, payload, &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == processingCode {
		return nil, ErrStillProcessing
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, tenantID int64, creds Credentials, path string, payload, out interface{}) error {
	tok, err := c.token(ctx, tenantID, creds)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mpesa: encode request: %w", err)
	}

	resp, err := c.calls.Do(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(creds.Environment)+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Content-Type", "application/json")
		return c.http.Do(req)
	})
	if err != nil {
		return c.wrap(c.calls, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// A revoked token: drop it so the next call fetches a new one.
		c.rdb.Del(ctx, tokenKey(tenantID, creds.Environment))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mpesa: invalid response: %w", err)
	}
	return nil
}

func (c *Client) wrap(e *httpexec.Executor, err error) error {
	if e.BreakerOpen() {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("mpesa: request failed: %w", err)
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		ErrorCode    string `json:"errorCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.ErrorMessage == "" {
		body.ErrorMessage = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Code: body.ErrorCode, Message: body.ErrorMessage}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
