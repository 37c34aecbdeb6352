// Package sms sends text messages through an Africa's Talking compatible
// gateway using each tenant's own account.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"mnetifi-service/internal/pkg/httpexec"
)

const sendPath = "/version1/messaging"

type Account struct {
	Username string
	APIKey   string
	SenderID string
}

type Client struct {
	baseURL string
	http    *http.Client
	exec    *httpexec.Executor
	logger  *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	cfg := httpexec.DefaultConfig("sms")
	cfg.Logger = logger
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 20 * time.Second},
		exec:    httpexec.New(cfg),
		logger:  logger,
	}
}

type recipient struct {
	Number    string `json:"number"`
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

type sendResponse struct {
	SMSMessageData struct {
		Message    string      `json:"Message"`
		Recipients []recipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send delivers message to a single phone in 2547XXXXXXXX form.
func (c *Client) Send(ctx context.Context, acct Account, phone, message string) (string, error) {
	form := url.Values{}
	form.Set("username", acct.Username)
	form.Set("to", "+"+strings.TrimPrefix(phone, "+"))
	form.Set("message", message)
	if acct.SenderID != "" {
		form.Set("from", acct.SenderID)
	}
	encoded := form.Encode()

	resp, err := c.exec.Do(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("apiKey", acct.APIKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.http.Do(req)
	})
	if err != nil {
		return "", fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("sms: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("sms: invalid response: %w", err)
	}
	if len(out.SMSMessageData.Recipients) == 0 {
		return "", fmt.Errorf("sms: not sent: %s", out.SMSMessageData.Message)
	}
	r := out.SMSMessageData.Recipients[0]
	if r.Status != "Success" {
		return "", fmt.Errorf("sms: %s rejected: %s", r.Number, r.Status)
	}
	c.logger.Debug("sms sent", zap.String("message_id", r.MessageID))
	return r.MessageID, nil
}
