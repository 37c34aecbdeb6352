// Package httpexec runs outbound HTTP calls (Daraja, the SMS gateway, the
// dashboard API) through a failsafe-go retry policy and circuit breaker.
package httpexec

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"
)

type Config struct {
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Breaker enables a circuit breaker that opens after 5 failures in 10 calls.
	Breaker     bool
	BreakerWait time.Duration
	ShouldRetry func(resp *http.Response, err error) bool
	Logger      *zap.Logger
}

func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		MaxRetries:  3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Breaker:     true,
		BreakerWait: 15 * time.Second,
		ShouldRetry: RetryOnServerError,
	}
}

// RetryOnServerError retries network errors, 5xx and 429.
func RetryOnServerError(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	}
	return false
}

// RetryOnNetworkError only retries when no response arrived.
func RetryOnNetworkError(resp *http.Response, err error) bool {
	return err != nil || resp == nil
}

// Executor wraps a failsafe executor typed for HTTP responses.
type Executor struct {
	name     string
	executor failsafe.Executor[*http.Response]
	breaker  circuitbreaker.CircuitBreaker[*http.Response]
}

//nolint:bodyclose
func New(cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = RetryOnServerError
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			return cfg.ShouldRetry(resp, err)
		}).
		Build()

	e := &Executor{name: cfg.Name}
	if !cfg.Breaker {
		e.executor = failsafe.With(retry)
		return e
	}

	if cfg.BreakerWait <= 0 {
		cfg.BreakerWait = 15 * time.Second
	}
	logger := cfg.Logger
	e.breaker = circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(cfg.BreakerWait).
		WithSuccessThreshold(1).
		HandleIf(func(resp *http.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode >= 500)
		}).
		OnStateChanged(func(ev circuitbreaker.StateChangedEvent) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", cfg.Name),
				zap.String("from", stateName(ev.OldState)),
				zap.String("to", stateName(ev.NewState)),
			)
		}).
		Build()
	e.executor = failsafe.With[*http.Response](retry, e.breaker)
	return e
}

// Do runs fn with retries. fn must build a fresh request on every attempt.
func (e *Executor) Do(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return e.executor.WithContext(ctx).Get(fn)
}

// BreakerOpen reports whether calls are currently being rejected.
func (e *Executor) BreakerOpen() bool {
	return e.breaker != nil && e.breaker.IsOpen()
}

func (e *Executor) Name() string { return e.name }

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}
